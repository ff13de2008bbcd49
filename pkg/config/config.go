package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so peer_markers can contain both "gpt-4o" and 4.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Bot       BotConfig       `json:"bot"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	LLM       LLMConfig       `json:"llm"`
	Persona   PersonaConfig   `json:"persona"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging"`
	mu        sync.RWMutex
}

type BotConfig struct {
	Name                 string              `json:"name" env:"AIZOO_BOT_NAME"`
	IdentityKey          string              `json:"identity_key" env:"AIZOO_BOT_IDENTITY_KEY"`
	ChannelID            string              `json:"channel_id" env:"AIZOO_BOT_CHANNEL_ID"`
	CommandPrefix        string              `json:"command_prefix" env:"AIZOO_BOT_COMMAND_PREFIX"`
	MinResponseDelay     int                 `json:"min_response_delay" env:"AIZOO_BOT_MIN_RESPONSE_DELAY"` // seconds
	MaxResponseDelay     int                 `json:"max_response_delay" env:"AIZOO_BOT_MAX_RESPONSE_DELAY"` // seconds
	MaxConversationTurns int                 `json:"max_conversation_turns" env:"AIZOO_BOT_MAX_CONVERSATION_TURNS"`
	MinCooldownMinutes   int                 `json:"min_cooldown_minutes" env:"AIZOO_BOT_MIN_COOLDOWN_MINUTES"`
	MaxCooldownMinutes   int                 `json:"max_cooldown_minutes" env:"AIZOO_BOT_MAX_COOLDOWN_MINUTES"`
	ResponseProbability  float64             `json:"response_probability" env:"AIZOO_BOT_RESPONSE_PROBABILITY"`
	PeerMarkers          FlexibleStringSlice `json:"peer_markers" env:"AIZOO_BOT_PEER_MARKERS" envSeparator:","`
	HistoryLimit         int                 `json:"history_limit" env:"AIZOO_BOT_HISTORY_LIMIT"`
	TypingMinChars       int                 `json:"typing_min_chars" env:"AIZOO_BOT_TYPING_MIN_CHARS"`
	TypingMaxChars       int                 `json:"typing_max_chars" env:"AIZOO_BOT_TYPING_MAX_CHARS"`
	TypingMinCPM         int                 `json:"typing_min_cpm" env:"AIZOO_BOT_TYPING_MIN_CPM"`
	TypingMaxCPM         int                 `json:"typing_max_cpm" env:"AIZOO_BOT_TYPING_MAX_CPM"`
	BaseRoleFile         string              `json:"base_role_file" env:"AIZOO_BOT_BASE_ROLE_FILE"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token string `json:"token" env:"AIZOO_CHANNELS_DISCORD_TOKEN"`
}

type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `json:"openai"`
	Anthropic AnthropicConfig `json:"anthropic"`
}

type OpenAIConfig struct {
	APIKey       string `json:"api_key" env:"AIZOO_PROVIDERS_OPENAI_API_KEY"`
	APIKeyFile   string `json:"api_key_file,omitempty" env:"AIZOO_PROVIDERS_OPENAI_API_KEY_FILE"`
	APIBase      string `json:"api_base" env:"AIZOO_PROVIDERS_OPENAI_API_BASE"`
	Organization string `json:"organization,omitempty" env:"AIZOO_PROVIDERS_OPENAI_ORGANIZATION"`
	Proxy        string `json:"proxy,omitempty" env:"AIZOO_PROVIDERS_OPENAI_PROXY"`
}

type AnthropicConfig struct {
	APIKey     string `json:"api_key" env:"AIZOO_PROVIDERS_ANTHROPIC_API_KEY"`
	APIKeyFile string `json:"api_key_file,omitempty" env:"AIZOO_PROVIDERS_ANTHROPIC_API_KEY_FILE"`
	APIBase    string `json:"api_base" env:"AIZOO_PROVIDERS_ANTHROPIC_API_BASE"`
	Version    string `json:"version" env:"AIZOO_PROVIDERS_ANTHROPIC_VERSION"`
	Proxy      string `json:"proxy,omitempty" env:"AIZOO_PROVIDERS_ANTHROPIC_PROXY"`
}

type LLMConfig struct {
	DefaultModel string  `json:"default_model" env:"AIZOO_LLM_DEFAULT_MODEL"`
	MaxTokens    int     `json:"max_tokens" env:"AIZOO_LLM_MAX_TOKENS"`
	Temperature  float64 `json:"temperature" env:"AIZOO_LLM_TEMPERATURE"`
}

type PersonaConfig struct {
	NotionAPIKey         string            `json:"notion_api_key" env:"AIZOO_PERSONA_NOTION_API_KEY"`
	NotionDatabaseID     string            `json:"notion_database_id" env:"AIZOO_PERSONA_NOTION_DATABASE_ID"`
	NotionAPIBase        string            `json:"notion_api_base" env:"AIZOO_PERSONA_NOTION_API_BASE"`
	NotionVersion        string            `json:"notion_version" env:"AIZOO_PERSONA_NOTION_VERSION"`
	PropertyMap          map[string]string `json:"property_map"`
	RefreshMinutes       int               `json:"refresh_minutes" env:"AIZOO_PERSONA_REFRESH_MINUTES"`
	LookupTimeoutSeconds int               `json:"lookup_timeout_seconds" env:"AIZOO_PERSONA_LOOKUP_TIMEOUT_SECONDS"`
	File                 string            `json:"file" env:"AIZOO_PERSONA_FILE"`
	CacheDB              string            `json:"cache_db" env:"AIZOO_PERSONA_CACHE_DB"`
}

type ScheduleConfig struct {
	Enabled    bool   `json:"enabled" env:"AIZOO_SCHEDULE_ENABLED"`
	Expression string `json:"expression" env:"AIZOO_SCHEDULE_EXPRESSION"`
	ChannelID  string `json:"channel_id,omitempty" env:"AIZOO_SCHEDULE_CHANNEL_ID"`
}

type GatewayConfig struct {
	Enabled bool   `json:"enabled" env:"AIZOO_GATEWAY_ENABLED"`
	Host    string `json:"host" env:"AIZOO_GATEWAY_HOST"`
	Port    int    `json:"port" env:"AIZOO_GATEWAY_PORT"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"AIZOO_LOGGING_LEVEL"`
	Format string `json:"format" env:"AIZOO_LOGGING_FORMAT"`
}

// DefaultPropertyMap maps persona fields to Notion database column names.
func DefaultPropertyMap() map[string]string {
	return map[string]string{
		"name":           "Name",
		"personality":    "Personality",
		"speaking_style": "Speaking Style",
		"language":       "Language",
		"restrictions":   "Restrictions",
		"background":     "Background",
		"interests":      "Interests",
		"model":          "Model",
	}
}

func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name:                 "AI Zoo Bot",
			IdentityKey:          "",
			ChannelID:            "",
			CommandPrefix:        "!",
			MinResponseDelay:     5,
			MaxResponseDelay:     15,
			MaxConversationTurns: 10,
			MinCooldownMinutes:   1,
			MaxCooldownMinutes:   3,
			ResponseProbability:  1.0,
			PeerMarkers:          FlexibleStringSlice{"gpt-4o-animal", "claude-animal", "gpt-4o", "claude"},
			HistoryLimit:         10,
			TypingMinChars:       50,
			TypingMaxChars:       200,
			TypingMinCPM:         50,
			TypingMaxCPM:         100,
		},
		Providers: ProvidersConfig{
			OpenAI:    OpenAIConfig{},
			Anthropic: AnthropicConfig{Version: "2023-06-01"},
		},
		LLM: LLMConfig{
			DefaultModel: "gpt-4",
			MaxTokens:    500,
			Temperature:  0.7,
		},
		Persona: PersonaConfig{
			NotionVersion:        "2022-06-28",
			PropertyMap:          DefaultPropertyMap(),
			RefreshMinutes:       60,
			LookupTimeoutSeconds: 10,
			CacheDB:              "~/.aizoo/state/personas.db",
		},
		Schedule: ScheduleConfig{
			Enabled:    false,
			Expression: "0 8,12,19,23 * * *",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18791,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the JSON config at path (a missing file yields defaults),
// loads any existing envFiles into the process environment without overriding
// variables that are already set, then applies AIZOO_* environment overrides.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		f = expandHome(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate reports structural problems. A missing channel id is not an
// error here; it is reported where the channel is first needed.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	b := c.Bot
	if b.MinResponseDelay < 0 || b.MaxResponseDelay < b.MinResponseDelay {
		errs = append(errs, fmt.Errorf("bot response delay range invalid: min=%d max=%d", b.MinResponseDelay, b.MaxResponseDelay))
	}
	if b.MaxConversationTurns <= 0 {
		errs = append(errs, fmt.Errorf("bot.max_conversation_turns must be > 0"))
	}
	if b.MinCooldownMinutes < 0 || b.MaxCooldownMinutes < b.MinCooldownMinutes {
		errs = append(errs, fmt.Errorf("bot cooldown range invalid: min=%d max=%d", b.MinCooldownMinutes, b.MaxCooldownMinutes))
	}
	if b.ResponseProbability < 0 || b.ResponseProbability > 1 {
		errs = append(errs, fmt.Errorf("bot.response_probability must be within [0,1]"))
	}
	if b.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("bot.history_limit must be > 0"))
	}
	if b.TypingMinChars <= 0 || b.TypingMaxChars < b.TypingMinChars {
		errs = append(errs, fmt.Errorf("bot typing length range invalid: min=%d max=%d", b.TypingMinChars, b.TypingMaxChars))
	}
	if b.TypingMinCPM <= 0 || b.TypingMaxCPM < b.TypingMinCPM {
		errs = append(errs, fmt.Errorf("bot typing speed range invalid: min=%d max=%d", b.TypingMinCPM, b.TypingMaxCPM))
	}
	if strings.TrimSpace(b.CommandPrefix) == "" {
		errs = append(errs, fmt.Errorf("bot.command_prefix must not be empty"))
	}
	if c.Schedule.Enabled {
		g := gronx.New()
		if !g.IsValid(c.Schedule.Expression) {
			errs = append(errs, fmt.Errorf("schedule.expression %q is not a valid cron expression", c.Schedule.Expression))
		}
	}
	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		errs = append(errs, fmt.Errorf("gateway.port out of range: %d", c.Gateway.Port))
	}
	return errors.Join(errs...)
}

// IdentityKey returns the persona lookup key, falling back to the display name.
func (c *Config) IdentityKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if key := strings.TrimSpace(c.Bot.IdentityKey); key != "" {
		return key
	}
	return c.Bot.Name
}

func (c *Config) ResponseDelayRange() (time.Duration, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Bot.MinResponseDelay) * time.Second, time.Duration(c.Bot.MaxResponseDelay) * time.Second
}

func (c *Config) CooldownRange() (time.Duration, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Bot.MinCooldownMinutes) * time.Minute, time.Duration(c.Bot.MaxCooldownMinutes) * time.Minute
}

func (c *Config) PersonaCachePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Persona.CacheDB)
}

func (c *Config) PersonaFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Persona.File)
}

func (c *Config) BaseRolePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Bot.BaseRoleFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

// ScheduleChannelID is where scheduled starters are posted: the schedule
// override when set, otherwise the bot channel.
func (c *Config) ScheduleChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id := strings.TrimSpace(c.Schedule.ChannelID); id != "" {
		return id
	}
	return c.Bot.ChannelID
}
