package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dotsetgreg/aizoo/pkg/config"
)

const (
	defaultAnthropicAPIBase   = "https://api.anthropic.com/v1"
	defaultAnthropicModel     = "claude-3-5-sonnet-latest"
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 500

	// Anthropic requires the first turn to come from the user.
	anthropicLeadInUserTurn = "(The conversation so far follows.)"
)

func init() {
	RegisterFactory(ProviderAnthropic, newAnthropicProviderFromConfig, validateAnthropicConfig, anthropicCredentialStatus)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicProvider struct {
	apiBase    string
	version    string
	auth       AuthStrategy
	httpClient *http.Client
}

func validateAnthropicConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	_, _, err := resolveAnthropicAuthConfig(cfg)
	return err
}

func anthropicCredentialStatus(cfg *config.Config) (bool, string) {
	if cfg == nil {
		return false, ""
	}
	mode, _, err := resolveAnthropicAuthConfig(cfg)
	if err != nil {
		return false, ""
	}
	return true, mode
}

func resolveAnthropicAuthConfig(cfg *config.Config) (mode string, source string, err error) {
	if cfg == nil {
		return "", "", fmt.Errorf("config is required")
	}
	return resolveAPIKey(
		"Anthropic",
		"providers.anthropic.api_key", cfg.Providers.Anthropic.APIKey,
		"providers.anthropic.api_key_file", cfg.Providers.Anthropic.APIKeyFile,
	)
}

func newAnthropicProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	mode, source, err := resolveAnthropicAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	tokens, err := tokenSourceFor(mode, source, "providers.anthropic.api_key")
	if err != nil {
		return nil, err
	}

	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Providers.Anthropic.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAnthropicAPIBase
	}
	version := strings.TrimSpace(cfg.Providers.Anthropic.Version)
	if version == "" {
		version = defaultAnthropicVersion
	}
	client, err := newHTTPClient(ProviderAnthropic, cfg.Providers.Anthropic.Proxy)
	if err != nil {
		return nil, err
	}

	return &anthropicProvider{
		apiBase:    apiBase,
		version:    version,
		auth:       NewHeaderKeyAuth(mode, "x-api-key", tokens),
		httpClient: client,
	}, nil
}

func (p *anthropicProvider) GetDefaultModel() string {
	return defaultAnthropicModel
}

func (p *anthropicProvider) Chat(ctx context.Context, messages []Message, model string, options map[string]interface{}) (*LLMResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("provider not initialized")
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = p.GetDefaultModel()
	}

	request := buildAnthropicRequest(messages, model)
	if len(request.Messages) == 0 {
		return nil, fmt.Errorf("anthropic request has no conversation messages")
	}
	request.MaxTokens = defaultAnthropicMaxTokens
	if maxTokens, ok := optionAsInt(options, "max_tokens"); ok && maxTokens > 0 {
		request.MaxTokens = maxTokens
	}
	if temperature, ok := optionAsFloat(options, "temperature"); ok {
		request.Temperature = &temperature
	}
	if topP, ok := optionAsFloat(options, "top_p"); ok {
		request.TopP = &topP
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", p.version)
	if err := p.auth.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("apply anthropic auth: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send anthropic request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := augmentProviderError(ProviderAnthropic, extractAPIError(body))
		return nil, fmt.Errorf("anthropic API request failed: status=%d error=%s", resp.StatusCode, msg)
	}

	result, err := parseAnthropicResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}
	return result, nil
}

// buildAnthropicRequest lifts system messages into the top-level system
// field and merges consecutive turns from the same role, which the messages
// API rejects.
func buildAnthropicRequest(messages []Message, model string) anthropicRequest {
	var system []string
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Role == RoleSystem {
			system = append(system, content)
			continue
		}
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: content})
	}
	if len(out) > 0 && out[0].Role != RoleUser {
		out = append([]anthropicMessage{{Role: RoleUser, Content: anthropicLeadInUserTurn}}, out...)
	}
	return anthropicRequest{
		Model:    model,
		System:   strings.Join(system, "\n\n"),
		Messages: out,
	}
}

func parseAnthropicResponse(body []byte) (*LLMResponse, error) {
	var apiResponse anthropicResponse
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(apiResponse.Content))
	for _, block := range apiResponse.Content {
		if block.Type == "text" || block.Type == "" {
			parts = append(parts, block.Text)
		}
	}

	out := &LLMResponse{
		Content:      strings.Join(parts, ""),
		FinishReason: apiResponse.StopReason,
	}
	if apiResponse.Usage != nil {
		out.Usage = &UsageInfo{
			PromptTokens:     apiResponse.Usage.InputTokens,
			CompletionTokens: apiResponse.Usage.OutputTokens,
			TotalTokens:      apiResponse.Usage.InputTokens + apiResponse.Usage.OutputTokens,
		}
	}
	return out, nil
}
