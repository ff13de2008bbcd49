package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/bot"
	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/channels"
	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/health"
	"github.com/dotsetgreg/aizoo/pkg/logger"
	"github.com/dotsetgreg/aizoo/pkg/persona"
	"github.com/dotsetgreg/aizoo/pkg/providers"
	"github.com/dotsetgreg/aizoo/pkg/schedule"
)

const (
	shutdownTimeout = 10 * time.Second
	announceTimeout = 30 * time.Second
)

// botRuntime is one bot wired to a gateway.
type botRuntime struct {
	cfg     *config.Config
	bus     *bus.MessageBus
	manager *channels.Manager
	sources *persona.Sources
	orch    *bot.Orchestrator
}

func newComposer(cfg *config.Config, sources *persona.Sources) *persona.Composer {
	var lookup persona.Lookup
	if sources != nil {
		lookup = sources.Lookup
	}
	return persona.NewComposer(lookup, persona.ComposerOptions{
		DisplayName:   cfg.Bot.Name,
		DefaultModel:  cfg.LLM.DefaultModel,
		PeerMarkers:   cfg.Bot.PeerMarkers,
		LookupTimeout: time.Duration(cfg.Persona.LookupTimeoutSeconds) * time.Second,
	})
}

func newBotRuntime(cfg *config.Config, mb *bus.MessageBus, manager *channels.Manager, opts bot.Options) (*botRuntime, error) {
	sources, err := persona.NewSourcesFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("persona source: %w", err)
	}
	router := providers.NewRouter(cfg)
	if len(router.Available()) == 0 {
		_ = sources.Close()
		return nil, fmt.Errorf("%w: configure providers.openai or providers.anthropic", bot.ErrNoBackend)
	}

	orch, err := bot.New(opts, bot.Deps{
		Gateway:   manager,
		Generator: router,
		Composer:  newComposer(cfg, sources),
	})
	if err != nil {
		_ = sources.Close()
		return nil, err
	}
	return &botRuntime{cfg: cfg, bus: mb, manager: manager, sources: sources, orch: orch}, nil
}

func (r *botRuntime) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	r.orch.Close()
	if err := r.manager.StopAll(ctx); err != nil {
		logger.WarnCF("aizoo", "Channel shutdown error", map[string]any{"error": err.Error()})
	}
	r.bus.Close()
	if err := r.sources.Close(); err != nil {
		logger.WarnCF("aizoo", "Persona cache close error", map[string]any{"error": err.Error()})
	}
}

// runBot connects to Discord and serves the configured channel until
// interrupted.
func runBot(cfg *config.Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	mb := bus.NewMessageBus()
	manager, err := channels.NewManager(cfg, mb)
	if err != nil {
		return err
	}
	rt, err := newBotRuntime(cfg, mb, manager, bot.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		rt.shutdown()
		return fmt.Errorf("start channels: %w", err)
	}
	fmt.Fprintf(out, "✓ Channels enabled: %s\n", strings.Join(manager.GetEnabledChannels(), ", "))

	var healthServer *health.Server
	if cfg.Gateway.Enabled {
		healthServer = health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
		healthServer.SetReadyFunc(rt.orch.Ready)
		healthServer.SetStatusFunc(func() any { return rt.orch.Status() })
		go func() {
			if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
			}
		}()
		fmt.Fprintf(out, "✓ Health endpoints available at http://%s/health, /ready and /status\n", healthServer.Addr())
	}

	if cfg.Schedule.Enabled {
		sched, err := schedule.New(schedule.Options{
			Expression: cfg.Schedule.Expression,
			ChatID:     cfg.ScheduleChannelID(),
		}, rt.orch)
		if err != nil {
			logger.ErrorCF("schedule", "Scheduler disabled", map[string]any{"error": err.Error()})
		} else {
			go func() {
				if err := sched.Run(ctx); err != nil {
					logger.ErrorCF("schedule", "Scheduler stopped", map[string]any{"error": err.Error()})
				}
			}()
			fmt.Fprintf(out, "✓ Conversation starters scheduled (%s)\n", cfg.Schedule.Expression)
		}
	}

	fmt.Fprintln(out, "Press Ctrl+C to stop")
	err = rt.orch.Run(ctx, mb)

	fmt.Fprintln(out, "\nShutting down...")
	if healthServer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = healthServer.Stop(stopCtx)
		cancel()
	}
	rt.shutdown()
	fmt.Fprintln(out, "✓ Bot stopped")
	return err
}

type chatOptions struct {
	instant bool
	user    string
}

// runChat talks to the bot from the terminal instead of Discord.
func runChat(cfg *config.Config, copts chatOptions, in io.ReadCloser, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mb := bus.NewMessageBus()
	console := channels.NewConsoleChannel(channels.ConsoleOptions{
		BotName:  cfg.Bot.Name,
		UserName: copts.user,
		Stdin:    in,
		Stdout:   out,
		OnExit:   cancel,
	}, mb)
	manager := channels.NewManagerWith(mb, console)

	opts := bot.OptionsFromConfig(cfg)
	opts.ChannelID = channels.ConsoleChatID
	if copts.instant {
		opts.MinResponseDelay, opts.MaxResponseDelay = 0, 0
		opts.TypingMinChars, opts.TypingMaxChars = 0, 0
	}

	rt, err := newBotRuntime(cfg, mb, manager, opts)
	if err != nil {
		return err
	}
	if err := manager.StartAll(ctx); err != nil {
		rt.shutdown()
		return fmt.Errorf("start console: %w", err)
	}
	fmt.Fprintln(out, "Type \"exit\" or press Ctrl+D to leave.")
	err = rt.orch.Run(ctx, mb)
	rt.shutdown()
	return err
}

// runAnnounce connects, waits for the gateway to become ready, posts text
// once and disconnects. An empty text posts a greeting for the current time.
func runAnnounce(cfg *config.Config, text, chatID string, out io.Writer) error {
	mb := bus.NewMessageBus()
	manager, err := channels.NewManager(cfg, mb)
	if err != nil {
		return err
	}
	opts := bot.OptionsFromConfig(cfg)
	orch, err := bot.New(opts, bot.Deps{Gateway: manager, Generator: noGenerator{}})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		_ = manager.StopAll(stopCtx)
		mb.Close()
	}()

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	if err := waitForReady(ctx, mb); err != nil {
		return err
	}

	if strings.TrimSpace(chatID) == "" {
		chatID = cfg.ScheduleChannelID()
	}
	if strings.TrimSpace(text) == "" {
		text = schedule.Greeting(time.Now(), nil)
	}
	if err := orch.SendScheduled(ctx, chatID, text); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Posted to %s: %s\n", chatID, text)
	return nil
}

func waitForReady(ctx context.Context, mb *bus.MessageBus) error {
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("waiting for gateway ready: %w", err)
			}
			return errors.New("gateway closed before ready")
		}
		if msg.Kind == bus.EventReady {
			return nil
		}
	}
}

// noGenerator backs one-shot commands that never reply.
type noGenerator struct{}

func (noGenerator) Generate(context.Context, []providers.Message, string) (string, error) {
	return "", bot.ErrNoBackend
}

// runPersonaCheck resolves each name through the configured persona source
// and prints the composed introduction. Without names the bot's own identity
// key is checked, or every Notion row when Notion is configured.
func runPersonaCheck(ctx context.Context, cfg *config.Config, names []string, out io.Writer) error {
	sources, err := persona.NewSourcesFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("persona source: %w", err)
	}
	defer sources.Close()

	if sources.Lookup == nil {
		fmt.Fprintln(out, "No persona source configured; the default persona will be used.")
	}

	if len(names) == 0 && sources.Notion != nil {
		all, err := sources.Notion.List(ctx)
		if err != nil {
			return fmt.Errorf("list personas: %w", err)
		}
		for _, p := range all {
			names = append(names, p.IdentityKey)
		}
	}
	if len(names) == 0 {
		names = []string{cfg.IdentityKey()}
	}

	composer := newComposer(cfg, sources)
	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(out)
		}
		p := composer.Load(ctx, name)
		fmt.Fprintf(out, "== %s ==\n", name)
		fmt.Fprintln(out, composer.RenderIntroduction(p, ""))
	}
	return nil
}

func printStatus(cfg *config.Config, configPath string, out io.Writer) {
	mark := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}

	fmt.Fprintf(out, "%s Status\n\n", appName)
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintln(out, "Config:", configPath, "✓")
	} else {
		fmt.Fprintln(out, "Config:", configPath, "not found (defaults and environment only)")
	}

	fmt.Fprintf(out, "Bot: %s (identity key %q)\n", cfg.Bot.Name, cfg.IdentityKey())
	fmt.Fprintln(out, "Channel ID:", mark(strings.TrimSpace(cfg.Bot.ChannelID) != ""))
	fmt.Fprintln(out, "Discord token:", mark(strings.TrimSpace(cfg.Channels.Discord.Token) != ""))
	fmt.Fprintf(out, "Default model: %s (%s)\n", cfg.LLM.DefaultModel, providers.ProviderForModel(cfg.LLM.DefaultModel))

	for _, name := range providers.SupportedProviders() {
		provider, configured, mode, err := providers.ProviderCredentialStatus(cfg, name)
		if err != nil {
			fmt.Fprintf(out, "Provider %s: error (%v)\n", name, err)
			continue
		}
		line := fmt.Sprintf("Provider %s: %s", provider, mark(configured))
		if configured && mode != "" {
			line += " (" + mode + ")"
		}
		fmt.Fprintln(out, line)
	}

	source := "default only"
	switch {
	case strings.TrimSpace(cfg.Persona.NotionAPIKey) != "" && strings.TrimSpace(cfg.Persona.NotionDatabaseID) != "":
		source = "notion"
	case strings.TrimSpace(cfg.Persona.File) != "":
		source = "file " + cfg.PersonaFilePath()
	}
	fmt.Fprintln(out, "Persona source:", source)

	if cfg.Schedule.Enabled {
		fmt.Fprintf(out, "Schedule: %s -> %s\n", cfg.Schedule.Expression, valueOr(cfg.ScheduleChannelID(), "(no channel)"))
	} else {
		fmt.Fprintln(out, "Schedule: disabled")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "Config check:", err)
	} else {
		fmt.Fprintln(out, "Config check: ✓")
	}
}
