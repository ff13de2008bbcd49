// Package bot wires conversation history, cooldown and persona into the
// per-message response flow of one chat bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/conversation"
	"github.com/dotsetgreg/aizoo/pkg/cooldown"
	"github.com/dotsetgreg/aizoo/pkg/logger"
	"github.com/dotsetgreg/aizoo/pkg/persona"
	"github.com/dotsetgreg/aizoo/pkg/providers"
)

// Gateway is the chat service the bot posts to.
type Gateway interface {
	Send(ctx context.Context, chatID, text string) error
	HasChannel(chatID string) bool
	Typing(ctx context.Context, chatID string, d time.Duration) error
}

// Generator produces the reply text for a rendered conversation.
type Generator interface {
	Generate(ctx context.Context, messages []providers.Message, model string) (string, error)
}

type Deps struct {
	Gateway   Gateway
	Generator Generator
	Composer  *persona.Composer
	// Clock drives cooldown reactivation. Defaults to the wall clock.
	Clock cooldown.Clock
	Rand  Rand
	// Eligible defaults to a probability hook when ResponseProbability < 1
	// (0 never replies), otherwise AlwaysEligible.
	Eligible   EligibilityFunc
	IntroExtra IntroExtraFunc
}

type Orchestrator struct {
	opts       Options
	store      *conversation.Store
	cooldown   *cooldown.Controller
	composer   *persona.Composer
	gateway    Gateway
	gen        Generator
	eligible   EligibilityFunc
	introExtra IntroExtraFunc
	rng        Rand
	formatter  conversation.Formatter

	mu           sync.RWMutex
	persona      persona.Persona
	systemPrompt string
	ready        bool

	wg       sync.WaitGroup
	inFlight atomic.Int64
	replies  atomic.Uint64
	failures atomic.Uint64
}

func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Gateway == nil {
		return nil, ErrNoGateway
	}
	if deps.Generator == nil {
		return nil, ErrNoBackend
	}
	if strings.TrimSpace(opts.IdentityKey) == "" {
		opts.IdentityKey = opts.DisplayName
	}
	if deps.Rand == nil {
		deps.Rand = globalRand{}
	}
	if deps.Composer == nil {
		deps.Composer = persona.NewComposer(nil, persona.ComposerOptions{
			DisplayName: opts.DisplayName,
			PeerMarkers: opts.PeerMarkers,
		})
	}
	probabilistic := opts.ResponseProbability < 1
	if deps.Eligible == nil {
		deps.Eligible = AlwaysEligible
		if probabilistic {
			deps.Eligible = ProbabilityEligibility(opts.ResponseProbability, deps.Rand)
		}
	}
	if deps.IntroExtra == nil {
		deps.IntroExtra = NoIntroExtra
		if probabilistic {
			deps.IntroExtra = ProbabilityIntroExtra(opts.ResponseProbability)
		}
	}

	o := &Orchestrator{
		opts:       opts,
		store:      conversation.NewStore(opts.HistoryLimit),
		composer:   deps.Composer,
		gateway:    deps.Gateway,
		gen:        deps.Generator,
		eligible:   deps.Eligible,
		introExtra: deps.IntroExtra,
		rng:        deps.Rand,
		formatter:  conversation.Formatter{PeerMarkers: opts.PeerMarkers},
	}
	o.cooldown = cooldown.NewController(cooldown.Options{
		MaxTurns:    opts.MaxTurns,
		MinDuration: opts.MinCooldown,
		MaxDuration: opts.MaxCooldown,
		Clock:       deps.Clock,
		Int64N:      deps.Rand.Int64N,
	})

	// Until the ready event loads the real persona the bot speaks as the
	// default character.
	o.setPersona(persona.Default(opts.IdentityKey, opts.DisplayName, ""))
	return o, nil
}

func (o *Orchestrator) setPersona(p persona.Persona) {
	prompt := o.composer.BuildSystemPrompt(p, o.opts.BaseRole)
	o.mu.Lock()
	o.persona = p
	o.systemPrompt = prompt
	o.mu.Unlock()
}

func (o *Orchestrator) currentPersona() (persona.Persona, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.persona, o.systemPrompt
}

func (o *Orchestrator) Persona() persona.Persona {
	p, _ := o.currentPersona()
	return p
}

func (o *Orchestrator) SystemPrompt() string {
	_, prompt := o.currentPersona()
	return prompt
}

func (o *Orchestrator) Store() *conversation.Store {
	return o.store
}

func (o *Orchestrator) Cooldown() *cooldown.Controller {
	return o.cooldown
}

// LoadPersona resolves the persona and rebuilds the system prompt. Lookup
// failures fall back to the default persona.
func (o *Orchestrator) LoadPersona(ctx context.Context) persona.Persona {
	p := o.composer.Load(ctx, o.opts.IdentityKey)
	o.setPersona(p)
	return p
}

// Run consumes gateway events until ctx ends or the bus closes.
func (o *Orchestrator) Run(ctx context.Context, mb *bus.MessageBus) error {
	logger.InfoCF("bot", "Bot loop started", map[string]any{
		"identity_key": o.opts.IdentityKey,
		"channel_id":   o.opts.ChannelID,
	})
	if strings.TrimSpace(o.opts.ChannelID) == "" {
		logger.ErrorC("bot", "No channel configured: messages will be ignored and the introduction skipped")
	}
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("bot", "Bot loop stopped")
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
		switch msg.Kind {
		case bus.EventReady:
			_ = o.HandleReady(ctx)
		default:
			o.HandleMessage(ctx, msg)
		}
	}
}

// HandleReady loads the persona and posts the introduction.
func (o *Orchestrator) HandleReady(ctx context.Context) error {
	p := o.LoadPersona(ctx)
	o.mu.Lock()
	o.ready = true
	o.mu.Unlock()

	logger.InfoCF("bot", "Bot ready", map[string]any{
		"display_name": p.Name(),
		"model":        p.Model,
	})
	return o.postIntroduction(ctx, o.opts.ChannelID)
}

func (o *Orchestrator) Introduction() string {
	p, _ := o.currentPersona()
	return o.composer.RenderIntroduction(p, o.introExtra())
}

func (o *Orchestrator) postIntroduction(ctx context.Context, chatID string) error {
	if err := o.checkChannel(chatID); err != nil {
		logger.ErrorCF("bot", "Cannot post introduction", map[string]any{
			"channel_id": chatID,
			"error":      err.Error(),
		})
		return err
	}
	if err := o.gateway.Send(ctx, chatID, o.Introduction()); err != nil {
		logger.ErrorCF("bot", "Failed to post introduction", map[string]any{
			"channel_id": chatID,
			"error":      err.Error(),
		})
		return fmt.Errorf("post introduction: %w", err)
	}
	logger.InfoCF("bot", "Posted introduction", map[string]any{"channel_id": chatID})
	return nil
}

func (o *Orchestrator) checkChannel(chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return fmt.Errorf("no channel id configured: %w", ErrNoChannel)
	}
	if !o.gateway.HasChannel(chatID) {
		return fmt.Errorf("channel %s not found: %w", chatID, ErrNoChannel)
	}
	return nil
}

// HandleMessage applies the per-message flow: record, cooldown, hook, and
// finally an asynchronous reply. All store mutations for msg happen before
// it returns.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if msg.IsSelf || msg.ChatID != o.opts.ChannelID {
		return
	}
	author := msg.DisplayName

	if o.isCommand(msg.Content) {
		o.store.Record(author, msg.Content)
		o.handleCommand(ctx, msg)
		return
	}

	if o.cooldown.IsCoolingDown() {
		o.store.Record(author, msg.Content)
		logger.DebugCF("bot", "Cooling down, message recorded without reply", map[string]any{
			"sender": author,
		})
		return
	}

	o.store.Add(author, msg.Content, false)
	entered, err := o.cooldown.Evaluate(o.store)
	if err != nil {
		logger.ErrorCF("bot", "Cooldown evaluation failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if entered {
		return
	}

	if !o.eligible(msg) {
		return
	}

	o.wg.Add(1)
	o.inFlight.Add(1)
	go o.respond(ctx, msg)
}

func (o *Orchestrator) respond(ctx context.Context, msg bus.InboundMessage) {
	defer o.wg.Done()
	defer o.inFlight.Add(-1)

	taskID := uuid.NewString()
	fields := map[string]any{
		"task_id": taskID,
		"sender":  msg.DisplayName,
	}

	delay := secondsBetween(o.rng, o.opts.MinResponseDelay, o.opts.MaxResponseDelay)
	if err := sleepCtx(ctx, delay); err != nil {
		logger.DebugCF("bot", "Response cancelled during delay", fields)
		return
	}
	if o.cooldown.IsCoolingDown() {
		logger.DebugCF("bot", "Cooldown began during delay, reply dropped", fields)
		return
	}

	p, basePrompt := o.currentPersona()
	dialect := providers.DialectForModel(p.Model)
	prompt := o.composer.AdjustForSender(basePrompt, msg.DisplayName)
	messages := o.store.FormatForBackend(prompt, dialect, o.formatter)

	if err := o.gateway.Typing(ctx, msg.ChatID, o.typingDuration()); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.WarnCF("bot", "Typing indicator failed", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
	}
	if o.cooldown.IsCoolingDown() {
		logger.DebugCF("bot", "Cooldown began while typing, reply dropped", fields)
		return
	}

	reply, err := o.gen.Generate(ctx, messages, p.Model)
	if err != nil {
		o.failures.Add(1)
		logger.ErrorCF("bot", "Failed to generate response", map[string]any{
			"task_id": taskID,
			"model":   p.Model,
			"error":   err.Error(),
		})
		return
	}

	o.store.Add(p.Name(), reply, true)
	if err := o.gateway.Send(ctx, msg.ChatID, reply); err != nil {
		o.failures.Add(1)
		logger.ErrorCF("bot", "Failed to send response", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return
	}
	o.replies.Add(1)
	logger.InfoCF("bot", "Replied", map[string]any{
		"task_id": taskID,
		"model":   p.Model,
		"dialect": string(dialect),
		"delay":   delay.String(),
	})
}

// SendScheduled posts text to chatID, or to the bot channel when chatID is
// empty. The post is not added to the history.
func (o *Orchestrator) SendScheduled(ctx context.Context, chatID, text string) error {
	if strings.TrimSpace(chatID) == "" {
		chatID = o.opts.ChannelID
	}
	if err := o.checkChannel(chatID); err != nil {
		logger.ErrorCF("bot", "Cannot send scheduled message", map[string]any{
			"channel_id": chatID,
			"error":      err.Error(),
		})
		return err
	}
	if err := o.gateway.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("send scheduled message: %w", err)
	}
	logger.InfoCF("bot", "Sent scheduled message", map[string]any{
		"channel_id": chatID,
		"message":    text,
	})
	return nil
}

// Wait blocks until in-flight replies finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the pending reactivation timer and waits for replies.
// Cancel the context passed to Run first so delayed replies stop early.
func (o *Orchestrator) Close() {
	o.cooldown.Stop()
	o.wg.Wait()
}

type Status struct {
	Ready           bool      `json:"ready"`
	DisplayName     string    `json:"display_name"`
	Model           string    `json:"model"`
	State           string    `json:"state"`
	ResumeAt        time.Time `json:"resume_at,omitzero"`
	CooldownEntries int       `json:"cooldown_entries"`
	Turns           int       `json:"turns"`
	MaxTurns        int       `json:"max_turns"`
	HistoryLen      int       `json:"history_len"`
	HistoryLimit    int       `json:"history_limit"`
	InFlight        int64     `json:"in_flight"`
	Replies         uint64    `json:"replies"`
	Failures        uint64    `json:"failures"`
}

func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ready
}

func (o *Orchestrator) Status() Status {
	p, _ := o.currentPersona()
	cs := o.cooldown.Status()
	return Status{
		Ready:           o.Ready(),
		DisplayName:     p.Name(),
		Model:           p.Model,
		State:           cs.State.String(),
		ResumeAt:        cs.ResumeAt,
		CooldownEntries: cs.Entries,
		Turns:           o.store.TurnCount(),
		MaxTurns:        o.opts.MaxTurns,
		HistoryLen:      o.store.Len(),
		HistoryLimit:    o.store.Limit(),
		InFlight:        o.inFlight.Load(),
		Replies:         o.replies.Load(),
		Failures:        o.failures.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
