package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/conversation"
	"github.com/dotsetgreg/aizoo/pkg/cooldown"
	"github.com/dotsetgreg/aizoo/pkg/logger"
	"github.com/dotsetgreg/aizoo/pkg/persona"
	"github.com/dotsetgreg/aizoo/pkg/providers"
)

const testChannel = "42"

type sentMessage struct {
	ChatID string
	Text   string
}

type fakeGateway struct {
	mu       sync.Mutex
	channels map[string]bool
	sent     []sentMessage
	typing   []time.Duration
	sendErr  error
	onSend   func(chatID, text string)
	onTyping func(chatID string)
}

func newFakeGateway(channels ...string) *fakeGateway {
	g := &fakeGateway{channels: map[string]bool{}}
	for _, c := range channels {
		g.channels[c] = true
	}
	return g
}

func (g *fakeGateway) Send(ctx context.Context, chatID, text string) error {
	if g.onSend != nil {
		g.onSend(chatID, text)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (g *fakeGateway) HasChannel(chatID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channels[chatID]
}

func (g *fakeGateway) Typing(ctx context.Context, chatID string, d time.Duration) error {
	if g.onTyping != nil {
		g.onTyping(chatID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.typing = append(g.typing, d)
	return nil
}

func (g *fakeGateway) Sent() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

type generateCall struct {
	Messages []providers.Message
	Model    string
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generateCall
	reply func(n int) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []providers.Message, model string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, generateCall{Messages: messages, Model: model})
	n := len(f.calls)
	f.mu.Unlock()
	if f.reply == nil {
		return fmt.Sprintf("reply %d", n), nil
	}
	return f.reply(n)
}

func (f *fakeGenerator) Calls() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

// stubRand always picks the low end of integer ranges and returns a fixed float.
type stubRand struct {
	f float64
}

func (stubRand) Int64N(n int64) int64 { return 0 }
func (r stubRand) Float64() float64   { return r.f }

type lookupFunc func(ctx context.Context, key string) (*persona.Persona, error)

func (f lookupFunc) Get(ctx context.Context, key string) (*persona.Persona, error) {
	return f(ctx, key)
}

type harness struct {
	bot   *Orchestrator
	gw    *fakeGateway
	gen   *fakeGenerator
	clock *cooldown.FakeClock
}

func testOptions() Options {
	return Options{
		DisplayName:    "Kitsune",
		IdentityKey:    "gpt-4o-animal",
		ChannelID:      testChannel,
		CommandPrefix:  "!",
		MaxTurns:       3,
		MinCooldown:    time.Minute,
		MaxCooldown:    3 * time.Minute,
		HistoryLimit:   10,
		PeerMarkers:    []string{"claude", "gpt"},
		TypingMinChars: 50,
		TypingMaxChars: 200,
		TypingMinCPM:   50,
		TypingMaxCPM:   100,
		BaseRole:       "BASE ROLE",

		ResponseProbability: 1,
	}
}

func newHarness(t *testing.T, opts Options, deps Deps) *harness {
	t.Helper()
	h := &harness{
		gw:    newFakeGateway(testChannel),
		gen:   &fakeGenerator{},
		clock: cooldown.NewFakeClock(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)),
	}
	if deps.Gateway == nil {
		deps.Gateway = h.gw
	}
	if deps.Generator == nil {
		deps.Generator = h.gen
	}
	deps.Clock = h.clock
	if deps.Rand == nil {
		deps.Rand = stubRand{f: 0.5}
	}
	b, err := New(opts, deps)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	h.bot = b
	return h
}

func (h *harness) say(author, content string) {
	h.bot.HandleMessage(context.Background(), bus.InboundMessage{
		ChatID:      testChannel,
		DisplayName: author,
		Content:     content,
	})
	h.bot.Wait()
}

func TestNew_RequiresGatewayAndGenerator(t *testing.T) {
	_, err := New(testOptions(), Deps{Generator: &fakeGenerator{}})
	assert.True(t, errors.Is(err, ErrNoGateway))
	_, err = New(testOptions(), Deps{Gateway: newFakeGateway()})
	assert.True(t, errors.Is(err, ErrNoBackend))
}

func TestHandleMessage_BelowThresholdStaysActive(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	h.say("Alice", "hello")
	h.say("Bob", "hi all")

	assert.Equal(t, cooldown.Active, h.bot.Cooldown().State())
	assert.Equal(t, 2, h.bot.Store().TurnCount())
	assert.Len(t, h.gw.Sent(), 2)
	assert.Len(t, h.gen.Calls(), 2)
}

func TestHandleMessage_ThresholdEntersCooldownOnce(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	start := h.clock.Now()

	h.say("Alice", "one")
	h.say("Alice", "two")
	h.say("Alice", "three")

	assert.Equal(t, cooldown.CoolingDown, h.bot.Cooldown().State())
	assert.Equal(t, 0, h.bot.Store().TurnCount())
	assert.Equal(t, 1, h.clock.Pending())
	assert.Equal(t, 1, h.bot.Cooldown().Status().Entries)
	assert.Len(t, h.gw.Sent(), 2, "the message that triggers cooldown gets no reply")

	resumeAt := h.bot.Cooldown().ResumeAt()
	assert.False(t, resumeAt.Before(start.Add(time.Minute)))
	assert.False(t, resumeAt.After(start.Add(3*time.Minute)))
}

func TestHandleMessage_CoolingDownRecordsWithoutReplying(t *testing.T) {
	var asked int
	h := newHarness(t, testOptions(), Deps{Eligible: func(bus.InboundMessage) bool {
		asked++
		return true
	}})
	for _, m := range []string{"one", "two", "three"} {
		h.say("Alice", m)
	}
	require.True(t, h.bot.Cooldown().IsCoolingDown())
	askedBefore, sentBefore, lenBefore := asked, len(h.gw.Sent()), h.bot.Store().Len()

	h.say("Bob", "anyone there?")
	h.say("Claude-Animal-42", "I am!")

	assert.Equal(t, askedBefore, asked, "eligibility is not consulted while cooling down")
	assert.Len(t, h.gw.Sent(), sentBefore)
	assert.Equal(t, lenBefore+2, h.bot.Store().Len())
	assert.Equal(t, 0, h.bot.Store().TurnCount())
	assert.Equal(t, 1, h.clock.Pending(), "no second timer")
}

func TestHandleMessage_ReactivatesAfterCooldown(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	for _, m := range []string{"one", "two", "three", "four"} {
		h.say("Alice", m)
	}
	require.True(t, h.bot.Cooldown().IsCoolingDown())

	h.clock.Advance(3 * time.Minute)

	assert.Equal(t, cooldown.Active, h.bot.Cooldown().State())
	assert.Equal(t, 0, h.clock.Pending())

	sentBefore := len(h.gw.Sent())
	h.say("Alice", "back again")
	assert.Len(t, h.gw.Sent(), sentBefore+1)
	assert.Equal(t, 1, h.bot.Store().TurnCount())
}

func TestHandleMessage_GenerationFailureDropsTurn(t *testing.T) {
	gen := &fakeGenerator{reply: func(int) (string, error) {
		return "", errors.New("backend unavailable")
	}}
	opts := testOptions()
	opts.MaxTurns = 10
	h := newHarness(t, opts, Deps{Generator: gen})

	h.say("Alice", "one")
	h.say("Bob", "two")
	h.say("Carol", "three")

	assert.Equal(t, 3, h.bot.Store().Len())
	assert.Empty(t, h.gw.Sent())
	assert.Len(t, gen.Calls(), 3)
	assert.EqualValues(t, 3, h.bot.Status().Failures)
}

func TestHandleMessage_ReplyAppendedBeforeSend(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	var lastAtSend conversation.Utterance
	h.gw.onSend = func(chatID, text string) {
		snap := h.bot.Store().Snapshot()
		lastAtSend = snap[len(snap)-1]
	}

	h.say("Alice", "hello")

	require.Len(t, h.gw.Sent(), 1)
	assert.True(t, lastAtSend.IsBotReply)
	assert.Equal(t, h.gw.Sent()[0].Text, lastAtSend.Content)
	assert.Equal(t, "Kitsune", lastAtSend.Author)
	assert.Equal(t, 1, h.bot.Store().TurnCount(), "bot replies are not turns")
}

func TestHandleMessage_IgnoresSelfAndOtherChannels(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	ctx := context.Background()

	h.bot.HandleMessage(ctx, bus.InboundMessage{ChatID: testChannel, DisplayName: "Kitsune", Content: "me", IsSelf: true})
	h.bot.HandleMessage(ctx, bus.InboundMessage{ChatID: "other", DisplayName: "Alice", Content: "elsewhere"})
	h.bot.Wait()

	assert.Equal(t, 0, h.bot.Store().Len())
	assert.Empty(t, h.gw.Sent())
}

func TestHandleMessage_EligibilityRejectStillCountsTurn(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{Eligible: func(bus.InboundMessage) bool { return false }})

	h.say("Alice", "hello")

	assert.Equal(t, 1, h.bot.Store().TurnCount())
	assert.Empty(t, h.gen.Calls())
	assert.Empty(t, h.gw.Sent())
}

func TestRespond_UsesDialectAndPeerGuidance(t *testing.T) {
	lookup := lookupFunc(func(context.Context, string) (*persona.Persona, error) {
		return &persona.Persona{DisplayName: "Kitsune", Personality: "Curious", Model: "claude-3-haiku"}, nil
	})
	opts := testOptions()
	composer := persona.NewComposer(lookup, persona.ComposerOptions{
		DisplayName: opts.DisplayName,
		PeerMarkers: opts.PeerMarkers,
	})
	h := newHarness(t, opts, Deps{Composer: composer})
	h.bot.LoadPersona(context.Background())

	h.say("Alice", "hello")
	h.say("Claude-Animal-42", "konnichiwa")

	calls := h.gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "claude-3-haiku", calls[0].Model)

	first := calls[0].Messages
	require.Len(t, first, 2)
	assert.Equal(t, providers.RoleSystem, first[0].Role)
	assert.NotContains(t, first[0].Content, "another AI participant")
	assert.Equal(t, "Human (Alice): hello", first[1].Content)

	second := calls[1].Messages
	require.Len(t, second, 4)
	assert.Contains(t, second[0].Content, "another AI participant")
	assert.Equal(t, providers.RoleAssistant, second[2].Role)
	assert.Equal(t, "reply 1", second[2].Content)
	assert.Equal(t, "Bot (Claude-Animal-42): konnichiwa", second[3].Content)
}

func TestRespond_TypingDurationFromEstimate(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	h.say("Alice", "hello")

	// 50 chars at 50 cpm with jitter 0.8 + 0.5*0.4 = 1.0
	require.Len(t, h.gw.typing, 1)
	assert.InDelta(t, float64(60*time.Second), float64(h.gw.typing[0]), float64(time.Millisecond))
}

func TestHandleReady_PostsIntroduction(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})

	require.NoError(t, h.bot.HandleReady(context.Background()))

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testChannel, sent[0].ChatID)
	assert.True(t, strings.HasPrefix(sent[0].Text, "Hello! I'm Kitsune."))
	assert.Contains(t, sent[0].Text, "Personality: "+persona.DefaultPersonality)
	assert.True(t, h.bot.Ready())
	assert.True(t, strings.HasPrefix(h.bot.SystemPrompt(), "BASE ROLE"))
}

func TestHandleReady_MissingChannel(t *testing.T) {
	opts := testOptions()
	opts.ChannelID = ""
	h := newHarness(t, opts, Deps{})

	err := h.bot.HandleReady(context.Background())
	assert.True(t, errors.Is(err, ErrNoChannel))
	assert.Empty(t, h.gw.Sent())
	assert.True(t, h.bot.Ready(), "the bot keeps running without a channel")

	opts.ChannelID = "unknown"
	h = newHarness(t, opts, Deps{})
	err = h.bot.HandleReady(context.Background())
	assert.True(t, errors.Is(err, ErrNoChannel))
}

func TestProbabilityHooksInstalled(t *testing.T) {
	opts := testOptions()
	opts.ResponseProbability = 0.3
	h := newHarness(t, opts, Deps{Rand: stubRand{f: 0.5}})

	h.say("Alice", "hello")
	assert.Empty(t, h.gen.Calls(), "0.5 is above the 0.3 probability")
	assert.Contains(t, h.bot.Introduction(), "Response probability: 30%")

	opts.ResponseProbability = 0.7
	h = newHarness(t, opts, Deps{Rand: stubRand{f: 0.5}})
	h.say("Alice", "hello")
	assert.Len(t, h.gen.Calls(), 1)
}

func TestProbabilityZeroNeverReplies(t *testing.T) {
	opts := testOptions()
	opts.ResponseProbability = 0
	h := newHarness(t, opts, Deps{Rand: stubRand{f: 0}})

	h.say("Alice", "hello")
	h.say("Bob", "anyone?")

	assert.Empty(t, h.gen.Calls())
	assert.Empty(t, h.gw.Sent())
	assert.Equal(t, 2, h.bot.Store().TurnCount(), "skipped messages still count")
	assert.Contains(t, h.bot.Introduction(), "Response probability: 0%")
}

func TestRespond_CooldownDuringDelayDropsReply(t *testing.T) {
	opts := testOptions()
	opts.MaxTurns = 2
	opts.MinResponseDelay = time.Second
	opts.MaxResponseDelay = time.Second
	h := newHarness(t, opts, Deps{})
	ctx := context.Background()

	h.bot.HandleMessage(ctx, bus.InboundMessage{ChatID: testChannel, DisplayName: "Alice", Content: "hello"})
	h.bot.HandleMessage(ctx, bus.InboundMessage{ChatID: testChannel, DisplayName: "Bob", Content: "hi"})
	require.True(t, h.bot.Cooldown().IsCoolingDown())
	h.bot.Wait()

	assert.Empty(t, h.gen.Calls(), "Alice's pending reply must not be generated during cooldown")
	assert.Empty(t, h.gw.Sent())
	assert.Equal(t, 2, h.bot.Store().Len())
}

func TestRespond_CooldownWhileTypingDropsReply(t *testing.T) {
	opts := testOptions()
	opts.MaxTurns = 2
	h := newHarness(t, opts, Deps{})
	ctx := context.Background()

	var once sync.Once
	h.gw.onTyping = func(chatID string) {
		once.Do(func() {
			h.bot.HandleMessage(ctx, bus.InboundMessage{ChatID: chatID, DisplayName: "Bob", Content: "me too"})
		})
	}

	h.say("Alice", "hello")

	assert.True(t, h.bot.Cooldown().IsCoolingDown())
	assert.Empty(t, h.gen.Calls())
	assert.Empty(t, h.gw.Sent())
}

func TestSendScheduled(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	ctx := context.Background()

	require.NoError(t, h.bot.SendScheduled(ctx, "", "Good morning everyone!"))
	assert.True(t, errors.Is(h.bot.SendScheduled(ctx, "nowhere", "hi"), ErrNoChannel))

	sent := h.gw.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sentMessage{ChatID: testChannel, Text: "Good morning everyone!"}, sent[0])
	assert.Equal(t, 0, h.bot.Store().Len(), "scheduled posts are not history")
}

func TestRun_ProcessesReadyThenMessages(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	mb := bus.NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, mb) }()

	mb.PublishInbound(bus.InboundMessage{Kind: bus.EventReady})
	mb.PublishInbound(bus.InboundMessage{ChatID: testChannel, DisplayName: "Alice", Content: "hello"})

	require.Eventually(t, func() bool { return len(h.gw.Sent()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sent := h.gw.Sent()
	assert.True(t, strings.HasPrefix(sent[0].Text, "Hello! I'm"))
	assert.Equal(t, "reply 1", sent[1].Text)
}

func TestRun_LogsMissingChannel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	t.Cleanup(func() { logger.SetOutput(nil) })

	opts := testOptions()
	opts.ChannelID = ""
	h := newHarness(t, opts, Deps{})
	mb := bus.NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.bot.Run(ctx, mb))
	assert.Contains(t, buf.String(), "No channel configured")
}

func TestStatus(t *testing.T) {
	h := newHarness(t, testOptions(), Deps{})
	h.say("Alice", "hello")

	s := h.bot.Status()
	assert.Equal(t, "ACTIVE", s.State)
	assert.Equal(t, 1, s.Turns)
	assert.Equal(t, 3, s.MaxTurns)
	assert.Equal(t, 2, s.HistoryLen)
	assert.EqualValues(t, 1, s.Replies)
	assert.EqualValues(t, 0, s.InFlight)
}
