package bot

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/persona"
)

// Options is the immutable behavior of one bot, built once at start-up.
type Options struct {
	DisplayName   string
	IdentityKey   string
	ChannelID     string
	CommandPrefix string

	MinResponseDelay time.Duration
	MaxResponseDelay time.Duration

	MaxTurns     int
	MinCooldown  time.Duration
	MaxCooldown  time.Duration
	HistoryLimit int
	PeerMarkers  []string

	TypingMinChars int
	TypingMaxChars int
	TypingMinCPM   int
	TypingMaxCPM   int

	// ResponseProbability is the chance of replying to an eligible message.
	// 1 always replies, 0 never does.
	ResponseProbability float64
	BaseRole            string
}

func OptionsFromConfig(cfg *config.Config) Options {
	minDelay, maxDelay := cfg.ResponseDelayRange()
	minCooldown, maxCooldown := cfg.CooldownRange()
	return Options{
		DisplayName:         cfg.Bot.Name,
		IdentityKey:         cfg.IdentityKey(),
		ChannelID:           strings.TrimSpace(cfg.Bot.ChannelID),
		CommandPrefix:       cfg.Bot.CommandPrefix,
		MinResponseDelay:    minDelay,
		MaxResponseDelay:    maxDelay,
		MaxTurns:            cfg.Bot.MaxConversationTurns,
		MinCooldown:         minCooldown,
		MaxCooldown:         maxCooldown,
		HistoryLimit:        cfg.Bot.HistoryLimit,
		PeerMarkers:         append([]string(nil), cfg.Bot.PeerMarkers...),
		TypingMinChars:      cfg.Bot.TypingMinChars,
		TypingMaxChars:      cfg.Bot.TypingMaxChars,
		TypingMinCPM:        cfg.Bot.TypingMinCPM,
		TypingMaxCPM:        cfg.Bot.TypingMaxCPM,
		ResponseProbability: cfg.Bot.ResponseProbability,
		BaseRole:            persona.LoadBaseRole(cfg.BaseRolePath()),
	}
}

// Rand is the randomness the orchestrator draws on. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
	Float64() float64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }
func (globalRand) Float64() float64     { return rand.Float64() }

// intBetween returns a uniform integer in [lo, hi].
func intBetween(rng Rand, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + rng.Int64N(hi-lo+1)
}

// secondsBetween picks a whole number of seconds in [lo, hi].
func secondsBetween(rng Rand, lo, hi time.Duration) time.Duration {
	s := intBetween(rng, int64(lo/time.Second), int64(hi/time.Second))
	return time.Duration(s) * time.Second
}
