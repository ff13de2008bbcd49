package bot

import (
	"fmt"
	"math"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

// EligibilityFunc decides whether an accepted message gets a reply. It is
// consulted after cooldown checks.
type EligibilityFunc func(msg bus.InboundMessage) bool

// IntroExtraFunc returns an extra introduction line, or "" for none.
type IntroExtraFunc func() string

func AlwaysEligible(bus.InboundMessage) bool { return true }

func NoIntroExtra() string { return "" }

// ProbabilityEligibility replies to a message with probability p.
func ProbabilityEligibility(p float64, rng Rand) EligibilityFunc {
	if rng == nil {
		rng = globalRand{}
	}
	return func(msg bus.InboundMessage) bool {
		if rng.Float64() < p {
			return true
		}
		logger.DebugCF("bot", "Skipping message by response probability", map[string]any{
			"probability": p,
			"sender":      msg.DisplayName,
		})
		return false
	}
}

// ProbabilityIntroExtra announces the response probability as a percentage.
func ProbabilityIntroExtra(p float64) IntroExtraFunc {
	line := fmt.Sprintf("Response probability: %d%%", int(math.Round(p*100)))
	return func() string { return line }
}
