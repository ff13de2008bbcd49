// Package cooldown implements the ACTIVE / COOLING_DOWN state machine that
// throttles replies after a run of conversation turns.
package cooldown

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/logger"
)

type State int

const (
	Active State = iota
	CoolingDown
)

func (s State) String() string {
	if s == CoolingDown {
		return "COOLING_DOWN"
	}
	return "ACTIVE"
}

// TurnSource is the part of the conversation store the controller reads
// and resets.
type TurnSource interface {
	ShouldCoolDown(maxTurns int) bool
	ResetTurns()
	TurnCount() int
}

type Options struct {
	MaxTurns    int
	MinDuration time.Duration
	MaxDuration time.Duration
	Clock       Clock
	// Int64N returns a value in [0, n). Defaults to math/rand/v2.
	Int64N func(n int64) int64
	// OnResume, if set, runs after every reactivation.
	OnResume func()
}

type Status struct {
	State    State
	ResumeAt time.Time
	Entries  int
}

type Controller struct {
	opts     Options
	state    State
	resumeAt time.Time
	timer    Timer
	entries  int
	mu       sync.Mutex
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Int64N == nil {
		opts.Int64N = rand.Int64N
	}
	if opts.MaxDuration < opts.MinDuration {
		opts.MaxDuration = opts.MinDuration
	}
	return &Controller{opts: opts}
}

// Evaluate checks the turn threshold and, when it is reached while ACTIVE,
// enters COOLING_DOWN: turns are reset and a single reactivation is scheduled.
// It reports whether the transition happened on this call.
func (c *Controller) Evaluate(turns TurnSource) (bool, error) {
	c.mu.Lock()
	if c.state == CoolingDown {
		c.mu.Unlock()
		return false, nil
	}
	if !turns.ShouldCoolDown(c.opts.MaxTurns) {
		c.mu.Unlock()
		return false, nil
	}
	if c.timer != nil {
		c.mu.Unlock()
		logger.ErrorCF("cooldown", "Refusing cooldown entry with a reactivation pending", map[string]any{
			"turns": turns.TurnCount(),
		})
		return false, ErrTimerPending
	}

	turnCount := turns.TurnCount()
	turns.ResetTurns()
	d := c.pickDuration()
	c.state = CoolingDown
	c.resumeAt = c.opts.Clock.Now().Add(d)
	c.entries++
	c.timer = c.opts.Clock.AfterFunc(d, c.resume)
	resumeAt := c.resumeAt
	c.mu.Unlock()

	logger.InfoCF("cooldown", "Cooling down", map[string]any{
		"turns":     turnCount,
		"max_turns": c.opts.MaxTurns,
		"duration":  d.String(),
		"resume_at": resumeAt.Format(time.RFC3339),
	})
	return true, nil
}

func (c *Controller) pickDuration() time.Duration {
	lo, hi := c.opts.MinDuration, c.opts.MaxDuration
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.opts.Int64N(int64(hi-lo)+1))
}

func (c *Controller) resume() {
	c.mu.Lock()
	c.state = Active
	c.resumeAt = time.Time{}
	c.timer = nil
	onResume := c.opts.OnResume
	c.mu.Unlock()

	logger.InfoC("cooldown", "Cooldown ended")
	if onResume != nil {
		onResume()
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsCoolingDown() bool {
	return c.State() == CoolingDown
}

// ResumeAt is zero while ACTIVE.
func (c *Controller) ResumeAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeAt
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ResumeAt: c.resumeAt, Entries: c.entries}
}

// Describe renders the status for chat replies and logs.
func (s Status) Describe(now time.Time) string {
	if s.State != CoolingDown {
		return s.State.String()
	}
	remaining := s.ResumeAt.Sub(now).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%s (resumes in %s)", s.State, remaining)
}

// Stop cancels a pending reactivation. Used on shutdown.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) Now() time.Time {
	return c.opts.Clock.Now()
}
