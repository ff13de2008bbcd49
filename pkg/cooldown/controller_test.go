package cooldown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/aizoo/pkg/conversation"
)

var epoch = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestController(t *testing.T, maxTurns int) (*Controller, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(epoch)
	c := NewController(Options{
		MaxTurns:    maxTurns,
		MinDuration: time.Minute,
		MaxDuration: 3 * time.Minute,
		Clock:       clock,
	})
	return c, clock
}

func TestController_StaysActiveBelowThreshold(t *testing.T) {
	c, _ := newTestController(t, 5)
	store := conversation.NewStore(10)

	for i := 0; i < 4; i++ {
		store.Add("alice", "hi", false)
		entered, err := c.Evaluate(store)
		require.NoError(t, err)
		assert.False(t, entered)
	}

	assert.Equal(t, Active, c.State())
	assert.Equal(t, 4, store.TurnCount())
}

func TestController_EntersOnceAtThreshold(t *testing.T) {
	c, clock := newTestController(t, 3)
	store := conversation.NewStore(10)

	var transitions int
	for i := 0; i < 3; i++ {
		store.Add("alice", "hi", false)
		entered, err := c.Evaluate(store)
		require.NoError(t, err)
		if entered {
			transitions++
		}
	}

	assert.Equal(t, 1, transitions)
	assert.Equal(t, CoolingDown, c.State())
	assert.Equal(t, 0, store.TurnCount())
	assert.Equal(t, 1, clock.Pending())

	wait := c.ResumeAt().Sub(clock.Now())
	assert.GreaterOrEqual(t, wait, time.Minute)
	assert.LessOrEqual(t, wait, 3*time.Minute)
}

func TestController_MessagesDuringCooldownDoNotExtend(t *testing.T) {
	c, clock := newTestController(t, 2)
	store := conversation.NewStore(10)

	store.Add("alice", "1", false)
	store.Add("alice", "2", false)
	entered, err := c.Evaluate(store)
	require.NoError(t, err)
	require.True(t, entered)
	resumeAt := c.ResumeAt()

	for i := 0; i < 10; i++ {
		store.Add("bob", "still talking", false)
		entered, err := c.Evaluate(store)
		require.NoError(t, err)
		assert.False(t, entered)
	}

	assert.Equal(t, resumeAt, c.ResumeAt())
	assert.Equal(t, 1, clock.Pending())
	assert.Equal(t, 12, store.Len())
}

func TestController_ReactivatesUnconditionally(t *testing.T) {
	c, clock := newTestController(t, 1)
	store := conversation.NewStore(10)

	resumed := 0
	c.opts.OnResume = func() { resumed++ }

	store.Add("alice", "hi", false)
	_, err := c.Evaluate(store)
	require.NoError(t, err)
	require.True(t, c.IsCoolingDown())

	clock.Advance(3 * time.Minute)

	assert.Equal(t, Active, c.State())
	assert.True(t, c.ResumeAt().IsZero())
	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, 1, resumed)
}

func TestController_CyclesRepeatedly(t *testing.T) {
	c, clock := newTestController(t, 2)
	store := conversation.NewStore(10)

	for cycle := 0; cycle < 3; cycle++ {
		store.Add("alice", "a", false)
		store.Add("alice", "b", false)
		entered, err := c.Evaluate(store)
		require.NoError(t, err)
		require.True(t, entered, "cycle %d", cycle)
		clock.Advance(3 * time.Minute)
		require.Equal(t, Active, c.State())
	}

	assert.Equal(t, 3, c.Status().Entries)
}

func TestController_DurationWithinInclusiveRange(t *testing.T) {
	for _, pick := range []int64{0, int64(2 * time.Minute)} {
		clock := NewFakeClock(epoch)
		c := NewController(Options{
			MaxTurns:    1,
			MinDuration: time.Minute,
			MaxDuration: 3 * time.Minute,
			Clock:       clock,
			Int64N: func(n int64) int64 {
				assert.Equal(t, int64(2*time.Minute)+1, n)
				return pick
			},
		})
		store := conversation.NewStore(10)
		store.Add("alice", "hi", false)
		_, err := c.Evaluate(store)
		require.NoError(t, err)

		got := c.ResumeAt().Sub(epoch)
		assert.Equal(t, time.Minute+time.Duration(pick), got)
	}
}

func TestController_RejectsSecondTimer(t *testing.T) {
	c, clock := newTestController(t, 1)
	c.timer = clock.AfterFunc(time.Minute, func() {})

	store := conversation.NewStore(10)
	store.Add("alice", "hi", false)

	entered, err := c.Evaluate(store)
	assert.False(t, entered)
	assert.True(t, errors.Is(err, ErrTimerPending))
	assert.Equal(t, Active, c.State())
	assert.Equal(t, 1, store.TurnCount(), "turns are not reset when entry is refused")
}

func TestController_StopCancelsReactivation(t *testing.T) {
	c, clock := newTestController(t, 1)
	store := conversation.NewStore(10)
	store.Add("alice", "hi", false)
	_, err := c.Evaluate(store)
	require.NoError(t, err)

	c.Stop()
	clock.Advance(time.Hour)

	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, CoolingDown, c.State())
}

func TestStatus_Describe(t *testing.T) {
	s := Status{State: CoolingDown, ResumeAt: epoch.Add(90 * time.Second)}
	assert.Equal(t, "COOLING_DOWN (resumes in 1m30s)", s.Describe(epoch))
	assert.Equal(t, "ACTIVE", Status{State: Active}.Describe(epoch))
}
