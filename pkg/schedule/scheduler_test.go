package schedule

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	chat []string
	err  error
}

func (r *recordingSender) SendScheduled(ctx context.Context, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.chat = append(r.chat, chatID)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestNew_RejectsInvalidExpression(t *testing.T) {
	_, err := New(Options{Expression: "every morning"}, &recordingSender{})
	assert.True(t, errors.Is(err, ErrInvalidExpression))
}

func TestNext_FollowsExpression(t *testing.T) {
	s, err := New(Options{Expression: "0 8,12,19,23 * * *"}, &recordingSender{})
	require.NoError(t, err)

	from := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC), next)

	next, err = s.Next(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), next)
}

func TestRun_FiresOnEachTickUntilCancelled(t *testing.T) {
	sender := &recordingSender{err: errors.New("channel missing")}
	now := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var waits []time.Duration

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(Options{
		Expression: "0 8,12 * * *",
		ChatID:     "42",
		Message:    func(at time.Time) string { return at.Format("15:04") },
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		},
		After: func(d time.Duration) <-chan time.Time {
			mu.Lock()
			waits = append(waits, d)
			now = now.Add(d)
			n := len(waits)
			mu.Unlock()
			if n > 2 {
				cancel()
				return make(chan time.Time)
			}
			ch := make(chan time.Time, 1)
			ch <- now
			return ch
		},
	}, sender)
	require.NoError(t, err)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []string{"08:00", "12:00"}, sender.sent)
	assert.Equal(t, []string{"42", "42"}, sender.chat)
	assert.Equal(t, []time.Duration{time.Hour, 4 * time.Hour, 20 * time.Hour}, waits)
}

func TestPeriodOf(t *testing.T) {
	cases := map[int]Period{
		0: Night, 4: Night, 5: Morning, 11: Morning,
		12: Afternoon, 17: Afternoon, 18: Evening, 23: Evening,
	}
	for hour, want := range cases {
		assert.Equal(t, want, PeriodOf(hour), "hour %d", hour)
	}
}

func TestGreeting_MatchesPeriod(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for hour := 0; hour < 24; hour++ {
		at := time.Date(2026, 10, 18, hour, 15, 0, 0, time.UTC)
		g := Greeting(at, rng)
		assert.True(t, slices.Contains(Greetings(PeriodOf(hour)), g), "hour %d got %q", hour, g)
	}
}

func TestFire_DefaultChannel(t *testing.T) {
	sender := &recordingSender{}
	s, err := New(Options{Expression: "@daily"}, sender)
	require.NoError(t, err)

	require.NoError(t, s.Fire(context.Background(), time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)))
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "", sender.chat[0])
	assert.Contains(t, Greetings(Morning), sender.sent[0])
}
