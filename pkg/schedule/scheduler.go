// Package schedule posts conversation starters on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/dotsetgreg/aizoo/pkg/logger"
)

var ErrInvalidExpression = errors.New("invalid cron expression")

// Sender delivers a scheduled post. An empty chatID means the default
// channel.
type Sender interface {
	SendScheduled(ctx context.Context, chatID, text string) error
}

type Options struct {
	Expression string
	ChatID     string
	// Message picks the text for a tick. Defaults to Greeting.
	Message func(at time.Time) string
	// Now and After are replaced in tests.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

type Scheduler struct {
	opts   Options
	sender Sender
}

func New(opts Options, sender Sender) (*Scheduler, error) {
	opts.Expression = strings.TrimSpace(opts.Expression)
	g := gronx.New()
	if !g.IsValid(opts.Expression) {
		return nil, fmt.Errorf("%q: %w", opts.Expression, ErrInvalidExpression)
	}
	if opts.Message == nil {
		opts.Message = func(at time.Time) string { return Greeting(at, nil) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	return &Scheduler{opts: opts, sender: sender}, nil
}

// Next returns the first tick strictly after from.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(s.opts.Expression, from, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for %q: %w", s.opts.Expression, err)
	}
	return next, nil
}

// Run posts a starter at every tick until ctx ends. Send failures are
// logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.InfoCF("schedule", "Scheduler started", map[string]any{
		"expression": s.opts.Expression,
	})
	for {
		now := s.opts.Now()
		next, err := s.Next(now)
		if err != nil {
			return err
		}
		logger.DebugCF("schedule", "Next scheduled message", map[string]any{
			"at": next.Format(time.RFC3339),
		})

		select {
		case <-ctx.Done():
			logger.InfoC("schedule", "Scheduler stopped")
			return nil
		case <-s.opts.After(next.Sub(now)):
		}

		if err := s.Fire(ctx, next); err != nil {
			logger.ErrorCF("schedule", "Scheduled message failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// Fire posts the starter for at immediately.
func (s *Scheduler) Fire(ctx context.Context, at time.Time) error {
	return s.sender.SendScheduled(ctx, s.opts.ChatID, s.opts.Message(at))
}
