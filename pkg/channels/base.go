package channels

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/bus"
)

// Channel is a chat gateway the bot can listen on and post to.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	// Typing shows a typing indicator in chatID for d, or until ctx ends.
	Typing(ctx context.Context, chatID string, d time.Duration) error
	HasChannel(chatID string) bool
	IsRunning() bool
}

type BaseChannel struct {
	bus     *bus.MessageBus
	running atomic.Bool
	name    string
}

func NewBaseChannel(name string, bus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{
		bus:  bus,
		name: name,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// HandleMessage publishes a chat message observed on this channel.
func (c *BaseChannel) HandleMessage(msg bus.InboundMessage) {
	msg.Kind = bus.EventMessage
	msg.Channel = c.name
	c.bus.PublishInbound(msg)
}

// HandleReady publishes the one-time connected event.
func (c *BaseChannel) HandleReady() {
	c.bus.PublishInbound(bus.InboundMessage{
		Kind:    bus.EventReady,
		Channel: c.name,
	})
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

// waitTyping blocks for d while refresh is called every interval. It
// returns early when ctx ends.
func waitTyping(ctx context.Context, d, interval time.Duration, refresh func()) error {
	if d <= 0 {
		return nil
	}
	refresh()

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			refresh()
		}
	}
}
