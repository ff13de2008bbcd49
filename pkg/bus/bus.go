package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus carries inbound gateway events to the single consumer loop.
type MessageBus struct {
	inbound chan InboundMessage
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	publishTimeout    = 100 * time.Millisecond
	defaultBufferSize = 100
)

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound: make(chan InboundMessage, size),
	}
}

// PublishInbound enqueues msg, waiting briefly when the buffer is full.
// Messages that still do not fit are counted and dropped.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	select {
	case mb.inbound <- msg:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
			return true
		case <-timer.C:
			mb.dropped.Add(1)
			return false
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}

func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.Load()
}
