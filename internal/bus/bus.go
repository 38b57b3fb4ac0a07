package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus carries chat traffic and notification events between the
// gateway and the channels. Outbound messages with an empty Channel are
// broadcast to every subscriber.
type MessageBus struct {
	Inbound       chan InboundMessage
	Outbound      chan OutboundMessage
	Notifications chan Notification

	mu   sync.RWMutex
	subs map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &MessageBus{
		Inbound:       make(chan InboundMessage, bufSize),
		Outbound:      make(chan OutboundMessage, bufSize),
		Notifications: make(chan Notification, bufSize),
		subs:          make(map[string]func(OutboundMessage)),
	}
}

func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = fn
}

// DispatchOutbound routes outbound messages to subscribers until ctx is
// cancelled. Run it in its own goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.deliver(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) deliver(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Channel == "" {
		for _, fn := range b.subs {
			fn(msg)
		}
		return
	}

	fn, ok := b.subs[msg.Channel]
	if !ok {
		log.Printf("[bus] no subscriber for channel %q, dropping message", msg.Channel)
		return
	}
	fn(msg)
}

// PublishNotification never blocks the scheduler; if the buffer is full
// the event is dropped with a warning (the reminder stays triggered).
func (b *MessageBus) PublishNotification(n Notification) {
	select {
	case b.Notifications <- n:
	default:
		log.Printf("[bus] notification buffer full, dropping event for task %s", n.TaskID)
	}
}
