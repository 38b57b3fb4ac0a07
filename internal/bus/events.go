package bus

import (
	"time"
)

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Metadata  map[string]any
}

func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	ReplyTo  string
	Metadata map[string]any
}

// Notification is the domain event emitted when a reminder fires. The
// scheduler only publishes it; presentation layers decide how to render.
type Notification struct {
	TaskID   string
	TaskText string
	Instant  time.Time
	Message  string
	FiredAt  time.Time
}
