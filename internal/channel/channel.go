// Package channel delivers assistant replies and reminder notifications
// to the user's chat surfaces.
package channel

import (
	"context"
	"fmt"
	"log"

	"github.com/stellarlinkco/taskclaw/internal/bus"
	"github.com/stellarlinkco/taskclaw/internal/config"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
	Notify(n bus.Notification) error
	Stop() error
}

// BaseChannel carries the pieces every channel shares: its name, the bus
// and the sender allow-list.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
}

func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allowed map[string]struct{}
	if len(allowFrom) > 0 {
		allowed = make(map[string]struct{}, len(allowFrom))
		for _, id := range allowFrom {
			allowed[id] = struct{}{}
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (b *BaseChannel) Name() string { return b.name }

// IsAllowed accepts everyone when no allow-list is configured.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if b.allowFrom == nil {
		return true
	}
	_, ok := b.allowFrom[senderID]
	return ok
}

type ChannelManager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

func NewChannelManager(cfg config.ChannelsConfig, gwCfg config.GatewayConfig, b *bus.MessageBus) (*ChannelManager, error) {
	m := &ChannelManager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, b)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		m.register(ch)
	}

	if cfg.WebUI.Enabled {
		ch, err := NewWebUIChannel(cfg.WebUI, gwCfg, b)
		if err != nil {
			return nil, fmt.Errorf("init webui channel: %w", err)
		}
		m.register(ch)
	}

	return m, nil
}

func (m *ChannelManager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.bus.SubscribeOutbound(ch.Name(), func(msg bus.OutboundMessage) {
		if err := ch.Send(msg); err != nil {
			log.Printf("[channel-mgr] send to %s failed: %v", ch.Name(), err)
		}
	})
}

func (m *ChannelManager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}
	return nil
}

func (m *ChannelManager) StopAll() error {
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			log.Printf("[channel-mgr] stop %s failed: %v", name, err)
		}
	}
	return nil
}

// NotifyAll fans a fired reminder out to every channel.
func (m *ChannelManager) NotifyAll(n bus.Notification) {
	for name, ch := range m.channels {
		if err := ch.Notify(n); err != nil {
			log.Printf("[channel-mgr] notify %s failed: %v", name, err)
		}
	}
}

func (m *ChannelManager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
