// AIZoo - persona chat bots for a shared Discord channel
// License: MIT
//
// Copyright (c) 2026 AIZoo contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotsetgreg/aizoo/pkg/bus"
	"github.com/dotsetgreg/aizoo/pkg/config"
	"github.com/dotsetgreg/aizoo/pkg/logger"
)

var ErrUnknownChat = errors.New("no channel serves this chat")

// Manager owns the started gateways and routes sends to whichever one
// serves the target chat.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	mu       sync.RWMutex
}

// NewManager builds the Discord gateway from config.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus) (*Manager, error) {
	logger.InfoC("channels", "Initializing channel manager")

	if strings.TrimSpace(cfg.Channels.Discord.Token) == "" {
		return nil, fmt.Errorf("channels.discord.token is required")
	}

	discord, err := NewDiscordChannel(cfg.Channels.Discord, messageBus)
	if err != nil {
		return nil, fmt.Errorf("initialize Discord channel: %w", err)
	}
	m := NewManagerWith(messageBus, discord)
	logger.InfoC("channels", "Discord channel initialized successfully")
	return m, nil
}

// NewManagerWith wraps already constructed channels.
func NewManagerWith(messageBus *bus.MessageBus, channels ...Channel) *Manager {
	m := &Manager{
		channels: make(map[string]Channel, len(channels)),
		bus:      messageBus,
	}
	for _, ch := range channels {
		m.channels[ch.Name()] = ch
	}
	return m
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	if len(m.channels) == 0 {
		m.mu.RUnlock()
		logger.WarnC("channels", "No channels enabled")
		return nil
	}
	channelsCopy := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		channelsCopy[name] = channel
	}
	m.mu.RUnlock()

	logger.InfoC("channels", "Starting all channels")

	var started []string
	var startErrors []error
	for name, channel := range channelsCopy {
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": name})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Errorf("%s: %w", name, err))
			continue
		}
		started = append(started, name)
	}

	if len(startErrors) > 0 {
		for _, name := range started {
			if err := channelsCopy[name].Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]any{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("failed to start channels: %w", errors.Join(startErrors...))
	}

	logger.InfoCF("channels", "All channels started", map[string]any{
		"count": len(started),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logger.InfoC("channels", "Stopping all channels")
	var errs []error
	for name, channel := range m.channels {
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	logger.InfoC("channels", "All channels stopped")
	return errors.Join(errs...)
}

func (m *Manager) route(chatID string) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, channel := range m.channels {
		if channel.HasChannel(chatID) {
			return channel, nil
		}
	}
	return nil, fmt.Errorf("chat %q: %w", chatID, ErrUnknownChat)
}

// Send delivers text to chatID on the channel that serves it.
func (m *Manager) Send(ctx context.Context, chatID, text string) error {
	channel, err := m.route(chatID)
	if err != nil {
		return err
	}
	return channel.Send(ctx, bus.OutboundMessage{
		Channel: channel.Name(),
		ChatID:  chatID,
		Content: text,
	})
}

func (m *Manager) HasChannel(chatID string) bool {
	_, err := m.route(chatID)
	return err == nil
}

func (m *Manager) Typing(ctx context.Context, chatID string, d time.Duration) error {
	channel, err := m.route(chatID)
	if err != nil {
		return err
	}
	return channel.Typing(ctx, chatID, d)
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"enabled": true,
			"running": channel.IsRunning(),
		}
	}
	return status
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}
