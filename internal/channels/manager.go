package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/triagebot/internal/bus"
)

// Manager owns the registered platform adapters and routes outbound
// posts and reactions to the right one. It satisfies the pipeline's
// Poster interface.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// Register adds an adapter. Registering the same platform twice replaces
// the earlier adapter.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// StartAll starts every registered adapter. On failure the already
// started adapters are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var started []Channel
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				if stopErr := s.Stop(ctx); stopErr != nil {
					slog.Warn("channel.stop_failed", "platform", s.Name(), "error", stopErr)
				}
			}
			return fmt.Errorf("start %s: %w", name, err)
		}
		slog.Info("channel.started", "platform", name)
		started = append(started, ch)
	}
	return nil
}

// StopAll stops every adapter, collecting the first error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var firstErr error
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", name, err)
		}
		slog.Info("channel.stopped", "platform", name)
	}
	return firstErr
}

func (m *Manager) channel(platform string) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %q", platform)
	}
	return ch, nil
}

// Post routes an outbound post to its platform adapter.
func (m *Manager) Post(ctx context.Context, post bus.OutboundPost) (string, error) {
	ch, err := m.channel(post.Platform)
	if err != nil {
		return "", err
	}
	return ch.Post(ctx, post)
}

// React routes a reaction to its platform adapter.
func (m *Manager) React(ctx context.Context, reaction bus.Reaction) error {
	ch, err := m.channel(reaction.Platform)
	if err != nil {
		return err
	}
	return ch.React(ctx, reaction)
}

// Names returns the registered platform names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
