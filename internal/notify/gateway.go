// Package notify delivers game notifications (drop results, level changes)
// to the channels a player is watching.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	KindDropAccepted    Kind = "drop_accepted"
	KindDropRejected    Kind = "drop_rejected"
	KindFeedbackCleared Kind = "feedback_cleared"
	KindLevelStarted    Kind = "level_started"
	KindLevelCompleted  Kind = "level_completed"
	KindProgressReset   Kind = "progress_reset"
)

// Notification is a transient event pushed to a player.
type Notification struct {
	Kind     Kind      `json:"kind"`
	PlayerID string    `json:"player_id"`
	TopicID  string    `json:"topic_id,omitempty"`
	LevelID  string    `json:"level_id,omitempty"`
	Ordinal  int       `json:"ordinal,omitempty"`
	Label    string    `json:"label,omitempty"`
	TargetID string    `json:"target_id,omitempty"`
	Message  string    `json:"message,omitempty"`
	Score    int       `json:"score,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
}

// Channel is implemented by every delivery mechanism.
type Channel interface {
	Deliver(ctx context.Context, n Notification) error
}

// Gateway fans notifications out to every registered channel.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notification channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Notify delivers n to every channel. A failing channel does not stop
// delivery to the others; all failures are returned together.
func (g *Gateway) Notify(ctx context.Context, n Notification) error {
	if n.PlayerID == "" {
		return fmt.Errorf("notification has no player id")
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	g.mu.RLock()
	names := make([]string, 0, len(g.channels))
	channels := make(map[string]Channel, len(g.channels))
	for name, ch := range g.channels {
		names = append(names, name)
		channels[name] = ch
	}
	g.mu.RUnlock()
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := channels[name].Deliver(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu            sync.Mutex
	notifications []Notification
	Err           error
}

func (m *MockChannel) Deliver(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns a copy of everything delivered so far.
func (m *MockChannel) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification{}, m.notifications...)
}

// Kinds lists the kinds delivered so far, in order.
func (m *MockChannel) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]Kind, len(m.notifications))
	for i, n := range m.notifications {
		kinds[i] = n.Kind
	}
	return kinds
}
