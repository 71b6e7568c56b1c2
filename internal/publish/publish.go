// Package publish emits domain events about greetings and settings changes.
package publish

import (
	"context"
	"time"

	"github.com/p-blackswan/welcome-agent/internal/render"
)

// Topics.
const (
	TopicGreetingSent    = "welcome.greeting.sent"
	TopicGreetingFailed  = "welcome.greeting.failed"
	TopicSettingsChanged = "welcome.settings.changed"
)

// GreetingSent is published after a welcome message was delivered.
type GreetingSent struct {
	GroupID  string           `json:"group_id"`
	UserID   string           `json:"user_id"`
	Segments []render.Segment `json:"segments"`
	SentAt   time.Time        `json:"sent_at"`
}

// GreetingFailed is published when delivery failed and the greeting was dropped.
type GreetingFailed struct {
	GroupID string    `json:"group_id"`
	UserID  string    `json:"user_id"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// SettingsChanged is published after a command mutated a group's settings.
type SettingsChanged struct {
	GroupID string    `json:"group_id"`
	Command string    `json:"command"`
	Enabled bool      `json:"enabled"`
	Message *string   `json:"message,omitempty"`
	ActorID string    `json:"actor_id,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
