// Package event defines the Event type and EventSource interface.
// Everything the chat platform reports (notices, messages, meta events)
// flows through the runtime as an Event.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source identifiers for the inbound transports.
const (
	SourceOneBotWS = "onebot-ws"
	SourceWebhook  = "webhook"
)

// Type identifiers mirror OneBot's post_type.
const (
	TypeNotice    = "notice"
	TypeMessage   = "message"
	TypeRequest   = "request"
	TypeMetaEvent = "meta_event"
	TypeUnknown   = "unknown"
)

// Event is the unit of work of the runtime.
type Event struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`   // e.g. "onebot-ws", "webhook"
	Type      string            `json:"type"`     // e.g. "notice", "message"
	Payload   json.RawMessage   `json:"payload"`  // source-specific JSON
	Metadata  map[string]string `json:"metadata"` // arbitrary key-value pairs
	Timestamp time.Time         `json:"timestamp"`
}

// EventSource is implemented by anything that can emit events.
type EventSource interface {
	// Name returns the source identifier.
	Name() string

	// Subscribe starts delivering events to out until ctx is cancelled.
	// Subscribe must be non-blocking; it should start a goroutine internally.
	Subscribe(ctx context.Context, out chan<- Event) error
}

// NewEvent constructs an Event with a generated ID and current timestamp.
func NewEvent(source, evType string, payload interface{}, meta map[string]string) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return NewRawEvent(source, evType, raw, meta), nil
}

// NewRawEvent wraps an already-encoded payload.
func NewRawEvent(source, evType string, payload json.RawMessage, meta map[string]string) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Source:    source,
		Type:      evType,
		Payload:   payload,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}
}

// Hint is the subset of a OneBot record used for routing metadata.
type Hint struct {
	PostType    string          `json:"post_type"`
	NoticeType  string          `json:"notice_type,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	GroupID     json.RawMessage `json:"group_id,omitempty"`
}

// ParseHint extracts routing fields from a OneBot record. ok is false when
// body is not a JSON object carrying post_type.
func ParseHint(body []byte) (Hint, bool) {
	var h Hint
	if err := json.Unmarshal(body, &h); err != nil || h.PostType == "" {
		return Hint{}, false
	}
	return h, true
}

// Metadata builds the routing metadata for a record.
func (h Hint) Metadata() map[string]string {
	meta := map[string]string{"post_type": h.PostType}
	if h.NoticeType != "" {
		meta["notice_type"] = h.NoticeType
	}
	if h.MessageType != "" {
		meta["message_type"] = h.MessageType
	}
	if len(h.GroupID) > 0 && string(h.GroupID) != "null" {
		var s string
		if json.Unmarshal(h.GroupID, &s) == nil {
			meta["group_id"] = s
		} else {
			meta["group_id"] = string(h.GroupID)
		}
	}
	return meta
}
