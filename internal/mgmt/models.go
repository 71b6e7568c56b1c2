// Package mgmt provides the management API for the welcome agent.
package mgmt

import (
	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/settings"
)

// SettingsResponse is the response for GET /api/v1/settings.
type SettingsResponse struct {
	DefaultMessage string                          `json:"default_message"`
	Groups         map[string]settings.GroupConfig `json:"groups"`
	EnabledGroups  int                             `json:"enabled_groups"`
}

// GroupResponse describes one group's configuration.
type GroupResponse struct {
	GroupID    string  `json:"group_id"`
	Configured bool    `json:"configured"`
	Enabled    bool    `json:"enabled"`
	Message    *string `json:"message,omitempty"`
	// Template is the template a join would render right now.
	Template string `json:"template"`
}

// SetMessageRequest is the body of PUT /api/v1/groups/:id/message.
type SetMessageRequest struct {
	Message string `json:"message"`
}

// PreviewRequest is the body of POST /api/v1/groups/:id/preview.
type PreviewRequest struct {
	UserID string `json:"user_id"`
}

// PreviewResponse carries the rendered segments and a flattened form.
type PreviewResponse struct {
	Segments []render.Segment `json:"segments"`
	Text     string           `json:"text"`
}

// CommandResponse is returned by the mutating endpoints.
type CommandResponse struct {
	Reply string        `json:"reply"`
	Group GroupResponse `json:"group"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
