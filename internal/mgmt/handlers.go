package mgmt

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/settings"
	"github.com/p-blackswan/welcome-agent/internal/welcome"
)

// Handlers holds dependencies for HTTP handlers. Reads go to the settings
// holder; every mutation goes through the welcome commands.
type Handlers struct {
	settings  *settings.Holder
	commands  *welcome.Commands
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(holder *settings.Holder, commands *welcome.Commands, logger zerolog.Logger) *Handlers {
	return &Handlers{
		settings:  holder,
		commands:  commands,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// GetSettings handles GET /api/v1/settings.
func (h *Handlers) GetSettings(c *fiber.Ctx) error {
	doc := h.settings.Snapshot()
	return c.JSON(SettingsResponse{
		DefaultMessage: doc.DefaultMessage,
		Groups:         doc.Groups,
		EnabledGroups:  doc.EnabledCount(),
	})
}

// GetGroup handles GET /api/v1/groups/:id.
func (h *Handlers) GetGroup(c *fiber.Ctx) error {
	groupID, ok := groupParam(c)
	if !ok {
		return invalidGroup(c)
	}
	return c.JSON(h.group(groupID))
}

// SetMessage handles PUT /api/v1/groups/:id/message.
func (h *Handlers) SetMessage(c *fiber.Ctx) error {
	groupID, ok := groupParam(c)
	if !ok {
		return invalidGroup(c)
	}

	var req SetMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if req.Message == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_message", "Bad Request",
			"message is required")
	}

	reply := h.commands.Set(c.UserContext(), h.invocation(c, groupID, req.Message))
	return c.JSON(CommandResponse{Reply: reply.PlainText(), Group: h.group(groupID)})
}

// Enable handles POST /api/v1/groups/:id/enable.
func (h *Handlers) Enable(c *fiber.Ctx) error {
	groupID, ok := groupParam(c)
	if !ok {
		return invalidGroup(c)
	}
	reply := h.commands.On(c.UserContext(), h.invocation(c, groupID, ""))
	return c.JSON(CommandResponse{Reply: reply.PlainText(), Group: h.group(groupID)})
}

// Disable handles POST /api/v1/groups/:id/disable.
func (h *Handlers) Disable(c *fiber.Ctx) error {
	groupID, ok := groupParam(c)
	if !ok {
		return invalidGroup(c)
	}
	reply := h.commands.Off(c.UserContext(), h.invocation(c, groupID, ""))
	return c.JSON(CommandResponse{Reply: reply.PlainText(), Group: h.group(groupID)})
}

// Preview handles POST /api/v1/groups/:id/preview.
func (h *Handlers) Preview(c *fiber.Ctx) error {
	groupID, ok := groupParam(c)
	if !ok {
		return invalidGroup(c)
	}

	var req PreviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request",
				"Invalid request body: "+err.Error())
		}
	}
	if req.UserID == "" {
		req.UserID, _ = c.Locals("subject").(string)
	}

	segs := h.commands.Preview(groupID, req.UserID)
	return c.JSON(PreviewResponse{Segments: segs, Text: render.PlainText(segs)})
}

// Info handles GET /api/v1/info.
func (h *Handlers) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"uptime":          time.Since(h.startTime).Round(time.Second).String(),
		"default_message": h.settings.DefaultMessage(),
	})
}

func (h *Handlers) group(groupID string) GroupResponse {
	g, ok := h.settings.Group(groupID)
	return GroupResponse{
		GroupID:    groupID,
		Configured: ok,
		Enabled:    g.Enabled,
		Message:    g.Message,
		Template:   h.settings.Template(groupID),
	}
}

func (h *Handlers) invocation(c *fiber.Ctx, groupID, arg string) welcome.Invocation {
	subject, _ := c.Locals("subject").(string)
	return welcome.Invocation{GroupID: groupID, UserID: subject, Arg: arg}
}

// groupParam returns the :id path parameter when it is a numeric group id.
func groupParam(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

func invalidGroup(c *fiber.Ctx) error {
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_group_id", "Bad Request",
		"group id must be numeric")
}
