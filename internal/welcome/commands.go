package welcome

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/publish"
	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/settings"
)

// Subcommand names.
const (
	CommandSet  = "set"
	CommandOn   = "on"
	CommandOff  = "off"
	CommandTest = "test"
)

// Reply texts.
const (
	ReplyGroupOnly = "请在群聊中使用此指令。"
	ReplySetPrefix = "已设置本群欢迎语为：\n"
	ReplyEnabled   = "本群欢迎功能已开启。"
	ReplyDisabled  = "本群欢迎功能已关闭。"
	ReplySetUsage  = "用法：welcome set <欢迎语>"
)

// Command result labels.
const (
	resultOK        = "ok"
	resultGroupOnly = "group_only"
	resultUsage     = "usage"
)

// Invocation describes one administrative command as typed in chat.
type Invocation struct {
	// GroupID is empty when the command was sent outside a group.
	GroupID string
	UserID  string
	// RawText is the complete message text, e.g. "/welcome set hi {at}".
	RawText string
	// Arg is the argument as split by the caller. set prefers RawText.
	Arg string
}

// Reply is what the bot answers in the conversation the command came from.
type Reply struct {
	Segments []render.Segment
}

// TextReply wraps s in a single text segment.
func TextReply(s string) Reply {
	return Reply{Segments: []render.Segment{render.Text(s)}}
}

// PlainText is the reply flattened for logs.
func (r Reply) PlainText() string { return render.PlainText(r.Segments) }

// Commands implements the set, on, off and test subcommands. It is the
// only writer of the settings document.
type Commands struct {
	settings  *settings.Holder
	location  *time.Location
	now       func() time.Time
	publisher publish.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewCommands creates a command handler. Only Location, Now, Publisher and
// Metrics are read from opts.
func NewCommands(holder *settings.Holder, opts Options, logger zerolog.Logger) *Commands {
	opts.applyDefaults()
	c := &Commands{
		settings:  holder,
		location:  opts.Location,
		now:       opts.Now,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    logger.With().Str("component", "commands").Logger(),
	}
	c.metrics.SetGroupsEnabled(holder.Snapshot().EnabledCount())
	return c
}

// Names lists the supported subcommands.
func (c *Commands) Names() []string {
	return []string{CommandSet, CommandOn, CommandOff, CommandTest}
}

// Execute runs the subcommand name. The second result is false when name
// is not a known subcommand.
func (c *Commands) Execute(ctx context.Context, name string, inv Invocation) (Reply, bool) {
	switch name {
	case CommandSet:
		return c.Set(ctx, inv), true
	case CommandOn:
		return c.On(ctx, inv), true
	case CommandOff:
		return c.Off(ctx, inv), true
	case CommandTest:
		return c.Test(ctx, inv), true
	default:
		return Reply{}, false
	}
}

// Set stores a group-specific template and enables greeting.
func (c *Commands) Set(ctx context.Context, inv Invocation) Reply {
	if inv.GroupID == "" {
		return c.groupOnly(CommandSet)
	}

	message := SetArgument(inv.RawText, inv.Arg)
	if message == "" {
		c.metrics.RecordCommand(CommandSet, resultUsage)
		return TextReply(ReplySetUsage)
	}

	doc := c.settings.Update(ctx, func(doc *settings.Document) bool {
		doc.Groups[inv.GroupID] = settings.GroupConfig{
			Enabled: true,
			Message: settings.StringPtr(message),
		}
		return true
	})

	c.logger.Info().Str("group_id", inv.GroupID).Str("user_id", inv.UserID).Str("message", message).Msg("welcome message set")
	c.changed(ctx, CommandSet, inv, doc)
	return TextReply(ReplySetPrefix + message)
}

// On enables greeting, creating the group entry with the current default
// template when it does not exist yet.
func (c *Commands) On(ctx context.Context, inv Invocation) Reply {
	if inv.GroupID == "" {
		return c.groupOnly(CommandOn)
	}

	doc := c.settings.Update(ctx, func(doc *settings.Document) bool {
		group, ok := doc.Groups[inv.GroupID]
		if !ok {
			group.Message = settings.StringPtr(doc.DefaultMessage)
		}
		group.Enabled = true
		doc.Groups[inv.GroupID] = group
		return true
	})

	c.logger.Info().Str("group_id", inv.GroupID).Str("user_id", inv.UserID).Msg("welcome enabled")
	c.changed(ctx, CommandOn, inv, doc)
	return TextReply(ReplyEnabled)
}

// Off disables greeting. A group without an entry is left untouched and
// gets the same confirmation.
func (c *Commands) Off(ctx context.Context, inv Invocation) Reply {
	if inv.GroupID == "" {
		return c.groupOnly(CommandOff)
	}

	mutated := false
	doc := c.settings.Update(ctx, func(doc *settings.Document) bool {
		group, ok := doc.Groups[inv.GroupID]
		if !ok {
			return false
		}
		group.Enabled = false
		doc.Groups[inv.GroupID] = group
		mutated = true
		return true
	})

	c.logger.Info().Str("group_id", inv.GroupID).Str("user_id", inv.UserID).Bool("mutated", mutated).Msg("welcome disabled")
	if mutated {
		c.changed(ctx, CommandOff, inv, doc)
	} else {
		c.metrics.RecordCommand(CommandOff, resultOK)
	}
	return TextReply(ReplyDisabled)
}

// Test renders the group's effective template for the invoker without
// touching the document. The enabled flag is not consulted.
func (c *Commands) Test(_ context.Context, inv Invocation) Reply {
	if inv.GroupID == "" {
		return c.groupOnly(CommandTest)
	}

	c.metrics.RecordCommand(CommandTest, resultOK)
	return Reply{Segments: c.Preview(inv.GroupID, inv.UserID)}
}

// Preview renders the effective template of groupID for userID at the
// current time.
func (c *Commands) Preview(groupID, userID string) []render.Segment {
	return render.Render(c.settings.Template(groupID), render.Bindings{
		Time:   FormatTime(c.now(), c.location, c.now),
		UserID: userID,
	})
}

func (c *Commands) groupOnly(name string) Reply {
	c.metrics.RecordCommand(name, resultGroupOnly)
	return TextReply(ReplyGroupOnly)
}

func (c *Commands) changed(ctx context.Context, name string, inv Invocation, doc settings.Document) {
	c.metrics.RecordCommand(name, resultOK)
	c.metrics.SetGroupsEnabled(doc.EnabledCount())

	group := doc.Groups[inv.GroupID]
	ev := publish.SettingsChanged{
		GroupID: inv.GroupID,
		Command: name,
		Enabled: group.Enabled,
		Message: group.Message,
		ActorID: inv.UserID,
		At:      c.now(),
	}
	if err := c.publisher.Publish(ctx, publish.TopicSettingsChanged, ev); err != nil {
		c.logger.Warn().Err(err).Str("group_id", inv.GroupID).Msg("failed to publish settings change")
	}
}

// SetArgument returns the template text of a set command: everything in
// raw after the first two whitespace-delimited tokens, with inner spacing
// and newlines kept. When raw holds fewer than three tokens, fallback is
// used instead.
func SetArgument(raw, fallback string) string {
	rest := raw
	for i := 0; i < 2; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return strings.TrimSpace(fallback)
		}
		rest = rest[end:]
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return rest
	}
	return strings.TrimSpace(fallback)
}
