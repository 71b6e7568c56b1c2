// Package command turns chat messages like "/welcome set ..." into welcome
// subcommands and sends the replies back where the command came from.
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/event"
	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/notice"
	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/welcome"
)

// HandlerID identifies the command handler in routing rules.
const HandlerID = "command"

// Executor runs a welcome subcommand.
type Executor interface {
	Execute(ctx context.Context, name string, inv welcome.Invocation) (welcome.Reply, bool)
}

// Replier sends replies to groups and users.
type Replier interface {
	SendGroupMessage(ctx context.Context, groupID string, segments []render.Segment) error
	SendPrivateMessage(ctx context.Context, userID string, segments []render.Segment) error
}

// Config controls command recognition and throttling.
type Config struct {
	Prefix     string
	Name       string
	RateLimit  int
	RateWindow time.Duration
}

// Handler recognizes welcome commands in message events.
type Handler struct {
	cfg        Config
	trigger    string
	classifier *notice.Classifier
	exec       Executor
	replier    Replier
	limiter    *RateLimiter
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHandler creates a command Handler. m may be nil.
func NewHandler(cfg Config, classifier *notice.Classifier, exec Executor, replier Replier, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	if cfg.Name == "" {
		cfg.Name = "welcome"
	}
	return &Handler{
		cfg:        cfg,
		trigger:    cfg.Prefix + cfg.Name,
		classifier: classifier,
		exec:       exec,
		replier:    replier,
		limiter:    NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		metrics:    m,
		logger:     logger.With().Str("component", "command").Logger(),
	}
}

func (h *Handler) ID() string { return HandlerID }

// Parse splits text into the subcommand name. ok is false when text is not
// addressed to this handler.
func (h *Handler) Parse(text string) (sub string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != h.trigger {
		return "", false
	}
	if len(fields) == 1 {
		return "", true
	}
	return strings.ToLower(fields[1]), true
}

// Usage is the help text listing the subcommands.
func (h *Handler) Usage() string {
	t := h.trigger
	return fmt.Sprintf("用法：\n"+
		"%s set <欢迎语>  设置本群欢迎语并开启\n"+
		"%s on  开启本群欢迎\n"+
		"%s off  关闭本群欢迎\n"+
		"%s test  预览本群欢迎语\n"+
		"可用变量：{at} {user_id} {time}", t, t, t, t)
}

// Handle processes one runtime event. Non-command events are ignored.
func (h *Handler) Handle(ctx context.Context, ev event.Event) error {
	rec, ok := h.classifier.Record(ev)
	if !ok {
		return nil
	}
	msg, ok := MessageFromRecord(rec)
	if !ok || (msg.SelfID != "" && msg.UserID == msg.SelfID) {
		return nil
	}
	sub, ok := h.Parse(msg.Text)
	if !ok {
		return nil
	}

	log := h.logger.With().
		Str("group_id", msg.GroupID).
		Str("user_id", msg.UserID).
		Str("subcommand", sub).
		Logger()

	if !h.limiter.Allow(msg.UserID) {
		log.Warn().Msg("rate limited")
		h.metrics.RecordCommand("any", "rate_limited")
		return nil
	}

	inv := welcome.Invocation{
		GroupID: msg.GroupID,
		UserID:  msg.UserID,
		RawText: msg.Text,
		Arg:     argument(msg.Text),
	}

	reply, known := h.exec.Execute(ctx, sub, inv)
	if !known {
		log.Debug().Msg("unknown subcommand, sending usage")
		h.metrics.RecordCommand("help", "usage")
		reply = welcome.TextReply(h.Usage())
	}

	log.Info().Str("reply", reply.PlainText()).Msg("command handled")
	h.reply(ctx, msg, reply, log)
	return nil
}

func (h *Handler) reply(ctx context.Context, msg Message, reply welcome.Reply, log zerolog.Logger) {
	if len(reply.Segments) == 0 {
		return
	}

	var err error
	if msg.GroupID != "" {
		err = h.replier.SendGroupMessage(ctx, msg.GroupID, reply.Segments)
	} else {
		err = h.replier.SendPrivateMessage(ctx, msg.UserID, reply.Segments)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to send command reply")
	}
}

// argument is the first token after the subcommand.
func argument(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return ""
	}
	return fields[2]
}
