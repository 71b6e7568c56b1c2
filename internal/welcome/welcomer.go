// Package welcome greets new group members and handles the administrative
// welcome commands.
package welcome

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/notice"
	"github.com/p-blackswan/welcome-agent/internal/publish"
	"github.com/p-blackswan/welcome-agent/internal/render"
	"github.com/p-blackswan/welcome-agent/internal/retry"
	"github.com/p-blackswan/welcome-agent/internal/settings"
)

// TimeLayout is how {time} is written.
const TimeLayout = "2006-01-02 15:04:05"

// Sender delivers a rendered message to a group.
type Sender interface {
	SendGroupMessage(ctx context.Context, groupID string, segments []render.Segment) error
}

// SettingsReader is the read-only view of the settings document.
type SettingsReader interface {
	Group(groupID string) (settings.GroupConfig, bool)
	Template(groupID string) string
}

// SendPolicy decides what happens when delivery fails.
type SendPolicy string

const (
	// PolicyDrop logs the failure and drops the greeting.
	PolicyDrop SendPolicy = "drop"
	// PolicyRetry retries transient failures before dropping.
	PolicyRetry SendPolicy = "retry"
)

// ParseSendPolicy maps a config value to a policy; unknown values are an error.
func ParseSendPolicy(s string) (SendPolicy, error) {
	switch SendPolicy(s) {
	case PolicyDrop, "":
		return PolicyDrop, nil
	case PolicyRetry:
		return PolicyRetry, nil
	default:
		return "", fmt.Errorf("unknown send failure policy %q", s)
	}
}

// Options tune a Welcomer. Zero values are replaced by defaults.
type Options struct {
	Location  *time.Location
	Policy    SendPolicy
	Retry     retry.Config
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Policy == "" {
		o.Policy = PolicyDrop
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.DefaultConfig()
	}
	if o.Publisher == nil {
		o.Publisher = publish.NoopPublisher{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Greeting is a welcome message that was delivered.
type Greeting struct {
	GroupID  string
	UserID   string
	Segments []render.Segment
}

// Welcomer turns joined occurrences into group messages.
type Welcomer struct {
	settings SettingsReader
	sender   Sender
	opts     Options
	logger   zerolog.Logger
}

// NewWelcomer creates a Welcomer.
func NewWelcomer(reader SettingsReader, sender Sender, opts Options, logger zerolog.Logger) *Welcomer {
	opts.applyDefaults()
	return &Welcomer{
		settings: reader,
		sender:   sender,
		opts:     opts,
		logger:   logger.With().Str("component", "welcomer").Logger(),
	}
}

// Handle greets occ.UserID in occ.GroupID when the group has greeting
// enabled. It returns the delivered greeting, or nil when nothing was sent.
// Every call with an enabled group attempts exactly one delivery.
func (w *Welcomer) Handle(ctx context.Context, occ notice.JoinedOccurrence) *Greeting {
	log := w.logger.With().Str("group_id", occ.GroupID).Str("user_id", occ.UserID).Logger()

	group, ok := w.settings.Group(occ.GroupID)
	if !ok || !group.Enabled {
		log.Debug().Msg("greeting disabled for group")
		w.opts.Metrics.RecordGreeting(metrics.ResultSkipped)
		return nil
	}

	segments := render.Render(w.settings.Template(occ.GroupID), render.Bindings{
		Time:   FormatTime(occ.Timestamp, w.opts.Location, w.opts.Now),
		UserID: occ.UserID,
	})
	if len(segments) == 0 {
		log.Warn().Msg("template rendered to an empty message, nothing to send")
		w.opts.Metrics.RecordGreeting(metrics.ResultSkipped)
		return nil
	}

	log.Info().Str("message", render.PlainText(segments)).Msg("sending welcome message")

	start := time.Now()
	err := w.deliver(ctx, occ.GroupID, segments)
	w.opts.Metrics.ObserveSend(time.Since(start).Seconds())

	if err != nil {
		log.Error().Err(err).Str("policy", string(w.opts.Policy)).Msg("failed to send welcome message")
		w.opts.Metrics.RecordGreeting(metrics.ResultFailed)
		w.publish(ctx, publish.TopicGreetingFailed, publish.GreetingFailed{
			GroupID: occ.GroupID,
			UserID:  occ.UserID,
			Error:   err.Error(),
			At:      w.opts.Now(),
		})
		return nil
	}

	log.Info().Msg("welcome message sent")
	w.opts.Metrics.RecordGreeting(metrics.ResultSent)
	w.publish(ctx, publish.TopicGreetingSent, publish.GreetingSent{
		GroupID:  occ.GroupID,
		UserID:   occ.UserID,
		Segments: segments,
		SentAt:   w.opts.Now(),
	})
	return &Greeting{GroupID: occ.GroupID, UserID: occ.UserID, Segments: segments}
}

func (w *Welcomer) deliver(ctx context.Context, groupID string, segments []render.Segment) error {
	send := func(ctx context.Context) error {
		return w.sender.SendGroupMessage(ctx, groupID, segments)
	}
	if w.opts.Policy != PolicyRetry {
		return send(ctx)
	}

	cfg := w.opts.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		w.logger.Warn().Err(err).
			Str("group_id", groupID).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying welcome message")
	}
	return retry.Do(ctx, cfg, send)
}

func (w *Welcomer) publish(ctx context.Context, topic string, ev any) {
	if err := w.opts.Publisher.Publish(ctx, topic, ev); err != nil {
		w.logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

// FormatTime writes ts in loc using TimeLayout. A zero or out-of-range
// timestamp is replaced by now().
func FormatTime(ts time.Time, loc *time.Location, now func() time.Time) string {
	if loc == nil {
		loc = time.Local
	}
	if ts.IsZero() || ts.Year() < 1 || ts.Year() > 9999 {
		ts = now()
	}
	return ts.In(loc).Format(TimeLayout)
}
