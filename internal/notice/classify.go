package notice

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/event"
)

// OneBot field values that identify a join.
const (
	PostTypeNotice          = "notice"
	NoticeTypeGroupIncrease = "group_increase"
)

// JoinedOccurrence is a member-joined fact extracted from one event.
type JoinedOccurrence struct {
	GroupID   string
	UserID    string
	SelfID    string
	Timestamp time.Time
}

// RawNoticeSource is one place an inbound event may carry its raw record.
type RawNoticeSource interface {
	Name() string
	RawNotice(ev event.Event) (Record, bool)
}

// PayloadSource reads the record straight from the event payload, as the
// WebSocket transport delivers it.
type PayloadSource struct{}

func (PayloadSource) Name() string { return "payload" }

func (PayloadSource) RawNotice(ev event.Event) (Record, bool) {
	return DecodeRecord(ev.Payload)
}

// EnvelopeSource reads the record from the Body of a webhook envelope.
type EnvelopeSource struct{}

func (EnvelopeSource) Name() string { return "envelope" }

func (EnvelopeSource) RawNotice(ev event.Event) (Record, bool) {
	var env event.WebhookPayload
	if err := json.Unmarshal(ev.Payload, &env); err != nil || len(env.Body) == 0 {
		return nil, false
	}
	return DecodeRecord(env.Body)
}

// DefaultSources is the extraction order used when none is given.
func DefaultSources() []RawNoticeSource {
	return []RawNoticeSource{PayloadSource{}, EnvelopeSource{}}
}

// Classifier turns inbound events into JoinedOccurrences.
type Classifier struct {
	sources []RawNoticeSource
	now     func() time.Time
	logger  zerolog.Logger
}

// NewClassifier creates a classifier trying sources in order; with no
// sources DefaultSources is used.
func NewClassifier(logger zerolog.Logger, sources ...RawNoticeSource) *Classifier {
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return &Classifier{
		sources: sources,
		now:     time.Now,
		logger:  logger.With().Str("component", "notice").Logger(),
	}
}

// Record returns the raw record of ev from the first source that has one.
func (c *Classifier) Record(ev event.Event) (Record, bool) {
	for _, src := range c.sources {
		if rec, ok := src.RawNotice(ev); ok {
			return rec, true
		}
	}
	return nil, false
}

// Classify returns the occurrence carried by ev, or false when ev is not a
// group_increase notice for someone other than the bot itself.
func (c *Classifier) Classify(ev event.Event) (JoinedOccurrence, bool) {
	rec, ok := c.Record(ev)
	if !ok {
		return JoinedOccurrence{}, false
	}

	postType := rec.String("post_type")
	noticeType := rec.String("notice_type")
	if postType == PostTypeNotice {
		c.logger.Debug().Str("notice_type", noticeType).Str("event_id", ev.ID).Msg("notice received")
	}
	if postType != PostTypeNotice || noticeType != NoticeTypeGroupIncrease {
		return JoinedOccurrence{}, false
	}

	occ := JoinedOccurrence{
		GroupID: rec.String("group_id"),
		UserID:  rec.String("user_id"),
		SelfID:  rec.String("self_id"),
	}
	// The bot's own join never triggers a greeting.
	if occ.UserID == occ.SelfID {
		return JoinedOccurrence{}, false
	}
	if occ.GroupID == "" || occ.UserID == "" {
		return JoinedOccurrence{}, false
	}

	occ.Timestamp = c.now()
	if secs, ok := rec.Seconds("time"); ok && !math.IsNaN(secs) && !math.IsInf(secs, 0) {
		whole, frac := math.Modf(secs)
		occ.Timestamp = time.Unix(int64(whole), int64(frac*1e9))
	}
	return occ, true
}
