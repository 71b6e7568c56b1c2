package welcome

import (
	"context"

	"github.com/p-blackswan/welcome-agent/internal/event"
	"github.com/p-blackswan/welcome-agent/internal/metrics"
	"github.com/p-blackswan/welcome-agent/internal/notice"
)

// HandlerID identifies the notice handler in routing rules.
const HandlerID = "welcome"

// NoticeHandler classifies runtime events and greets joined members.
type NoticeHandler struct {
	classifier *notice.Classifier
	welcomer   *Welcomer
	metrics    *metrics.Metrics
}

// NewNoticeHandler creates a NoticeHandler. m may be nil.
func NewNoticeHandler(classifier *notice.Classifier, welcomer *Welcomer, m *metrics.Metrics) *NoticeHandler {
	return &NoticeHandler{classifier: classifier, welcomer: welcomer, metrics: m}
}

func (h *NoticeHandler) ID() string { return HandlerID }

// Handle never returns an error; failures are logged by the welcomer.
func (h *NoticeHandler) Handle(ctx context.Context, ev event.Event) error {
	occ, ok := h.classifier.Classify(ev)
	if !ok {
		h.metrics.RecordEvent(metrics.OutcomeIgnored)
		return nil
	}
	h.metrics.RecordEvent(metrics.OutcomeJoined)
	h.welcomer.Handle(ctx, occ)
	return nil
}
