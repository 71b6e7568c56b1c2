package runtime

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/event"
)

// Rule defines a routing condition and the set of target handler IDs.
type Rule struct {
	// Source matches the event source exactly. Empty = match any.
	Source string `yaml:"source"`

	// Type matches the event type exactly. Empty = match any.
	Type string `yaml:"type"`

	// MetaKey / MetaValue: if both are set, the event metadata must contain
	// MetaKey with a value that starts with MetaValue.
	MetaKey   string `yaml:"meta_key"`
	MetaValue string `yaml:"meta_value"`

	// Handlers is the list of handler IDs to route matching events to.
	// Empty means broadcast to all.
	Handlers []string `yaml:"handlers"`
}

func (r Rule) matches(ev event.Event) bool {
	if r.Source != "" && r.Source != ev.Source {
		return false
	}
	if r.Type != "" && r.Type != ev.Type {
		return false
	}
	if r.MetaKey != "" && r.MetaValue != "" {
		val, ok := ev.Metadata[r.MetaKey]
		if !ok || !strings.HasPrefix(val, r.MetaValue) {
			return false
		}
	}
	return true
}

// SmartRouter routes events with an ordered list of Rules. The first
// matching rule wins; if no rule matches, every handler gets the event in
// registration order.
type SmartRouter struct {
	rules    []Rule
	handlers []Handler
	byID     map[string]Handler
	logger   zerolog.Logger
}

// NewSmartRouter creates a SmartRouter over handlers.
func NewSmartRouter(rules []Rule, handlers []Handler, logger zerolog.Logger) *SmartRouter {
	r := &SmartRouter{
		rules:  rules,
		byID:   make(map[string]Handler, len(handlers)),
		logger: logger.With().Str("component", "router").Logger(),
	}
	for _, h := range handlers {
		r.AddHandler(h)
	}
	return r
}

// Route implements Router.
func (r *SmartRouter) Route(ev event.Event) []Handler {
	for _, rule := range r.rules {
		if !rule.matches(ev) {
			continue
		}

		if len(rule.Handlers) == 0 {
			return r.handlers
		}

		targets := make([]Handler, 0, len(rule.Handlers))
		for _, id := range rule.Handlers {
			if h, ok := r.byID[id]; ok {
				targets = append(targets, h)
			} else {
				r.logger.Warn().Str("handler_id", id).Msg("unknown handler in rule")
			}
		}

		r.logger.Trace().
			Str("event_source", ev.Source).
			Str("event_type", ev.Type).
			Int("targets", len(targets)).
			Msg("matched rule")
		return targets
	}

	r.logger.Trace().
		Str("event_source", ev.Source).
		Str("event_type", ev.Type).
		Msg("no rule matched, broadcasting")
	return r.handlers
}

// AddHandler registers h, replacing a handler with the same ID.
func (r *SmartRouter) AddHandler(h Handler) {
	if _, ok := r.byID[h.ID()]; ok {
		for i, existing := range r.handlers {
			if existing.ID() == h.ID() {
				r.handlers[i] = h
			}
		}
	} else {
		r.handlers = append(r.handlers, h)
	}
	r.byID[h.ID()] = h
}

// AddRule appends a routing rule at the lowest priority.
func (r *SmartRouter) AddRule(rule Rule) {
	r.rules = append(r.rules, rule)
}

// PrependRule inserts a routing rule at the highest priority.
func (r *SmartRouter) PrependRule(rule Rule) {
	r.rules = append([]Rule{rule}, r.rules...)
}
