// Package metrics provides Prometheus metrics for the welcome agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	OutcomeJoined  = "joined"
	OutcomeIgnored = "ignored"

	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec
	GreetingsTotal *prometheus.CounterVec
	CommandsTotal  *prometheus.CounterVec
	SendDuration   prometheus.Histogram
	GroupsEnabled  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "welcome_events_total",
				Help: "Inbound events by classification outcome.",
			},
			[]string{"outcome"},
		),
		GreetingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "welcome_greetings_total",
				Help: "Greetings by result.",
			},
			[]string{"result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "welcome_commands_total",
				Help: "Administrative commands by name and result.",
			},
			[]string{"command", "result"},
		),
		SendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "welcome_send_duration_seconds",
				Help:    "Time spent delivering a greeting, retries included.",
				Buckets: prometheus.DefBuckets,
			},
		),
		GroupsEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "welcome_groups_enabled",
				Help: "Number of groups with greeting enabled.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.GreetingsTotal)
	reg.MustRegister(m.CommandsTotal)
	reg.MustRegister(m.SendDuration)
	reg.MustRegister(m.GroupsEnabled)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (useful for testing).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordEvent counts a classified event. Safe on a nil receiver.
func (m *Metrics) RecordEvent(outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(outcome).Inc()
}

// RecordGreeting counts a greeting result.
func (m *Metrics) RecordGreeting(result string) {
	if m == nil {
		return
	}
	m.GreetingsTotal.WithLabelValues(result).Inc()
}

// RecordCommand counts a command invocation.
func (m *Metrics) RecordCommand(command, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}

// ObserveSend records send duration.
func (m *Metrics) ObserveSend(seconds float64) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(seconds)
}

// SetGroupsEnabled sets the enabled-group gauge.
func (m *Metrics) SetGroupsEnabled(count int) {
	if m == nil {
		return
	}
	m.GroupsEnabled.Set(float64(count))
}
