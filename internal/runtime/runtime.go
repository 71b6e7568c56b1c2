// Package runtime implements the event loop: sources feed one channel and
// each event is routed to its handlers, one event at a time.
package runtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/welcome-agent/internal/event"
	"github.com/p-blackswan/welcome-agent/internal/requestid"
)

// Handler consumes routed events.
type Handler interface {
	ID() string
	Handle(ctx context.Context, ev event.Event) error
}

// Config holds runtime configuration.
type Config struct {
	// EventBufferSize is the capacity of the internal event channel.
	EventBufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{EventBufferSize: 256}
}

// Router decides which handlers should see a given event.
type Router interface {
	Route(ev event.Event) []Handler
}

// broadcastRouter sends every event to every handler.
type broadcastRouter struct {
	handlers []Handler
}

func (r *broadcastRouter) Route(_ event.Event) []Handler { return r.handlers }

// Runtime is the main event loop. It wires sources → router → handlers.
type Runtime struct {
	config   Config
	sources  []event.EventSource
	router   Router
	handlers []Handler
	events   chan event.Event
	logger   zerolog.Logger
}

// New creates a Runtime.
func New(cfg Config, logger zerolog.Logger) *Runtime {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultConfig().EventBufferSize
	}
	return &Runtime{
		config: cfg,
		events: make(chan event.Event, cfg.EventBufferSize),
		logger: logger.With().Str("component", "runtime").Logger(),
	}
}

// AddSource registers an event source. Must be called before Run().
func (r *Runtime) AddSource(src event.EventSource) {
	r.sources = append(r.sources, src)
}

// AddHandler registers a handler. Must be called before Run().
func (r *Runtime) AddHandler(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Handlers returns the registered handlers in registration order.
func (r *Runtime) Handlers() []Handler { return r.handlers }

// SetRouter sets a custom event router. If not set, defaults to broadcast.
func (r *Runtime) SetRouter(router Router) {
	r.router = router
}

// Pending reports how many events are queued.
func (r *Runtime) Pending() int { return len(r.events) }

// Run starts the sources and handles events until ctx is cancelled.
// Handlers run inline, so no two events are ever processed concurrently.
func (r *Runtime) Run(ctx context.Context) error {
	if r.router == nil {
		r.router = &broadcastRouter{handlers: r.handlers}
	}

	for _, src := range r.sources {
		r.logger.Info().Str("source", src.Name()).Msg("starting event source")
		if err := src.Subscribe(ctx, r.events); err != nil {
			return err
		}
	}

	r.logger.Info().
		Int("sources", len(r.sources)).
		Int("handlers", len(r.handlers)).
		Int("buffer", r.config.EventBufferSize).
		Msg("runtime started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Int("dropped", len(r.events)).Msg("runtime shutting down")
			return ctx.Err()
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, ev event.Event) {
	targets := r.router.Route(ev)
	if len(targets) == 0 {
		r.logger.Debug().Str("event_id", ev.ID).Msg("event routed to no handlers")
		return
	}

	ctx = requestid.WithID(ctx, ev.ID)
	log := r.logger.With().
		Str("request_id", ev.ID).
		Str("source", ev.Source).
		Str("type", ev.Type).
		Logger()
	ctx = log.WithContext(ctx)

	start := time.Now()
	for _, h := range targets {
		if err := r.handle(ctx, h, ev); err != nil {
			log.Error().Err(err).Str("handler", h.ID()).Msg("handler error")
		}
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("handlers", len(targets)).Msg("event handled")
}

// handle isolates handler panics so one bad event cannot stop the loop.
func (r *Runtime) handle(ctx context.Context, h Handler, ev event.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Interface("panic", rec).
				Str("handler", h.ID()).
				Str("event_id", ev.ID).
				Msg("handler panicked")
		}
	}()
	return h.Handle(ctx, ev)
}
