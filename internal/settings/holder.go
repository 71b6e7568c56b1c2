package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
)

// Holder owns the process-wide document. It is injected into both the
// welcomer (read-only) and the command handler (sole mutator).
type Holder struct {
	mu     sync.RWMutex
	doc    Document
	store  Store
	logger zerolog.Logger
}

// Open loads the document from store. A missing or unreadable document is
// logged and replaced by NewDocument; Open itself never fails.
func Open(ctx context.Context, store Store, logger zerolog.Logger) *Holder {
	h := &Holder{
		store:  store,
		logger: logger.With().Str("component", "settings").Logger(),
	}

	doc, err := store.Load(ctx)
	switch {
	case err == nil:
		h.logger.Info().Int("groups", len(doc.Groups)).Msg("settings loaded")
	case errors.Is(err, werrors.ErrNotFound):
		h.logger.Info().Msg("no stored settings, using defaults")
		doc = NewDocument()
	default:
		h.logger.Error().Err(err).Msg("failed to load settings, using defaults")
		doc = NewDocument()
	}
	h.doc = doc
	return h
}

// Snapshot returns a copy of the current document.
func (h *Holder) Snapshot() Document {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.Clone()
}

// Group returns the configuration of groupID.
func (h *Holder) Group(groupID string) (GroupConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	g, ok := h.doc.Groups[groupID]
	return g.clone(), ok
}

// Template returns the effective template for groupID.
func (h *Holder) Template(groupID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.Template(groupID)
}

// DefaultMessage returns the document's fallback template.
func (h *Holder) DefaultMessage() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.DefaultMessage
}

// Update applies fn to the document. When fn reports a change the whole
// document is saved. Save failures are logged; the in-memory document
// stays updated either way.
func (h *Holder) Update(ctx context.Context, fn func(doc *Document) bool) Document {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !fn(&h.doc) {
		return h.doc.Clone()
	}
	if err := h.store.Save(ctx, h.doc); err != nil {
		h.logger.Error().Err(err).Msg("failed to save settings")
	}
	return h.doc.Clone()
}

// Store returns the backing store.
func (h *Holder) Store() Store { return h.store }
