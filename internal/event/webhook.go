// Receives OneBot HTTP-POST reports and converts them to Events.
package event

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WebhookConfig configures the HTTP webhook source.
type WebhookConfig struct {
	// Addr is the listen address, e.g. ":5700" or "127.0.0.1:9000".
	Addr string

	// Path is the URL path to accept reports on. Defaults to "/onebot".
	Path string

	// Secret enables X-Signature validation (HMAC-SHA1 of the body).
	Secret string

	// ReadTimeout for individual HTTP connections. Default: 10s.
	ReadTimeout time.Duration

	// MaxBodyBytes limits the request body size. Default: 1 MiB.
	MaxBodyBytes int64
}

// WebhookPayload is the envelope the webhook source emits. The OneBot
// record is kept verbatim in Body.
type WebhookPayload struct {
	Type       string            `json:"type,omitempty"`
	Body       json.RawMessage   `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
}

// WebhookSource is an EventSource that receives HTTP POST requests.
type WebhookSource struct {
	cfg    WebhookConfig
	logger zerolog.Logger
}

// NewWebhookSource creates a WebhookSource. Call Subscribe() to start listening.
func NewWebhookSource(cfg WebhookConfig, logger zerolog.Logger) *WebhookSource {
	if cfg.Path == "" {
		cfg.Path = "/onebot"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	return &WebhookSource{
		cfg:    cfg,
		logger: logger.With().Str("component", "event.webhook").Logger(),
	}
}

// Name implements EventSource.
func (w *WebhookSource) Name() string { return SourceWebhook }

// Subscribe starts the HTTP server and forwards incoming reports to out.
// The server runs until ctx is cancelled.
func (w *WebhookSource) Subscribe(ctx context.Context, out chan<- Event) error {
	mux := http.NewServeMux()
	mux.Handle(w.cfg.Path, w.Handler(out))

	srv := &http.Server{
		Addr:        w.cfg.Addr,
		Handler:     mux,
		ReadTimeout: w.cfg.ReadTimeout,
	}

	w.logger.Info().Str("addr", w.cfg.Addr).Str("path", w.cfg.Path).Msg("webhook source starting")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				w.logger.Error().Err(err).Msg("webhook shutdown error")
			}
		case err := <-errCh:
			w.logger.Error().Err(err).Msg("webhook server error")
		}
	}()

	// Give the server a moment to start, return any immediate bind error.
	select {
	case err := <-errCh:
		return fmt.Errorf("webhook source: %w", err)
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Handler returns the http.Handler that parses reports into Events.
func (w *WebhookSource) Handler(out chan<- Event) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, w.cfg.MaxBodyBytes))
		if err != nil {
			http.Error(rw, "read error", http.StatusInternalServerError)
			return
		}

		if w.cfg.Secret != "" && !validSignature(w.cfg.Secret, body, r.Header.Get("X-Signature")) {
			w.logger.Warn().Str("remote", r.RemoteAddr).Msg("invalid webhook signature")
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}

		if !json.Valid(body) {
			http.Error(rw, "body must be JSON", http.StatusBadRequest)
			return
		}

		evType := TypeUnknown
		meta := map[string]string{"remote_addr": r.RemoteAddr}
		if hint, ok := ParseHint(body); ok {
			evType = hint.PostType
			for k, v := range hint.Metadata() {
				meta[k] = v
			}
		}

		payload := WebhookPayload{
			Type:       evType,
			Body:       json.RawMessage(body),
			RemoteAddr: r.RemoteAddr,
			Headers: map[string]string{
				"Content-Type": r.Header.Get("Content-Type"),
				"User-Agent":   r.Header.Get("User-Agent"),
				"X-Self-ID":    r.Header.Get("X-Self-ID"),
			},
		}

		ev, err := NewEvent(SourceWebhook, evType, payload, meta)
		if err != nil {
			w.logger.Error().Err(err).Msg("build webhook event")
			http.Error(rw, "internal error", http.StatusInternalServerError)
			return
		}

		select {
		case out <- ev:
			w.logger.Debug().Str("event_id", ev.ID).Str("type", evType).Msg("webhook event queued")
			rw.WriteHeader(http.StatusNoContent)
		default:
			w.logger.Warn().Str("event_id", ev.ID).Msg("event channel full, dropping")
			http.Error(rw, "service busy", http.StatusServiceUnavailable)
		}
	}
}

// validSignature checks a "sha1=<hex>" header against the body HMAC.
func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha1=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}
