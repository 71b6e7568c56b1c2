package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
	"github.com/p-blackswan/welcome-agent/internal/event"
)

// WSConfig holds forward WebSocket configuration.
type WSConfig struct {
	// URL is the OneBot forward WebSocket endpoint, e.g. "ws://127.0.0.1:3001".
	URL string

	// AccessToken is sent as a Bearer token when set.
	AccessToken string

	// ActionTimeout bounds each action when the context has no deadline.
	ActionTimeout time.Duration

	// ReconnectInterval is the first delay between reconnection attempts.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the exponential backoff.
	MaxReconnectInterval time.Duration

	// MaxQueuedEvents caps events read but not yet taken by the consumer.
	// Events beyond it are dropped.
	MaxQueuedEvents int
}

// DefaultWSConfig returns sane defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		URL:                  "ws://127.0.0.1:3001",
		ActionTimeout:        10 * time.Second,
		ReconnectInterval:    1 * time.Second,
		MaxReconnectInterval: 30 * time.Second,
		MaxQueuedEvents:      4096,
	}
}

type callResult struct {
	resp actionResponse
	err  error
}

// WSClient is a persistent forward WebSocket client. It delivers reported
// events as an event.EventSource and executes actions through Call.
type WSClient struct {
	cfg    WSConfig
	logger zerolog.Logger

	connected    atomic.Bool
	closed       atomic.Bool
	reconnecting atomic.Bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan callResult

	queue   *eventQueue
	dropped atomic.Int64

	writeMu sync.Mutex

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewWSClient creates a new client. It does not connect.
func NewWSClient(cfg WSConfig, logger zerolog.Logger) *WSClient {
	def := DefaultWSConfig()
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = def.ActionTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = def.MaxReconnectInterval
	}
	if cfg.MaxQueuedEvents == 0 {
		cfg.MaxQueuedEvents = def.MaxQueuedEvents
	}

	return &WSClient{
		cfg:     cfg,
		logger:  logger.With().Str("component", "onebot-ws").Logger(),
		pending: make(map[string]chan callResult),
		queue:   newEventQueue(cfg.MaxQueuedEvents),
		stopCh:  make(chan struct{}),
	}
}

func (c *WSClient) Name() string { return event.SourceOneBotWS }

// Subscribe connects in the background and keeps reconnecting until ctx is
// cancelled or Close is called. Reported events are written to out by a
// separate forwarder, so a full out never delays action responses.
func (c *WSClient) Subscribe(ctx context.Context, out chan<- event.Event) error {
	if c.closed.Load() {
		return werrors.ErrNotConnected
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.stopCh:
		}
	}()
	go c.forward(ctx, out)
	go c.run(ctx)
	return nil
}

// forward moves queued events to out until the client stops.
func (c *WSClient) forward(ctx context.Context, out chan<- event.Event) {
	for {
		ev, ok := c.queue.pop()
		if !ok {
			select {
			case <-c.queue.notify:
				continue
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		}
	}
}

func (c *WSClient) run(ctx context.Context) {
	delay := c.cfg.ReconnectInterval
	for {
		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err == nil {
			delay = c.cfg.ReconnectInterval
			c.readLoop(conn)
		} else {
			c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("onebot connect failed")
		}

		if c.closed.Load() {
			return
		}

		c.reconnecting.Store(true)
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
		c.reconnecting.Store(false)
		delay = min(delay*2, c.cfg.MaxReconnectInterval)
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	c.logger.Info().Str("url", c.cfg.URL).Msg("connecting to onebot")

	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, werrors.NewHTTPError("connect", resp.StatusCode, "access token rejected")
		}
		return nil, fmt.Errorf("ws dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	c.logger.Info().Msg("connected to onebot")
	return conn, nil
}

// readLoop reads frames until the connection drops. Frames carrying
// post_type are events; frames carrying echo are action responses.
func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.connected.Store(false)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		for echo, ch := range c.pending {
			ch <- callResult{err: werrors.ErrNotConnected}
			delete(c.pending, echo)
		}
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !errors.Is(err, websocket.ErrCloseSent) {
				c.logger.Warn().Err(err).Msg("ws read error")
			}
			return
		}

		if hint, ok := event.ParseHint(msg); ok {
			if hint.PostType == event.TypeMetaEvent {
				c.logger.Trace().Msg("meta event received")
				continue
			}
			ev := event.NewRawEvent(event.SourceOneBotWS, hint.PostType, json.RawMessage(msg), hint.Metadata())
			if !c.queue.push(ev) {
				n := c.dropped.Add(1)
				c.logger.Warn().Str("type", hint.PostType).Int64("dropped_total", n).Msg("event queue full, dropping event")
			}
			continue
		}

		var resp actionResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Warn().Err(err).Msg("ws parse error")
			continue
		}
		c.resolve(resp)
	}
}

func (c *WSClient) resolve(resp actionResponse) {
	var echo string
	if len(resp.Echo) == 0 || json.Unmarshal(resp.Echo, &echo) != nil {
		c.logger.Debug().Int("retcode", resp.Retcode).Msg("response without usable echo")
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[echo]
	if ok {
		delete(c.pending, echo)
	}
	c.mu.Unlock()
	if ok {
		ch <- callResult{resp: resp}
	}
}

// Call sends an action frame and waits for the matching response.
func (c *WSClient) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if !c.connected.Load() || conn == nil {
		return nil, fmt.Errorf("%s: %w", action, werrors.ErrNotConnected)
	}

	echo := uuid.NewString()
	frame, err := json.Marshal(actionRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", action, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ActionTimeout)
		defer cancel()
	}

	respCh := make(chan callResult, 1)
	c.mu.Lock()
	c.pending[echo] = respCh
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.ActionTimeout))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(echo)
		return nil, fmt.Errorf("sending %s: %w: %w", action, werrors.ErrNotConnected, err)
	}

	c.logger.Debug().Str("action", action).Str("echo", echo).Msg("action sent")

	select {
	case res := <-respCh:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", action, res.err)
		}
		return res.resp.result(action)
	case <-ctx.Done():
		c.forget(echo)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", action, werrors.ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

func (c *WSClient) forget(echo string) {
	c.mu.Lock()
	delete(c.pending, echo)
	c.mu.Unlock()
}

// Close stops reconnecting and closes the connection.
func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		c.connected.Store(false)

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			c.writeMu.Unlock()
			err = conn.Close()
		}
	})
	return err
}

// Backlog reports how many read events wait for the consumer.
func (c *WSClient) Backlog() int { return c.queue.len() }

// Dropped reports how many events were discarded on a full queue.
func (c *WSClient) Dropped() int64 { return c.dropped.Load() }

// IsConnected returns true if the client is connected.
func (c *WSClient) IsConnected() bool {
	return c.connected.Load()
}
