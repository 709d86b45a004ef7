package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stressmon/internal/core/domain"
	"stressmon/internal/core/ports"
	"stressmon/pkg/tracing"
)

// Config controls connection and reconnection behavior.
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	Reconnect            bool
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
}

// DefaultConfig returns the standard budget: 5 s acknowledgment timeout,
// automatic reconnection with 5 attempts spaced 1 s apart.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       5 * time.Second,
		WriteTimeout:         5 * time.Second,
		Reconnect:            true,
		ReconnectInterval:    1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

type handlerEntry struct {
	sub ports.Subscription
	fn  ports.EventHandler
}

// WebSocketChannel is the persistent connection to the remote inference
// service. It implements ports.Channel over a gorilla/websocket connection
// with JSON envelopes.
type WebSocketChannel struct {
	cfg     Config
	dialer  *websocket.Dialer
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	sessionID domain.SessionID
	ackCh     chan domain.SessionID
	errCh     chan error

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[ports.EventType][]handlerEntry

	disconnectMu sync.Mutex
	onDisconnect []func(error)
}

// NewWebSocketChannel builds a disconnected channel. metrics may be nil.
func NewWebSocketChannel(cfg Config, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *WebSocketChannel {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.ConnectTimeout

	return &WebSocketChannel{
		cfg:      cfg,
		dialer:   &dialer,
		metrics:  metrics,
		logger:   logger,
		handlers: make(map[ports.EventType][]handlerEntry),
	}
}

// Connect dials the service and blocks until it acknowledges the connection
// with a session_created event carrying the session id. It never resolves
// twice: connecting an already connected channel is an error.
func (c *WebSocketChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return errors.New("channel already connected")
	}
	c.closed = false
	c.mu.Unlock()

	return c.dialAndAwait(ctx)
}

func (c *WebSocketChannel) dialAndAwait(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	ackCh := make(chan domain.SessionID, 1)
	errCh := make(chan error, 1)

	c.mu.Lock()
	c.conn = conn
	c.ackCh = ackCh
	c.errCh = errCh
	c.mu.Unlock()

	go c.readLoop(conn)

	select {
	case sid := <-ackCh:
		// dispatch marked the channel connected before feeding ackCh, so a
		// read failure racing this receive is already handled as a drop of an
		// established connection.
		c.logger.Infow("connected", "session_id", sid)
		return nil
	case err := <-errCh:
		conn.Close()
		return fmt.Errorf("await ack: %w", err)
	case <-time.After(c.cfg.ConnectTimeout):
		c.clearPendingDial(conn)
		conn.Close()
		return domain.ErrConnectionTimeout
	case <-ctx.Done():
		c.clearPendingDial(conn)
		conn.Close()
		return ctx.Err()
	}
}

// clearPendingDial rolls back connection state for a dial that will not be
// acknowledged, unless the read loop already replaced or cleared it.
func (c *WebSocketChannel) clearPendingDial(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
	}
}

// Disconnect closes the connection and clears the session id. Idempotent;
// suppresses any pending reconnection.
func (c *WebSocketChannel) Disconnect() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	c.sessionID = ""
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *WebSocketChannel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *WebSocketChannel) SessionID() domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Subscribe registers a handler for an inbound event. Handlers run in
// registration order; multiple handlers per event are allowed.
func (c *WebSocketChannel) Subscribe(event ports.EventType, handler ports.EventHandler) ports.Subscription {
	sub := ports.Subscription(uuid.NewString())

	c.handlersMu.Lock()
	c.handlers[event] = append(c.handlers[event], handlerEntry{sub: sub, fn: handler})
	c.handlersMu.Unlock()

	return sub
}

func (c *WebSocketChannel) Unsubscribe(event ports.EventType, sub ports.Subscription) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	entries := c.handlers[event]
	for i, e := range entries {
		if e.sub == sub {
			c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Publish sends a typed message tagged with the cached session id. While not
// connected it drops the message silently: callers are expected to be gated
// by connection state, and messages produced during a reconnect window are
// lost rather than queued.
func (c *WebSocketChannel) Publish(event ports.EventType, payload interface{}) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	sid := c.sessionID
	c.mu.RUnlock()

	if !connected || conn == nil {
		c.logger.Debugw("publish dropped, not connected", "event", event)
		return nil
	}

	_, span := tracing.TraceChannelEvent(context.Background(), string(event), string(sid))
	defer span.End()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	env := Envelope{Event: event, SessionID: sid, Payload: body}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}

// OnDisconnect registers a callback for terminal disconnection.
func (c *WebSocketChannel) OnDisconnect(fn func(error)) {
	c.disconnectMu.Lock()
	defer c.disconnectMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// --- internals ---

func (c *WebSocketChannel) readLoop(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleReadFailure(conn, err)
			return
		}
		c.dispatch(env)
	}
}

func (c *WebSocketChannel) dispatch(env Envelope) {
	if env.Event == ports.EventSessionCreated {
		var p domain.SessionCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil && p.SessionID != "" {
			// Mark connected before the dialer observes the ack, so a read
			// failure between the two is treated as losing an established
			// connection rather than a failed dial.
			c.mu.Lock()
			c.sessionID = p.SessionID
			c.connected = true
			ackCh := c.ackCh
			c.mu.Unlock()
			if ackCh != nil {
				select {
				case ackCh <- p.SessionID:
				default:
				}
			}
		}
	}

	c.handlersMu.RLock()
	entries := append([]handlerEntry(nil), c.handlers[env.Event]...)
	c.handlersMu.RUnlock()

	for _, e := range entries {
		e.fn(env.Payload)
	}
}

func (c *WebSocketChannel) handleReadFailure(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		// Explicit disconnect, or a stale loop whose connection was already
		// replaced by a reconnect.
		c.mu.Unlock()
		return
	}
	wasConnected := c.connected
	c.connected = false
	c.conn = nil
	errCh := c.errCh
	c.mu.Unlock()

	if !wasConnected {
		// The dialer is still waiting for the ack; fail it fast instead of
		// letting it burn the full timeout.
		if errCh != nil {
			select {
			case errCh <- err:
			default:
			}
		}
		return
	}

	c.logger.Warnw("connection read failed", "error", err)

	if !c.cfg.Reconnect {
		c.markLost(err)
		return
	}
	c.reconnect(err)
}

// reconnect re-dials with a fixed inter-attempt delay up to the retry
// budget. Exhaustion leaves the channel terminally disconnected; only an
// explicit Connect revives it.
func (c *WebSocketChannel) reconnect(cause error) {
	attempt := 0
	operation := func() error {
		if c.isClosed() {
			return backoff.Permanent(errors.New("channel closed during reconnect"))
		}
		attempt++
		c.logger.Infow("reconnecting", "attempt", attempt, "max", c.cfg.MaxReconnectAttempts)
		if c.metrics != nil {
			c.metrics.ReconnectAttempted()
		}
		return c.dialAndAwait(context.Background())
	}

	// WithMaxRetries counts retries after the first attempt, hence the -1.
	// Budgets of 0 or 1 both mean a single attempt; the clamp keeps a zero
	// budget from underflowing into a practically unbounded retry count.
	retries := uint64(0)
	if c.cfg.MaxReconnectAttempts > 1 {
		retries = uint64(c.cfg.MaxReconnectAttempts - 1)
	}
	bo := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(c.cfg.ReconnectInterval),
		retries,
	)

	if err := backoff.Retry(operation, bo); err != nil {
		c.logger.Errorw("reconnect budget exhausted", "attempts", attempt, "error", err)
		c.markLost(fmt.Errorf("%w: %v", domain.ErrConnectionLost, cause))
		return
	}

	c.logger.Infow("reconnected", "session_id", c.SessionID(), "attempts", attempt)
}

func (c *WebSocketChannel) markLost(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.sessionID = ""
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	// Surface the loss to error subscribers before the lifecycle callback.
	payload, _ := json.Marshal(domain.ErrorPayload{Message: err.Error()})
	c.dispatch(Envelope{Event: ports.EventError, Payload: payload})

	c.disconnectMu.Lock()
	callbacks := make([]func(error), len(c.onDisconnect))
	copy(callbacks, c.onDisconnect)
	c.disconnectMu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}
}

func (c *WebSocketChannel) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
