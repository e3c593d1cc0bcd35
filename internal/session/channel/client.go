package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"service-hub/internal/domain/user"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"

	"github.com/gorilla/websocket"
)

const (
	authReplyTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 90 * time.Second
)

// Handler processes one named event. Handlers run on the read loop, one at a
// time, so per-session work stays serialized; they must be idempotent
// because the channel delivers at-least-once.
type Handler func(ctx context.Context, data json.RawMessage)

var (
	ErrNotConnected = errors.New("channel: not connected")
	ErrAuthRejected = errors.New("channel: authentication rejected")
)

// Client is the persistent event channel for one session, identified by
// (actor id, actor role). It reconnects with exponential backoff and
// re-subscribes implicitly (subscriptions are a property of the identity,
// not of the socket). Ordering is not guaranteed across reconnects; the
// session's store handles duplicates and reordering.
type Client struct {
	url     string
	actorID string
	role    user.Role
	token   string
	log     *logger.Logger
	logCtx  context.Context

	mu   sync.RWMutex
	conn *websocket.Conn

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	onConnected func() // invoked after every (re)connect, for snapshot re-fetch

	backoffMin time.Duration
	backoffMax time.Duration

	closed    chan struct{}
	closeOnce sync.Once
	reconnect chan struct{}
}

// Options configures the channel client.
type Options struct {
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	OnConnected func()
}

// New constructs a channel client. url is the full WS endpoint for this
// actor (e.g. ws://hub/ws/worker/{id}); token is the signed bearer token
// sent in the first frame.
func New(log *logger.Logger, url, actorID string, role user.Role, token string, opts Options) *Client {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = 30 * time.Second
	}
	return &Client{
		url:         url,
		actorID:     actorID,
		role:        role,
		token:       token,
		log:         log,
		handlers:    make(map[string]Handler),
		onConnected: opts.OnConnected,
		backoffMin:  opts.BackoffMin,
		backoffMax:  opts.BackoffMax,
		closed:      make(chan struct{}),
		reconnect:   make(chan struct{}, 1),
	}
}

// Handle registers the handler for a named event. Register everything
// before Connect; unknown events are logged and dropped.
func (c *Client) Handle(event string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = h
}

// Connect dials the hub, authenticates, and starts the background read and
// reconnect loops. The initial dial is a single attempt; later failures are
// retried by the watcher.
func (c *Client) Connect(ctx context.Context) error {
	c.logCtx = context.WithoutCancel(ctx)

	if err := c.connectOnce(); err != nil {
		return err
	}
	go c.watch()
	return nil
}

// Publish sends one named event to the hub. Fire-and-forget telemetry: a
// send on a broken socket returns an error and the caller moves on.
func (c *Client) Publish(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: marshal %s: %w", event, err)
	}
	frame, err := json.Marshal(contracts.WSEnvelope{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("channel: marshal envelope: %w", err)
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Close tears the channel down for good. Safe to call multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// --- internals ---

// connectOnce dials, runs the first-frame auth handshake, installs the
// connection, and starts a read loop bound to it.
func (c *Client) connectOnce() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("channel: dial %s: %w", c.url, err)
	}

	// first frame: {"type":"auth","token":"Bearer <jwt>"}
	authMsg := map[string]string{"type": "auth", "token": "Bearer " + c.token}
	authFrame, _ := json.Marshal(authMsg)
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, authFrame); err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: send auth: %w", err)
	}

	// the hub answers auth_success or auth_error before anything else
	_ = conn.SetReadDeadline(time.Now().Add(authReplyTimeout))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: read auth reply: %w", err)
	}
	var ack struct {
		Type    string `json:"type"`
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(reply, &ack); err != nil || ack.Type != "auth_success" || !ack.Success {
		_ = conn.Close()
		if ack.Error != "" {
			return fmt.Errorf("%w: %s", ErrAuthRejected, ack.Error)
		}
		return ErrAuthRejected
	}

	// keep the read deadline fed by server pings
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	// replace any previous socket
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.log.Info(c.logCtx, "channel_connected", "Event channel connected",
		map[string]any{"actor_id": c.actorID, "role": c.role.String()})

	if c.onConnected != nil {
		c.onConnected()
	}
	return nil
}

// readLoop dispatches inbound frames until the socket dies, then signals the
// watcher unless the client was closed on purpose.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			c.log.Error(c.logCtx, "channel_read_failed", "Event channel read failed; will reconnect", err,
				map[string]any{"actor_id": c.actorID})
			select {
			case c.reconnect <- struct{}{}:
			default:
			}
			return
		}

		c.dispatch(payload)
	}
}

// dispatch parses the envelope and runs the registered handler. Malformed
// frames and unknown event types are dropped with a log line; a bad payload
// never takes down the read loop.
func (c *Client) dispatch(payload []byte) {
	var env contracts.WSEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.Error(c.logCtx, "channel_frame_malformed", "Dropped malformed channel frame", err,
			map[string]any{"size": len(payload)})
		return
	}

	c.handlersMu.RLock()
	h, ok := c.handlers[env.Type]
	c.handlersMu.RUnlock()
	if !ok {
		c.log.Debug(c.logCtx, "channel_event_unhandled", "No handler for channel event",
			map[string]any{"event": env.Type})
		return
	}

	h(c.logCtx, env.Data)
}

// watch reconnects with exponential backoff whenever the read loop reports a
// dead socket.
func (c *Client) watch() {
	backoff := c.backoffMin
	for {
		select {
		case <-c.closed:
			return
		case <-c.reconnect:
			for {
				select {
				case <-c.closed:
					return
				default:
				}

				err := c.connectOnce()
				if err == nil {
					backoff = c.backoffMin
					c.log.Info(c.logCtx, "channel_reconnected", "Event channel reconnected",
						map[string]any{"actor_id": c.actorID})
					break
				}

				c.log.Error(c.logCtx, "channel_reconnect_failed", "Failed to reconnect event channel", err,
					map[string]any{"actor_id": c.actorID, "backoff": backoff.String()})

				select {
				case <-c.closed:
					return
				case <-time.After(backoff):
				}
				if backoff < c.backoffMax {
					backoff *= 2
					if backoff > c.backoffMax {
						backoff = c.backoffMax
					}
				}
			}
		}
	}
}
