// Package remote carries tracker commands to a networked servo controller
// over a websocket. Each command is one text message; the controller may
// answer with status messages which are kept for the debug endpoints.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
)

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("remote controller not connected")

const (
	handshakeTimeout = 2 * time.Second
	writeTimeout     = time.Second
	retryDelay       = 500 * time.Millisecond
)

// Client is a command.Sender backed by a websocket connection.
type Client struct {
	url   string
	clock timeutil.Clock

	mu       sync.Mutex
	conn     *websocket.Conn
	status   string
	statusAt time.Time
	dropped  int
}

// New validates wsURL. No connection is made until Connect or Run.
func New(wsURL string, clock timeutil.Clock) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", wsURL)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Client{url: u.String(), clock: clock}, nil
}

// Connect dials the controller, replacing any previous connection.
func (c *Client) Connect(ctx context.Context) error {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := d.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()
	monitoring.Logf("[remote] connected to %s", c.url)
	return nil
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one command. A failed write drops the connection so Run
// can redial.
func (c *Client) Send(command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.dropped++
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("write to %s: %w", c.url, err)
	}
	return nil
}

// Listen reads status replies until the connection fails or ctx is done.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c.setStatus(parseStatus(msg))
	}
}

// Run keeps a connection to the controller open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.Connect(ctx); err != nil {
			monitoring.Logf("[remote] %v; retrying", err)
		} else if err := c.Listen(ctx); err != nil && ctx.Err() == nil {
			monitoring.Logf("[remote] connection lost: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// parseStatus accepts {"v": ...} envelopes or plain text.
func parseStatus(msg []byte) string {
	var env struct {
		Value json.RawMessage `json:"v"`
	}
	if json.Unmarshal(msg, &env) == nil && len(env.Value) > 0 {
		var s string
		if json.Unmarshal(env.Value, &s) == nil {
			return s
		}
		return string(env.Value)
	}
	return string(msg)
}

func (c *Client) setStatus(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
	c.statusAt = c.clock.Now()
}

// Status returns the last status the controller reported and when.
func (c *Client) Status() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.statusAt
}

// Dropped counts commands refused while disconnected.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
