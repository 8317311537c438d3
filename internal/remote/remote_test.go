package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/timeutil"
)

// controller is a websocket peer that acknowledges every command.
type controller struct {
	mu        sync.Mutex
	received  []string
	conns     int
	dropFirst bool
}

func (c *controller) connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns
}

func (c *controller) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

func (c *controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	c.mu.Lock()
	c.conns++
	drop := c.dropFirst && c.conns == 1
	c.mu.Unlock()
	if drop {
		return
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.received = append(c.received, string(msg))
		c.mu.Unlock()
		reply := `{"k":"status","v":"ack ` + string(msg) + `"}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := New("http://example.com/servo", nil)
	assert.ErrorContains(t, err, "scheme")
	_, err = New("ws://[::1", nil)
	assert.Error(t, err)
	c, err := New("ws://127.0.0.1:1/servo", nil)
	require.NoError(t, err)
	assert.False(t, c.Connected())
}

func TestClient_SendBeforeConnect(t *testing.T) {
	t.Parallel()

	c, err := New("ws://127.0.0.1:1/servo", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send("90,90,0,0,0,0,0,0,0"), ErrNotConnected)
	assert.Equal(t, 1, c.Dropped())
	assert.ErrorIs(t, c.Listen(context.Background()), ErrNotConnected)
	assert.NoError(t, c.Close())
}

func TestClient_SendAndStatus(t *testing.T) {
	t.Parallel()

	peer := &controller{}
	srv := httptest.NewServer(peer)
	defer srv.Close()

	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	c, err := New(wsURL(srv), clock)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	listened := make(chan error, 1)
	go func() { listened <- c.Listen(ctx) }()

	require.NoError(t, c.Send("95,88,1,0,0,0,0,0,0"))
	require.Eventually(t, func() bool {
		s, _ := c.Status()
		return s == "ack 95,88,1,0,0,0,0,0,0"
	}, 2*time.Second, 5*time.Millisecond)
	_, at := c.Status()
	assert.Equal(t, clock.Now(), at)
	assert.Equal(t, []string{"95,88,1,0,0,0,0,0,0"}, peer.commands())

	cancel()
	select {
	case err := <-listened:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not stop")
	}
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.Send("0"), ErrNotConnected)
}

func TestClient_RunReconnects(t *testing.T) {
	t.Parallel()

	peer := &controller{dropFirst: true}
	srv := httptest.NewServer(peer)
	defer srv.Close()

	c, err := New(wsURL(srv), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return c.Send("90,90,0,0,0,0,0,0,0") == nil && len(peer.commands()) > 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, peer.connections())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ready", parseStatus([]byte(`{"k":"status","v":"ready"}`)))
	assert.Equal(t, "42", parseStatus([]byte(`{"v":42}`)))
	assert.Equal(t, "plain", parseStatus([]byte("plain")))
	assert.Equal(t, `{"k":"x"}`, parseStatus([]byte(`{"k":"x"}`)))
}
