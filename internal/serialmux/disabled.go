package serialmux

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/servo-cam/server/internal/httputil"
	"github.com/servo-cam/server/internal/timeutil"
)

// DisabledSerialMux runs the tracker without a controller attached. Commands
// are counted and dropped so serial-status still shows what would have been
// sent. Nothing is ever read back; subscribers only see their channel close.
type DisabledSerialMux struct {
	clock timeutil.Clock

	mu      sync.Mutex
	subs    map[string]chan string
	closed  bool
	dropped int
	last    string
	lastAt  time.Time
}

// NewDisabledSerialMux returns a mux that drops every command. A nil clock
// uses the wall clock.
func NewDisabledSerialMux(clock timeutil.Clock) *DisabledSerialMux {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DisabledSerialMux{clock: clock, subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

// Send records command as dropped.
func (d *DisabledSerialMux) Send(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped++
	d.last = strings.TrimRight(command, "\r\n")
	d.lastAt = d.clock.Now()
	return nil
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Probe has no controller to ask, so it only waits for ctx.
func (d *DisabledSerialMux) Probe(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
	return nil
}

func (d *DisabledSerialMux) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Format:      "disabled",
		Dropped:     d.dropped,
		LastCommand: d.last,
		LastSentAt:  d.lastAt,
		Subscribers: len(d.subs),
	}
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("serial-status", "servo controller link (disabled)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, d.Stats())
	})
}
