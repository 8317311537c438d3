// Package serialmux drives the servo controller over a serial line. Commands
// from the tracker are framed and written to the port while lines coming
// back from the controller fan out to any number of subscribers.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/servo-cam/server/internal/httputil"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// SerialMux owns one controller port.
type SerialMux[T SerialPorter] struct {
	port   T
	format Format
	clock  timeutil.Clock

	subscribers  map[string]chan string
	subscriberMu sync.Mutex

	commandMu sync.Mutex
	last      string
	lastAt    time.Time
	sent      int
	failed    int

	closing   bool
	closingMu sync.Mutex
}

// SerialMuxInterface is satisfied by both the real and the disabled mux.
type SerialMuxInterface interface {
	// Subscribe returns a channel receiving every line read from the port.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// Send frames and writes one command. It satisfies command.Sender.
	Send(string) error
	// Monitor reads controller lines until ctx is done or the port closes.
	Monitor(context.Context) error
	// Probe sends StatusCommand every interval until ctx is done.
	Probe(context.Context, time.Duration) error
	Close() error
	// AttachAdminRoutes serves /debug/serial-* on mux.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux wraps port. A nil clock uses the wall clock.
func NewSerialMux[T SerialPorter](port T, format Format, clock timeutil.Clock) *SerialMux[T] {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SerialMux[T]{
		port:        port,
		format:      format,
		clock:       clock,
		subscribers: make(map[string]chan string),
	}
}

// subscriberBuffer lines are queued per subscriber before lines are dropped.
const subscriberBuffer = 16

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Send writes command using the configured framing.
func (s *SerialMux[T]) Send(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	now := s.clock.Now()
	frame := Frame(s.format, command, now)
	n, err := s.port.Write(frame)
	if err == nil && n != len(frame) {
		err = ErrWriteFailed
	}
	if err != nil {
		s.failed++
		return err
	}
	s.sent++
	s.last = strings.TrimRight(command, "\r\n")
	s.lastAt = now
	return nil
}

// Probe asks the controller for its status on every tick of the clock.
func (s *SerialMux[T]) Probe(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := s.Send(StatusCommand); err != nil {
				monitoring.Logf("[serial] status probe failed: %v", err)
			}
		}
	}
}

// Monitor forwards controller lines to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks on the port; the outer loop stays free to see ctx.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			if s.isClosing() {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if !s.isClosing() {
						return err
					}
				default:
				}
				return nil
			}
			if s.isClosing() {
				return nil
			}
			s.broadcast(line)
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// slow subscriber, drop the line
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

// Stats is a snapshot of the command side of the mux.
type Stats struct {
	Format      string    `json:"format"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Dropped     int       `json:"dropped,omitempty"`
	LastCommand string    `json:"last_command"`
	LastSentAt  time.Time `json:"last_sent_at"`
	Subscribers int       `json:"subscribers"`
}

func (s *SerialMux[T]) Stats() Stats {
	s.commandMu.Lock()
	st := Stats{
		Format:      s.format.String(),
		Sent:        s.sent,
		Failed:      s.failed,
		LastCommand: s.last,
		LastSentAt:  s.lastAt,
	}
	s.commandMu.Unlock()

	s.subscriberMu.Lock()
	st.Subscribers = len(s.subscribers)
	s.subscriberMu.Unlock()
	return st
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial-status", "servo controller link", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})

	debug.HandleSilentFunc("serial-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "Missing command")
			return
		}
		if err := s.Send(command); err != nil {
			httputil.InternalServerError(w, "Failed to write command")
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	debug.HandleSilentFunc("serial-tail", func(w http.ResponseWriter, r *http.Request) {
		serveTail(w, r, s)
	})
}

type subscriber interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
}

// serveTail streams controller lines as server-sent events.
func serveTail(w http.ResponseWriter, r *http.Request, sub subscriber) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, c := sub.Subscribe()
	defer sub.Unsubscribe(id)

	io.WriteString(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case line, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
