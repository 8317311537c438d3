// Package command serializes servo angles, detection count and action
// outputs into the ASCII command line understood by the mount firmware and
// hands it to the configured transports.
package command

import (
	"errors"
	"strconv"
	"strings"

	"github.com/servo-cam/server/internal/action"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/servo"
)

// ResetCommand recentres both axes and releases every output.
const ResetCommand = "90,90,0,0,0,0,0,0,0"

// Sender delivers one command line to a transport.
type Sender interface {
	Send(command string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(command string) error

func (f SenderFunc) Send(command string) error { return f(command) }

// Fanout delivers every command to all of its senders. A failing sender
// does not stop the others; their errors are joined.
type Fanout []Sender

func (f Fanout) Send(command string) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Send(command); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Format renders the command line.
func Format(a servo.Angles, count int, flags action.Flags) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(a.X))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(a.Y))
	b.WriteByte(',')
	b.WriteString(restOf(count, flags))
	return b.String()
}

func restOf(count int, flags action.Flags) string {
	parts := make([]string, 0, len(action.Names)+1)
	parts = append(parts, strconv.Itoa(count))
	for _, n := range action.Names {
		if flags[n] {
			parts = append(parts, "1")
		} else {
			parts = append(parts, "0")
		}
	}
	return strings.Join(parts, ",")
}

// Options configure a Builder.
type Options struct {
	// EnableX and EnableY select which axes follow the delta.
	EnableX bool
	EnableY bool
	// Disabled builds commands without handing them to the sender.
	Disabled bool
}

// Builder turns each tick's delta into at most one outbound command.
type Builder struct {
	geom   *servo.Geometry
	opts   Options
	sender Sender

	next     servo.Angles
	prev     servo.Angles
	prevRest string
	hasRest  bool
	current  string
}

// NewBuilder creates a Builder starting at the configured start angles.
func NewBuilder(geom *servo.Geometry, opts Options, sender Sender) *Builder {
	b := &Builder{geom: geom, opts: opts, sender: sender}
	b.init()
	return b
}

func (b *Builder) init() {
	start := b.geom.Limits.StartAngles()
	b.prev = start
	b.next = start
}

// Angles returns the last built position.
func (b *Builder) Angles() servo.Angles { return b.prev }

// Current returns the last command handed to the sender.
func (b *Builder) Current() string { return b.current }

// Update builds the command for this tick and sends it when something
// changed. It returns the command line and whether it was sent.
func (b *Builder) Update(d servo.Delta, count int, flags action.Flags) (string, bool) {
	a := b.geom.DeltaToAngle(d)
	if b.opts.EnableX {
		b.next.X = a.X
	}
	if b.opts.EnableY {
		b.next.Y = a.Y
	}
	b.next = b.geom.Limits.Clamp(b.next)

	moved := b.axisChanged(b.prev.X, b.next.X, b.geom.Limits.X.Step, b.opts.EnableX) ||
		b.axisChanged(b.prev.Y, b.next.Y, b.geom.Limits.Y.Step, b.opts.EnableY)
	b.prev = b.next

	rest := restOf(count, flags)
	if !moved && b.hasRest && rest == b.prevRest {
		return "", false
	}
	b.prevRest = rest
	b.hasRest = true

	cmd := Format(b.prev, count, flags)
	return cmd, b.Send(cmd)
}

func (b *Builder) axisChanged(prev, next, step int, enabled bool) bool {
	if !enabled || prev == next {
		return false
	}
	return step == 0 || next%step == 0
}

// Send hands cmd to the sender unless it equals the previous command. It
// reports whether cmd was new.
func (b *Builder) Send(cmd string) bool {
	if cmd == b.current {
		return false
	}
	b.current = cmd
	if b.opts.Disabled || b.sender == nil {
		return true
	}
	if err := b.sender.Send(cmd); err != nil {
		monitoring.Logf("[command] send %q: %v", cmd, err)
	}
	return true
}

// Reset returns to the start angles and forgets the last command. With send
// set the explicit reset command goes out.
func (b *Builder) Reset(send bool) {
	b.init()
	b.current = ""
	b.hasRest = false
	b.prevRest = ""
	if send {
		b.Send(ResetCommand)
	}
}
