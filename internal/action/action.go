// Package action runs the auxiliary outputs (relays, triggers) carried in
// the last six fields of every servo command, both on demand and
// automatically once a target has been held long enough.
package action

import (
	"strings"

	"github.com/servo-cam/server/internal/monitoring"
)

// Name identifies one auxiliary output.
type Name int

const (
	A1 Name = iota
	A2
	A3
	B4
	B5
	B6

	numNames
)

// Names lists the outputs in command order.
var Names = [numNames]Name{A1, A2, A3, B4, B5, B6}

func (n Name) String() string {
	switch n {
	case A1:
		return "A1"
	case A2:
		return "A2"
	case A3:
		return "A3"
	case B4:
		return "B4"
	case B5:
		return "B5"
	case B6:
		return "B6"
	default:
		return "?"
	}
}

// ParseName maps "A1".."B6" to a Name.
func ParseName(s string) (Name, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, n := range Names {
		if n.String() == s {
			return n, true
		}
	}
	return 0, false
}

func (n Name) valid() bool { return n >= 0 && n < numNames }

// Mode selects how the automatic action behaves once started.
type Mode int

const (
	// ModeSingle fires once.
	ModeSingle Mode = iota
	// ModeSeries fires again every Length ticks while active.
	ModeSeries
	// ModeContinuous holds the output for Length ticks.
	ModeContinuous
	// ModeToggle holds the output until stopped.
	ModeToggle
)

func (m Mode) String() string {
	switch m {
	case ModeSeries:
		return "SERIES"
	case ModeContinuous:
		return "CONTINUOUS"
	case ModeToggle:
		return "TOGGLE"
	default:
		return "SINGLE"
	}
}

// ParseMode maps a mode name to a Mode. Unknown names are ModeSingle.
func ParseMode(s string) Mode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SERIES":
		return ModeSeries
	case "CONTINUOUS":
		return ModeContinuous
	case "TOGGLE":
		return ModeToggle
	default:
		return ModeSingle
	}
}

// Flags is one bit per output.
type Flags [numNames]bool

// Params configure the automatic action.
type Params struct {
	Name Name
	Mode Mode
	// Switch is how many ticks pass before moving on to the next target in
	// multi-target mode. Zero disables switching.
	Switch int
	// Length is the action duration in ticks.
	Length int
}

// DefaultParams returns the stock automatic action.
func DefaultParams() Params {
	return Params{Name: A1, Mode: ModeSingle, Switch: 20, Length: 10}
}

// Auto is the automatic action state machine together with the manual
// toggles it shares the outputs with.
type Auto struct {
	params Params

	enabled    bool
	active     bool
	singleShot bool
	stopped    bool
	showing    bool

	counter       int
	targetCounter int

	toggled Flags
	fired   Flags
}

// NewAuto returns a disabled automatic action.
func NewAuto(p Params) *Auto {
	return &Auto{params: p}
}

func (a *Auto) Params() Params { return a.params }

// SetParams replaces the configuration. A running action is stopped first.
func (a *Auto) SetParams(p Params) {
	if a.active {
		a.Stop()
	}
	a.params = p
}

func (a *Auto) Enabled() bool { return a.enabled }
func (a *Auto) Active() bool  { return a.active }

// Showing reports whether the action indicator is lit.
func (a *Auto) Showing() bool { return a.showing }

// Counter is the ticks elapsed in the current action cycle.
func (a *Auto) Counter() int { return a.counter }

// Enable permits dwell-triggered starts.
func (a *Auto) Enable() {
	a.enabled = true
	monitoring.Logf("[action] auto action enabled (%s %s)", a.params.Mode, a.params.Name)
}

// Disable forbids dwell-triggered starts. A running action keeps running
// until stopped.
func (a *Auto) Disable() {
	a.enabled = false
	a.singleShot = false
	monitoring.Logf("[action] auto action disabled")
}

// Begin holds an output on.
func (a *Auto) Begin(n Name) {
	if n.valid() {
		a.toggled[n] = true
	}
}

// End releases a held output.
func (a *Auto) End(n Name) {
	if n.valid() {
		a.toggled[n] = false
	}
}

// Toggle flips a held output.
func (a *Auto) Toggle(n Name) {
	if n.valid() {
		a.toggled[n] = !a.toggled[n]
	}
}

// Toggled reports whether n is held on.
func (a *Auto) Toggled(n Name) bool {
	return n.valid() && a.toggled[n]
}

// Single fires n once in the next command.
func (a *Auto) Single(n Name) {
	if n.valid() {
		a.fired[n] = true
	}
}

// Flags returns the outputs to put in the next command: held outputs plus
// any pending single fire.
func (a *Auto) Flags() Flags {
	var f Flags
	for _, n := range Names {
		f[n] = a.toggled[n] || a.fired[n]
	}
	return f
}

// TakeFired returns and clears the pending single fires.
func (a *Auto) TakeFired() Flags {
	f := a.fired
	a.fired = Flags{}
	return f
}

// Start begins the automatic action according to its mode.
func (a *Auto) Start() {
	a.active = true
	a.stopped = false
	switch a.params.Mode {
	case ModeSingle, ModeSeries:
		a.fire()
		a.counter = a.params.Length - 1
	case ModeContinuous, ModeToggle:
		a.Begin(a.params.Name)
		a.counter = 0
	}
	a.targetCounter = 0
	a.showing = true
	monitoring.Logf("[action] %s %s started", a.params.Mode, a.params.Name)
}

// Stop ends the automatic action and releases every held output.
func (a *Auto) Stop() {
	if a.params.Mode == ModeContinuous || a.params.Mode == ModeToggle {
		a.End(a.params.Name)
	}
	a.active = false
	a.stopped = false
	a.counter = 0
	a.showing = false
	a.Clear()
}

// Clear drops held outputs and counters.
func (a *Auto) Clear() {
	a.targetCounter = 0
	a.singleShot = false
	a.toggled = Flags{}
}

// Reset stops and clears everything.
func (a *Auto) Reset() {
	a.Stop()
	a.fired = Flags{}
}

func (a *Auto) fire() {
	a.singleShot = true
	a.Single(a.params.Name)
}

// Update advances a running action by one tick. It reports whether the
// selection should move to the next target; single marks single-target mode,
// where switching never happens.
func (a *Auto) Update(single bool) (nextTarget bool) {
	if a.counter > a.params.Length {
		switch a.params.Mode {
		case ModeSingle:
			a.counter = 0
			a.stopped = true
			a.singleShot = false
			a.showing = false
		case ModeContinuous:
			a.counter = 0
			a.End(a.params.Name)
			a.stopped = true
			a.showing = false
			nextTarget = true
		case ModeSeries:
			a.fire()
			a.counter = 0
		}
		if a.params.Mode != ModeToggle {
			return nextTarget
		}
	}

	a.targetCounter++
	if !single && a.params.Switch > 0 && a.targetCounter >= a.params.Switch {
		a.targetCounter = 0
		nextTarget = true
	}
	if !a.stopped {
		a.counter++
		a.showing = true
	}
	return nextTarget
}
