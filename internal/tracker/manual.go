package tracker

import "strings"

// Control is a manual control input.
type Control int

const (
	ControlLeft Control = iota
	ControlRight
	ControlUp
	ControlDown
	ControlCenter
	ControlSpeedUp
	ControlSpeedDown

	numControls
)

var controlNames = [numControls]string{"LEFT", "RIGHT", "UP", "DOWN", "CENTER", "SPEED_UP", "SPEED_DOWN"}

func (c Control) String() string {
	if c < 0 || c >= numControls {
		return "UNKNOWN"
	}
	return controlNames[c]
}

// ParseControl maps a control name to a Control.
func ParseControl(s string) (Control, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for c, name := range controlNames {
		if name == s {
			return Control(c), true
		}
	}
	return 0, false
}

const (
	DefaultManualSpeed = 10
	minManualSpeed     = 1
	maxManualSpeed     = 99
)

// Manual holds the manual controls currently pressed. Every held control is
// applied once per tick.
type Manual struct {
	speed int
	held  [numControls]bool
}

// NewManual returns a Manual at speed, clamped to [1,99].
func NewManual(speed int) *Manual {
	return &Manual{speed: clampSpeed(speed)}
}

func (m *Manual) Speed() int { return m.speed }

// Press holds c until Release.
func (m *Manual) Press(c Control) {
	if c >= 0 && c < numControls {
		m.held[c] = true
	}
}

// Release lets go of c.
func (m *Manual) Release(c Control) {
	if c >= 0 && c < numControls {
		m.held[c] = false
	}
}

// ReleaseAll lets go of every control.
func (m *Manual) ReleaseAll() {
	m.held = [numControls]bool{}
}

// Held reports whether c is pressed.
func (m *Manual) Held(c Control) bool {
	return c >= 0 && c < numControls && m.held[c]
}

// step returns the delta change for this tick and whether CENTER is held.
func (m *Manual) step() (dx, dy float64, center bool) {
	unit := float64(m.speed) / 1000
	for c, on := range m.held {
		if !on {
			continue
		}
		switch Control(c) {
		case ControlLeft:
			dx += unit
		case ControlRight:
			dx -= unit
		case ControlUp:
			dy += unit
		case ControlDown:
			dy -= unit
		case ControlCenter:
			center = true
		case ControlSpeedUp:
			m.speed = clampSpeed(m.speed + 1)
		case ControlSpeedDown:
			m.speed = clampSpeed(m.speed - 1)
		}
	}
	return dx, dy, center
}

func clampSpeed(v int) int {
	switch {
	case v < minManualSpeed:
		return minManualSpeed
	case v > maxManualSpeed:
		return maxManualSpeed
	default:
		return v
	}
}
