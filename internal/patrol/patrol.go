// Package patrol sweeps the camera left and right while there is nothing to
// follow.
package patrol

import (
	"time"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/servo"
	"github.com/servo-cam/server/internal/timeutil"
)

// Direction of the sweep. Right decreases the pan delta.
type Direction int

const (
	Right Direction = iota
	Left
)

func (d Direction) String() string {
	if d == Left {
		return "LEFT"
	}
	return "RIGHT"
}

// Params tune the sweep.
type Params struct {
	// Step is the pan delta advanced per tick.
	Step float64
	// Timeout is how long patrol waits after losing a target before it
	// resumes.
	Timeout time.Duration
}

// DefaultParams returns the stock sweep settings.
func DefaultParams() Params {
	return Params{Step: 0.02, Timeout: 500 * time.Millisecond}
}

// Aim is the part of the targeting loop the sweep drives.
type Aim interface {
	Delta() servo.Delta
	SetDelta(servo.Delta)
	AimPoint() (detection.Point, bool)
	SetAimPoint(detection.Point)
	// ClearHistory drops smoothing history; targetOnly limits it to the
	// aim point history.
	ClearHistory(targetOnly bool)
}

// AreaSource exposes the patrol area.
type AreaSource interface {
	Get(p detection.Purpose) detection.Area
}

var initial = detection.Point{X: 0.5, Y: 0.5}

// Sweep is the patrol state machine.
type Sweep struct {
	params Params
	geom   *servo.Geometry
	areas  AreaSource
	clock  timeutil.Clock

	direction Direction
	active    bool
	paused    bool

	resuming    bool
	resumeStart time.Time

	prevY    float64
	hasPrevY bool
}

// New creates an idle sweep. A nil clock uses the wall clock.
func New(p Params, geom *servo.Geometry, areas AreaSource, clock timeutil.Clock) *Sweep {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sweep{params: p, geom: geom, areas: areas, clock: clock}
}

func (s *Sweep) Direction() Direction { return s.direction }
func (s *Sweep) Active() bool         { return s.active }
func (s *Sweep) Paused() bool         { return s.paused }
func (s *Sweep) Resuming() bool       { return s.resuming }

// Reset returns the sweep to idle, keeping its parameters.
func (s *Sweep) Reset() {
	*s = Sweep{params: s.params, geom: s.geom, areas: s.areas, clock: s.clock}
}

// Handle runs one patrol tick. It returns true when a target was found and
// control goes back to the follower.
func (s *Sweep) Handle(hasTarget bool, aim Aim) (handBack bool) {
	s.resuming = false

	if hasTarget {
		s.paused = true
		s.active = false
		aim.ClearHistory(false)
		return true
	}
	s.paused = false
	s.active = true
	s.step(aim)
	return false
}

// Resume arms the resume timer if it is not already running.
func (s *Sweep) Resume() {
	if !s.resuming {
		s.resumeStart = s.clock.Now()
		s.resuming = true
	}
}

// Cancel disarms a pending resume; the sweep stays paused.
func (s *Sweep) Cancel() {
	if s.resuming {
		s.paused = true
		s.resuming = false
	}
}

// Check reports whether an armed resume timer has elapsed. On true the
// caller hands control to the sweep.
func (s *Sweep) Check() bool {
	if !s.resuming || s.clock.Since(s.resumeStart) < s.params.Timeout {
		return false
	}
	s.resuming = false
	monitoring.Logf("[patrol] resuming sweep %s", s.direction)
	return true
}

// Bounds returns the pan delta limits of the sweep: left is the largest
// delta, right the smallest. A frame-relative patrol area moves with the
// camera, so its edges are measured from the current pan delta dx.
func (s *Sweep) Bounds(dx float64) (left, right float64) {
	lo, hi := s.geom.MinDelta(true), s.geom.MaxDelta(true)
	left, right = hi.X, lo.X

	area := s.areas.Get(detection.PurposePatrol)
	if !area.Enabled {
		return left, right
	}
	left, right = 0.5-area.Box.X, 0.5-(area.Box.X+area.Box.W)
	if !area.World {
		left = left*2 - dx
		right = right*2 - dx
	}
	left = clamp(left, lo.X, hi.X)
	right = clamp(right, lo.X, hi.X)
	if right > left {
		left, right = right, left
	}
	return left, right
}

func (s *Sweep) step(aim Aim) {
	target, ok := aim.AimPoint()
	if !ok {
		target = initial
	}
	d := aim.Delta()

	area := s.areas.Get(detection.PurposePatrol)
	if area.Enabled {
		lo, hi := s.geom.MinCoords(true), s.geom.MaxCoords(true)
		mid := area.MiddleY()
		if mid > hi.Y || mid < lo.Y {
			mid = 0.5
		}
		target.Y = mid
		if !s.hasPrevY || s.prevY != mid {
			d.Y = 0.5 - mid
			if !area.World {
				d.Y += 0.001
			}
			s.prevY = mid
			s.hasPrevY = true
		}
	} else {
		target.Y = 0.5
	}

	left, right := s.Bounds(d.X)
	switch s.direction {
	case Right:
		if d.X >= right {
			target.X += s.params.Step
			d.X -= s.params.Step
		}
		if d.X <= right {
			aim.ClearHistory(true)
			d.X = right
			s.direction = Left
		}
	case Left:
		if d.X <= left {
			target.X -= s.params.Step
			d.X += s.params.Step
		}
		if d.X >= left {
			aim.ClearHistory(true)
			d.X = left
			s.direction = Right
		}
	}

	aim.SetAimPoint(target)
	aim.SetDelta(d)
}

func clamp(v, lo, hi float64) float64 {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
