// Package servo converts normalized pan/tilt offsets into servo angles and
// owns the delta and coordinate ranges every other component clamps to.
package servo

import "fmt"

// Axis holds the angle limits of one servo.
type Axis struct {
	Start      int     `json:"start"`
	Min        int     `json:"min"`
	Max        int     `json:"max"`
	LimitMin   int     `json:"limit_min"`
	LimitMax   int     `json:"limit_max"`
	Step       int     `json:"step"`
	Multiplier float64 `json:"multiplier"`
	// FOV is the camera field of view along this axis in degrees.
	FOV float64 `json:"fov"`
}

// Limits is the immutable per-session servo configuration.
type Limits struct {
	X Axis `json:"x"`
	Y Axis `json:"y"`
}

// DefaultLimits mirrors a stock 180° hobby servo pair behind a 100°x68° lens.
func DefaultLimits() Limits {
	return Limits{
		X: Axis{Start: 90, Min: 0, Max: 180, LimitMin: 0, LimitMax: 180, Step: 2, Multiplier: 1, FOV: 100},
		Y: Axis{Start: 90, Min: 0, Max: 180, LimitMin: 0, LimitMax: 180, Step: 2, Multiplier: 1, FOV: 68},
	}
}

// Validate checks that the ranges are ordered and the FOV is usable.
func (l Limits) Validate() error {
	for name, a := range map[string]Axis{"x": l.X, "y": l.Y} {
		if a.Min > a.Max {
			return fmt.Errorf("axis %s: min %d > max %d", name, a.Min, a.Max)
		}
		if a.LimitMin > a.LimitMax {
			return fmt.Errorf("axis %s: limit_min %d > limit_max %d", name, a.LimitMin, a.LimitMax)
		}
		if a.Step < 0 {
			return fmt.Errorf("axis %s: step must be >= 0, got %d", name, a.Step)
		}
		if a.FOV <= 0 {
			return fmt.Errorf("axis %s: fov must be positive, got %g", name, a.FOV)
		}
	}
	return nil
}

// Clamp bounds a to the mechanical range and then the hardware limits.
func (l Limits) Clamp(a Angles) Angles {
	return Angles{
		X: clampInt(clampInt(a.X, l.X.Min, l.X.Max), l.X.LimitMin, l.X.LimitMax),
		Y: clampInt(clampInt(a.Y, l.Y.Min, l.Y.Max), l.Y.LimitMin, l.Y.LimitMax),
	}
}

// StartAngles is the configured power-on position.
func (l Limits) StartAngles() Angles {
	return Angles{X: l.X.Start, Y: l.Y.Start}
}
