package servo

import "math"

// Source distinguishes a live camera from pre-recorded footage, which has
// no physical field of view to map.
type Source int

const (
	SourceCamera Source = iota
	SourceVideo
)

// Delta is the accumulated pan/tilt offset in normalized screen units.
// Positive X pans left, positive Y tilts up.
type Delta struct {
	X float64
	Y float64
}

// Angles is an absolute servo position in degrees.
type Angles struct {
	X int
	Y int
}

// Neutral is the reset position.
var Neutral = Angles{X: 90, Y: 90}

// Geometry binds Limits to the optics mode. The zero value maps nothing and
// uses the full [-0.5,0.5] delta range.
type Geometry struct {
	Limits   Limits
	Source   Source
	MapFOV   bool
	UseLimit bool
}

// NewGeometry returns a geometry for a live camera without FOV mapping.
func NewGeometry(l Limits) *Geometry {
	return &Geometry{Limits: l}
}

func (g *Geometry) unmapped() bool {
	return g.Source == SourceVideo || !g.MapFOV
}

// limitScale returns the per-axis maximum angle used for range math. Hardware
// limits apply when configured or when real is requested.
func (g *Geometry) limitScale(real bool) (float64, float64) {
	if g.UseLimit || real {
		return float64(g.Limits.X.LimitMax), float64(g.Limits.Y.LimitMax)
	}
	return float64(g.Limits.X.Max), float64(g.Limits.Y.Max)
}

// MinCoords is the lowest reachable normalized screen coordinate.
func (g *Geometry) MinCoords(real bool) Delta {
	if g.unmapped() {
		return Delta{}
	}
	sx, sy := g.limitScale(real)
	return Delta{
		X: 0 - (sx/g.Limits.X.FOV-1)/2,
		Y: 0 - (sy/g.Limits.Y.FOV-1)/2,
	}
}

// MaxCoords is the highest reachable normalized screen coordinate.
func (g *Geometry) MaxCoords(real bool) Delta {
	if g.unmapped() {
		return Delta{X: 1, Y: 1}
	}
	sx, sy := g.limitScale(real)
	return Delta{
		X: 1 + (sx/g.Limits.X.FOV-1)/2,
		Y: 1 + (sy/g.Limits.Y.FOV-1)/2,
	}
}

// MinDelta is the lowest allowed pan/tilt delta.
func (g *Geometry) MinDelta(real bool) Delta {
	if g.unmapped() {
		return Delta{X: -0.5, Y: -0.5}
	}
	sx, sy := g.limitScale(real)
	return Delta{
		X: (-sx / g.Limits.X.FOV) / 2,
		Y: (-sy / g.Limits.Y.FOV) / 2,
	}
}

// MaxDelta is the highest allowed pan/tilt delta.
func (g *Geometry) MaxDelta(real bool) Delta {
	if g.unmapped() {
		return Delta{X: 0.5, Y: 0.5}
	}
	if g.UseLimit || real {
		x, y := g.Limits.X, g.Limits.Y
		return Delta{
			X: float64(x.LimitMax)/x.FOV/2 - float64(x.LimitMin)/x.FOV,
			Y: float64(y.LimitMax)/y.FOV/2 - float64(y.LimitMin)/y.FOV,
		}
	}
	return Delta{
		X: float64(g.Limits.X.Max) / g.Limits.X.FOV / 2,
		Y: float64(g.Limits.Y.Max) / g.Limits.Y.FOV / 2,
	}
}

// ClampDelta bounds d to [MinDelta, MaxDelta].
func (g *Geometry) ClampDelta(d Delta, real bool) Delta {
	lo, hi := g.MinDelta(real), g.MaxDelta(real)
	return Delta{X: clamp(d.X, lo.X, hi.X), Y: clamp(d.Y, lo.Y, hi.Y)}
}

// ClampCoords bounds a screen point to [MinCoords, MaxCoords].
func (g *Geometry) ClampCoords(x, y float64, real bool) (float64, float64) {
	lo, hi := g.MinCoords(real), g.MaxCoords(real)
	return clamp(x, lo.X, hi.X), clamp(y, lo.Y, hi.Y)
}

// DeltaOffset converts a delta into signed degrees away from centre.
func (g *Geometry) DeltaOffset(d Delta, real bool) Angles {
	if g.unmapped() {
		sx, sy := g.limitScale(real)
		return Angles{X: round(d.X * sx), Y: round(d.Y * sy)}
	}
	return Angles{
		X: round(d.X * g.Limits.X.FOV * g.Limits.X.Multiplier),
		Y: round(d.Y * g.Limits.Y.FOV * g.Limits.Y.Multiplier),
	}
}

// PointToAngle converts an absolute screen point into signed degrees away
// from centre. The Y axis is inverted.
func (g *Geometry) PointToAngle(x, y float64, real bool) Angles {
	if g.unmapped() {
		sx, sy := g.limitScale(real)
		return Angles{X: round((0.5 - x) * sx), Y: -round((0.5 - y) * sy)}
	}
	return Angles{
		X: round((0.5 - x) * g.Limits.X.FOV * g.Limits.X.Multiplier),
		Y: -round((0.5 - y) * g.Limits.Y.FOV * g.Limits.Y.Multiplier),
	}
}

// DeltaToAngle converts a delta into an absolute servo position, clamped to
// the mechanical range and then to the configured hardware limits.
func (g *Geometry) DeltaToAngle(d Delta) Angles {
	off := g.DeltaOffset(d, false)
	return Angles{
		X: g.Limits.X.absolute(off.X),
		Y: g.Limits.Y.absolute(off.Y),
	}
}

func (a Axis) absolute(offset int) int {
	v := int(float64(offset) + float64(a.Max)/2)
	v = clampInt(v, a.Min, a.Max)
	return clampInt(v, a.LimitMin, a.LimitMax)
}

func round(v float64) int {
	return int(math.RoundToEven(v))
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

func clampInt(v, lo, hi int) int {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
