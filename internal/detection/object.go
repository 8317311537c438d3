// Package detection defines the per-frame detector output consumed by the
// tracking loop, together with the area/filter gate and named-point lookup
// the loop queries about it.
package detection

import "math"

// Point is a normalized screen coordinate in [0,1]².
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is a normalized screen rectangle anchored at its top-left corner.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Contains reports whether p lies inside b, edges included.
func (b Box) Contains(p Point) bool {
	return b.X <= p.X && p.X <= b.X+b.W && b.Y <= p.Y && p.Y <= b.Y+b.H
}

// Grow widens the box by margin on every side.
func (b Box) Grow(margin float64) Box {
	return Box{X: b.X - margin, Y: b.Y - margin, W: b.W + 2*margin, H: b.H + 2*margin}
}

// Shift translates the box by (dx, dy).
func (b Box) Shift(dx, dy float64) Box {
	return Box{X: b.X + dx, Y: b.Y + dy, W: b.W, H: b.H}
}

// IsZero reports whether the box is unset.
func (b Box) IsZero() bool {
	return b == Box{}
}

// Keypoint is one pose landmark with its confidence.
type Keypoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Point drops the score.
func (k Keypoint) Point() Point {
	return Point{X: k.X, Y: k.Y}
}

// Object is one detection in a frame. Center is nil when the detector could
// not place the object; such entries are skipped by matching and filtering.
type Object struct {
	Score     float64    `json:"score"`
	Class     string     `json:"class"`
	Box       Box        `json:"box"`
	Center    *Point     `json:"center,omitempty"`
	Keypoints []Keypoint `json:"keypoints,omitempty"`

	identity    int
	hasIdentity bool
}

// Identity returns the tracking id attached to the object, if any.
func (o Object) Identity() (int, bool) {
	return o.identity, o.hasIdentity
}

// SetIdentity attaches (or overwrites) the tracking id.
func (o *Object) SetIdentity(id int) {
	o.identity = id
	o.hasIdentity = true
}

// HasCenter reports whether the object can take part in matching.
func (o Object) HasCenter() bool {
	return o.Center != nil
}
