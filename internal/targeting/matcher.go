// Package targeting implements target selection and the per-tick aiming
// algorithm: candidate matching, the tiered finder, lock/dwell/lost state
// and the smoothing loop that turns an aim point into a pan/tilt delta.
package targeting

import (
	"gonum.org/v1/gonum/floats"

	"github.com/servo-cam/server/internal/detection"
)

// None marks an unset index or identity.
const None = -1

// Query describes what Matcher.Exactly looks for. Index and Identity are
// ignored when set to None.
type Query struct {
	Bounding    detection.Box
	Index       int
	Identity    int
	CheckBounds bool
}

// Matcher finds the detection that best corresponds to a remembered target.
// Only detections with a centre that pass the TARGET gate are candidates.
type Matcher struct {
	Gate detection.Gate
}

func (m Matcher) candidate(obj *detection.Object) bool {
	return obj.HasCenter() && m.Gate.Allowed(obj, detection.PurposeTarget)
}

// Exactly returns the first candidate that satisfies every constraint in q
// and is not shadowed by an earlier candidate at the same position.
func (m Matcher) Exactly(objs []detection.Object, q Query) (int, bool) {
	for n := range objs {
		obj := &objs[n]
		if !m.candidate(obj) {
			continue
		}
		if q.Index != None && n != q.Index {
			continue
		}
		if q.Identity != None {
			if id, ok := obj.Identity(); !ok || id != q.Identity {
				continue
			}
		}
		if q.CheckBounds && !q.Bounding.Contains(*obj.Center) {
			continue
		}
		if m.isClosest(objs, n) {
			return n, true
		}
	}
	return None, false
}

// Closest returns the candidate whose centre is nearest to center. With an
// identity set, only detections carrying that identity compete. Ties go to
// the lower index.
func (m Matcher) Closest(objs []detection.Object, center detection.Point, identity int) (int, bool) {
	return m.closest(objs, center, func(obj *detection.Object) bool {
		if identity == None {
			return true
		}
		id, ok := obj.Identity()
		return !ok || id == identity
	})
}

// ClosestInside is Closest over every identity, restricted to candidates
// whose centre lies inside bounding.
func (m Matcher) ClosestInside(objs []detection.Object, center detection.Point, bounding detection.Box) (int, bool) {
	return m.closest(objs, center, func(obj *detection.Object) bool {
		return bounding.Contains(*obj.Center)
	})
}

func (m Matcher) closest(objs []detection.Object, center detection.Point, keep func(*detection.Object) bool) (int, bool) {
	var idx []int
	var dist []float64
	for n := range objs {
		obj := &objs[n]
		if !m.candidate(obj) || !keep(obj) {
			continue
		}
		idx = append(idx, n)
		dist = append(dist, center.Distance(*obj.Center))
	}
	if len(idx) == 0 {
		return None, false
	}
	return idx[floats.MinIdx(dist)], true
}

// isClosest reports whether n wins the nearest-centre ranking around its own
// centre, which fails only when an earlier candidate sits on the same spot.
func (m Matcher) isClosest(objs []detection.Object, n int) bool {
	best, ok := m.Closest(objs, *objs[n].Center, None)
	return ok && best == n
}
