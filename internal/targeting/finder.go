package targeting

import "github.com/servo-cam/server/internal/detection"

// MatchType records which finder tier produced the current target.
type MatchType int

const (
	MatchNone MatchType = iota
	// MatchIndexID: same index and identity as last tick.
	MatchIndexID
	// MatchBoundsID: same identity, centre inside the remembered box.
	MatchBoundsID
	// MatchCurrentID repeats MatchBoundsID. It is kept as a separate tier so
	// a dedicated nearest-bounds ranking can replace it without renumbering.
	// TODO: replace with a nearest-bounds ranking once the intended
	// behaviour is confirmed.
	MatchCurrentID
	// MatchClosestID: nearest centre carrying the remembered identity.
	MatchClosestID
	// MatchClosestSearch: nearest centre of any identity.
	MatchClosestSearch
)

func (t MatchType) String() string {
	switch t {
	case MatchIndexID:
		return "all_1"
	case MatchBoundsID:
		return "all_2"
	case MatchCurrentID:
		return "curr_id"
	case MatchClosestID:
		return "close_id"
	case MatchClosestSearch:
		return "close_search"
	default:
		return "none"
	}
}

// Finder runs the matcher tiers against the selection's memory.
type Finder struct {
	Matcher Matcher
	last    MatchType
}

// NewFinder returns a Finder over gate.
func NewFinder(gate detection.Gate) *Finder {
	return &Finder{Matcher: Matcher{Gate: gate}}
}

// LastMatch reports the tier that fired on the most recent Find.
func (f *Finder) LastMatch() MatchType { return f.last }

// Find locates the selection's target in objs. The unconstrained tier only
// runs while searching, while unlocked in multi-target mode, or when auto
// action is enabled; a locked single target otherwise prefers no match over
// jumping to another object. While a locked target is being searched for,
// that tier is confined to the grown lock box.
func (f *Finder) Find(objs []detection.Object, sel *Selection, actionEnabled bool) (int, bool) {
	f.last = MatchNone

	identity, bounding, center := sel.tmpIdentity, sel.boxCurrent, sel.centerCurrent
	if sel.locked {
		identity, bounding, center = sel.identity, sel.boxLock, sel.centerLast
	}

	if n, ok := f.Matcher.Exactly(objs, Query{Bounding: bounding, Index: sel.idx, Identity: identity}); ok {
		f.last = MatchIndexID
		return n, true
	}
	if n, ok := f.Matcher.Exactly(objs, Query{Bounding: bounding, Index: None, Identity: identity, CheckBounds: true}); ok {
		f.last = MatchBoundsID
		return n, true
	}
	if n, ok := f.Matcher.Exactly(objs, Query{Bounding: bounding, Index: None, Identity: identity, CheckBounds: true}); ok {
		f.last = MatchCurrentID
		return n, true
	}
	if n, ok := f.Matcher.Closest(objs, center, identity); ok {
		f.last = MatchClosestID
		return n, true
	}
	if sel.search || (!sel.locked && !sel.single) || actionEnabled {
		if n, ok := f.closestSearch(objs, sel, center); ok {
			f.last = MatchClosestSearch
			return n, true
		}
	}
	return None, false
}

// closestSearch is the unconstrained tier. A locked search only looks inside
// the lock box, which grows every search tick until the lost timeout.
func (f *Finder) closestSearch(objs []detection.Object, sel *Selection, center detection.Point) (int, bool) {
	if sel.locked && sel.search {
		return f.Matcher.ClosestInside(objs, center, sel.boxLock)
	}
	return f.Matcher.Closest(objs, center, None)
}

// Next returns the first detection at or right of center, other than skip.
func (f *Finder) Next(objs []detection.Object, center detection.Point, skip int) (int, bool) {
	for n := range objs {
		c := objs[n].Center
		if c != nil && c.X >= center.X && n != skip {
			return n, true
		}
	}
	return None, false
}

// Prev returns the first detection at or left of center, other than skip.
func (f *Finder) Prev(objs []detection.Object, center detection.Point, skip int) (int, bool) {
	for n := range objs {
		c := objs[n].Center
		if c != nil && c.X <= center.X && n != skip {
			return n, true
		}
	}
	return None, false
}

// First returns the left-most detection.
func (f *Finder) First(objs []detection.Object) (int, bool) {
	best := None
	for n := range objs {
		c := objs[n].Center
		if c != nil && (best == None || c.X < objs[best].Center.X) {
			best = n
		}
	}
	return best, best != None
}

// Last returns the right-most detection.
func (f *Finder) Last(objs []detection.Object) (int, bool) {
	best := None
	for n := range objs {
		c := objs[n].Center
		if c != nil && (best == None || c.X > objs[best].Center.X) {
			best = n
		}
	}
	return best, best != None
}
