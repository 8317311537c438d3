package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/detection"
)

func TestMatcher_Exactly(t *testing.T) {
	t.Parallel()

	m := Matcher{Gate: detection.NewFilter(nil)}
	objs := []detection.Object{person(4, 0.2, 0.5), person(7, 0.6, 0.5), person(9, 0.8, 0.5)}

	n, ok := m.Exactly(objs, Query{Index: 1, Identity: 7})
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = m.Exactly(objs, Query{Index: 0, Identity: 7})
	assert.False(t, ok, "index and identity must agree")

	n, ok = m.Exactly(objs, Query{Index: None, Identity: 9, CheckBounds: true, Bounding: detection.Box{X: 0.7, Y: 0.4, W: 0.2, H: 0.2}})
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = m.Exactly(objs, Query{Index: None, Identity: 9, CheckBounds: true, Bounding: detection.Box{X: 0, Y: 0, W: 0.1, H: 0.1}})
	assert.False(t, ok)

	_, ok = m.Exactly(nil, Query{Index: None, Identity: None})
	assert.False(t, ok)
}

func TestMatcher_SkipsFilteredAndCenterless(t *testing.T) {
	t.Parallel()

	m := Matcher{Gate: detection.NewFilter(nil)}
	weak := person(1, 0.5, 0.5)
	weak.Score = 0.1
	blind := person(2, 0.5, 0.5)
	blind.Center = nil
	objs := []detection.Object{weak, blind, person(3, 0.9, 0.5)}

	n, ok := m.Closest(objs, detection.Point{X: 0.5, Y: 0.5}, None)
	require.True(t, ok)
	assert.Equal(t, 2, n, "indexes refer to the full detection list")

	_, ok = m.Exactly(objs, Query{Index: 0, Identity: None})
	assert.False(t, ok)
}

func TestMatcher_ClosestIdentityAndTies(t *testing.T) {
	t.Parallel()

	m := Matcher{Gate: detection.NewFilter(nil)}
	objs := []detection.Object{person(1, 0.3, 0.5), person(2, 0.7, 0.5), person(3, 0.45, 0.5)}

	n, _ := m.Closest(objs, detection.Point{X: 0.5, Y: 0.5}, None)
	assert.Equal(t, 2, n)

	n, _ = m.Closest(objs, detection.Point{X: 0.5, Y: 0.5}, 2)
	assert.Equal(t, 1, n)

	tied := []detection.Object{person(1, 0.25, 0.5), person(2, 0.75, 0.5)}
	n, _ = m.Closest(tied, detection.Point{X: 0.5, Y: 0.5}, None)
	assert.Equal(t, 0, n, "ties go to the first detection")

	same := []detection.Object{person(1, 0.4, 0.5), person(2, 0.4, 0.5)}
	_, ok := m.Exactly(same, Query{Index: 1, Identity: 2})
	assert.False(t, ok, "shadowed by an earlier detection at the same spot")
}

func TestFinder_Tiers(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	objs := []detection.Object{person(1, 0.3, 0.5), person(2, 0.7, 0.5)}

	sel := NewSelection(true)
	sel.idx = 1
	sel.identity = 2
	sel.locked = true
	sel.boxLock = objs[1].Box
	sel.centerLast = *objs[1].Center

	n, ok := f.Find(objs, sel, false)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, MatchIndexID, f.LastMatch())

	sel.idx = 0
	n, _ = f.Find(objs, sel, false)
	assert.Equal(t, 1, n)
	assert.Equal(t, MatchBoundsID, f.LastMatch())

	sel.boxLock = detection.Box{X: 0, Y: 0, W: 0.05, H: 0.05}
	n, _ = f.Find(objs, sel, false)
	assert.Equal(t, 1, n)
	assert.Equal(t, MatchClosestID, f.LastMatch())

	sel.identity = 99
	_, ok = f.Find(objs, sel, false)
	assert.False(t, ok, "locked single target does not jump")
	assert.Equal(t, MatchNone, f.LastMatch())

	n, ok = f.Find(objs, sel, true)
	require.True(t, ok, "auto action opens the search tier")
	assert.Equal(t, 1, n)
	assert.Equal(t, MatchClosestSearch, f.LastMatch())

	sel.search = true
	_, ok = f.Find(objs, sel, true)
	assert.False(t, ok, "a locked search stays inside the lock box")

	sel.boxLock = detection.Box{X: 0.55, Y: 0.35, W: 0.3, H: 0.3}
	n, ok = f.Find(objs, sel, false)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, "close_search", f.LastMatch().String())

	sel.locked = false
	sel.single = false
	sel.search = false
	sel.tmpIdentity = 99
	n, ok = f.Find(objs, sel, false)
	require.True(t, ok, "unlocked search covers the whole frame")
	assert.Equal(t, 0, n)
	assert.Equal(t, MatchClosestSearch, f.LastMatch())
}

func TestMatcher_ClosestInside(t *testing.T) {
	t.Parallel()

	m := Matcher{Gate: detection.NewFilter(nil)}
	objs := []detection.Object{person(1, 0.2, 0.5), person(2, 0.45, 0.5), person(3, 0.7, 0.5)}
	center := detection.Point{X: 0.5, Y: 0.5}

	n, ok := m.ClosestInside(objs, center, detection.Box{X: 0.6, Y: 0.4, W: 0.2, H: 0.2})
	require.True(t, ok)
	assert.Equal(t, 2, n, "nearer detections outside the box are ignored")

	n, ok = m.ClosestInside(objs, center, detection.Box{X: 0, Y: 0, W: 1, H: 1})
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = m.ClosestInside(objs, center, detection.Box{X: 0.9, Y: 0.9, W: 0.05, H: 0.05})
	assert.False(t, ok)
}

func TestFinder_Navigation(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	objs := []detection.Object{person(1, 0.2, 0.5), person(2, 0.5, 0.5), person(3, 0.8, 0.5)}

	n, _ := f.Next(objs, detection.Point{X: 0.5, Y: 0.5}, 1)
	assert.Equal(t, 2, n)
	n, _ = f.Prev(objs, detection.Point{X: 0.5, Y: 0.5}, 1)
	assert.Equal(t, 0, n)
	_, ok := f.Next(objs, detection.Point{X: 0.9, Y: 0.5}, None)
	assert.False(t, ok)

	n, _ = f.First(objs)
	assert.Equal(t, 0, n)
	n, _ = f.Last(objs)
	assert.Equal(t, 2, n)
	_, ok = f.First(nil)
	assert.False(t, ok)
}
