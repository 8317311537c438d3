package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/timeutil"
)

func obj(x, y float64) detection.Object {
	return detection.Object{
		Score:  0.9,
		Class:  "person",
		Box:    detection.Box{X: x - 0.05, Y: y - 0.1, W: 0.1, H: 0.2},
		Center: &detection.Point{X: x, Y: y},
	}
}

func ids(t *testing.T, objs []detection.Object) []int {
	t.Helper()
	out := make([]int, len(objs))
	for i := range objs {
		id, ok := objs[i].Identity()
		require.True(t, ok, "object %d has no identity", i)
		out[i] = id
	}
	return out
}

func newSorter() (*Sorter, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return NewSorter(DefaultConfig(), clock), clock
}

func TestSorter_StableIdentityForSlowMotion(t *testing.T) {
	t.Parallel()

	s, clock := newSorter()
	first := -1
	for tick := 0; tick < 20; tick++ {
		frame := []detection.Object{obj(0.3+float64(tick)*0.01, 0.5)}
		s.Apply(frame)
		got := ids(t, frame)[0]
		if first < 0 {
			first = got
		}
		assert.Equal(t, first, got, "tick %d", tick)
		clock.Advance(100 * time.Millisecond)
	}

	rec, ok := s.Record(first)
	require.True(t, ok)
	assert.Equal(t, 19, rec.Hits)
}

func TestSorter_SortsByXAndKeepsIdentities(t *testing.T) {
	t.Parallel()

	s, _ := newSorter()
	frame := []detection.Object{obj(0.7, 0.5), obj(0.2, 0.5)}
	s.Apply(frame)
	assert.InDelta(t, 0.2, frame[0].Center.X, 1e-9)
	left, right := ids(t, frame)[0], ids(t, frame)[1]
	assert.NotEqual(t, left, right)

	next := []detection.Object{obj(0.71, 0.5), obj(0.21, 0.5)}
	s.Apply(next)
	assert.Equal(t, []int{left, right}, ids(t, next))

	idx, ok := s.Index(right)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestSorter_EachRecordClaimedOncePerFrame(t *testing.T) {
	t.Parallel()

	s, _ := newSorter()
	s.Apply([]detection.Object{obj(0.5, 0.5)})

	frame := []detection.Object{obj(0.49, 0.5), obj(0.52, 0.5)}
	s.Apply(frame)
	got := ids(t, frame)
	assert.NotEqual(t, got[0], got[1])
}

func TestSorter_AgesOutRecords(t *testing.T) {
	t.Parallel()

	s, clock := newSorter()
	frame := []detection.Object{obj(0.5, 0.5)}
	s.Apply(frame)
	original := ids(t, frame)[0]
	assert.Equal(t, 1, s.Len())

	clock.Advance(5 * time.Second)
	s.Apply(nil)
	assert.Equal(t, 1, s.Len(), "still young")

	clock.Advance(6 * time.Second)
	s.Apply(nil)
	assert.Equal(t, 0, s.Len())

	again := []detection.Object{obj(0.5, 0.5)}
	s.Apply(again)
	assert.NotEqual(t, original, ids(t, again)[0], "evicted ids are not reused before a reset")
}

func TestSorter_SkipsWeakAndCenterless(t *testing.T) {
	t.Parallel()

	s, _ := newSorter()
	weak := obj(0.2, 0.5)
	weak.Score = 0.1
	blind := detection.Object{Score: 0.9, Box: detection.Box{X: 0.9, Y: 0.9, W: 0.05, H: 0.05}}
	frame := []detection.Object{blind, weak, obj(0.6, 0.5)}

	s.Apply(frame)
	assert.Nil(t, frame[2].Center, "centerless entries sort last")
	got := ids(t, frame)
	assert.Equal(t, 0, got[0], "weak detection keeps its provisional id")
	assert.Equal(t, 2, got[2])
	assert.Equal(t, 1, s.Len())
}

func TestSorter_ResetsWhenOverCeiling(t *testing.T) {
	t.Parallel()

	s, _ := newSorter()
	frame := make([]detection.Object, Ceiling+1)
	for i := range frame {
		frame[i] = obj(float64(i)/float64(Ceiling+1), 0.5)
		frame[i].Box = detection.Box{X: frame[i].Center.X, Y: 0.45, W: 0.001, H: 0.1}
	}
	s.Apply(frame)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.MaxID())
	assert.Equal(t, 1, s.Resets())
}
