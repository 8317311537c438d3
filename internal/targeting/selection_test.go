package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/detection"
)

func TestSelection_ChooseRemembersTarget(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	sel := NewSelection(false)
	objs := []detection.Object{person(1, 0.2, 0.5), person(2, 0.45, 0.5), person(3, 0.8, 0.5)}

	n, ok := sel.Choose(objs, f, false)
	require.True(t, ok)
	assert.Equal(t, 0, n, "an empty selection takes the first candidate")
	id, ok := sel.Identity()
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.Equal(t, objs[0].Box, sel.BoxCurrent())

	sel.Lock(true)
	assert.True(t, sel.Locked())
	assert.Equal(t, objs[0].Box, sel.BoxLock())

	// Target drifts right and changes slot.
	moved := []detection.Object{person(3, 0.8, 0.5), person(1, 0.22, 0.5)}
	n, ok = sel.Choose(moved, f, false)
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, MatchBoundsID, f.LastMatch())
	assert.Equal(t, detection.Point{X: 0.22, Y: 0.5}, sel.CenterLast())
}

func TestSelection_UnlockForgetsIdentity(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	sel := NewSelection(false)
	objs := []detection.Object{person(1, 0.3, 0.5), person(2, 0.6, 0.5)}

	_, ok := sel.Choose(objs, f, false)
	require.True(t, ok)
	sel.Lock(true)
	sel.Unlock(true)
	assert.False(t, sel.Locked())
	assert.True(t, sel.BoxLock().IsZero())

	_, ok = sel.Choose(objs, f, false)
	require.True(t, ok)
	assert.Equal(t, MatchClosestSearch, f.LastMatch(), "identity tiers no longer match")
}

func TestSelection_OnClick(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	sel := NewSelection(false)
	objs := []detection.Object{person(1, 0.2, 0.5), person(2, 0.5, 0.5), person(3, 0.8, 0.5)}

	assert.False(t, sel.OnClick(objs, detection.Point{X: 0.35, Y: 0.9}))
	require.True(t, sel.OnClick(objs, detection.Point{X: 0.82, Y: 0.45}))
	assert.True(t, sel.Locked())

	n, ok := sel.Choose(objs, f, false)
	require.True(t, ok)
	assert.Equal(t, 2, n)
	id, _ := sel.Identity()
	assert.Equal(t, 3, id)
}

func TestSelection_NextPrevWrap(t *testing.T) {
	t.Parallel()

	f := NewFinder(detection.NewFilter(nil))
	sel := NewSelection(false)
	objs := []detection.Object{person(1, 0.2, 0.5), person(2, 0.5, 0.5), person(3, 0.8, 0.5)}

	_, ok := sel.Choose(objs, f, false)
	require.True(t, ok)
	idx, _ := sel.Index()
	require.Equal(t, 0, idx)

	steps := []struct {
		next bool
		want int
	}{
		{next: true, want: 1},
		{next: true, want: 2},
		{next: true, want: 0},
		{next: false, want: 2},
		{next: false, want: 0},
	}
	for _, s := range steps {
		if s.next {
			require.True(t, sel.Next(objs, f))
		} else {
			require.True(t, sel.Prev(objs, f))
		}
		n, ok := sel.Choose(objs, f, false)
		require.True(t, ok)
		assert.Equal(t, s.want, n)
		assert.True(t, sel.Locked())
	}

	assert.False(t, sel.Next(nil, f))
}

func TestSelection_TargetBounds(t *testing.T) {
	t.Parallel()

	sel := NewSelection(true)
	_, ok := sel.Target(nil)
	assert.False(t, ok)

	objs := []detection.Object{person(1, 0.5, 0.5)}
	_, ok = sel.Choose(objs, NewFinder(detection.NewFilter(nil)), false)
	require.True(t, ok)
	n, ok := sel.Target(objs)
	assert.True(t, ok)
	assert.Equal(t, 0, n)
	_, ok = sel.Target(nil)
	assert.False(t, ok)

	sel.Reset()
	assert.True(t, sel.Single())
	assert.False(t, sel.Matched())
	_, ok = sel.Index()
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	var st Status
	assert.Empty(t, st.Active())
	st.Set(StateLocked, true)
	st.Set(StateAction, true)
	st.Set(State(42), true)
	assert.True(t, st.Get(StateLocked))
	assert.False(t, st.Get(State(42)))
	assert.Equal(t, []string{"LOCKED", "ACTION"}, st.Active())
}

func TestHistory(t *testing.T) {
	t.Parallel()

	var h history
	_, ok := h.mean()
	assert.False(t, ok)

	h.store(detection.Point{X: 0.2, Y: 0.4}, 0.01, 2)
	h.store(detection.Point{X: 0.205, Y: 0.4}, 0.01, 2)
	assert.Equal(t, 1, h.len(), "within tolerance of the newest sample")

	h.store(detection.Point{X: 0.4, Y: 0.6}, 0.01, 2)
	h.store(detection.Point{X: 0.6, Y: 0.8}, 0.01, 2)
	assert.Equal(t, 2, h.len())
	m, ok := h.mean()
	require.True(t, ok)
	assert.InDelta(t, 0.5, m.X, 1e-9)
	assert.InDelta(t, 0.7, m.Y, 1e-9)

	h.clear()
	assert.Zero(t, h.len())
}
