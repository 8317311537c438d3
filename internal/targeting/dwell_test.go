package targeting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/detection"
)

func lockOn(t *testing.T, sel *Selection, f *Finder, objs []detection.Object) {
	t.Helper()
	_, ok := sel.Choose(objs, f, false)
	require.True(t, ok)
	sel.Lock(true)
}

func TestDwell_ReanchorsAfterSearchTimeout(t *testing.T) {
	t.Parallel()

	filter := detection.NewFilter(nil)
	f := NewFinder(filter)
	sel := NewSelection(false)
	lockOn(t, sel, f, []detection.Object{person(1, 0.5, 0.5)})
	start := sel.BoxLock()

	d := NewDwell(DefaultDwellParams())
	act := &fakeAction{}
	var st Status
	others := []detection.Object{person(5, 0.7, 0.5), person(6, 0.3, 0.5)}
	in := DwellInput{
		Objects:   others,
		Gate:      filter,
		Cam:       detection.Point{X: 0.5, Y: 0.5},
		DistCN:    [2]float64{1, 1},
		Threshold: [2]float64{0.1, 0.1},
	}

	tick := func() {
		sel.matched = false
		d.Check(sel)
		d.Update(sel, in, act, &st)
	}

	tick()
	assert.True(t, sel.Searching())
	assert.True(t, st.Get(StateSearching))
	assert.Greater(t, sel.BoxLock().W, start.W, "lock box grows while searching")

	for range 13 {
		tick()
	}
	assert.Equal(t, 14, d.LeaveCount())
	assert.True(t, d.Leaving())

	tick()
	assert.False(t, d.Leaving())
	assert.True(t, sel.Locked())
	assert.False(t, sel.Lost())
	assert.False(t, sel.Searching())
	assert.False(t, st.Get(StateLost))
	idx, _ := sel.Index()
	assert.Equal(t, 1, idx, "left-most allowed detection")
	id, _ := sel.Identity()
	assert.Equal(t, 6, id)
}

func TestDwell_LostWithoutCandidates(t *testing.T) {
	t.Parallel()

	filter := detection.NewFilter(nil)
	f := NewFinder(filter)
	sel := NewSelection(false)
	lockOn(t, sel, f, []detection.Object{person(1, 0.5, 0.5)})

	d := NewDwell(DwellParams{TargetMinTime: 3, LostMinTime: 4, OnTargetMax: 999})
	var st Status
	for range 4 {
		sel.matched = false
		d.Check(sel)
		d.Update(sel, DwellInput{Gate: filter}, &fakeAction{}, &st)
	}
	assert.True(t, sel.Lost())
	assert.False(t, sel.Locked())
	assert.True(t, st.Get(StateLost))
	assert.False(t, st.Get(StateSearching))
}

func TestDwell_OnTargetNeedsMinTime(t *testing.T) {
	t.Parallel()

	filter := detection.NewFilter(nil)
	f := NewFinder(filter)
	sel := NewSelection(false)
	objs := []detection.Object{person(1, 0.5, 0.5)}
	d := NewDwell(DefaultDwellParams())
	act := &fakeAction{enabled: true}
	var st Status

	in := DwellInput{Objects: objs, Gate: filter, Cam: detection.Point{X: 0.5, Y: 0.5}}
	for tick := 1; tick <= 5; tick++ {
		_, ok := sel.Choose(objs, f, true)
		require.True(t, ok)
		d.Update(sel, in, act, &st)
		if tick < 3 {
			assert.False(t, st.Get(StateTarget), "tick %d", tick)
			assert.False(t, st.Get(StateLocked), "tick %d", tick)
			assert.Zero(t, act.starts)
			continue
		}
		assert.True(t, st.Get(StateTarget), "tick %d", tick)
		assert.True(t, st.Get(StateLocked), "tick %d", tick)
		assert.Equal(t, 1, act.starts)
	}
	assert.Equal(t, 5, d.OnTargetCount())

	// Camera drifts off the box: the counter resets and the action stops.
	in.Cam = detection.Point{X: 0.9, Y: 0.9}
	in.DistCN = [2]float64{0.4, 0.4}
	d.Update(sel, in, act, &st)
	assert.Zero(t, d.OnTargetCount())
	assert.False(t, act.active)
	assert.False(t, st.Get(StateTarget))
}

func TestDwell_ActionAreaStopsAction(t *testing.T) {
	t.Parallel()

	areas := detection.NewAreas()
	areas.Set(detection.PurposeAction, detection.Area{Enabled: true, World: true, Box: detection.Box{X: 0, Y: 0, W: 0.3, H: 0.3}})
	filter := detection.NewFilter(areas)
	// The detection must still pass the ACTION gate, so put it inside the area.
	objs := []detection.Object{person(1, 0.15, 0.15)}

	sel := NewSelection(false)
	_, ok := sel.Choose(objs, NewFinder(filter), true)
	require.True(t, ok)

	d := NewDwell(DwellParams{TargetMinTime: 1, LostMinTime: 15, OnTargetMax: 999})
	act := &fakeAction{enabled: true, active: true}
	var st Status
	in := DwellInput{Objects: objs, Gate: filter, Cam: detection.Point{X: 0.5, Y: 0.5}, Threshold: [2]float64{1, 1}}
	d.Update(sel, in, act, &st)

	assert.True(t, st.Get(StateTarget))
	assert.False(t, act.active, "camera outside the action area")
	assert.Equal(t, 1, act.stops)
}

func TestDwell_NextTargetFromAction(t *testing.T) {
	t.Parallel()

	filter := detection.NewFilter(nil)
	objs := []detection.Object{person(1, 0.5, 0.5)}
	sel := NewSelection(false)
	_, ok := sel.Choose(objs, NewFinder(filter), true)
	require.True(t, ok)

	d := NewDwell(DwellParams{TargetMinTime: 1, LostMinTime: 15, OnTargetMax: 999})
	act := &fakeAction{enabled: true, next: true}
	var st Status
	next := d.Update(sel, DwellInput{Objects: objs, Gate: filter, Cam: detection.Point{X: 0.5, Y: 0.5}}, act, &st)
	assert.True(t, next)
	assert.Equal(t, 1, act.updates)
}
