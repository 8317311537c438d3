package patrol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/servo"
	"github.com/servo-cam/server/internal/timeutil"
)

type fakeAim struct {
	delta        servo.Delta
	point        detection.Point
	hasPoint     bool
	clearedAll   int
	clearedAimed int
}

func (a *fakeAim) Delta() servo.Delta            { return a.delta }
func (a *fakeAim) SetDelta(d servo.Delta)        { a.delta = d }
func (a *fakeAim) SetAimPoint(p detection.Point) { a.point, a.hasPoint = p, true }
func (a *fakeAim) AimPoint() (detection.Point, bool) {
	return a.point, a.hasPoint
}
func (a *fakeAim) ClearHistory(targetOnly bool) {
	if targetOnly {
		a.clearedAimed++
		return
	}
	a.clearedAll++
}

func newSweep(areas *detection.Areas) (*Sweep, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	if areas == nil {
		areas = detection.NewAreas()
	}
	return New(DefaultParams(), servo.NewGeometry(servo.DefaultLimits()), areas, clock), clock
}

func TestSweep_FlipsExactlyAtBound(t *testing.T) {
	t.Parallel()

	s, _ := newSweep(nil)
	aim := &fakeAim{}
	left, right := s.Bounds(0)
	require.Equal(t, 0.5, left)
	require.Equal(t, -0.5, right)

	flipped := false
	for tick := 0; tick < 100 && !flipped; tick++ {
		before := aim.delta.X
		require.Equal(t, Right, s.Direction())
		require.Greater(t, before, right, "still sweeping before the bound")
		s.Handle(false, aim)
		if s.Direction() == Left {
			flipped = true
			assert.Equal(t, right, aim.delta.X)
			assert.LessOrEqual(t, before-s.params.Step, right+1e-9, "flip happens on the tick the bound is reached")
		}
	}
	require.True(t, flipped)
	assert.Equal(t, 1, aim.clearedAimed)

	for tick := 0; tick < 100 && s.Direction() == Left; tick++ {
		s.Handle(false, aim)
	}
	assert.Equal(t, Right, s.Direction())
	assert.Equal(t, left, aim.delta.X)
	assert.True(t, s.Active())
}

func TestSweep_HandsBackOnTarget(t *testing.T) {
	t.Parallel()

	s, _ := newSweep(nil)
	aim := &fakeAim{}
	s.Handle(false, aim)
	moved := aim.delta.X

	assert.True(t, s.Handle(true, aim))
	assert.True(t, s.Paused())
	assert.False(t, s.Active())
	assert.Equal(t, 1, aim.clearedAll)
	assert.Equal(t, moved, aim.delta.X, "no sweep step while handing back")
}

func TestSweep_ResumeDebounce(t *testing.T) {
	t.Parallel()

	s, clock := newSweep(nil)
	aim := &fakeAim{}
	s.Handle(true, aim)

	assert.False(t, s.Check(), "nothing armed")
	s.Resume()
	assert.True(t, s.Resuming())
	clock.Advance(200 * time.Millisecond)
	assert.False(t, s.Check())

	s.Resume()
	clock.Advance(300 * time.Millisecond)
	assert.True(t, s.Check(), "second Resume does not restart the timer")
	assert.False(t, s.Resuming())

	s.Resume()
	s.Cancel()
	clock.Advance(time.Second)
	assert.False(t, s.Check())
	assert.True(t, s.Paused())
}

func TestSweep_PatrolArea(t *testing.T) {
	t.Parallel()

	areas := detection.NewAreas()
	areas.Set(detection.PurposePatrol, detection.Area{
		Enabled: true,
		World:   true,
		Box:     detection.Box{X: 0.3, Y: 0.2, W: 0.4, H: 0.2},
	})
	s, _ := newSweep(areas)

	left, right := s.Bounds(0.15)
	assert.InDelta(t, 0.2, left, 1e-9, "world areas ignore the pan delta")
	assert.InDelta(t, -0.2, right, 1e-9)

	aim := &fakeAim{}
	s.Handle(false, aim)
	assert.InDelta(t, 0.3, aim.point.Y, 1e-9)
	assert.InDelta(t, 0.2, aim.delta.Y, 1e-9)

	aim.delta.Y = 0
	s.Handle(false, aim)
	assert.Equal(t, 0.0, aim.delta.Y, "Y is only re-applied when the anchor changes")

	for i := 0; i < 50; i++ {
		s.Handle(false, aim)
		assert.GreaterOrEqual(t, aim.delta.X, right-1e-9)
		assert.LessOrEqual(t, aim.delta.X, left+1e-9)
	}
}

func TestSweep_FrameAreaBounds(t *testing.T) {
	t.Parallel()

	areas := detection.NewAreas()
	areas.Set(detection.PurposePatrol, detection.Area{
		Enabled: true,
		Box:     detection.Box{X: 0.3, Y: 0.2, W: 0.4, H: 0.2},
	})
	s, _ := newSweep(areas)

	tests := []struct {
		name        string
		dx          float64
		left, right float64
	}{
		{name: "centred", dx: 0, left: 0.4, right: -0.4},
		{name: "panned left", dx: 0.1, left: 0.3, right: -0.5},
		{name: "panned right", dx: -0.05, left: 0.45, right: -0.35},
		{name: "clamped", dx: 0.3, left: 0.1, right: -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			left, right := s.Bounds(tt.dx)
			assert.InDelta(t, tt.left, left, 1e-9)
			assert.InDelta(t, tt.right, right, 1e-9)
		})
	}

	aim := &fakeAim{}
	s.Handle(false, aim)
	assert.InDelta(t, 0.201, aim.delta.Y, 1e-9, "frame areas nudge the tilt anchor")
}
