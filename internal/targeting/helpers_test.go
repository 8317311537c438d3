package targeting

import (
	"time"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/patrol"
	"github.com/servo-cam/server/internal/servo"
	"github.com/servo-cam/server/internal/timeutil"
)

// person builds an identified detection centred at (x, y).
func person(id int, x, y float64) detection.Object {
	o := detection.Object{
		Score:  0.9,
		Class:  "person",
		Box:    detection.Box{X: x - 0.1, Y: y - 0.1, W: 0.2, H: 0.2},
		Center: &detection.Point{X: x, Y: y},
	}
	o.SetIdentity(id)
	return o
}

type fakeAction struct {
	enabled bool
	active  bool
	starts  int
	stops   int
	updates int
	next    bool
}

func (a *fakeAction) Enabled() bool { return a.enabled }
func (a *fakeAction) Active() bool  { return a.active }
func (a *fakeAction) Start()        { a.active = true; a.starts++ }
func (a *fakeAction) Stop()         { a.active = false; a.stops++ }
func (a *fakeAction) Update(bool) bool {
	a.updates++
	return a.next
}

type rig struct {
	loop   *Loop
	sel    *Selection
	dwell  *Dwell
	action *fakeAction
	status *Status
	sweep  *patrol.Sweep
	clock  *timeutil.MockClock
	filter *detection.Filter
}

func newRig(p Params, single bool) *rig {
	clock := timeutil.NewMockClock(time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC))
	filter := detection.NewFilter(nil)
	geom := servo.NewGeometry(servo.DefaultLimits())
	r := &rig{
		sel:    NewSelection(single),
		dwell:  NewDwell(DefaultDwellParams()),
		action: &fakeAction{},
		status: &Status{},
		sweep:  patrol.New(patrol.DefaultParams(), geom, filter.Areas(), clock),
		clock:  clock,
		filter: filter,
	}
	r.loop = NewLoop(p, Deps{
		Geometry:  geom,
		Gate:      filter,
		Locator:   detection.CenterLocator{},
		Selection: r.sel,
		Finder:    NewFinder(filter),
		Dwell:     r.dwell,
		Patrol:    r.sweep,
		Action:    r.action,
		Status:    r.status,
	})
	return r
}
