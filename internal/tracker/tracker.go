// Package tracker owns one camera's control loop. It wires identity
// tracking, target selection, the aiming loop, patrol, the automatic action
// and the command builder together and runs them once per detector frame.
package tracker

import (
	"sync"

	"github.com/servo-cam/server/internal/action"
	"github.com/servo-cam/server/internal/command"
	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/identity"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/patrol"
	"github.com/servo-cam/server/internal/servo"
	"github.com/servo-cam/server/internal/targeting"
	"github.com/servo-cam/server/internal/timeutil"
)

// Options configure a Tracker. Build them from config.Config or start from
// DefaultOptions.
type Options struct {
	Geometry servo.Geometry
	Command  command.Options

	Loop     targeting.Params
	Dwell    targeting.DwellParams
	Patrol   patrol.Params
	Action   action.Params
	Identity identity.Config

	Rules   map[detection.Purpose]detection.Rule
	Areas   map[detection.Purpose]detection.Area
	Locator detection.Locator
	Point   detection.PointName

	Mode          targeting.Mode
	Single        bool
	Locked        bool
	ActionEnabled bool
	ManualSpeed   int
}

// DefaultOptions returns a follow-mode tracker over the default servo
// limits, sending on both axes.
func DefaultOptions() Options {
	return Options{
		Geometry:    *servo.NewGeometry(servo.DefaultLimits()),
		Command:     command.Options{EnableX: true, EnableY: true},
		Loop:        targeting.DefaultParams(),
		Dwell:       targeting.DefaultDwellParams(),
		Patrol:      patrol.DefaultParams(),
		Action:      action.DefaultParams(),
		Identity:    identity.DefaultConfig(),
		Locator:     detection.CenterLocator{},
		Mode:        targeting.ModeFollow,
		ManualSpeed: DefaultManualSpeed,
	}
}

// StatusChange is a status flag that flipped during a tick.
type StatusChange struct {
	State targeting.State
	On    bool
}

// Output is what one tick produced.
type Output struct {
	Tick      uint64
	Command   string
	Sent      bool
	Angles    servo.Angles
	Delta     servo.Delta
	Mode      targeting.Mode
	Count     int
	Target    int
	Identity  int
	HasTarget bool
	Match     targeting.MatchType
	Aim       *detection.Point
	Status    targeting.Status
	Changes   []StatusChange
}

// Tracker runs the control loop. Tick and the control methods may be called
// from different goroutines; they are serialized internally.
type Tracker struct {
	mu sync.Mutex

	geom    *servo.Geometry
	sorter  *identity.Sorter
	areas   *detection.Areas
	filter  *detection.Filter
	sel     *targeting.Selection
	finder  *targeting.Finder
	dwell   *targeting.Dwell
	sweep   *patrol.Sweep
	action  *action.Auto
	loop    *targeting.Loop
	builder *command.Builder
	manual  *Manual

	status targeting.Status
	objs   []detection.Object
	ticks  uint64
}

// New creates a Tracker sending through sender. A nil clock uses the wall
// clock.
func New(opts Options, sender command.Sender, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	geom := opts.Geometry
	if geom.Limits == (servo.Limits{}) {
		geom.Limits = servo.DefaultLimits()
	}

	areas := detection.NewAreas()
	for p, a := range opts.Areas {
		areas.Set(p, a)
	}
	filter := detection.NewFilter(areas)
	for p, r := range opts.Rules {
		filter.SetRule(p, r)
	}
	locator := opts.Locator
	if locator == nil {
		locator = detection.CenterLocator{}
	}

	t := &Tracker{
		geom:    &geom,
		sorter:  identity.NewSorter(opts.Identity, clock),
		areas:   areas,
		filter:  filter,
		sel:     targeting.NewSelection(opts.Single),
		finder:  targeting.NewFinder(filter),
		dwell:   targeting.NewDwell(opts.Dwell),
		sweep:   patrol.New(opts.Patrol, &geom, areas, clock),
		action:  action.NewAuto(opts.Action),
		builder: command.NewBuilder(&geom, opts.Command, sender),
		manual:  NewManual(opts.ManualSpeed),
	}
	t.loop = targeting.NewLoop(opts.Loop, targeting.Deps{
		Geometry:  t.geom,
		Gate:      filter,
		Locator:   locator,
		Selection: t.sel,
		Finder:    t.finder,
		Dwell:     t.dwell,
		Patrol:    t.sweep,
		Action:    t.action,
		Status:    &t.status,
	})
	t.loop.SetPointName(opts.Point)
	t.loop.SetMode(opts.Mode)
	if opts.Locked {
		t.sel.SetLocked(true)
	}
	if opts.ActionEnabled {
		t.enableAction()
	}
	return t
}

// Tick processes one detector frame. objs is sorted and given identities in
// place; the tracker keeps its own copy until the next tick for navigation
// and clicks, so the caller may reuse the slice.
func (t *Tracker) Tick(objs []detection.Object) Output {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ticks++
	before := t.status

	t.sorter.Apply(objs)
	t.objs = append(t.objs[:0], objs...)
	objs = t.objs
	t.applyManual()

	d := t.loop.Delta()
	t.areas.SetDelta(d.X, d.Y)
	res := t.loop.Tick(objs)
	t.status.Set(targeting.StateAction, t.action.Showing())

	count := len(objs)
	cmd, sent := t.builder.Update(res.Delta, count, t.action.Flags())
	t.action.TakeFired()

	out := Output{
		Tick:      t.ticks,
		Command:   cmd,
		Sent:      sent,
		Angles:    t.builder.Angles(),
		Delta:     res.Delta,
		Mode:      t.loop.Mode(),
		Count:     count,
		Target:    targeting.None,
		Identity:  targeting.None,
		HasTarget: res.HasTarget,
		Match:     res.Match,
		Aim:       res.Aim,
		Status:    t.status,
	}
	if res.HasTarget {
		out.Target = res.Index
		if id, ok := objs[res.Index].Identity(); ok {
			out.Identity = id
		}
	}
	for _, st := range targeting.States {
		if before.Get(st) != t.status.Get(st) {
			out.Changes = append(out.Changes, StatusChange{State: st, On: t.status.Get(st)})
		}
	}
	return out
}

func (t *Tracker) applyManual() {
	dx, dy, center := t.manual.step()
	if center {
		t.loop.Reset()
	}
	if dx != 0 || dy != 0 {
		t.loop.Nudge(dx, dy)
	}
}

// Press holds a manual control.
func (t *Tracker) Press(c Control) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manual.Press(c)
}

// Release lets go of a manual control.
func (t *Tracker) Release(c Control) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manual.Release(c)
}

// ManualSpeed is the current manual step in thousandths per tick.
func (t *Tracker) ManualSpeed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manual.Speed()
}

// SetMode switches the targeting mode.
func (t *Tracker) SetMode(m targeting.Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop.SetMode(m)
	monitoring.Logf("[tracker] mode %s", m)
}

// Mode returns the current targeting mode.
func (t *Tracker) Mode() targeting.Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop.Mode()
}

// SetPoint selects which body part to aim at.
func (t *Tracker) SetPoint(n detection.PointName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop.SetPointName(n)
}

// SetSingle switches single-target mode.
func (t *Tracker) SetSingle(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sel.SetSingle(v)
}

// EnableAction permits the automatic action. The selection locks so the
// action stays on one target.
func (t *Tracker) EnableAction() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enableAction()
}

func (t *Tracker) enableAction() {
	t.action.Enable()
	if !t.sel.Locked() {
		t.sel.SetLocked(true)
	}
}

// DisableAction forbids the automatic action and stops a running one.
func (t *Tracker) DisableAction() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action.Disable()
	if t.action.Active() {
		t.action.Stop()
	}
}

// ToggleOutput flips a manual output.
func (t *Tracker) ToggleOutput(n action.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action.Toggle(n)
}

// BeginOutput holds a manual output on.
func (t *Tracker) BeginOutput(n action.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action.Begin(n)
}

// EndOutput releases a held manual output.
func (t *Tracker) EndOutput(n action.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action.End(n)
}

// FireOutput raises n in the next command only.
func (t *Tracker) FireOutput(n action.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.action.Single(n)
}

// Lock binds the selection to the current candidate.
func (t *Tracker) Lock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sel.Lock(true)
	t.dwell.Clear(t.sel, &t.status)
}

// Unlock releases the target.
func (t *Tracker) Unlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dwell.Clear(t.sel, &t.status)
	t.sel.Unlock(true)
	t.status.Set(targeting.StateLocked, false)
	t.status.Set(targeting.StateLost, false)
}

// Next moves to the next detection on the right of the last frame.
func (t *Tracker) Next() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sel.Next(t.objs, t.finder)
}

// Prev moves to the next detection on the left of the last frame.
func (t *Tracker) Prev() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sel.Prev(t.objs, t.finder)
}

// Click selects the detection of the last frame under pt.
func (t *Tracker) Click(pt detection.Point) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sel.OnClick(t.objs, pt)
}

// Status returns the current status flags.
func (t *Tracker) Status() targeting.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Reset drops all tracking state and recentres. With send set the explicit
// reset command goes out.
func (t *Tracker) Reset(send bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sorter.Reset()
	t.sel.Reset()
	t.dwell.Reset()
	t.action.Reset()
	t.loop.Reset()
	t.sweep.Reset()
	t.manual.ReleaseAll()
	t.builder.Reset(send)
	t.status = targeting.Status{}
	t.objs = nil
	monitoring.Logf("[tracker] reset")
}
