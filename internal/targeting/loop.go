package targeting

import (
	"math"
	"strings"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/patrol"
	"github.com/servo-cam/server/internal/servo"
)

// Mode selects what the loop does with the camera.
type Mode int

const (
	// ModeOff disables targeting entirely.
	ModeOff Mode = iota
	// ModeIdle tracks and dwells without moving the camera.
	ModeIdle
	// ModeFollow steers the camera towards the selected target.
	ModeFollow
	// ModePatrol sweeps until a target shows up.
	ModePatrol
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeFollow:
		return "FOLLOW"
	case ModePatrol:
		return "PATROL"
	default:
		return "OFF"
	}
}

// ParseMode maps a mode name to a Mode. Unknown names are ModeOff.
func ParseMode(s string) Mode {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, m := range []Mode{ModeIdle, ModeFollow, ModePatrol} {
		if m.String() == s {
			return m
		}
	}
	return ModeOff
}

// Params tune the aiming algorithm.
type Params struct {
	// DelayMultiplier scales how far the smoothed point moves towards the
	// target per tick when SmoothFollow is on. Values above 1 act as 1.
	DelayMultiplier float64
	// SpeedMultiplier converts camera-to-point distance into pan speed.
	SpeedMultiplier float64
	// SmoothMultiplier scales speed into the hysteresis threshold.
	SmoothMultiplier float64
	SmoothFollow     bool
	SmoothCamera     bool
	Brake            bool
	// CenterLock pins the camera point to the middle of the frame.
	CenterLock bool

	MeanTarget MeanParams
	MeanNow    MeanParams
	MeanCam    MeanParams
}

// DefaultParams returns the stock aiming settings.
func DefaultParams() Params {
	return Params{
		DelayMultiplier:  0.40,
		SpeedMultiplier:  0.1,
		SmoothMultiplier: 1.6,
		SmoothFollow:     false,
		SmoothCamera:     true,
		Brake:            true,
		CenterLock:       true,
		MeanTarget:       MeanParams{Enabled: true, Step: 0.005, Depth: 2},
		MeanNow:          MeanParams{Enabled: true, Step: 0.01, Depth: 2},
		MeanCam:          MeanParams{Enabled: false, Step: 0.01, Depth: 2},
	}
}

// Movement holds the direction flags raised this tick.
type Movement struct {
	Up, Down, Left, Right bool
}

// Any reports whether any flag is raised.
func (m Movement) Any() bool { return m.Up || m.Down || m.Left || m.Right }

// Deps are the collaborators a Loop drives.
type Deps struct {
	Geometry  *servo.Geometry
	Gate      detection.Gate
	Locator   detection.Locator
	Selection *Selection
	Finder    *Finder
	Dwell     *Dwell
	Patrol    *patrol.Sweep
	Action    ActionRunner
	Status    *Status
}

// Result summarizes one tick.
type Result struct {
	Index      int
	HasTarget  bool
	Match      MatchType
	Delta      servo.Delta
	Cam        detection.Point
	Now        detection.Point
	Aim        *detection.Point
	Move       Movement
	NextTarget bool
}

// Loop is the per-tick aiming algorithm. It is driven synchronously by its
// owner and is not safe for concurrent use.
type Loop struct {
	params Params
	deps   Deps

	mode    Mode
	point   detection.PointName
	control bool
	started bool

	delta  servo.Delta
	cam    detection.Point
	now    detection.Point
	target *detection.Point
	before *detection.Point

	distNT    [2]float64
	distCN    [2]float64
	speed     [2]float64
	threshold [2]float64
	power     [2]float64
	move      Movement

	histTarget history
	histNow    history
	histCam    history
}

// NewLoop creates a loop in ModeOff.
func NewLoop(p Params, d Deps) *Loop {
	return &Loop{
		params:    p,
		deps:      d,
		control:   true,
		cam:       detection.Point{X: 0.5, Y: 0.5},
		now:       detection.Point{X: 0.5, Y: 0.5},
		threshold: [2]float64{0.15, 0.15},
	}
}

func (l *Loop) Mode() Mode                    { return l.mode }
func (l *Loop) Control() bool                 { return l.control }
func (l *Loop) Cam() detection.Point          { return l.cam }
func (l *Loop) Now() detection.Point          { return l.now }
func (l *Loop) Speed() [2]float64             { return l.speed }
func (l *Loop) Threshold() [2]float64         { return l.threshold }
func (l *Loop) PointName() detection.PointName { return l.point }

// SetPointName selects which body part to aim at.
func (l *Loop) SetPointName(n detection.PointName) { l.point = n }

// SetMode switches the targeting mode. Leaving patrol resets the sweep;
// switching off also recentres.
func (l *Loop) SetMode(m Mode) {
	l.mode = m
	if m != ModePatrol {
		l.deps.Patrol.Reset()
	}
	if m == ModeOff {
		l.Reset()
	}
}

// Reset recentres the camera and forgets all aiming state.
func (l *Loop) Reset() {
	l.speed = [2]float64{}
	l.power = [2]float64{}
	l.target = nil
	l.before = nil
	l.cam = detection.Point{X: 0.5, Y: 0.5}
	l.now = detection.Point{X: 0.5, Y: 0.5}
	l.ClearHistory(false)
	l.delta = servo.Delta{}
}

// Nudge adds a manual offset to the delta, clamped to the servo range.
func (l *Loop) Nudge(dx, dy float64) {
	l.delta = l.deps.Geometry.ClampDelta(servo.Delta{X: l.delta.X + dx, Y: l.delta.Y + dy}, false)
}

// Delta implements patrol.Aim.
func (l *Loop) Delta() servo.Delta { return l.delta }

// SetDelta implements patrol.Aim.
func (l *Loop) SetDelta(d servo.Delta) { l.delta = d }

// AimPoint implements patrol.Aim.
func (l *Loop) AimPoint() (detection.Point, bool) {
	if l.target == nil {
		return detection.Point{}, false
	}
	return *l.target, true
}

// SetAimPoint implements patrol.Aim.
func (l *Loop) SetAimPoint(p detection.Point) { l.target = &p }

// ClearHistory implements patrol.Aim.
func (l *Loop) ClearHistory(targetOnly bool) {
	l.histTarget.clear()
	if targetOnly {
		return
	}
	l.histNow.clear()
	l.histCam.clear()
}

// Tick runs one frame through selection, dwell, smoothing and movement.
// objs must already carry identities.
func (l *Loop) Tick(objs []detection.Object) Result {
	if l.mode == ModeOff {
		return Result{Index: None, Delta: l.delta, Cam: l.cam, Now: l.now}
	}

	l.prepare()
	idx, hasTarget := l.choose(objs)

	if l.control {
		l.target = nil
		if hasTarget && idx < len(objs) {
			pt, ok := l.deps.Locator.TargetPoint(&objs[idx], l.point)
			if !ok {
				pt = l.now
			}
			l.target = &pt
		}
	}
	if l.target == nil && l.before != nil {
		b := *l.before
		l.target = &b
	}

	l.distNT = [2]float64{}
	if l.target != nil {
		if l.deps.Gate.InArea(*l.target, detection.PurposeTarget) {
			b := *l.target
			l.before = &b
			l.distNT = [2]float64{math.Abs(l.now.X - l.target.X), math.Abs(l.now.Y - l.target.Y)}
		} else {
			l.target = nil
		}
	}
	if l.target == nil && (l.params.Brake || l.before == nil) {
		l.now = l.cam
	}

	delay := math.Min(l.params.DelayMultiplier, 1)
	l.power = [2]float64{l.distNT[0] * delay, l.distNT[1] * delay}
	if l.target != nil {
		l.updatePosition()
	}

	l.prepareMovement()
	l.move = Movement{}
	l.storeHistory()
	l.smooth()

	switch l.mode {
	case ModePatrol:
		l.control = false
		if l.deps.Patrol.Handle(hasTarget, l) {
			l.mode = ModeFollow
			l.control = true
		}
		if !l.params.CenterLock {
			l.setMovement()
		}
	case ModeFollow:
		l.control = true
		l.setMovement()
		if l.deps.Patrol.Paused() {
			if !hasTarget {
				l.deps.Patrol.Resume()
				if l.deps.Patrol.Check() {
					l.mode = ModePatrol
					l.control = false
					l.deps.Patrol.Handle(false, l)
				}
			} else {
				l.deps.Patrol.Cancel()
			}
		}
	}

	next := false
	if l.control {
		next = l.deps.Dwell.Update(l.deps.Selection, DwellInput{
			Objects:   objs,
			Gate:      l.deps.Gate,
			Cam:       l.cam,
			DistCN:    l.distCN,
			Threshold: l.threshold,
		}, l.deps.Action, l.deps.Status)
	} else if l.deps.Action.Active() {
		l.deps.Action.Stop()
	}
	if next {
		l.deps.Selection.Next(objs, l.deps.Finder)
	}

	l.transformMovement(hasTarget)

	res := Result{
		Index:      idx,
		HasTarget:  hasTarget,
		Match:      l.deps.Finder.LastMatch(),
		Delta:      l.delta,
		Cam:        l.cam,
		Now:        l.now,
		Move:       l.move,
		NextTarget: next,
	}
	if l.target != nil {
		aim := *l.target
		res.Aim = &aim
	}
	return res
}

func (l *Loop) prepare() {
	if l.params.CenterLock {
		l.cam = detection.Point{X: 0.5, Y: 0.5}
	} else {
		l.cam = detection.Point{X: 0.5 - l.delta.X, Y: 0.5 - l.delta.Y}
	}
	if !l.started {
		l.now = detection.Point{X: 0.5, Y: 0.5}
		l.started = true
	}
}

func (l *Loop) choose(objs []detection.Object) (int, bool) {
	sel := l.deps.Selection
	idx, ok := sel.Choose(objs, l.deps.Finder, l.deps.Action.Enabled())
	l.deps.Dwell.Check(sel)
	if !sel.Locked() || ok {
		l.deps.Dwell.Clear(sel, l.deps.Status)
	}
	return idx, ok
}

func (l *Loop) updatePosition() {
	if l.params.SmoothFollow {
		l.now.X = approach(l.now.X, l.target.X, l.power[0])
		l.now.Y = approach(l.now.Y, l.target.Y, l.power[1])
	} else {
		l.now = *l.target
	}
	if l.control {
		l.now.X, l.now.Y = l.deps.Geometry.ClampCoords(l.now.X, l.now.Y, true)
	}
}

func approach(v, goal, step float64) float64 {
	switch {
	case goal > v:
		return v + step
	case goal < v:
		return v - step
	default:
		return v
	}
}

func (l *Loop) prepareMovement() {
	l.distCN = [2]float64{math.Abs(l.cam.X - l.now.X), math.Abs(l.cam.Y - l.now.Y)}
	l.speed = [2]float64{l.distCN[0] * l.params.SpeedMultiplier, l.distCN[1] * l.params.SpeedMultiplier}
	l.threshold = [2]float64{l.speed[0] * l.params.SmoothMultiplier, l.speed[1] * l.params.SmoothMultiplier}
}

func (l *Loop) storeHistory() {
	p := l.params
	if l.target != nil {
		l.histTarget.store(*l.target, p.MeanTarget.Step, p.MeanTarget.Depth)
	}
	l.histNow.store(l.now, p.MeanNow.Step, p.MeanNow.Depth)
	l.histCam.store(l.cam, p.MeanCam.Step, p.MeanCam.Depth)
}

func (l *Loop) smooth() {
	if !l.control {
		return
	}
	if l.params.MeanTarget.Enabled && l.target != nil {
		if m, ok := l.histTarget.mean(); ok {
			l.target = &m
		}
	}
	if l.params.MeanNow.Enabled {
		if m, ok := l.histNow.mean(); ok {
			l.now = m
		}
	}
	if l.params.MeanCam.Enabled {
		if m, ok := l.histCam.mean(); ok {
			l.cam = m
		}
	}
}

func (l *Loop) setMovement() {
	switch {
	case l.now.X < l.cam.X-l.threshold[0]:
		l.move.Left = true
	case l.now.X > l.cam.X+l.threshold[0]:
		l.move.Right = true
	}
	switch {
	case l.now.Y < l.cam.Y-l.threshold[1]:
		l.move.Up = true
	case l.now.Y > l.cam.Y+l.threshold[1]:
		l.move.Down = true
	}
}

func (l *Loop) transformMovement(hasTarget bool) {
	if l.control && !hasTarget {
		return
	}
	lo, hi := l.deps.Geometry.MinDelta(true), l.deps.Geometry.MaxDelta(true)
	d := l.delta

	if l.params.SmoothCamera {
		switch {
		case l.move.Left && d.X < hi.X:
			d.X += l.speed[0]
		case l.move.Right && d.X > lo.X:
			d.X -= l.speed[0]
		}
		switch {
		case l.move.Up && d.Y < hi.Y:
			d.Y += l.speed[1]
		case l.move.Down && d.Y > lo.Y:
			d.Y -= l.speed[1]
		}
	} else {
		if (l.move.Left && d.X < hi.X) || (l.move.Right && d.X > lo.X) {
			d.X = 0.5 - l.now.X
		}
		if (l.move.Up && d.Y < hi.Y) || (l.move.Down && d.Y > lo.Y) {
			d.Y = 0.5 - l.now.Y
		}
	}
	l.delta = d
}
