package targeting

import (
	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/monitoring"
)

// DwellParams are the tick counts driving the on-target and lost timers.
type DwellParams struct {
	// TargetMinTime is how many consecutive on-target ticks make a target.
	TargetMinTime int
	// LostMinTime is how many search ticks pass before giving up.
	LostMinTime int
	// OnTargetMax caps the on-target counter.
	OnTargetMax int
}

// DefaultDwellParams returns the stock timer lengths.
func DefaultDwellParams() DwellParams {
	return DwellParams{TargetMinTime: 3, LostMinTime: 15, OnTargetMax: 999}
}

// ActionRunner is the automatic action as seen by the dwell tracker.
type ActionRunner interface {
	Enabled() bool
	Active() bool
	Start()
	// Update advances the running action and reports whether it asks for
	// the next target.
	Update(single bool) (nextTarget bool)
	Stop()
}

// DwellInput is the per-tick geometry the dwell tracker judges against.
type DwellInput struct {
	Objects   []detection.Object
	Gate      detection.Gate
	Cam       detection.Point
	DistCN    [2]float64
	Threshold [2]float64
}

// Dwell counts how long the selection has been a valid target and runs the
// search/lost cascade while a locked target is missing.
type Dwell struct {
	params   DwellParams
	onTarget int
	leave    int
	leaving  bool
}

// NewDwell creates a dwell tracker.
func NewDwell(p DwellParams) *Dwell {
	return &Dwell{params: p}
}

func (d *Dwell) OnTargetCount() int { return d.onTarget }
func (d *Dwell) LeaveCount() int    { return d.leave }
func (d *Dwell) Leaving() bool      { return d.leaving }

// Check opens the leave interval when a locked target went unmatched.
func (d *Dwell) Check(sel *Selection) {
	if sel.locked && !sel.matched && !sel.search {
		d.leave = 0
		d.leaving = true
	}
}

// Clear closes the leave interval and drops the search and lost flags.
func (d *Dwell) Clear(sel *Selection, st *Status) {
	if !d.leaving {
		return
	}
	d.leaving = false
	d.leave = 0
	sel.lost = false
	sel.search = false
	st.Set(StateSearching, false)
}

// Reset zeroes every counter.
func (d *Dwell) Reset() {
	d.onTarget = 0
	d.leave = 0
	d.leaving = false
}

// Update runs once per tick after the selection has chosen. It reports
// whether the action asked to move to the next target.
func (d *Dwell) Update(sel *Selection, in DwellInput, act ActionRunner, st *Status) (nextTarget bool) {
	if d.leaving {
		d.updateLost(sel, in, st)
	}

	onTarget := false
	if idx := sel.idx; len(in.Objects) > 0 && idx != None && idx < len(in.Objects) {
		obj := &in.Objects[idx]
		aimed := obj.Box.Contains(in.Cam) ||
			(in.DistCN[0] <= in.Threshold[0] && in.DistCN[1] <= in.Threshold[1])
		if in.Gate.Allowed(obj, detection.PurposeAction) && aimed {
			onTarget = true
			d.onTarget++
			if d.onTarget > d.params.OnTargetMax {
				d.onTarget = d.params.OnTargetMax
			}
		}
	}
	if !onTarget {
		d.onTarget = 0
	}
	if d.onTarget < d.params.TargetMinTime || !sel.matched {
		onTarget = false
	}

	if !onTarget {
		if act.Active() {
			act.Stop()
		}
		if sel.locked && (sel.lost || !sel.matched) {
			sel.Lock(false)
		}
		st.Set(StateLocked, false)
		st.Set(StateTarget, false)
		return false
	}

	if in.Gate.InArea(in.Cam, detection.PurposeAction) {
		if act.Enabled() && !act.Active() {
			act.Start()
		}
		if act.Active() {
			nextTarget = act.Update(sel.single)
		}
	} else if act.Active() {
		act.Stop()
	}
	st.Set(StateLost, false)
	st.Set(StateLocked, true)
	st.Set(StateTarget, true)
	if !sel.locked && sel.lost {
		sel.Lock(false)
		sel.lost = false
	}
	return nextTarget
}

func (d *Dwell) updateLost(sel *Selection, in DwellInput, st *Status) {
	d.leave++
	sel.search = true
	if !sel.single {
		sel.growLock()
	}
	st.Set(StateLost, false)
	st.Set(StateSearching, true)

	if d.leave < d.params.LostMinTime {
		return
	}

	if !sel.single {
		if n, ok := d.firstAllowed(in); ok {
			d.Clear(sel, st)
			sel.Reanchor(in.Objects, n)
			monitoring.Logf("[target] search timed out, re-anchored to detection %d", n)
			return
		}
	}

	d.Clear(sel, st)
	sel.Unlock(true)
	sel.lost = true
	sel.ResetBounding()
	st.Set(StateLost, true)
	monitoring.Logf("[target] search timed out, target lost")
}

func (d *Dwell) firstAllowed(in DwellInput) (int, bool) {
	best := None
	for n := range in.Objects {
		obj := &in.Objects[n]
		if obj.Center == nil || !in.Gate.Allowed(obj, detection.PurposeTarget) {
			continue
		}
		if best == None || obj.Center.X < in.Objects[best].Center.X {
			best = n
		}
	}
	return best, best != None
}
