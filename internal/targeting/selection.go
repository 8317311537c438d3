package targeting

import "github.com/servo-cam/server/internal/detection"

// forgotten is an identity no detection can carry. Unlock uses it so the
// identity-bound tiers stop matching until something is selected again.
const forgotten = -2

// searchMargin is how far the lock box grows on every side per search tick.
const searchMargin = 0.01

// Selection owns which detection is the target and what the loop remembers
// about it between ticks.
type Selection struct {
	idx         int
	tmpIdx      int
	identity    int
	tmpIdentity int
	changeIdx   int

	matched bool
	search  bool
	lost    bool
	single  bool
	locked  bool

	centerLast    detection.Point
	centerCurrent detection.Point
	boxCurrent    detection.Box
	boxLock       detection.Box
	boxLast       map[int]detection.Box
}

// NewSelection returns an empty, unlocked selection.
func NewSelection(single bool) *Selection {
	s := &Selection{single: single}
	s.Reset()
	return s
}

// Reset forgets everything except the single-target setting.
func (s *Selection) Reset() {
	single := s.single
	*s = Selection{
		idx:         None,
		tmpIdx:      None,
		identity:    None,
		tmpIdentity: None,
		changeIdx:   None,
		single:      single,
		boxLast:     make(map[int]detection.Box),
	}
}

func (s *Selection) Index() (int, bool) { return s.idx, s.idx != None }

func (s *Selection) Identity() (int, bool) {
	return s.identity, s.identity >= 0
}

func (s *Selection) Matched() bool { return s.matched }
func (s *Selection) Locked() bool { return s.locked }
func (s *Selection) Searching() bool { return s.search }
func (s *Selection) Lost() bool { return s.lost }
func (s *Selection) Single() bool { return s.single }
func (s *Selection) SetSingle(v bool) { s.single = v }
func (s *Selection) BoxLock() detection.Box { return s.boxLock }
func (s *Selection) BoxCurrent() detection.Box { return s.boxCurrent }
func (s *Selection) CenterLast() detection.Point { return s.centerLast }

// Target returns the current target index when it is matched and still
// inside objs.
func (s *Selection) Target(objs []detection.Object) (int, bool) {
	if !s.matched || s.idx == None || s.idx >= len(objs) {
		return None, false
	}
	return s.idx, true
}

// Choose resolves a pending manual switch, runs the finder and commits the
// result. Unmatched ticks keep the remembered boxes and centres.
func (s *Selection) Choose(objs []detection.Object, finder *Finder, actionEnabled bool) (int, bool) {
	s.handleSwitch(objs)

	n, ok := finder.Find(objs, s, actionEnabled)
	s.matched = ok
	if !ok {
		return None, false
	}
	s.assign(objs, n)
	s.idx = n
	s.tmpIdx = n
	return n, true
}

func (s *Selection) assign(objs []detection.Object, n int) {
	if n < 0 || n >= len(objs) {
		return
	}
	obj := &objs[n]
	if obj.Center != nil {
		s.centerLast = *obj.Center
		s.centerCurrent = *obj.Center
	}
	s.boxCurrent = obj.Box
	if s.locked {
		s.boxLock = obj.Box
	}
	if id, ok := obj.Identity(); ok {
		s.identity = id
		s.tmpIdentity = id
		s.boxLast[id] = obj.Box
	}
}

func (s *Selection) handleSwitch(objs []detection.Object) {
	if s.changeIdx == None {
		return
	}
	s.idx = s.changeIdx
	s.tmpIdx = s.changeIdx
	s.changeIdx = None
	if s.idx >= len(objs) {
		return
	}
	obj := &objs[s.idx]
	if obj.Center != nil {
		s.centerLast = *obj.Center
	}
	if id, ok := obj.Identity(); ok {
		s.identity = id
	}
	if s.locked {
		s.boxLock = obj.Box
	}
}

// Lock binds the selection to the remembered candidate identity. With clear
// set the search and lost flags are reset as well.
func (s *Selection) Lock(clear bool) {
	if clear {
		s.search = false
		s.lost = false
	}
	s.identity = s.tmpIdentity
	if s.matched {
		if b, ok := s.boxLast[s.identity]; ok {
			s.boxLock = b
		}
	}
	s.locked = true
}

// SetLocked marks the selection locked without touching the remembered
// identity or boxes.
func (s *Selection) SetLocked(v bool) { s.locked = v }

// Unlock releases the target. The caller is responsible for clearing any
// dwell leave interval.
func (s *Selection) Unlock(clear bool) {
	s.locked = false
	if clear {
		s.search = false
		s.lost = false
	}
	s.tmpIdentity = forgotten
	s.boxLock = detection.Box{}
}

// Switch selects objs[idx] on the next Choose and locks onto it.
func (s *Selection) Switch(idx int) {
	s.idx = idx
	s.changeIdx = idx
	s.locked = true
}

// OnClick selects the first detection whose box contains pt.
func (s *Selection) OnClick(objs []detection.Object, pt detection.Point) bool {
	for n := range objs {
		if objs[n].Box.Contains(pt) {
			s.Switch(n)
			return true
		}
	}
	return false
}

// Next moves the selection to the next detection to the right, wrapping.
func (s *Selection) Next(objs []detection.Object, finder *Finder) bool {
	n, ok := finder.Next(objs, s.centerLast, s.idx)
	if !ok {
		n, ok = finder.First(objs)
	}
	if !ok && s.idx != None {
		n, ok = s.idx+1, true
		if n >= len(objs) {
			n = 0
		}
	}
	return s.jump(objs, n, ok)
}

// Prev moves the selection to the next detection to the left, wrapping.
func (s *Selection) Prev(objs []detection.Object, finder *Finder) bool {
	n, ok := finder.Prev(objs, s.centerLast, s.idx)
	if !ok {
		n, ok = finder.Last(objs)
	}
	if !ok && s.idx != None {
		n, ok = s.idx-1, true
		if n < 0 {
			n = len(objs) - 1
		}
	}
	return s.jump(objs, n, ok)
}

func (s *Selection) jump(objs []detection.Object, n int, ok bool) bool {
	if !ok || n < 0 || n >= len(objs) {
		return false
	}
	s.idx = n
	s.changeIdx = n
	s.boxLock = objs[n].Box
	if id, ok := objs[n].Identity(); ok {
		s.identity = id
	}
	s.locked = true
	return true
}

// Reanchor moves a locked selection onto objs[n] without unlocking.
func (s *Selection) Reanchor(objs []detection.Object, n int) {
	if n < 0 || n >= len(objs) {
		return
	}
	s.idx = n
	s.tmpIdx = n
	s.boxLock = objs[n].Box
	s.boxCurrent = objs[n].Box
	if c := objs[n].Center; c != nil {
		s.centerLast = *c
		s.centerCurrent = *c
	}
	if id, ok := objs[n].Identity(); ok {
		s.identity = id
		s.tmpIdentity = id
	}
}

// ResetBounding zeroes the lock and current boxes.
func (s *Selection) ResetBounding() {
	s.boxLock = detection.Box{}
	s.boxCurrent = detection.Box{}
}

// growLock widens the lock box for the search phase.
func (s *Selection) growLock() {
	s.boxLock = s.boxLock.Grow(searchMargin)
}
