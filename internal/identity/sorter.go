// Package identity assigns stable integer ids to detections across frames
// by correlating each centre with the boxes seen on previous frames.
package identity

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/servo-cam/server/internal/detection"
	"github.com/servo-cam/server/internal/monitoring"
	"github.com/servo-cam/server/internal/timeutil"
)

const (
	// DefaultMaxAge is how long an unseen record survives.
	DefaultMaxAge = 10 * time.Second
	// DefaultMinScore is the score below which detections are not tracked.
	DefaultMinScore = 0.2
	// Ceiling bounds ids, records and detections; crossing it resets all
	// tracking state.
	Ceiling = 100
)

// Record is one remembered detection.
type Record struct {
	ID       int
	Box      detection.Box
	LastSeen time.Time
	Hits     int
}

// Config tunes a Sorter.
type Config struct {
	MaxAge   time.Duration
	MinScore float64
}

// DefaultConfig returns the stock ageing and score settings.
func DefaultConfig() Config {
	return Config{MaxAge: DefaultMaxAge, MinScore: DefaultMinScore}
}

// Sorter is the identity tracker. It is not safe for concurrent use; the
// control loop owns it.
type Sorter struct {
	cfg   Config
	clock timeutil.Clock

	records map[int]*Record
	order   []int // insertion order, used to break distance ties
	mapping map[int]int
	maxID   int
	resets  int
}

// NewSorter creates a Sorter. A nil clock uses the wall clock.
func NewSorter(cfg Config, clock timeutil.Clock) *Sorter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	s := &Sorter{cfg: cfg, clock: clock}
	s.Reset()
	return s
}

// Reset drops every record and restarts id allocation.
func (s *Sorter) Reset() {
	s.records = make(map[int]*Record)
	s.order = s.order[:0]
	s.mapping = make(map[int]int)
	s.maxID = 0
}

// Apply sorts objs by ascending centre X in place and attaches an identity
// to every entry. Entries that are not tracked keep their provisional id,
// which is their position after sorting.
func (s *Sorter) Apply(objs []detection.Object) {
	SortByX(objs)

	for i := range objs {
		objs[i].SetIdentity(i)
	}
	s.mapping = make(map[int]int, len(objs))

	claimed := make(map[int]bool, len(objs))
	now := s.clock.Now()
	for i := range objs {
		obj := &objs[i]
		if obj.Center == nil || obj.Score < s.cfg.MinScore {
			continue
		}
		if id, ok := s.closest(*obj.Center, claimed); ok {
			rec := s.records[id]
			rec.Box = obj.Box
			rec.LastSeen = now
			rec.Hits++
			s.assign(id, i, objs, claimed)
			continue
		}
		s.assign(s.mint(obj.Box, now), i, objs, claimed)
	}

	s.evict(now)

	if s.maxID > Ceiling || len(s.records) > Ceiling || len(s.mapping) > Ceiling || len(objs) > Ceiling {
		monitoring.Logf("[identity] tracking state over %d entries, resetting", Ceiling)
		s.resets++
		s.Reset()
	}
}

func (s *Sorter) assign(id, idx int, objs []detection.Object, claimed map[int]bool) {
	claimed[id] = true
	s.mapping[id] = idx
	if id > s.maxID {
		s.maxID = id
	}
	objs[idx].SetIdentity(id)
}

// closest returns the unclaimed record whose box contains c and whose centre
// is nearest to it.
func (s *Sorter) closest(c detection.Point, claimed map[int]bool) (int, bool) {
	var ids []int
	var dists []float64
	for _, id := range s.order {
		rec := s.records[id]
		if claimed[id] || !rec.Box.Contains(c) {
			continue
		}
		ids = append(ids, id)
		dists = append(dists, c.Distance(rec.Box.Center()))
	}
	if len(ids) == 0 {
		return 0, false
	}
	return ids[floats.MinIdx(dists)], true
}

func (s *Sorter) mint(box detection.Box, now time.Time) int {
	id := s.maxID + 1
	for s.records[id] != nil {
		id++
	}
	s.records[id] = &Record{ID: id, Box: box, LastSeen: now}
	s.order = append(s.order, id)
	return id
}

func (s *Sorter) evict(now time.Time) {
	kept := s.order[:0]
	for _, id := range s.order {
		if now.Sub(s.records[id].LastSeen) > s.cfg.MaxAge {
			delete(s.records, id)
			delete(s.mapping, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

// Len reports how many records are alive.
func (s *Sorter) Len() int { return len(s.records) }

// MaxID reports the highest id handed out since the last reset.
func (s *Sorter) MaxID() int { return s.maxID }

// Resets reports how many overflow resets have happened.
func (s *Sorter) Resets() int { return s.resets }

// Record returns a copy of the record for id.
func (s *Sorter) Record(id int) (Record, bool) {
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Index returns the position assigned to id on the last frame.
func (s *Sorter) Index(id int) (int, bool) {
	idx, ok := s.mapping[id]
	return idx, ok
}

// SortByX orders objects by centre X. Objects without a centre go last and
// keep their relative order.
func SortByX(objs []detection.Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		ci, cj := objs[i].Center, objs[j].Center
		switch {
		case ci == nil:
			return false
		case cj == nil:
			return true
		default:
			return ci.X < cj.X
		}
	})
}
