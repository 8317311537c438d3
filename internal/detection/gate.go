package detection

// Gate answers the allow/area questions the tracking loop asks each tick.
type Gate interface {
	// Allowed reports whether obj passes the score/class/area rules for p.
	Allowed(obj *Object, p Purpose) bool
	// InArea reports whether pt lies inside the area for p. A disabled area
	// contains every point.
	InArea(pt Point, p Purpose) bool
}

// Area is one rectangle of interest. World areas are fixed in the mount's
// coordinate frame; the others move with the camera.
type Area struct {
	Enabled bool `json:"enabled"`
	World   bool `json:"world"`
	Box     Box  `json:"box"`
}

// MiddleY returns the vertical centre of the area.
func (a Area) MiddleY() float64 {
	return a.Box.Y + a.Box.H/2
}

// Areas holds one Area per purpose plus the current camera delta used to
// shift non-world areas.
type Areas struct {
	areas  [numPurposes]Area
	dx, dy float64
}

// NewAreas returns an area set with every purpose disabled.
func NewAreas() *Areas {
	return &Areas{}
}

// Set replaces the area for p.
func (a *Areas) Set(p Purpose, area Area) {
	if p.valid() {
		a.areas[p] = area
	}
}

// Get returns the area for p.
func (a *Areas) Get(p Purpose) Area {
	if !p.valid() {
		return Area{}
	}
	return a.areas[p]
}

// Enabled reports whether the area for p is active.
func (a *Areas) Enabled(p Purpose) bool {
	return a.Get(p).Enabled
}

// SetDelta records the current pan/tilt delta. Called once per tick by the
// control loop before any gate query.
func (a *Areas) SetDelta(dx, dy float64) {
	a.dx, a.dy = dx, dy
}

// InArea implements the area half of Gate.
func (a *Areas) InArea(pt Point, p Purpose) bool {
	area := a.Get(p)
	if !area.Enabled {
		return true
	}
	box := area.Box
	if !area.World {
		box = box.Shift(-a.dx, -a.dy)
	}
	return box.Contains(pt)
}

// Rule is the score/class filter for a single purpose. An empty class list
// admits every class.
type Rule struct {
	MinScore float64  `json:"min_score"`
	Classes  []string `json:"classes"`
}

func (r Rule) admits(obj *Object) bool {
	if obj.Score < r.MinScore {
		return false
	}
	if len(r.Classes) == 0 {
		return true
	}
	for _, c := range r.Classes {
		if c == obj.Class {
			return true
		}
	}
	return false
}

// DefaultMinScore is the per-purpose score floor when nothing is configured.
const DefaultMinScore = 0.5

// Filter is the default Gate: per-purpose rules, with TARGET and ACTION
// additionally requiring the object centre inside their area.
type Filter struct {
	rules [numPurposes]Rule
	areas *Areas
}

// NewFilter returns a Filter using DefaultMinScore for every purpose. areas
// may be nil, in which case no area restriction applies.
func NewFilter(areas *Areas) *Filter {
	if areas == nil {
		areas = NewAreas()
	}
	f := &Filter{areas: areas}
	for _, p := range Purposes {
		f.rules[p] = Rule{MinScore: DefaultMinScore}
	}
	return f
}

// SetRule replaces the rule for p.
func (f *Filter) SetRule(p Purpose, r Rule) {
	if p.valid() {
		f.rules[p] = r
	}
}

// Rule returns the rule for p.
func (f *Filter) Rule(p Purpose) Rule {
	if !p.valid() {
		return Rule{}
	}
	return f.rules[p]
}

// Areas exposes the area set backing the filter.
func (f *Filter) Areas() *Areas {
	return f.areas
}

// Allowed implements Gate.
func (f *Filter) Allowed(obj *Object, p Purpose) bool {
	if obj == nil || !p.valid() {
		return false
	}
	if !f.rules[p].admits(obj) {
		return false
	}
	switch p {
	case PurposeTarget, PurposeAction:
		if f.areas.Enabled(p) {
			if obj.Center == nil || !f.areas.InArea(*obj.Center, p) {
				return false
			}
		}
	}
	return true
}

// InArea implements Gate.
func (f *Filter) InArea(pt Point, p Purpose) bool {
	return f.areas.InArea(pt, p)
}
