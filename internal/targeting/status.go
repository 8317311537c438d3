package targeting

// State is one of the indicator flags published every tick.
type State int

const (
	StateSearching State = iota
	StateLost
	StateLocked
	StateTarget
	StateAction

	numStates
)

// States lists every indicator in display order.
var States = [numStates]State{StateSearching, StateLost, StateLocked, StateTarget, StateAction}

func (s State) String() string {
	switch s {
	case StateSearching:
		return "SEARCHING"
	case StateLost:
		return "LOST"
	case StateLocked:
		return "LOCKED"
	case StateTarget:
		return "TARGET"
	case StateAction:
		return "ACTION"
	default:
		return "UNKNOWN"
	}
}

// Status is the set of indicator flags.
type Status [numStates]bool

func (s *Status) Set(st State, v bool) {
	if st >= 0 && st < numStates {
		s[st] = v
	}
}

func (s Status) Get(st State) bool {
	if st < 0 || st >= numStates {
		return false
	}
	return s[st]
}

// Active returns the names of the raised flags.
func (s Status) Active() []string {
	var out []string
	for _, st := range States {
		if s[st] {
			out = append(out, st.String())
		}
	}
	return out
}
