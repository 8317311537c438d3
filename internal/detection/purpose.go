package detection

// Purpose selects which rule set a gate query is evaluated against.
type Purpose int

const (
	PurposeDetect Purpose = iota
	PurposeTarget
	PurposeAction
	PurposePatrol

	numPurposes
)

// Purposes lists every purpose in declaration order.
var Purposes = [numPurposes]Purpose{PurposeDetect, PurposeTarget, PurposeAction, PurposePatrol}

func (p Purpose) String() string {
	switch p {
	case PurposeDetect:
		return "DETECT"
	case PurposeTarget:
		return "TARGET"
	case PurposeAction:
		return "ACTION"
	case PurposePatrol:
		return "PATROL"
	default:
		return "UNKNOWN"
	}
}

// ParsePurpose is the inverse of String. ok is false for unknown names.
func ParsePurpose(s string) (Purpose, bool) {
	for _, p := range Purposes {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

func (p Purpose) valid() bool {
	return p >= 0 && p < numPurposes
}
