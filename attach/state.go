package attach

// State is the lifecycle of a Remote attachment:
// Pending -> Fetching -> Resolved | Failed. There are no backward moves.
type State int

const (
	Pending State = iota
	Fetching
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fetching:
		return "fetching"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Resolved || s == Failed }
