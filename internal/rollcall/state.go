package rollcall

// State is the phase of a roll-call cycle.
type State int32

// Animator states.
const (
	Idle State = iota
	Rolling
	Committing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rolling:
		return "rolling"
	case Committing:
		return "committing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
