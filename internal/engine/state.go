package engine

// State is a step of the batch driver.
//
//	START → COUNTING → PAGING → RESOLVING → WRITING → THROTTLE_CHECK → (PAGING | DONE)
//
// RESOLVING goes straight to THROTTLE_CHECK when the record is skipped or
// fails, and THROTTLE_CHECK returns to RESOLVING while the page has records.
type State int

const (
	StateStart State = iota
	StateCounting
	StatePaging
	StateResolving
	StateWriting
	StateThrottleCheck
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateCounting:
		return "COUNTING"
	case StatePaging:
		return "PAGING"
	case StateResolving:
		return "RESOLVING"
	case StateWriting:
		return "WRITING"
	case StateThrottleCheck:
		return "THROTTLE_CHECK"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
