package domain

// Status is the lifecycle state of a transaction.
//
// The lifecycle is one-directional:
//
//	Waiting -> Pending -> Confirmed -> Complete
//	   |          |           |
//	   +----------+-----------+--> Failed (terminal)
//
// Send transactions use only the Pending -> Complete subset.
type Status string

const (
	StatusWaiting   Status = "Waiting"
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusComplete  Status = "Complete"
	StatusFailed    Status = "Failed"
)

var statusRank = map[Status]int{
	StatusWaiting:   0,
	StatusPending:   1,
	StatusConfirmed: 2,
	StatusComplete:  3,
}

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Settled reports whether the transaction has already reached a state where a
// confirmation-class webhook is a no-op (Confirmed, Complete or Failed).
func (s Status) Settled() bool {
	return s == StatusConfirmed || s.Terminal()
}

// CanTransitionTo reports whether moving from s to next preserves the
// one-directional lifecycle. Failed is reachable from any non-terminal state;
// nothing leaves Complete or Failed.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}
