package engine

import "time"

// State is a run lifecycle state.
type State string

const (
	StatePending  State = "PENDING"
	StateSetup    State = "SETUP"
	StateRamping  State = "RAMPING"
	StateDraining State = "DRAINING"
	StateTeardown State = "TEARDOWN"
	StateDone     State = "DONE"
	StateAborted  State = "ABORTED"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// transitions lists the legal successors of each state. A run cancelled
// while draining is still aborted; its in-flight iterations have already
// finished by then.
var transitions = map[State][]State{
	StatePending:  {StateSetup},
	StateSetup:    {StateRamping, StateAborted},
	StateRamping:  {StateDraining, StateAborted},
	StateDraining: {StateTeardown, StateAborted},
	StateTeardown: {StateDone},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
