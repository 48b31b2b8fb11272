package app

import "fmt"

// State is the lifecycle of one query request.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateRetrieving State = "RETRIEVING"
	StateGenerating State = "GENERATING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

var transitions = map[State][]State{
	StateReceived:   {StateRetrieving, StateFailed},
	StateRetrieving: {StateGenerating, StateFailed},
	StateGenerating: {StateCompleted, StateFailed},
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, fmt.Errorf("invalid query state transition %s -> %s", s, to)
}
