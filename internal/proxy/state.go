package proxy

import "fmt"

// State is the phase a session is in.
type State int

const (
	StateGreeting State = iota
	StateMethodChosen
	StateRequestRead
	StateResolved
	StateConnected
	StateRelaying

	// StateClosed follows a relay that has ended.
	StateClosed
	// StateRejected follows a greeting without an acceptable method.
	StateRejected
	// StateFailed follows any other error before relaying.
	StateFailed
)

var stateNames = [...]string{
	StateGreeting:     "greeting",
	StateMethodChosen: "method-chosen",
	StateRequestRead:  "request-read",
	StateResolved:     "resolved",
	StateConnected:    "connected",
	StateRelaying:     "relaying",
	StateClosed:       "closed",
	StateRejected:     "rejected",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s >= StateClosed
}
