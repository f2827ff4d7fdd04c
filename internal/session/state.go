package session

import "fmt"

// State is the lifecycle position of a session. Exactly one is active and
// it alone decides which operations are permitted.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Generating
	Benchmarking
	Unloading
)

var stateNames = [...]string{
	Unloaded:     "unloaded",
	Loading:      "loading",
	Loaded:       "loaded",
	Generating:   "generating",
	Benchmarking: "benchmarking",
	Unloading:    "unloading",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Busy reports whether a task owns the session in this state.
func (s State) Busy() bool {
	switch s {
	case Loading, Generating, Benchmarking, Unloading:
		return true
	default:
		return false
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}
