package server

import "fmt"

// State is the server lifecycle phase. It only moves forward.
type State int32

const (
	// StateCreated: constructed, not yet listening.
	StateCreated State = iota

	// StateListening: accepting and dispatching connections.
	StateListening

	// StateDraining: listener closed, workers finishing queued work.
	StateDraining

	// StateStopped: every worker has exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := StateCreated; st <= StateStopped; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown server state %q", b)
}
