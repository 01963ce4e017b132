package session

import "fmt"

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Translating
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Translating:
		return "translating"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Running reports whether the session has an active frame loop, paused or not.
func (s State) Running() bool {
	return s == Translating || s == Paused
}
