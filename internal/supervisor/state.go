package supervisor

import "time"

// State is a supervisor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateDraining
	StateCoolingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateCoolingDown:
		return "cooling_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the supervisor for status endpoints.
type Status struct {
	State          string    `json:"state"`
	Epoch          uint64    `json:"epoch"`
	Restarts       uint64    `json:"restarts"`
	StormRestarts  int       `json:"storm_window_restarts"`
	StreamingSince time.Time `json:"streaming_since"`
	LastError      string    `json:"last_error,omitempty"`
}
