package process

import "time"

// State is where the supervised child is in its lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	// StateError means the child exited non-zero without being asked to.
	StateError State = "error"
)

// Info is a snapshot of the supervised child.
type Info struct {
	State     State
	Command   []string
	StartedAt time.Time
	Restarts  int
	LastExit  int
	LastError error
}
