package process

import "time"

// State is the lifecycle state of a supervised process.
type State string

const (
	StateStopped     State = "stopped"
	StateStarting    State = "starting"
	StateRunning     State = "running"
	StateCrashed     State = "crashed"
	StateMemExceeded State = "memory_exceeded"
	StateRestarting  State = "restarting"
	StateStopping    State = "stopping"
	StateFailed      State = "failed_permanently"
)

// Terminal reports whether the state requires an explicit Start to leave.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Status is a point-in-time snapshot of one supervised process. The fields
// are read together under the supervisor lock, so state, PID and restart
// count are always mutually consistent.
type Status struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	// Restarts is the count of failures inside the active policy window.
	Restarts  int    `json:"restarts"`
	MemoryRSS uint64 `json:"memory_rss,omitempty"`
	ExitErr   string `json:"exit_error,omitempty"`
}
