package gateway

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of the gateway listener.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Reloading
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Reloading:
		return "reloading"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := Stopped; st <= Stopping; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown gateway state %q", text)
}

var (
	// ErrNotRunning is returned when an operation needs a running gateway,
	// or a stop names a port the gateway is not bound to.
	ErrNotRunning = errors.New("gateway is not running")

	// ErrAlreadyRunning is returned by Start while the gateway is running.
	ErrAlreadyRunning = errors.New("gateway is already running")
)

// BindError is returned by Start when the listen address cannot be bound,
// usually because the port is in use.
type BindError struct {
	Addr string
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Status is a point-in-time view of the gateway.
type Status struct {
	State      State     `json:"state"`
	Running    bool      `json:"running"`
	ListenPort int       `json:"listenPort,omitempty"`
	BindHost   string    `json:"bindHost,omitempty"`
	Active     int       `json:"active"`
	Version    uint64    `json:"version"`
	Services   int       `json:"services"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	ReloadedAt time.Time `json:"reloadedAt,omitzero"`
	LastError  string    `json:"lastError,omitempty"`
}
