package service

import "errors"

// State is the ingestion loop's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateConfiguring
	StateStreaming
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning is returned when Start or Replay is called on a busy loop.
	ErrAlreadyRunning = errors.New("ingestion loop already running")
	// ErrFaulted is returned when Start is called after a fault.
	ErrFaulted = errors.New("ingestion loop faulted; create a new one")
	// ErrIdentityUnavailable reports that the device never answered QUERY_IDENTITY.
	ErrIdentityUnavailable = errors.New("sensor identity not received")
	// ErrConfigurationMissing reports a sensor role with no threshold row.
	ErrConfigurationMissing = errors.New("no threshold configured")
	// ErrLockHeld reports that another collector holds the database lock.
	ErrLockHeld = errors.New("advisory lock held by another collector")
)
