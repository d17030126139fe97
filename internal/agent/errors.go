package agent

import (
	"errors"
	"fmt"
)

// ErrOperationTimeout indicates a per-operation deadline expired before the
// agent responded. Callers treat this the same as a stuck transport.
var ErrOperationTimeout = errors.New("agent operation timeout")

// TransportStuckError indicates the companion process is running but its
// transport port is not accepting connections.
type TransportStuckError struct {
	Port int
}

func (e *TransportStuckError) Error() string {
	return fmt.Sprintf("agent transport stuck: port %d not accepting connections", e.Port)
}

// CompanionAbsentError indicates the companion process is not running.
type CompanionAbsentError struct{}

func (e *CompanionAbsentError) Error() string {
	return "companion process not running"
}

// DeviceNotFoundError indicates the companion is reachable but the device
// is not in its target list.
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device %q not in agent target list", e.DeviceID)
}

// IsStuck reports whether err indicates a wedged transport: the companion
// is up but the port is unresponsive, or an operation deadline expired.
func IsStuck(err error) bool {
	var stuck *TransportStuckError

	return errors.As(err, &stuck) || errors.Is(err, ErrOperationTimeout)
}

// IsAbsent reports whether err indicates a missing companion process.
func IsAbsent(err error) bool {
	var absent *CompanionAbsentError

	return errors.As(err, &absent)
}

// IsDeviceMissing reports whether err indicates the device is not visible
// to the companion.
func IsDeviceMissing(err error) bool {
	var missing *DeviceNotFoundError

	return errors.As(err, &missing)
}
