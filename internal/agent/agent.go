package agent

import (
	"context"
	"time"
)

// Device describes one automation target known to the companion.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	State    string `json:"state"`
}

// App describes one application installed on a device.
type App struct {
	BundleID string `json:"bundle_id"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
}

// DeviceAgent is the capability surface the orchestrator consumes. All
// calls honor context cancellation; implementations with their own
// transport deadlines still return promptly when the context expires.
type DeviceAgent interface {
	ListDevices(ctx context.Context) ([]Device, error)
	ListApps(ctx context.Context, deviceID string) ([]App, error)
	Tap(ctx context.Context, deviceID string, x, y float64) error
	Swipe(ctx context.Context, deviceID string, x1, y1, x2, y2 float64, duration time.Duration) error
	EnsureConnected(ctx context.Context, deviceID string) error
	InstallApp(ctx context.Context, deviceID, bundleID string) error
	LaunchApp(ctx context.Context, deviceID, bundleID string) error
	TerminateApp(ctx context.Context, deviceID, bundleID string) error

	// Recover resets whatever transport state is wedged. ForceReconnect
	// additionally re-establishes the session for one device.
	Recover(ctx context.Context) error
	ForceReconnect(ctx context.Context, deviceID string) error
}

// Status is the orchestrator's view of agent health for one device.
type Status struct {
	Connected        bool       `json:"connected"`
	CompanionRunning bool       `json:"companion_running"`
	LastHealthCheck  *time.Time `json:"last_health_check,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
}

// Healthy reports whether the agent can serve taps for the device.
func (s Status) Healthy() bool {
	return s.Connected && s.CompanionRunning && s.LastError == ""
}

// CheckHealth probes the agent for deviceID and classifies the outcome.
func CheckHealth(ctx context.Context, a DeviceAgent, deviceID string) Status {
	now := time.Now().UTC()
	status := Status{LastHealthCheck: &now}

	err := a.EnsureConnected(ctx, deviceID)
	if err == nil {
		status.Connected = true
		status.CompanionRunning = true

		return status
	}

	status.LastError = err.Error()

	switch {
	case IsAbsent(err):
		// Companion process not running at all.
	case IsStuck(err):
		status.CompanionRunning = true
	case IsDeviceMissing(err):
		status.CompanionRunning = true
		status.Connected = true
	default:
		status.CompanionRunning = true
	}

	return status
}
