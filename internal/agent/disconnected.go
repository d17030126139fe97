package agent

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Environment booleans selecting the agent flavor. Behavior is identical
// either way until a real backend is wired in.
const (
	EnvUseSystemAgent = "ARKAVO_USE_SYSTEM_AGENT"
	EnvEmbeddedAgent  = "ARKAVO_EMBEDDED_AGENT"
)

// Compile-time verification that Disconnected implements DeviceAgent.
var _ DeviceAgent = (*Disconnected)(nil)

// Disconnected is the DeviceAgent used when no automation backend is
// available. Every operation reports the companion as absent, so health
// checks and calibration fail with accurate diagnostics instead of hanging.
type Disconnected struct{}

// FromEnv selects the agent flavor from the environment and reports which
// one was chosen. Both flavors currently resolve to Disconnected; the
// selection only affects diagnostics.
func FromEnv() (DeviceAgent, string) {
	if envBool(EnvUseSystemAgent) {
		return &Disconnected{}, "system"
	}

	if envBool(EnvEmbeddedAgent) {
		return &Disconnected{}, "embedded"
	}

	return &Disconnected{}, "default"
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))

	return err == nil && v
}

func (d *Disconnected) ListDevices(context.Context) ([]Device, error) {
	return nil, &CompanionAbsentError{}
}

func (d *Disconnected) ListApps(context.Context, string) ([]App, error) {
	return nil, &CompanionAbsentError{}
}

func (d *Disconnected) Tap(context.Context, string, float64, float64) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) Swipe(context.Context, string, float64, float64, float64, float64, time.Duration) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) EnsureConnected(context.Context, string) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) InstallApp(context.Context, string, string) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) LaunchApp(context.Context, string, string) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) TerminateApp(context.Context, string, string) error {
	return &CompanionAbsentError{}
}

func (d *Disconnected) Recover(context.Context) error {
	return nil
}

func (d *Disconnected) ForceReconnect(context.Context, string) error {
	return &CompanionAbsentError{}
}
