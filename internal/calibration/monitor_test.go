package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_SweepRecalibratesStaleDevices(t *testing.T) {
	mock := &mockAgent{}
	orch, _, store := newTestOrchestrator(t, mock)

	// "stale" is a week past the threshold; "fresh" was just calibrated.
	staleCfg, staleRes := sampleCalibration("stale")
	staleCfg.LastCalibrated = time.Now().Add(-14 * 24 * time.Hour)
	require.NoError(t, store.Save("stale", staleCfg, staleRes))

	freshCfg, freshRes := sampleCalibration("fresh")
	freshCfg.LastCalibrated = time.Now()
	require.NoError(t, store.Save("fresh", freshCfg, freshRes))

	m := NewMonitor(testLogger(), orch, store)
	m.Sweep()
	orch.Wait()

	// Only the stale device got a new session.
	_, err := deviceStatus(orch, "fresh")
	require.ErrorIs(t, err, ErrSessionNotFound)

	report, err := deviceStatus(orch, "stale")
	require.NoError(t, err)
	assert.NotEmpty(t, report.SessionID)
}

func TestMonitor_SkipsDeviceWithActiveSession(t *testing.T) {
	mock := &mockAgent{blockEnsure: true}

	timing := fastTiming()
	timing.GlobalTimeout = 300 * time.Millisecond

	orch, _, store := newTestOrchestrator(t, mock, WithTiming(timing))

	cfg, res := sampleCalibration("D")
	cfg.LastCalibrated = time.Now().Add(-14 * 24 * time.Hour)
	require.NoError(t, store.Save("D", cfg, res))

	first, err := orch.Start("D")
	require.NoError(t, err)

	m := NewMonitor(testLogger(), orch, store)
	m.Sweep()

	// The sweep must not have displaced the running session.
	report, err := orch.GetStatus(first)
	require.NoError(t, err)
	assert.NotEqual(t, "complete", report.Status)

	orch.Wait()
}

func TestMonitor_StartStop(t *testing.T) {
	mock := &mockAgent{}
	orch, _, store := newTestOrchestrator(t, mock)

	m := NewMonitor(testLogger(), orch, store,
		WithCheckInterval(time.Hour),
		WithRecalibrateThreshold(time.Hour),
	)

	require.False(t, m.Running())
	require.NoError(t, m.Start())
	require.True(t, m.Running())

	// Idempotent.
	require.NoError(t, m.Start())

	m.Stop()
	require.False(t, m.Running())

	m.Stop()
}

// deviceStatus finds the most recent session for a device.
func deviceStatus(o *Orchestrator, deviceID string) (StatusReport, error) {
	o.mu.Lock()
	s, ok := o.byDevice[deviceID]
	o.mu.Unlock()

	if !ok {
		return StatusReport{}, ErrSessionNotFound
	}

	return o.GetStatus(s.ID())
}
