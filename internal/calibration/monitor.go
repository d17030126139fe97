package calibration

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Monitor defaults.
const (
	DefaultCheckInterval        = 24 * time.Hour
	DefaultRecalibrateThreshold = 7 * 24 * time.Hour
	monitorConcurrency          = 4
)

// Monitor periodically re-issues calibration for devices whose last
// successful run has gone stale. It respects the one-session-per-device
// invariant: a device with an active session is skipped for the cycle.
type Monitor struct {
	log       *slog.Logger
	orch      *Orchestrator
	store     *FileStore
	interval  time.Duration
	threshold time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithCheckInterval sets how often the monitor sweeps.
func WithCheckInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithRecalibrateThreshold sets the staleness cutoff.
func WithRecalibrateThreshold(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.threshold = d }
}

// NewMonitor creates a stopped monitor.
func NewMonitor(log *slog.Logger, orch *Orchestrator, store *FileStore, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		log:       log.With("component", "calibration_monitor"),
		orch:      orch,
		store:     store,
		interval:  DefaultCheckInterval,
		threshold: DefaultRecalibrateThreshold,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start schedules the periodic sweep. Starting an already-running monitor
// is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil {
		return nil
	}

	c := cron.New()

	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := c.AddFunc(spec, m.Sweep); err != nil {
		return fmt.Errorf("schedule monitor: %w", err)
	}

	c.Start()
	m.cron = c

	m.log.Info("Auto-monitor started", "interval", m.interval, "threshold", m.threshold)

	return nil
}

// Stop halts the sweep schedule.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron == nil {
		return
	}

	m.cron.Stop()
	m.cron = nil

	m.log.Info("Auto-monitor stopped")
}

// Running reports whether the monitor is scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cron != nil
}

// Sweep checks every registered device once and starts calibration for
// stale ones.
func (m *Monitor) Sweep() {
	devices, err := m.store.Devices()
	if err != nil {
		m.log.Error("Monitor sweep failed to list devices", "error", err)

		return
	}

	var g errgroup.Group

	g.SetLimit(monitorConcurrency)

	for _, deviceID := range devices {
		g.Go(func() error {
			m.checkDevice(deviceID)

			return nil
		})
	}

	_ = g.Wait()
}

// checkDevice re-issues calibration when the stored result is stale.
func (m *Monitor) checkDevice(deviceID string) {
	cfg, result, err := m.store.Load(deviceID)
	if err != nil {
		m.log.Warn("Monitor could not load calibration", "device_id", deviceID, "error", err)

		return
	}

	if !result.Success {
		// Only successful runs are persisted; a non-success record is a
		// foreign import and still counts as needing recalibration.
		m.log.Warn("Stored calibration not successful", "device_id", deviceID)
	} else if time.Since(cfg.LastCalibrated) < m.threshold {
		return
	}

	sessionID, err := m.orch.Start(deviceID)

	var active *ActiveSessionError

	switch {
	case errors.As(err, &active):
		m.log.Info("Monitor skipping device with active session",
			"device_id", deviceID, "session_id", active.SessionID)
	case err != nil:
		m.log.Error("Monitor failed to start calibration", "device_id", deviceID, "error", err)
	default:
		m.log.Info("Monitor started recalibration", "device_id", deviceID, "session_id", sessionID)
	}
}
