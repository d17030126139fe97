package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/arkavo/arkavo-mcp/internal/agent"
	"github.com/arkavo/arkavo-mcp/internal/state"
)

// ErrSessionNotFound indicates an unknown session id.
var ErrSessionNotFound = errors.New("calibration session not found")

// ActiveSessionError indicates a device already has a non-terminal
// session; at most one runs per device.
type ActiveSessionError struct {
	DeviceID  string
	SessionID string
}

func (e *ActiveSessionError) Error() string {
	return fmt.Sprintf("calibration already running for device %s (session %s)", e.DeviceID, e.SessionID)
}

// ReferenceBundleID is the bundle id of the reference application that
// records where taps land. Calibration is impossible without it.
const ReferenceBundleID = "com.arkavo.reference"

// Timing bundles every delay and deadline the orchestrator uses. Tests
// shrink these to keep session runs fast.
type Timing struct {
	// GlobalTimeout bounds a whole session from start.
	GlobalTimeout time.Duration

	// SettleDelay is the wait after launching the reference app.
	SettleDelay time.Duration

	// HealthBackoff is the wait between a recovery and the re-check
	// during initialization.
	HealthBackoff time.Duration

	// TapDeadline is the hard per-tap operation deadline.
	TapDeadline time.Duration

	// TapInterval is the pause between taps.
	TapInterval time.Duration

	// RetryDelay is the wait after a recovery before retrying a failed
	// tap.
	RetryDelay time.Duration

	// WatchdogWindow is how long the driver tolerates no successful tap
	// before recovering the agent.
	WatchdogWindow time.Duration

	// WatchdogBackoff is the sleep after a watchdog recovery.
	WatchdogBackoff time.Duration

	// VerifyWait bounds the wait for the verification artifact after a
	// tap attempt; VerifyPoll is the polling interval.
	VerifyWait time.Duration
	VerifyPoll time.Duration

	// StuckAfter is the quiet period before get_status surfaces a stuck
	// warning.
	StuckAfter time.Duration
}

// DefaultTiming returns the production timing profile.
func DefaultTiming() Timing {
	return Timing{
		GlobalTimeout:   60 * time.Second,
		SettleDelay:     3 * time.Second,
		HealthBackoff:   2 * time.Second,
		TapDeadline:     10 * time.Second,
		TapInterval:     500 * time.Millisecond,
		RetryDelay:      2 * time.Second,
		WatchdogWindow:  15 * time.Second,
		WatchdogBackoff: 3 * time.Second,
		VerifyWait:      10 * time.Second,
		VerifyPoll:      250 * time.Millisecond,
		StuckAfter:      10 * time.Second,
	}
}

// Orchestrator owns the session registry and drives calibration sessions
// against the device agent.
type Orchestrator struct {
	log    *slog.Logger
	agent  agent.DeviceAgent
	states *state.Store
	store  *FileStore
	timing Timing
	screen Size

	mu       sync.Mutex
	byDevice map[string]*Session
	byID     map[string]*Session

	// wg tracks detached session goroutines; tests wait on it.
	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTiming overrides the timing profile.
func WithTiming(t Timing) Option {
	return func(o *Orchestrator) { o.timing = t }
}

// WithScreenSize overrides the assumed screen dimensions used to place
// relative taps.
func WithScreenSize(s Size) Option {
	return func(o *Orchestrator) { o.screen = s }
}

// New creates an orchestrator. The state store doubles as the feedback bus
// the reference application writes verification artifacts to.
func New(log *slog.Logger, deviceAgent agent.DeviceAgent, states *state.Store, store *FileStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:      log.With("component", "calibration"),
		agent:    deviceAgent,
		states:   states,
		store:    store,
		timing:   DefaultTiming(),
		screen:   Size{Width: 393, Height: 852},
		byDevice: make(map[string]*Session, 4),
		byID:     make(map[string]*Session, 8),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start creates and launches a session for deviceID. It fails when the
// device already has a non-terminal session. The session runs detached:
// client disconnects do not cancel it, only its own state machine ends it.
func (o *Orchestrator) Start(deviceID string) (string, error) {
	if deviceID == "" {
		return "", errors.New("device id required")
	}

	o.mu.Lock()

	if existing, ok := o.byDevice[deviceID]; ok && !existing.Terminal() {
		o.mu.Unlock()

		return "", &ActiveSessionError{DeviceID: deviceID, SessionID: existing.ID()}
	}

	id := fmt.Sprintf("cal_%s_%d", deviceID, time.Now().Unix())
	s := newSession(id, deviceID)
	o.byDevice[deviceID] = s
	o.byID[id] = s

	o.mu.Unlock()

	o.log.Info("Calibration session started", "session_id", id, "device_id", deviceID)

	o.wg.Add(1)

	go func() {
		defer o.wg.Done()

		o.run(s)
	}()

	return id, nil
}

// GetStatus returns a snapshot of the session without blocking on its
// driver goroutine.
func (o *Orchestrator) GetStatus(sessionID string) (StatusReport, error) {
	o.mu.Lock()
	s, ok := o.byID[sessionID]
	o.mu.Unlock()

	if !ok {
		return StatusReport{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return s.report(o.timing.StuckAfter), nil
}

// Calibration returns the stored config/result pair for a device.
func (o *Orchestrator) Calibration(deviceID string) (*Config, *Result, error) {
	return o.store.Load(deviceID)
}

// Wait blocks until all session goroutines finish. Test helper.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run drives one session through the phase machine under the global
// deadline.
func (o *Orchestrator) run(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timing.GlobalTimeout)
	defer cancel()

	log := o.log.With("session_id", s.ID(), "device_id", s.DeviceID())

	if err := o.initialize(ctx, s); err != nil {
		o.failSession(ctx, s, err)
		log.Warn("Calibration initialization failed", "reason", err.Error())

		return
	}

	s.enterValidating()
	log.Info("Calibration entering validation")

	o.runTapSequence(ctx, s)
	o.finish(ctx, s, log)
}

// failSession marks the session failed, folding a global deadline into the
// dedicated timeout reason.
func (o *Orchestrator) failSession(ctx context.Context, s *Session, err error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.fail("timeout")

		return
	}

	s.fail(err.Error())
}

// initialize ensures agent health and brings up the reference application.
func (o *Orchestrator) initialize(ctx context.Context, s *Session) error {
	status := agent.CheckHealth(ctx, o.agent, s.DeviceID())
	s.setAgentStatus(status)
	s.addDiagnostic("initial health: connected=%t companion=%t err=%q",
		status.Connected, status.CompanionRunning, status.LastError)

	if !status.Healthy() {
		o.recoverAgent(ctx, s, status)

		if err := sleepCtx(ctx, o.timing.HealthBackoff); err != nil {
			return err
		}

		status = agent.CheckHealth(ctx, o.agent, s.DeviceID())
		s.setAgentStatus(status)
		s.addDiagnostic("post-recovery health: connected=%t companion=%t err=%q",
			status.Connected, status.CompanionRunning, status.LastError)

		if !status.Healthy() {
			return errors.New(o.healthFailureReason(ctx, s, status))
		}
	}

	if err := o.launchReference(ctx, s); err != nil {
		return fmt.Errorf("reference app unavailable, calibration requires it: %w", err)
	}

	// Let the reference UI settle before tapping.
	return sleepCtx(ctx, o.timing.SettleDelay)
}

// healthFailureReason enumerates the full diagnostic picture for a
// terminally unhealthy agent.
func (o *Orchestrator) healthFailureReason(ctx context.Context, s *Session, status agent.Status) string {
	deviceVisible := false

	if devices, err := o.agent.ListDevices(ctx); err == nil {
		for _, d := range devices {
			if d.ID == s.DeviceID() {
				deviceVisible = true

				break
			}
		}
	}

	lines := []string{
		fmt.Sprintf("agent unhealthy for device %s:", s.DeviceID()),
		fmt.Sprintf("  companion running: %t", status.CompanionRunning),
		fmt.Sprintf("  transport port reachable: %t", status.Connected),
		fmt.Sprintf("  device visible: %t", deviceVisible),
	}

	if status.LastError != "" {
		lines = append(lines, "  last error: "+status.LastError)
	}

	return strings.Join(lines, "\n")
}

// launchReference launches the reference app, installing it first when the
// launch reports it missing.
func (o *Orchestrator) launchReference(ctx context.Context, s *Session) error {
	err := o.agent.LaunchApp(ctx, s.DeviceID(), ReferenceBundleID)
	if err == nil {
		return nil
	}

	s.addDiagnostic("reference launch failed, attempting install: %v", err)

	if err := o.agent.InstallApp(ctx, s.DeviceID(), ReferenceBundleID); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	if err := o.agent.LaunchApp(ctx, s.DeviceID(), ReferenceBundleID); err != nil {
		return fmt.Errorf("launch after install: %w", err)
	}

	return nil
}

// recoverAgent picks the recovery path for the observed failure: a stuck
// transport gets a transport reset plus a per-device reconnect; anything
// else gets the full reset.
func (o *Orchestrator) recoverAgent(ctx context.Context, s *Session, status agent.Status) {
	stuck := status.CompanionRunning && !status.Connected

	o.log.Warn("Recovering device agent",
		"device_id", s.DeviceID(), "stuck_path", stuck, "last_error", status.LastError)
	s.addDiagnostic("recovery invoked (stuck=%t)", stuck)

	if err := o.agent.Recover(ctx); err != nil {
		s.addDiagnostic("recovery failed: %v", err)

		return
	}

	if stuck {
		if err := o.agent.ForceReconnect(ctx, s.DeviceID()); err != nil {
			s.addDiagnostic("force reconnect failed: %v", err)
		}
	}
}

// finish applies the completion rules and persists successful results.
func (o *Orchestrator) finish(ctx context.Context, s *Session, log *slog.Logger) {
	if s.Terminal() {
		return
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.fail("timeout")
		log.Warn("Calibration timed out")

		return
	}

	// Only the final round counts: refinement rounds re-issue the same
	// five points, so the cumulative tally would overstate the report.
	taps := s.RoundTaps()
	accuracy := 100 * float64(taps) / float64(expectedTaps)

	if accuracy < successAccuracyPct || taps < 1 {
		s.fail(fmt.Sprintf("too few successful taps: %d of %d (accuracy %.0f%%)",
			taps, expectedTaps, accuracy))
		log.Warn("Calibration failed", "tap_count", taps, "accuracy", accuracy)

		return
	}

	cfg, result := o.buildOutcome(s, taps, accuracy)

	if err := o.store.Save(s.DeviceID(), cfg, result); err != nil {
		s.fail("failed to persist calibration: " + err.Error())
		log.Error("Failed to persist calibration", "error", err)

		return
	}

	s.complete()
	log.Info("Calibration complete", "tap_count", taps, "accuracy", accuracy,
		"offset_x", s.Offset().X, "offset_y", s.Offset().Y)
}

// buildOutcome assembles the persisted config/result pair for a
// successful session.
func (o *Orchestrator) buildOutcome(s *Session, taps int, accuracy float64) (Config, Result) {
	offset := s.Offset()

	adjustments := make(map[string]Adjustment, len(elementTypes))
	for _, elem := range elementTypes {
		adj := Adjustment{TapOffset: offset, DelayMS: 50}
		if elem == "checkbox" {
			// Checkboxes hit-test high and left of their visual bounds.
			adj.TapOffset = offset.Add(Offset{X: 2, Y: 2})
		}

		adjustments[elem] = adj
	}

	var issues []string
	if taps < expectedTaps {
		issues = append(issues, fmt.Sprintf("%d of %d taps not verified", expectedTaps-taps, expectedTaps))
	}

	result := Result{
		Success:                true,
		DeviceProfile:          s.DeviceID(),
		InteractionAdjustments: adjustments,
		ValidationReport: Report{
			Total:       expectedTaps,
			Successful:  taps,
			Failed:      expectedTaps - taps,
			AccuracyPct: accuracy,
			Issues:      issues,
		},
	}

	cfg := Config{
		DeviceID:       s.DeviceID(),
		DeviceType:     "simulator",
		ScreenSize:     o.screen,
		ScaleFactor:    1.0,
		Version:        "1",
		LastCalibrated: time.Now().UTC(),
	}

	return cfg, result
}

// elementTypes receives per-type interaction adjustments in a successful
// result.
var elementTypes = []string{"button", "checkbox", "text_field", "toggle", "cell"}

// sleepCtx sleeps for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
