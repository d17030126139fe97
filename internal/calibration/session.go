package calibration

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arkavo/arkavo-mcp/internal/agent"
)

// Phase is a calibration session's lifecycle state. Transitions only move
// forward; Complete and Failed are terminal and sticky.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseValidating
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseValidating:
		return "validating"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Offset is a coordinate correction in screen units.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum.
func (o Offset) Add(other Offset) Offset {
	return Offset{X: o.X + other.X, Y: o.Y + other.Y}
}

// Magnitude returns the Euclidean length.
func (o Offset) Magnitude() float64 {
	return math.Hypot(o.X, o.Y)
}

// Session is one attempt to calibrate one device. All fields are guarded
// by the mutex; only the orchestrator mutates them, status queries read a
// consistent snapshot without blocking on the driver.
type Session struct {
	mu sync.Mutex

	id        string
	deviceID  string
	startTime time.Time

	phase      Phase
	failReason string

	agentStatus     agent.Status
	tapCount        int
	roundTaps       int
	lastTap         time.Time
	validatingSince time.Time
	offset          Offset

	// stallRecovered is set when the watchdog has already recovered the
	// agent during the current stall window; the next successful tap
	// clears it.
	stallRecovered bool

	diagnostics []string
}

func newSession(id, deviceID string) *Session {
	return &Session{
		id:        id,
		deviceID:  deviceID,
		startTime: time.Now().UTC(),
		phase:     PhaseInitializing,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// DeviceID returns the device this session calibrates.
func (s *Session) DeviceID() string { return s.deviceID }

// Terminal reports whether the session has reached a sticky final phase.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase == PhaseComplete || s.phase == PhaseFailed
}

// enterValidating moves Initializing → Validating. Terminal phases stick.
func (s *Session) enterValidating() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInitializing {
		return
	}

	s.phase = PhaseValidating
	s.validatingSince = time.Now().UTC()
}

// complete moves Validating → Complete. Terminal phases stick.
func (s *Session) complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseValidating {
		return
	}

	s.phase = PhaseComplete
}

// fail marks the session failed with reason. Failing an already-terminal
// session is a no-op so the first reason wins.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseComplete || s.phase == PhaseFailed {
		return
	}

	s.phase = PhaseFailed
	s.failReason = reason
}

// recordTap counts one successful tap, resetting the watchdog clock and
// the stall-recovery flag.
func (s *Session) recordTap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tapCount++
	s.roundTaps++
	s.lastTap = time.Now().UTC()
	s.stallRecovered = false
}

// TapCount returns the number of successful taps so far.
func (s *Session) TapCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tapCount
}

// beginTapRound resets the per-round counter ahead of a refinement round.
func (s *Session) beginTapRound() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roundTaps = 0
}

// RoundTaps returns the successful taps of the latest round.
func (s *Session) RoundTaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.roundTaps
}

// Offset returns the accumulated coordinate offset.
func (s *Session) Offset() Offset {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offset
}

// accumulateOffset folds a reported offset into the running correction.
func (s *Session) accumulateOffset(reported Offset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offset = s.offset.Add(reported)
}

// setAgentStatus records the latest health-check outcome.
func (s *Session) setAgentStatus(status agent.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agentStatus = status
}

// AgentStatus returns the last recorded agent status.
func (s *Session) AgentStatus() agent.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.agentStatus
}

// addDiagnostic appends one line to the session's diagnostic trail.
func (s *Session) addDiagnostic(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.diagnostics = append(s.diagnostics, fmt.Sprintf(format, args...))
}

// stallState reports whether the tap sequence has stalled past the window
// and whether a recovery was already attempted during this stall.
func (s *Session) stallState(window time.Duration) (stalled, recovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.lastTap
	if ref.IsZero() {
		ref = s.validatingSince
	}

	if ref.IsZero() {
		return false, false
	}

	return time.Since(ref) > window, s.stallRecovered
}

// markStallRecovery latches the flag so one stall window triggers at most
// one recovery.
func (s *Session) markStallRecovery() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stallRecovered = true
}

// StatusReport is the non-blocking snapshot returned by get_status.
type StatusReport struct {
	SessionID         string       `json:"session_id"`
	DeviceID          string       `json:"device_id"`
	StartTime         time.Time    `json:"start_time"`
	ElapsedSeconds    float64      `json:"elapsed_seconds"`
	Status            string       `json:"status"`
	AgentStatus       agent.Status `json:"agent_status"`
	TapCount          int          `json:"tap_count"`
	LastTapTime       *time.Time   `json:"last_tap_time,omitempty"`
	StuckWarning      string       `json:"stuck_warning,omitempty"`
	RecommendedAction string       `json:"recommended_action,omitempty"`
}

// report builds the status snapshot. stuckAfter is the quiet period in
// Validating after which a stuck warning is surfaced.
func (s *Session) report(stuckAfter time.Duration) StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.phase.String()
	if s.phase == PhaseFailed {
		status = "failed: " + s.failReason
	}

	r := StatusReport{
		SessionID:      s.id,
		DeviceID:       s.deviceID,
		StartTime:      s.startTime,
		ElapsedSeconds: time.Since(s.startTime).Seconds(),
		Status:         status,
		AgentStatus:    s.agentStatus,
		TapCount:       s.tapCount,
	}

	if !s.lastTap.IsZero() {
		lastTap := s.lastTap
		r.LastTapTime = &lastTap
	}

	if s.phase == PhaseValidating {
		ref := s.lastTap
		if ref.IsZero() {
			ref = s.validatingSince
		}

		if !ref.IsZero() && time.Since(ref) > stuckAfter {
			r.StuckWarning = fmt.Sprintf("no successful tap for %.0fs", time.Since(ref).Seconds())
		}
	}

	r.RecommendedAction = recommendAction(s.agentStatus)

	return r
}

// recommendAction maps a recorded agent error to a known fix, when one
// exists.
func recommendAction(status agent.Status) string {
	switch {
	case status.LastError == "":
		return ""
	case !status.CompanionRunning:
		return "start the companion app on the device"
	case !status.Connected:
		return "restart the companion; the transport port is not accepting connections"
	default:
		return "verify the device is connected and visible to the agent"
	}
}
