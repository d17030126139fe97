package calibration

import (
	"context"
	"fmt"

	"github.com/arkavo/arkavo-mcp/internal/agent"
)

const (
	// maxAttempts bounds the tap-sequence refinement loop.
	maxAttempts = 3

	// expectedTaps is the number of taps per attempt.
	expectedTaps = 5

	// offsetTolerance is the reported mean offset magnitude, in screen
	// units, below which the offset is considered settled.
	offsetTolerance = 5.0

	// successAccuracyPct is the minimum tap accuracy for a session to
	// complete successfully.
	successAccuracyPct = 60.0
)

// tapPositions are the screen-relative calibration points, visited in
// order.
var tapPositions = [expectedTaps]Offset{
	{X: 0.2, Y: 0.2},
	{X: 0.8, Y: 0.2},
	{X: 0.5, Y: 0.5},
	{X: 0.2, Y: 0.8},
	{X: 0.8, Y: 0.8},
}

// feedbackKey is the state-store key the reference application writes its
// verification artifact to.
func feedbackKey(deviceID string) string {
	return "calibration_feedback_" + deviceID
}

// runTapSequence refines the coordinate offset over bounded attempts. Each
// attempt clears the previous verification artifact, issues the five-point
// sequence, then waits for the reference app to report where the taps
// landed.
func (o *Orchestrator) runTapSequence(ctx context.Context, s *Session) {
	log := o.log.With("session_id", s.ID())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		o.states.Delete(feedbackKey(s.DeviceID()))

		log.Info("Tap attempt starting", "attempt", attempt, "offset_x", s.Offset().X, "offset_y", s.Offset().Y)

		s.beginTapRound()
		o.tapRound(ctx, s)

		reported, found := o.awaitFeedback(ctx, s.DeviceID())
		if !found {
			log.Warn("No verification artifact from reference app", "attempt", attempt)

			return
		}

		s.accumulateOffset(reported)

		if reported.Magnitude() < offsetTolerance {
			log.Info("Offset within tolerance", "attempt", attempt,
				"reported_x", reported.X, "reported_y", reported.Y)

			return
		}

		log.Info("Offset out of tolerance, retrying",
			"attempt", attempt, "magnitude", reported.Magnitude())
	}
}

// tapRound issues the five-point sequence once, with the watchdog check
// before every tap and a health probe after every second tap.
func (o *Orchestrator) tapRound(ctx context.Context, s *Session) {
	offset := s.Offset()

	for i, pos := range tapPositions {
		if ctx.Err() != nil {
			return
		}

		o.watchdogCheck(ctx, s)

		x := pos.X*o.screen.Width + offset.X
		y := pos.Y*o.screen.Height + offset.Y

		o.performTap(ctx, s, x, y)

		if i%2 == 1 {
			status := agent.CheckHealth(ctx, o.agent, s.DeviceID())
			s.setAgentStatus(status)
		}

		if err := sleepCtx(ctx, o.timing.TapInterval); err != nil {
			return
		}
	}
}

// performTap executes one tap under the per-operation deadline.
//
// Outcomes: success records the tap and resets the watchdog clock; a
// stuck-transport or absent-companion failure triggers recovery and
// exactly one retry of the same coordinates; a deadline expiry triggers
// recovery with no retry. A result arriving after the deadline is
// abandoned.
func (o *Orchestrator) performTap(ctx context.Context, s *Session, x, y float64) bool {
	err, timedOut := o.tapOnce(ctx, s.DeviceID(), x, y)
	if err == nil && !timedOut {
		s.recordTap()

		return true
	}

	if timedOut {
		if ctx.Err() != nil {
			return false
		}

		s.addDiagnostic("tap (%.1f,%.1f) deadline exceeded", x, y)
		o.recoverAgent(ctx, s, statusForError(agent.ErrOperationTimeout))

		return false
	}

	s.addDiagnostic("tap (%.1f,%.1f) failed: %v", x, y, err)

	// Stuck transports and an absent companion are both recoverable;
	// anything else is skipped without burning a recovery.
	if !agent.IsStuck(err) && !agent.IsAbsent(err) {
		return false
	}

	o.recoverAgent(ctx, s, statusForError(err))

	if sleepCtx(ctx, o.timing.RetryDelay) != nil {
		return false
	}

	err, timedOut = o.tapOnce(ctx, s.DeviceID(), x, y)
	if err == nil && !timedOut {
		s.recordTap()

		return true
	}

	s.addDiagnostic("tap (%.1f,%.1f) retry failed", x, y)

	return false
}

// tapOnce calls the agent with a hard deadline, abandoning the call when
// it does not return in time.
func (o *Orchestrator) tapOnce(ctx context.Context, deviceID string, x, y float64) (err error, timedOut bool) {
	tapCtx, cancel := context.WithTimeout(ctx, o.timing.TapDeadline)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- o.agent.Tap(tapCtx, deviceID, x, y)
	}()

	select {
	case err := <-errCh:
		return err, false
	case <-tapCtx.Done():
		return tapCtx.Err(), true
	}
}

// statusForError synthesizes a Status for recovery-path selection from a
// single operation error.
func statusForError(err error) agent.Status {
	return agent.Status{
		Connected:        !agent.IsStuck(err) && !agent.IsAbsent(err),
		CompanionRunning: !agent.IsAbsent(err),
		LastError:        err.Error(),
	}
}

// watchdogCheck recovers the agent when the tap sequence has stalled past
// the window. At most one recovery fires per stall; the flag re-arms on
// the next successful tap.
func (o *Orchestrator) watchdogCheck(ctx context.Context, s *Session) {
	stalled, alreadyRecovered := s.stallState(o.timing.WatchdogWindow)
	if !stalled || alreadyRecovered {
		return
	}

	s.markStallRecovery()
	o.log.Warn("Watchdog: tap sequence stalled, recovering agent",
		"session_id", s.ID(), "device_id", s.DeviceID())
	s.addDiagnostic("watchdog recovery triggered")

	o.recoverAgent(ctx, s, s.AgentStatus())

	if sleepCtx(ctx, o.timing.WatchdogBackoff) != nil {
		return
	}

	status := agent.CheckHealth(ctx, o.agent, s.DeviceID())
	s.setAgentStatus(status)
}

// awaitFeedback polls the state store for the verification artifact the
// reference app produces, up to the verify deadline.
func (o *Orchestrator) awaitFeedback(ctx context.Context, deviceID string) (Offset, bool) {
	deadline, cancel := context.WithTimeout(ctx, o.timing.VerifyWait)
	defer cancel()

	for {
		if value, ok := o.states.Get(feedbackKey(deviceID)); ok {
			if reported, ok := parseFeedback(value); ok {
				return reported, true
			}
		}

		if sleepCtx(deadline, o.timing.VerifyPoll) != nil {
			return Offset{}, false
		}
	}
}

// parseFeedback extracts the mean offset from a verification artifact of
// the form {"average_offset": {"x": ..., "y": ...}}.
func parseFeedback(value any) (Offset, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return Offset{}, false
	}

	avg, ok := obj["average_offset"].(map[string]any)
	if !ok {
		return Offset{}, false
	}

	x, xok := avg["x"].(float64)

	y, yok := avg["y"].(float64)
	if !xok || !yok {
		return Offset{}, false
	}

	return Offset{X: x, Y: y}, true
}

// String renders an offset for diagnostics.
func (o Offset) String() string {
	return fmt.Sprintf("(%.1f,%.1f)", o.X, o.Y)
}
