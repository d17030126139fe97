package metrics

import (
	"log/slog"
	"sync"
)

// Counters holds the per-tool call tally.
type Counters struct {
	Calls    int `json:"calls"`
	Errors   int `json:"errors"`
	Timeouts int `json:"timeouts"`
}

// Recorder accumulates per-tool counters across parallel dispatcher tasks.
type Recorder struct {
	log     *slog.Logger
	mu      sync.Mutex
	perTool map[string]*Counters
	total   Counters
}

// NewRecorder creates an empty recorder.
func NewRecorder(log *slog.Logger) *Recorder {
	return &Recorder{
		log:     log.With("component", "metrics"),
		perTool: make(map[string]*Counters, 8),
	}
}

func (r *Recorder) counters(tool string) *Counters {
	c, ok := r.perTool[tool]
	if !ok {
		c = &Counters{}
		r.perTool[tool] = c
	}

	return c
}

// RecordCall counts one invocation of tool.
func (r *Recorder) RecordCall(tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters(tool).Calls++
	r.total.Calls++
}

// RecordError counts one failed invocation of tool.
func (r *Recorder) RecordError(tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters(tool).Errors++
	r.total.Errors++
}

// RecordTimeout counts one timed-out invocation of tool.
func (r *Recorder) RecordTimeout(tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters(tool).Timeouts++
	r.total.Timeouts++
}

// Snapshot returns an owned copy of all counters.
func (r *Recorder) Snapshot() map[string]Counters {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Counters, len(r.perTool))
	for tool, c := range r.perTool {
		out[tool] = *c
	}

	return out
}

// Total returns the aggregate counters.
func (r *Recorder) Total() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.total
}

// LogSummary dumps the counters to the side channel.
func (r *Recorder) LogSummary() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for tool, c := range r.perTool {
		r.log.Info("Tool call counters", "tool", tool,
			"calls", c.Calls, "errors", c.Errors, "timeouts", c.Timeouts)
	}

	r.log.Info("Tool call totals",
		"calls", r.total.Calls, "errors", r.total.Errors, "timeouts", r.total.Timeouts)
}
