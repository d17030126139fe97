package metrics

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.RecordCall("a")
	r.RecordCall("a")
	r.RecordError("a")
	r.RecordCall("b")
	r.RecordTimeout("b")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Counters{Calls: 2, Errors: 1}, snap["a"])
	assert.Equal(t, Counters{Calls: 1, Timeouts: 1}, snap["b"])
	assert.Equal(t, Counters{Calls: 3, Errors: 1, Timeouts: 1}, r.Total())
}

func TestRecorder_ConcurrentRecording(t *testing.T) {
	r := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			r.RecordCall("t")
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, r.Snapshot()["t"].Calls)
}
