package jsonrpc

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// maxScanTokenSize caps the length of a single request line.
const maxScanTokenSize = 1024 * 1024 // 1MB

// LineReader yields one raw line per Scan call. Blank lines are skipped.
type LineReader struct {
	scanner *bufio.Scanner
	line    []byte
}

// NewLineReader wraps r with a scanner sized for large single-line documents.
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	return &LineReader{scanner: scanner}
}

// Scan advances to the next non-empty line. It returns false at EOF or on
// a read error; check Err to distinguish.
func (r *LineReader) Scan() bool {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		r.line = line

		return true
	}

	return false
}

// Bytes returns the current line. Valid until the next Scan call.
func (r *LineReader) Bytes() []byte {
	return r.line
}

// Err returns the first non-EOF error encountered while reading.
func (r *LineReader) Err() error {
	return r.scanner.Err()
}

// LineWriter serializes responses onto the output stream, one compact JSON
// document per line. Writes from concurrent tool tasks are mutex-ordered so
// the stream never interleaves partial documents.
type LineWriter struct {
	log *slog.Logger
	mu  sync.Mutex
	w   io.Writer
}

// NewLineWriter creates a writer over the response stream.
func NewLineWriter(log *slog.Logger, w io.Writer) *LineWriter {
	return &LineWriter{
		log: log.With("component", "codec"),
		w:   w,
	}
}

// Write marshals v and emits it followed by a newline. A marshal failure
// writes nothing to the stream; the stream must never carry partial JSON.
func (w *LineWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		w.log.Error("Failed to marshal response, suppressing", "error", err)

		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(append(data, '\n')); err != nil {
		w.log.Error("Failed to write response", "error", err)

		return err
	}

	return nil
}
