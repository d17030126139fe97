package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arkavo/arkavo-mcp/internal/jsonrpc"
	"github.com/arkavo/arkavo-mcp/internal/metrics"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

// Per-call execution deadlines. Tools on the long-running list drive
// device sessions and get the extended budget.
const (
	defaultToolTimeout = 30 * time.Second
	longToolTimeout    = 120 * time.Second
)

// longRunning names the tools that get longToolTimeout.
var longRunning = map[string]struct{}{
	"calibration_manager": {},
	"run_test":            {},
}

// Dispatcher owns the request loop over one stdio pair.
type Dispatcher struct {
	log      *slog.Logger
	registry *tool.Registry
	rec      *metrics.Recorder
	reader   *jsonrpc.LineReader
	writer   *jsonrpc.LineWriter
	version  string

	// timeouts are fields so tests can shrink them.
	defaultTimeout time.Duration
	longTimeout    time.Duration

	// wg tracks in-flight tool tasks; Run waits them out before returning.
	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeouts overrides the per-call deadlines.
func WithTimeouts(def, long time.Duration) Option {
	return func(d *Dispatcher) {
		d.defaultTimeout = def
		d.longTimeout = long
	}
}

// New creates a dispatcher reading requests from in and writing responses
// to out. Nothing but responses is ever written to out.
func New(log *slog.Logger, registry *tool.Registry, rec *metrics.Recorder, in io.Reader, out io.Writer, version string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:            log.With("component", "dispatcher"),
		registry:       registry,
		rec:            rec,
		reader:         jsonrpc.NewLineReader(in),
		writer:         jsonrpc.NewLineWriter(log, out),
		version:        version,
		defaultTimeout: defaultToolTimeout,
		longTimeout:    longToolTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Run processes requests until the input stream ends or ctx is cancelled.
// A clean EOF returns nil after in-flight tool tasks drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()

	for d.reader.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d.handleLine(ctx, d.reader.Bytes())
	}

	if err := d.reader.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}

	d.log.Info("Request stream closed")

	return nil
}

// handleLine decodes one request line and routes it. Requests whose id
// cannot be recovered produce no response at all.
func (d *Dispatcher) handleLine(ctx context.Context, line []byte) {
	corr := d.nextCorrelationID()
	log := d.log.With("corr_id", corr)

	req, rpcErr := jsonrpc.ParseRequest(line)
	if rpcErr != nil {
		if !req.ID.Valid() {
			log.Warn("Dropping undeliverable request", "code", rpcErr.Code, "detail", rpcErr.Data)

			return
		}

		log.Warn("Rejecting malformed request", "id", req.ID.String(), "code", rpcErr.Code)
		d.send(log, jsonrpc.NewErrorResponse(req.ID, rpcErr))

		return
	}

	log = log.With("id", req.ID.String(), "method", req.Method)

	switch req.Method {
	case "initialize":
		log.Info("Handling initialize")
		d.send(log, jsonrpc.NewResult(req.ID, initializeResult(d.registry, d.version)))

	case "tools/list":
		d.send(log, jsonrpc.NewResult(req.ID, toolsListResult(d.registry)))

	case "tools/call":
		d.dispatchToolCall(ctx, log, req)

	default:
		log.Warn("Unknown method")
		d.send(log, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewMethodNotFound(req.Method)))
	}
}

// callParams is the expected tools/call params shape.
type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// dispatchToolCall validates the call envelope inline, then runs the tool
// in its own goroutine so slow tools never stall the decode loop.
func (d *Dispatcher) dispatchToolCall(ctx context.Context, log *slog.Logger, req *jsonrpc.Request) {
	if len(req.Params) == 0 {
		d.send(log, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewInvalidParams("params object required")))

		return
	}

	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		d.send(log, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewInvalidParams(err.Error())))

		return
	}

	if params.Name == "" {
		d.send(log, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewInvalidParams("tool name required")))

		return
	}

	t, ok := d.registry.Get(params.Name)
	if !ok {
		log.Warn("Unknown or disallowed tool", "tool", params.Name)
		d.send(log, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewMethodNotFound(params.Name)))

		return
	}

	d.rec.RecordCall(params.Name)
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		d.runTool(ctx, log, req.ID, t, params.Arguments)
	}()
}

// runTool executes one tool under its deadline and emits the response. A
// tool that outlives the deadline is abandoned: the timeout response goes
// out immediately and the late result is discarded.
func (d *Dispatcher) runTool(ctx context.Context, log *slog.Logger, id jsonrpc.ID, t tool.Tool, args map[string]any) {
	timeout := d.defaultTimeout
	if _, ok := longRunning[t.Name()]; ok {
		timeout = d.longTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()

	type outcome struct {
		result map[string]any
		err    error
	}

	outcomes := make(chan outcome, 1)

	go func() {
		result, err := d.executeSafely(callCtx, t, args)
		outcomes <- outcome{result: result, err: err}
	}()

	var (
		result map[string]any
		err    error
	)

	select {
	case out := <-outcomes:
		result, err = out.result, out.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}

	log = log.With("tool", t.Name(), "elapsed", time.Since(started).Round(time.Millisecond).String())

	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		d.rec.RecordTimeout(t.Name())
		log.Error("Tool execution timed out")
		d.send(log, jsonrpc.NewErrorResponse(id, jsonrpc.NewInternalError("Tool execution timeout", nil)))

	case err != nil:
		d.rec.RecordError(t.Name())
		log.Error("Tool execution failed", "error", err)
		d.send(log, jsonrpc.NewErrorResponse(id, jsonrpc.NewInternalError(err.Error(), nil)))

	default:
		if code, message, isToolErr := tool.ErrorOf(result); isToolErr {
			d.rec.RecordError(t.Name())
			log.Warn("Tool reported error", "code", code)
			d.send(log, jsonrpc.NewErrorResponse(id,
				jsonrpc.NewInternalError(fmt.Sprintf("%s: %s", code, message), result)))

			return
		}

		log.Debug("Tool call complete")
		d.send(log, jsonrpc.NewResult(id, wrapResult(result)))
	}
}

// executeSafely invokes the tool, converting panics into errors so a
// misbehaving tool can never crash the loop or corrupt the stream.
func (d *Dispatcher) executeSafely(ctx context.Context, t tool.Tool, args map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}

	return t.Execute(ctx, args)
}

// wrapResult encodes a tool result in the content-block shape clients
// expect from tools/call.
func wrapResult(result map[string]any) map[string]any {
	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		text = []byte(fmt.Sprintf("%v", result))
	}

	return map[string]any{
		"content": []any{
			map[string]any{
				"type": "text",
				"text": string(text),
			},
		},
	}
}

// send validates and writes one response. A response failing validation is
// replaced with an internal error carrying the same id; responses with no
// valid id are suppressed.
func (d *Dispatcher) send(log *slog.Logger, resp *jsonrpc.Response) {
	if err := resp.Validate(); err != nil {
		log.Error("Outbound response failed validation", "error", err)

		if !resp.ID.Valid() {
			return
		}

		resp = jsonrpc.NewErrorResponse(resp.ID,
			jsonrpc.NewInternalError("Internal error: invalid response generated", nil))
	}

	if err := d.writer.Write(resp); err != nil {
		log.Error("Failed to emit response", "error", err)
	}
}

// nextCorrelationID mints the per-request id attached to log records.
func (d *Dispatcher) nextCorrelationID() string {
	return ulid.Make().String()
}
