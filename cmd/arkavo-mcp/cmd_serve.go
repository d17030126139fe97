package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arkavo/arkavo-mcp/internal/agent"
	"github.com/arkavo/arkavo-mcp/internal/calibration"
	"github.com/arkavo/arkavo-mcp/internal/metrics"
	"github.com/arkavo/arkavo-mcp/internal/server"
	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
	"github.com/arkavo/arkavo-mcp/internal/tools"
)

// EnvCalibrationDir overrides where calibration data is stored.
const EnvCalibrationDir = "ARKAVO_CALIBRATION_DIR"

var (
	flagLogLevel       string
	flagCalibrationDir string
)

func init() {
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&flagCalibrationDir, "calibration-dir", "", "calibration data root (default $ARKAVO_CALIBRATION_DIR or "+calibration.DefaultRoot+")")

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tool requests over stdin/stdout until the stream closes",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// newLogger builds the side-channel logger. Stdout belongs to the
// dispatcher alone; every log record goes to stderr.
func newLogger(level string) *slog.Logger {
	var l slog.Level

	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger(flagLogLevel)
	slog.SetDefault(log)

	calibrationDir := flagCalibrationDir
	if calibrationDir == "" {
		calibrationDir = os.Getenv(EnvCalibrationDir)
	}

	if calibrationDir == "" {
		calibrationDir = calibration.DefaultRoot
	}

	deviceAgent, flavor := agent.FromEnv()
	states := state.NewStore(log)
	fileStore := calibration.NewFileStore(log, calibrationDir)
	orch := calibration.New(log, deviceAgent, states, fileStore)
	monitor := calibration.NewMonitor(log, orch, fileStore)
	rec := metrics.NewRecorder(log)

	registry := tool.NewRegistry(log)

	runTest := tools.NewRunTest(states, deviceAgent)

	for _, t := range []tool.Tool{
		tools.NewQueryState(states),
		tools.NewMutateState(states),
		tools.NewSnapshot(states),
		tools.NewCalibrationManager(orch, fileStore, monitor, deviceAgent),
		runTest,
		tools.NewListTests(runTest),
	} {
		registry.Register(t)
		registry.Allow(t.Name())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Server starting",
		"version", version,
		"agent_flavor", flavor,
		"calibration_dir", calibrationDir)

	d := server.New(log, registry, rec, os.Stdin, os.Stdout, version)

	err := d.Run(ctx)

	monitor.Stop()
	rec.LogSummary()

	return err
}
