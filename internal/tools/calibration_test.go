package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkavo/arkavo-mcp/internal/calibration"
	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

func fastTiming() calibration.Timing {
	return calibration.Timing{
		GlobalTimeout:   2 * time.Second,
		SettleDelay:     time.Millisecond,
		HealthBackoff:   time.Millisecond,
		TapDeadline:     100 * time.Millisecond,
		TapInterval:     time.Millisecond,
		RetryDelay:      time.Millisecond,
		WatchdogWindow:  time.Second,
		WatchdogBackoff: time.Millisecond,
		VerifyWait:      20 * time.Millisecond,
		VerifyPoll:      time.Millisecond,
		StuckAfter:      time.Second,
	}
}

func newCalibrationTool(t *testing.T, a *stubAgent) (*CalibrationManager, *calibration.Orchestrator, *calibration.FileStore) {
	t.Helper()

	log := testLogger()
	store := calibration.NewFileStore(log, t.TempDir())
	orch := calibration.New(log, a, state.NewStore(log), store,
		calibration.WithTiming(fastTiming()))
	monitor := calibration.NewMonitor(log, orch, store,
		calibration.WithCheckInterval(time.Hour))

	return NewCalibrationManager(orch, store, monitor, a), orch, store
}

func TestCalibrationManager_ActionRequired(t *testing.T) {
	cm, _, _ := newCalibrationTool(t, &stubAgent{})

	result, err := cm.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "InvalidParams", code)

	result, err = cm.Execute(context.Background(), map[string]any{"action": "reticulate"})
	require.NoError(t, err)

	code, _, ok = tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "InvalidParams", code)
}

func TestCalibrationManager_StartAndStatus(t *testing.T) {
	cm, orch, _ := newCalibrationTool(t, &stubAgent{})

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "start_calibration", "device_id": "sim-1",
	})
	require.NoError(t, err)

	sessionID, ok := result["session_id"].(string)
	require.True(t, ok)
	assert.Contains(t, sessionID, "cal_sim-1_")
	assert.Equal(t, "initializing", result["status"])

	status, err := cm.Execute(context.Background(), map[string]any{
		"action": "get_status", "session_id": sessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, status["session_id"])

	orch.Wait()
}

func TestCalibrationManager_DuplicateStartRejected(t *testing.T) {
	a := &stubAgent{tapBlock: make(chan struct{})}
	cm, orch, _ := newCalibrationTool(t, a)

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "start_calibration", "device_id": "sim-1",
	})
	require.NoError(t, err)
	require.NotNil(t, result["session_id"])

	result, err = cm.Execute(context.Background(), map[string]any{
		"action": "start_calibration", "device_id": "sim-1",
	})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "SessionActive", code)

	close(a.tapBlock)
	orch.Wait()
}

func TestCalibrationManager_GetStatusUnknownSession(t *testing.T) {
	cm, _, _ := newCalibrationTool(t, &stubAgent{})

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "get_status", "session_id": "cal_none_0",
	})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "NotFound", code)
}

func TestCalibrationManager_GetCalibration(t *testing.T) {
	cm, _, store := newCalibrationTool(t, &stubAgent{})

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "get_calibration", "device_id": "sim-9",
	})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "NotFound", code)

	require.NoError(t, store.Save("sim-9", calibration.Config{
		DeviceID:       "sim-9",
		DeviceType:     "simulator",
		ScreenSize:     calibration.Size{Width: 100, Height: 100},
		ScaleFactor:    1,
		Version:        "1",
		LastCalibrated: time.Now().UTC(),
	}, calibration.Result{Success: true, DeviceProfile: "sim-9"}))

	result, err = cm.Execute(context.Background(), map[string]any{
		"action": "get_calibration", "device_id": "sim-9",
	})
	require.NoError(t, err)

	cfg, ok := result["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sim-9", cfg["device_id"])
}

func TestCalibrationManager_InstallReferenceApp(t *testing.T) {
	a := &stubAgent{}
	cm, _, _ := newCalibrationTool(t, a)

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "install_reference_app", "device_id": "sim-1",
	})
	require.NoError(t, err)

	assert.Equal(t, calibration.ReferenceBundleID, result["installed"])
	assert.Equal(t, []string{calibration.ReferenceBundleID}, a.installed)
}

func TestCalibrationManager_MonitoringToggle(t *testing.T) {
	cm, _, _ := newCalibrationTool(t, &stubAgent{})

	result, err := cm.Execute(context.Background(), map[string]any{
		"action": "enable_monitoring", "enabled": true,
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["monitoring"])

	result, err = cm.Execute(context.Background(), map[string]any{
		"action": "enable_monitoring", "enabled": false,
	})
	require.NoError(t, err)
	assert.Equal(t, false, result["monitoring"])
}

func TestCalibrationManager_ExportImportRoundTrip(t *testing.T) {
	cm, _, store := newCalibrationTool(t, &stubAgent{})

	require.NoError(t, store.Save("sim-2", calibration.Config{
		DeviceID:       "sim-2",
		DeviceType:     "simulator",
		ScreenSize:     calibration.Size{Width: 393, Height: 852},
		ScaleFactor:    1,
		Version:        "1",
		LastCalibrated: time.Now().UTC(),
	}, calibration.Result{Success: true, DeviceProfile: "sim-2"}))

	exported, err := cm.Execute(context.Background(), map[string]any{
		"action": "export_calibration", "device_id": "sim-2",
	})
	require.NoError(t, err)

	payload, ok := exported["calibration_data"].(map[string]any)
	require.True(t, ok)

	imported, err := cm.Execute(context.Background(), map[string]any{
		"action": "import_calibration", "calibration_data": payload,
	})
	require.NoError(t, err)

	assert.Equal(t, true, imported["imported"])
	assert.Equal(t, "sim-2", imported["device_id"])
}
