package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arkavo/arkavo-mcp/internal/agent"
	"github.com/arkavo/arkavo-mcp/internal/calibration"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

var _ tool.Tool = (*CalibrationManager)(nil)

// CalibrationManager exposes the calibration orchestrator: session
// lifecycle, status, stored results, monitoring, and import/export.
type CalibrationManager struct {
	orch    *calibration.Orchestrator
	store   *calibration.FileStore
	monitor *calibration.Monitor
	agent   agent.DeviceAgent
}

// NewCalibrationManager creates the calibration_manager tool.
func NewCalibrationManager(
	orch *calibration.Orchestrator,
	store *calibration.FileStore,
	monitor *calibration.Monitor,
	deviceAgent agent.DeviceAgent,
) *CalibrationManager {
	return &CalibrationManager{
		orch:    orch,
		store:   store,
		monitor: monitor,
		agent:   deviceAgent,
	}
}

func (t *CalibrationManager) Name() string { return "calibration_manager" }

func (t *CalibrationManager) Description() string {
	return "Manage device coordinate calibration: run sessions, query status and results, monitor staleness, import/export data"
}

func (t *CalibrationManager) InputSchema() *jsonschema.Schema {
	return tool.Simple(map[string]string{
		"action":           "string",
		"device_id":        "string",
		"session_id":       "string",
		"bundle_id":        "string",
		"enabled":          "bool",
		"calibration_data": "object",
	}, "action")
}

func (t *CalibrationManager) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	action, ok := args["action"].(string)
	if !ok || action == "" {
		return tool.ErrorResult("InvalidParams", "action is required"), nil
	}

	switch action {
	case "start_calibration":
		return t.startCalibration(args)
	case "get_status":
		return t.getStatus(args)
	case "get_calibration":
		return t.getCalibration(args)
	case "list_devices":
		return t.listDevices(ctx)
	case "install_reference_app":
		return t.installReferenceApp(ctx, args)
	case "enable_monitoring":
		return t.enableMonitoring(args)
	case "export_calibration":
		return t.exportCalibration(args)
	case "import_calibration":
		return t.importCalibration(args)
	default:
		return tool.ErrorResult("InvalidParams", "unknown action %q", action), nil
	}
}

func (t *CalibrationManager) deviceID(args map[string]any) (string, bool) {
	deviceID, ok := args["device_id"].(string)

	return deviceID, ok && deviceID != ""
}

func (t *CalibrationManager) startCalibration(args map[string]any) (map[string]any, error) {
	deviceID, ok := t.deviceID(args)
	if !ok {
		return tool.ErrorResult("InvalidParams", "device_id is required"), nil
	}

	sessionID, err := t.orch.Start(deviceID)
	if err != nil {
		var active *calibration.ActiveSessionError
		if errors.As(err, &active) {
			return tool.ErrorResult("SessionActive", "%v", err), nil
		}

		return tool.ErrorResult("StartFailed", "%v", err), nil
	}

	return map[string]any{
		"session_id": sessionID,
		"device_id":  deviceID,
		"status":     "initializing",
	}, nil
}

func (t *CalibrationManager) getStatus(args map[string]any) (map[string]any, error) {
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return tool.ErrorResult("InvalidParams", "session_id is required"), nil
	}

	report, err := t.orch.GetStatus(sessionID)
	if err != nil {
		return tool.ErrorResult("NotFound", "%v", err), nil
	}

	return toMap(report)
}

func (t *CalibrationManager) getCalibration(args map[string]any) (map[string]any, error) {
	deviceID, ok := t.deviceID(args)
	if !ok {
		return tool.ErrorResult("InvalidParams", "device_id is required"), nil
	}

	cfg, result, err := t.orch.Calibration(deviceID)
	if err != nil {
		if errors.Is(err, calibration.ErrNotCalibrated) {
			return tool.ErrorResult("NotFound", "no calibration found for device %s", deviceID), nil
		}

		return tool.ErrorResult("LoadFailed", "%v", err), nil
	}

	return toMap(map[string]any{"config": cfg, "result": result})
}

func (t *CalibrationManager) listDevices(ctx context.Context) (map[string]any, error) {
	devices, err := t.agent.ListDevices(ctx)
	if err != nil {
		return tool.ErrorResult("AgentUnavailable", "%v", err), nil
	}

	calibrated, err := t.store.Devices()
	if err != nil {
		return tool.ErrorResult("LoadFailed", "%v", err), nil
	}

	return toMap(map[string]any{
		"devices":    devices,
		"calibrated": calibrated,
	})
}

func (t *CalibrationManager) installReferenceApp(ctx context.Context, args map[string]any) (map[string]any, error) {
	deviceID, ok := t.deviceID(args)
	if !ok {
		return tool.ErrorResult("InvalidParams", "device_id is required"), nil
	}

	bundleID, _ := args["bundle_id"].(string)
	if bundleID == "" {
		bundleID = calibration.ReferenceBundleID
	}

	if err := t.agent.InstallApp(ctx, deviceID, bundleID); err != nil {
		return tool.ErrorResult("InstallFailed", "%v", err), nil
	}

	return map[string]any{
		"installed": bundleID,
		"device_id": deviceID,
	}, nil
}

func (t *CalibrationManager) enableMonitoring(args map[string]any) (map[string]any, error) {
	enabled, ok := args["enabled"].(bool)
	if !ok {
		return tool.ErrorResult("InvalidParams", "enabled is required"), nil
	}

	if enabled {
		if err := t.monitor.Start(); err != nil {
			return tool.ErrorResult("MonitorFailed", "%v", err), nil
		}
	} else {
		t.monitor.Stop()
	}

	return map[string]any{"monitoring": enabled}, nil
}

func (t *CalibrationManager) exportCalibration(args map[string]any) (map[string]any, error) {
	deviceID, ok := t.deviceID(args)
	if !ok {
		return tool.ErrorResult("InvalidParams", "device_id is required"), nil
	}

	doc, err := t.store.Export(deviceID)
	if err != nil {
		if errors.Is(err, calibration.ErrNotCalibrated) {
			return tool.ErrorResult("NotFound", "no calibration found for device %s", deviceID), nil
		}

		return tool.ErrorResult("ExportFailed", "%v", err), nil
	}

	var payload map[string]any
	if err := json.Unmarshal(doc, &payload); err != nil {
		return tool.ErrorResult("ExportFailed", "%v", err), nil
	}

	return map[string]any{
		"device_id":        deviceID,
		"calibration_data": payload,
	}, nil
}

func (t *CalibrationManager) importCalibration(args map[string]any) (map[string]any, error) {
	data, ok := args["calibration_data"].(map[string]any)
	if !ok {
		return tool.ErrorResult("InvalidParams", "calibration_data is required"), nil
	}

	doc, err := json.Marshal(data)
	if err != nil {
		return tool.ErrorResult("ImportFailed", "%v", err), nil
	}

	deviceID, err := t.store.Import(doc)
	if err != nil {
		return tool.ErrorResult("ImportFailed", "%v", err), nil
	}

	return map[string]any{
		"imported":  true,
		"device_id": deviceID,
	}, nil
}

// toMap round-trips a typed value into the JSON-shaped map tools return.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}
