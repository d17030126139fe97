package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultRoot is the default on-disk location for calibration data.
const DefaultRoot = "/tmp/arkavo_calibration"

// ErrNotCalibrated indicates no stored calibration exists for a device.
var ErrNotCalibrated = errors.New("no calibration found for device")

// Size is a screen dimension in points.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Config describes the device a calibration result belongs to.
type Config struct {
	DeviceID       string    `json:"device_id"`
	DeviceType     string    `json:"device_type"`
	ScreenSize     Size      `json:"screen_size"`
	ScaleFactor    float64   `json:"scale_factor"`
	Version        string    `json:"version"`
	LastCalibrated time.Time `json:"last_calibrated"`
}

// Adjustment is the per-element-type interaction tuning derived from a
// successful calibration.
type Adjustment struct {
	TapOffset Offset `json:"tap_offset"`
	DoubleTap bool   `json:"double_tap"`
	LongPress bool   `json:"long_press"`
	DelayMS   int    `json:"delay_ms"`
}

// Report summarizes the tap verification pass.
type Report struct {
	Total       int      `json:"total"`
	Successful  int      `json:"successful"`
	Failed      int      `json:"failed"`
	AccuracyPct float64  `json:"accuracy_pct"`
	Issues      []string `json:"issues"`
}

// Result is the outcome of a calibration session. Only successful results
// are persisted.
type Result struct {
	Success                bool                  `json:"success"`
	DeviceProfile          string                `json:"device_profile"`
	InteractionAdjustments map[string]Adjustment `json:"interaction_adjustments"`
	ValidationReport       Report                `json:"validation_report"`
}

// ExportDocument is the single-document encoding used by export and
// import.
type ExportDocument struct {
	Config *Config `json:"config"`
	Result *Result `json:"result"`
}

// FileStore persists calibration data as one directory per device under a
// root, each holding config.json and result.json.
type FileStore struct {
	log  *slog.Logger
	root string
	mu   sync.Mutex
}

// NewFileStore creates a store rooted at root, or DefaultRoot when empty.
func NewFileStore(log *slog.Logger, root string) *FileStore {
	if root == "" {
		root = DefaultRoot
	}

	return &FileStore{
		log:  log.With("component", "calibration_store"),
		root: root,
	}
}

const (
	configFile = "config.json"
	resultFile = "result.json"
)

// deviceDir validates the device id and returns its directory.
func (f *FileStore) deviceDir(deviceID string) (string, error) {
	if deviceID == "" || deviceID == "." || deviceID == ".." ||
		strings.ContainsAny(deviceID, `/\`) || deviceID != filepath.Base(deviceID) {
		return "", fmt.Errorf("invalid device id %q", deviceID)
	}

	return filepath.Join(f.root, deviceID), nil
}

// Save writes the config/result pair for a device.
func (f *FileStore) Save(deviceID string, cfg Config, res Result) error {
	dir, err := f.deviceDir(deviceID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, configFile), cfg); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, resultFile), res); err != nil {
		return err
	}

	f.log.Info("Calibration saved", "device_id", deviceID)

	return nil
}

// Load reads the stored config/result pair for a device.
func (f *FileStore) Load(deviceID string) (*Config, *Result, error) {
	dir, err := f.deviceDir(deviceID)
	if err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var cfg Config
	if err := readJSON(filepath.Join(dir, configFile), &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotCalibrated, deviceID)
		}

		return nil, nil, err
	}

	var res Result
	if err := readJSON(filepath.Join(dir, resultFile), &res); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotCalibrated, deviceID)
		}

		return nil, nil, err
	}

	return &cfg, &res, nil
}

// Devices lists the device ids with stored calibration data.
func (f *FileStore) Devices() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read calibration root: %w", err)
	}

	devices := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			devices = append(devices, entry.Name())
		}
	}

	return devices, nil
}

// Export encodes a device's calibration as one JSON document.
func (f *FileStore) Export(deviceID string) ([]byte, error) {
	cfg, res, err := f.Load(deviceID)
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(ExportDocument{Config: cfg, Result: res}, "", "  ")
}

// Import decodes an export document and stores it, returning the device id
// it belongs to.
func (f *FileStore) Import(data []byte) (string, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode calibration document: %w", err)
	}

	if doc.Config == nil || doc.Result == nil {
		return "", errors.New("calibration document missing config or result")
	}

	if doc.Config.DeviceID == "" {
		return "", errors.New("calibration document missing device id")
	}

	if err := f.Save(doc.Config.DeviceID, *doc.Config, *doc.Result); err != nil {
		return "", err
	}

	return doc.Config.DeviceID, nil
}

// writeJSON writes v atomically: temp file in the target directory, then
// rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	return nil
}
