package calibration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCalibration(deviceID string) (Config, Result) {
	cfg := Config{
		DeviceID:       deviceID,
		DeviceType:     "simulator",
		ScreenSize:     Size{Width: 100, Height: 100},
		ScaleFactor:    1,
		Version:        "1",
		LastCalibrated: time.Now().UTC().Truncate(time.Second),
	}

	res := Result{
		Success:       true,
		DeviceProfile: deviceID,
		InteractionAdjustments: map[string]Adjustment{
			"button":   {TapOffset: Offset{X: 1, Y: 1}, DelayMS: 50},
			"checkbox": {TapOffset: Offset{X: 3, Y: 3}, DelayMS: 50},
		},
		ValidationReport: Report{Total: 5, Successful: 5, AccuracyPct: 100},
	}

	return cfg, res
}

func TestFileStore_SaveLoad(t *testing.T) {
	store := NewFileStore(testLogger(), t.TempDir())

	cfg, res := sampleCalibration("D")
	require.NoError(t, store.Save("D", cfg, res))

	gotCfg, gotRes, err := store.Load("D")
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, gotCfg.DeviceID)
	assert.Equal(t, cfg.ScreenSize, gotCfg.ScreenSize)
	assert.True(t, cfg.LastCalibrated.Equal(gotCfg.LastCalibrated))
	assert.Equal(t, res, *gotRes)
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(testLogger(), t.TempDir())

	_, _, err := store.Load("nope")
	require.ErrorIs(t, err, ErrNotCalibrated)
}

func TestFileStore_LayoutOnDisk(t *testing.T) {
	root := t.TempDir()
	store := NewFileStore(testLogger(), root)

	cfg, res := sampleCalibration("D")
	require.NoError(t, store.Save("D", cfg, res))

	// One directory per device holding config.json and result.json.
	for _, name := range []string{"config.json", "result.json"} {
		_, err := os.Stat(filepath.Join(root, "D", name))
		require.NoError(t, err)
	}

	devices, err := store.Devices()
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, devices)
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	store := NewFileStore(testLogger(), t.TempDir())

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		cfg, res := sampleCalibration(id)

		require.Error(t, store.Save(id, cfg, res), "id %q", id)
	}
}

func TestFileStore_ExportImportRoundTrip(t *testing.T) {
	src := NewFileStore(testLogger(), t.TempDir())
	dst := NewFileStore(testLogger(), t.TempDir())

	cfg, res := sampleCalibration("D")
	require.NoError(t, src.Save("D", cfg, res))

	doc, err := src.Export("D")
	require.NoError(t, err)

	deviceID, err := dst.Import(doc)
	require.NoError(t, err)
	assert.Equal(t, "D", deviceID)

	gotCfg, gotRes, err := dst.Load("D")
	require.NoError(t, err)
	assert.Equal(t, cfg.DeviceID, gotCfg.DeviceID)
	assert.True(t, cfg.LastCalibrated.Equal(gotCfg.LastCalibrated))
	assert.Equal(t, res, *gotRes)
}

func TestFileStore_ImportRejectsPartialDocuments(t *testing.T) {
	store := NewFileStore(testLogger(), t.TempDir())

	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: "not json"},
		{name: "missing result", doc: `{"config":{"device_id":"D"}}`},
		{name: "missing config", doc: `{"result":{"success":true}}`},
		{name: "missing device id", doc: `{"config":{},"result":{"success":true}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Import([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}
