package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		stuck         bool
		absent        bool
		deviceMissing bool
	}{
		{
			name:  "stuck transport",
			err:   &TransportStuckError{Port: 8080},
			stuck: true,
		},
		{
			name:  "wrapped stuck transport",
			err:   fmt.Errorf("tap failed: %w", &TransportStuckError{Port: 8080}),
			stuck: true,
		},
		{
			name:  "operation timeout counts as stuck",
			err:   ErrOperationTimeout,
			stuck: true,
		},
		{
			name:   "companion absent",
			err:    &CompanionAbsentError{},
			absent: true,
		},
		{
			name:          "device missing",
			err:           &DeviceNotFoundError{DeviceID: "D"},
			deviceMissing: true,
		},
		{
			name: "plain error matches nothing",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stuck, IsStuck(tt.err))
			assert.Equal(t, tt.absent, IsAbsent(tt.err))
			assert.Equal(t, tt.deviceMissing, IsDeviceMissing(tt.err))
		})
	}
}

type healthProbeAgent struct {
	Disconnected

	ensureErr error
}

func (a *healthProbeAgent) EnsureConnected(context.Context, string) error {
	return a.ensureErr
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		connected     bool
		companion     bool
		wantHealthy   bool
		wantLastError bool
	}{
		{
			name:        "healthy",
			connected:   true,
			companion:   true,
			wantHealthy: true,
		},
		{
			name:          "companion absent",
			err:           &CompanionAbsentError{},
			wantLastError: true,
		},
		{
			name:          "stuck transport keeps companion flag",
			err:           &TransportStuckError{Port: 8080},
			companion:     true,
			wantLastError: true,
		},
		{
			name:          "device missing keeps connection flags",
			err:           &DeviceNotFoundError{DeviceID: "D"},
			connected:     true,
			companion:     true,
			wantLastError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &healthProbeAgent{ensureErr: tt.err}

			status := CheckHealth(context.Background(), a, "D")
			assert.Equal(t, tt.connected, status.Connected)
			assert.Equal(t, tt.companion, status.CompanionRunning)
			assert.Equal(t, tt.wantHealthy, status.Healthy())
			require.NotNil(t, status.LastHealthCheck)

			if tt.wantLastError {
				assert.NotEmpty(t, status.LastError)
			} else {
				assert.Empty(t, status.LastError)
			}
		})
	}
}
