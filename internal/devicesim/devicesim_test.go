package devicesim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brlapi/brlapi-core/internal/device"
)

// newTestDriver spawns a real pty-backed simulator. If the host has no pty
// subsystem (no /dev/ptmx, no `cat` binary) the test is skipped rather than
// failed, since this package's only job is to exercise a real OS facility
// that a CI sandbox may not always provide.
func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := New(40, 1)
	if err != nil {
		t.Skipf("pty unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewReportsConfiguredDisplaySize(t *testing.T) {
	d := newTestDriver(t)
	cols, rows := d.DisplaySize()
	require.Equal(t, 40, cols)
	require.Equal(t, 1, rows)
}

func TestWriteWindowThenClose(t *testing.T) {
	d := newTestDriver(t)
	cells := make([]byte, 40)
	cells[0] = 0x01
	require.NoError(t, d.WriteWindow(context.Background(), cells))
	require.NoError(t, d.Close())
	require.Error(t, d.WriteWindow(context.Background(), cells))
}

func TestReadCommandNonBlockingWhenNothingTyped(t *testing.T) {
	d := newTestDriver(t)
	_, ok, err := d.ReadCommand(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnterRawSuppressesReadCommand(t *testing.T) {
	d := newTestDriver(t)
	d.EnterRaw()
	_, ok, err := d.ReadCommand(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = d.ReadPacket(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	d.LeaveRaw()
}

func TestResizePublishesResizeRequired(t *testing.T) {
	d := newTestDriver(t)
	ch := d.Bus().Subscribe(device.ResizeRequired)
	require.NoError(t, d.Resize(20, 2))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected ResizeRequired to be published")
	}

	cols, rows := d.DisplaySize()
	require.Equal(t, 20, cols)
	require.Equal(t, 2, rows)
}

func TestResetClearsRawMode(t *testing.T) {
	d := newTestDriver(t)
	d.EnterRaw()
	require.NoError(t, d.Reset(context.Background()))
	require.False(t, d.rawMode)

	_, ok, err := d.ReadCommand(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeyNameAndSummaryAreStable(t *testing.T) {
	d := newTestDriver(t)
	require.Equal(t, "SIM_KEY_1_2", d.KeyName(1, 2))
	require.NotEmpty(t, d.KeySummary(1, 2))
}

func TestCloseIsIdempotent(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}
