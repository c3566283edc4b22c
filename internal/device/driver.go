// Package device defines the narrow contract the server core requires
// from the true braille driver (spec §6, "host-provided collaborators").
// The core never constructs or destroys the driver itself — that always
// happens on the host's core-task thread (spec §5) — it only calls
// through this interface once the host hands it a live Driver.
package device

import "context"

// Command is one decoded key/command event read from the driver.
type Command struct {
	Group  uint8
	Number uint8
	Press  bool
}

// Driver is the set of entry points C11 interposes on. A real
// implementation talks to serial/USB/Bluetooth hardware; this repo ships
// one concrete implementation, internal/devicesim, built on a local
// pseudo-terminal so the server is runnable without hardware.
type Driver interface {
	Name() string
	Code() string
	Version() string
	ModelIdentifier() string
	Identifier() string
	Speed() uint32
	CellSize() int
	DisplaySize() (cols, rows int)

	// WriteWindow renders the given dot-pattern cells to the display.
	WriteWindow(ctx context.Context, cells []byte) error

	// ReadCommand returns the next driver-level command, or ok=false if
	// none is currently available (non-blocking poll, spec §4.11).
	ReadCommand(ctx context.Context) (cmd Command, ok bool, err error)

	// SupportsRaw reports whether ReadPacket/WritePacket/Reset are usable
	// (spec §4.9 requires this before ENTER_RAW succeeds).
	SupportsRaw() bool
	ReadPacket(ctx context.Context) ([]byte, bool, error)
	WritePacket(ctx context.Context, data []byte) error
	Reset(ctx context.Context) error

	// KeyName/KeySummary resolve a driver key-number to the names the
	// DRIVER_KEYCODE_NAME/SUMMARY parameters expose (spec §4.8).
	KeyName(group, number uint8) string
	KeySummary(group, number uint8) string
}

// RawToggler is an optional capability a Driver may implement when
// entering/leaving raw mode requires flipping its own internal read
// mode (spec §4.9) rather than simply being called through ReadPacket
// instead of ReadCommand. Callers type-assert for it; a driver that
// does not need the distinction just omits it.
type RawToggler interface {
	EnterRaw()
	LeaveRaw()
}

// ReportID identifies an event on the host's report bus (spec §6).
type ReportID int

// ReportBrailleDeviceOnline fires when the device transitions between
// reachable and unreachable.
const ReportBrailleDeviceOnline ReportID = iota + 1

// ResizeRequired fires when the driver's own dimensions change and the
// core must recompute displayDimensions (spec §4.11 "Resize").
const ResizeRequired ReportID = iota + 100
