// Package devicesim provides the one concrete device.Driver this repo
// ships: a "true braille driver" stand-in built on a local
// pseudo-terminal, following the teacher's internal/pty.PTY wrapper
// around github.com/creack/pty (New/Resize/Signal/Close) almost exactly,
// but speaking the device.Driver contract instead of a shell session.
//
// It exists so cmd/brlapid has something runnable to drive without real
// braille hardware: writeWindow renders the dot-pattern cells as a
// printable line on the pty, and keystrokes typed into the pty are
// turned into driver key-codes for readCommand.
package devicesim

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/brlapi/brlapi-core/internal/device"
)

// Driver simulates a braille display on a local pseudo-terminal.
type Driver struct {
	cols, rows int

	mu     sync.Mutex
	closed bool
	ptmx   *os.File
	cmd    *exec.Cmd
	reader *bufio.Reader

	bus *device.ReportBus

	rawMode bool
}

// New spawns a `cat`-like pass-through shell behind a pty sized cols x
// rows. Writing dot-pattern bytes renders them as a text line; anything
// typed into the terminal is surfaced through ReadCommand as a sequence
// of driver key-codes, one per byte, group 0.
func New(cols, rows int) (*Driver, error) {
	cmd := exec.Command("cat")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, err
	}
	return &Driver{
		cols:   cols,
		rows:   rows,
		ptmx:   ptmx,
		cmd:    cmd,
		reader: bufio.NewReader(ptmx),
		bus:    device.NewReportBus(),
	}, nil
}

// Bus returns the report bus this driver publishes
// device.ResizeRequired/device.ReportBrailleDeviceOnline on.
func (d *Driver) Bus() *device.ReportBus {
	return d.bus
}

func (d *Driver) Name() string            { return "devicesim" }
func (d *Driver) Code() string            { return "sim" }
func (d *Driver) Version() string         { return "1.0" }
func (d *Driver) ModelIdentifier() string { return "pty-simulated" }
func (d *Driver) Identifier() string      { return "devicesim:0" }
func (d *Driver) Speed() uint32           { return 0 }
func (d *Driver) CellSize() int           { return 8 }

func (d *Driver) DisplaySize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cols, d.rows
}

// Resize changes the simulated display's dimensions and publishes
// device.ResizeRequired, mirroring how a real driver would report a
// hardware resize (spec §4.11).
func (d *Driver) Resize(cols, rows int) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return os.ErrClosed
	}
	d.cols, d.rows = cols, rows
	ptmx := d.ptmx
	d.mu.Unlock()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}
	d.bus.Publish(device.ResizeRequired)
	return nil
}

// WriteWindow renders dot-pattern cells as a single printable line.
func (d *Driver) WriteWindow(ctx context.Context, cells []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return os.ErrClosed
	}
	ptmx := d.ptmx
	d.mu.Unlock()

	line := make([]byte, 0, len(cells)+2)
	for _, c := range cells {
		line = append(line, dotsToGlyph(c))
	}
	line = append(line, '\r', '\n')
	_, err := ptmx.Write(line)
	return err
}

// dotsToGlyph gives a rough printable stand-in for an 8-dot cell so a
// human watching the pty sees something change.
func dotsToGlyph(dots byte) byte {
	if dots == 0 {
		return ' '
	}
	return '#'
}

// ReadCommand turns one byte typed into the pty into a driver command.
// It never blocks the caller past a single non-blocking check.
func (d *Driver) ReadCommand(ctx context.Context) (device.Command, bool, error) {
	d.mu.Lock()
	if d.closed || d.rawMode {
		d.mu.Unlock()
		return device.Command{}, false, nil
	}
	d.mu.Unlock()

	if d.reader.Buffered() == 0 {
		return device.Command{}, false, nil
	}
	b, err := d.reader.ReadByte()
	if err != nil {
		return device.Command{}, false, err
	}
	return device.Command{Group: 0, Number: b, Press: true}, true, nil
}

// SupportsRaw reports that this simulator can act as a raw pass-through
// endpoint: the pty file itself is the "packet" channel.
func (d *Driver) SupportsRaw() bool { return true }

// ReadPacket returns raw bytes typed into the pty while raw mode is
// armed.
func (d *Driver) ReadPacket(ctx context.Context) ([]byte, bool, error) {
	d.mu.Lock()
	raw := d.rawMode
	d.mu.Unlock()
	if !raw {
		return nil, false, nil
	}
	if d.reader.Buffered() == 0 {
		return nil, false, nil
	}
	buf := make([]byte, d.reader.Buffered())
	n, err := d.reader.Read(buf)
	if err != nil {
		return nil, false, err
	}
	return buf[:n], true, nil
}

// WritePacket writes raw bytes verbatim to the pty.
func (d *Driver) WritePacket(ctx context.Context, data []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return os.ErrClosed
	}
	ptmx := d.ptmx
	d.mu.Unlock()
	_, err := ptmx.Write(data)
	return err
}

// Reset re-synchronizes the simulated link after an abrupt raw-owner
// disconnect (spec §4.9).
func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	d.rawMode = false
	d.mu.Unlock()
	return nil
}

// EnterRaw/LeaveRaw toggle whether bytes typed into the pty are surfaced
// as ReadCommand events or as raw ReadPacket bytes.
func (d *Driver) EnterRaw() { d.setRaw(true) }
func (d *Driver) LeaveRaw() { d.setRaw(false) }

func (d *Driver) setRaw(v bool) {
	d.mu.Lock()
	d.rawMode = v
	d.mu.Unlock()
}

func (d *Driver) KeyName(group, number uint8) string {
	return fmt.Sprintf("SIM_KEY_%d_%d", group, number)
}

func (d *Driver) KeySummary(group, number uint8) string {
	return fmt.Sprintf("simulated key %d on group %d", number, group)
}

// Close terminates the simulated driver and its backing shell.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	ptmx := d.ptmx
	cmd := d.cmd
	d.mu.Unlock()

	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	return ptmx.Close()
}

var _ device.Driver = (*Driver)(nil)
