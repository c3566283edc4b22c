package server

import (
	"context"
	"log"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brlapi/brlapi-core/internal/arbitrator"
	"github.com/brlapi/brlapi-core/internal/auth"
	"github.com/brlapi/brlapi-core/internal/device"
	"github.com/brlapi/brlapi-core/internal/params"
	"github.com/brlapi/brlapi-core/internal/registry"
	"github.com/brlapi/brlapi-core/internal/wire"
)

// fakeDriver is an in-memory device.Driver stand-in so these tests never
// touch a real pseudo-terminal, unlike internal/devicesim.
type fakeDriver struct {
	cols, rows int

	commands chan device.Command
	packets  chan []byte
	written  [][]byte
	raw      bool
	resets   int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		cols: 40, rows: 1,
		commands: make(chan device.Command, 8),
		packets:  make(chan []byte, 8),
	}
}

func (d *fakeDriver) Name() string           { return "fake" }
func (d *fakeDriver) Code() string            { return "fk" }
func (d *fakeDriver) Version() string         { return "0.1" }
func (d *fakeDriver) ModelIdentifier() string { return "fake-model" }
func (d *fakeDriver) Identifier() string      { return "fake:0" }
func (d *fakeDriver) Speed() uint32           { return 9600 }
func (d *fakeDriver) CellSize() int           { return 8 }
func (d *fakeDriver) DisplaySize() (int, int) { return d.cols, d.rows }

func (d *fakeDriver) WriteWindow(ctx context.Context, cells []byte) error {
	d.written = append(d.written, append([]byte(nil), cells...))
	return nil
}

func (d *fakeDriver) ReadCommand(ctx context.Context) (device.Command, bool, error) {
	select {
	case cmd := <-d.commands:
		return cmd, true, nil
	default:
		return device.Command{}, false, nil
	}
}

func (d *fakeDriver) SupportsRaw() bool { return true }

func (d *fakeDriver) ReadPacket(ctx context.Context) ([]byte, bool, error) {
	select {
	case p := <-d.packets:
		return p, true, nil
	default:
		return nil, false, nil
	}
}

func (d *fakeDriver) WritePacket(ctx context.Context, data []byte) error { return nil }

func (d *fakeDriver) Reset(ctx context.Context) error {
	d.resets++
	return nil
}

func (d *fakeDriver) KeyName(group, number uint8) string    { return "KEY" }
func (d *fakeDriver) KeySummary(group, number uint8) string { return "a key" }

func (d *fakeDriver) EnterRaw() { d.raw = true }
func (d *fakeDriver) LeaveRaw() { d.raw = false }

type fakeTable struct{}

func (fakeTable) ConvertToDots(r rune) byte { return byte(r) }

type fakeOverlay struct{}

func (fakeOverlay) Overlay() byte { return 0 }

// testServer wires a full Server against a fakeDriver, with no auth
// requirement, for use by the handshake/dispatch tests below.
func testServer(t *testing.T) *Server {
	t.Helper()
	drv := newFakeDriver()
	tasks := device.NewCoreTaskRunner()
	t.Cleanup(tasks.Stop)

	reg := registry.New()
	arb := arbitrator.New(tasks)
	engine := params.NewEngine()

	srv := New(reg, arb, engine, drv, fakeTable{}, fakeOverlay{}, auth.NoAuth(), log.New(testWriter{t}, "", 0))
	srv.RegisterParams()
	return srv
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// client wraps one end of a net.Pipe with the C1 codec helpers, standing
// in for a real BrlAPI client driving serveConn.
type client struct {
	t    *testing.T
	conn net.Conn
	rd   wire.Reader
}

func newClient(t *testing.T, conn net.Conn) *client {
	return &client{t: t, conn: conn}
}

func (c *client) send(p wire.Packet) {
	c.t.Helper()
	require.NoError(c.t, wire.Encode(c.conn, p))
}

func (c *client) recv() wire.Packet {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		require.NoError(c.t, err)
		packets, feedErr := c.rd.Feed(buf[:n])
		require.NoError(c.t, feedErr)
		if len(packets) > 0 {
			return packets[0]
		}
	}
}

// handshake drives the greeting/VERSION/AUTH sequence to completion and
// discards every reply but the final ACK.
func (c *client) handshake() {
	c.recv() // server greeting VERSION, sent immediately on accept

	var vb wire.Builder
	vb.PutU32(ProtocolVersion)
	c.send(wire.Packet{Type: wire.TypeVersion, Payload: vb.Bytes()})
	c.recv() // AUTH method offer

	var ab wire.Builder
	ab.PutU32(uint32(auth.MethodNone))
	c.send(wire.Packet{Type: wire.TypeAuth, Payload: ab.Bytes()})
	ack := c.recv()
	require.Equal(c.t, wire.TypeAck, ack.Type)
}

func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go srv.serveConn(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	c := newClient(t, clientConn)
	c.handshake()
	return c
}

func TestHandshakeRejectsUnversionedPacket(t *testing.T) {
	srv := testServer(t)
	serverConn, clientConn := net.Pipe()
	go srv.serveConn(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	c := newClient(t, clientConn)
	c.recv() // server greeting VERSION

	c.send(wire.Packet{Type: wire.TypeGetDriverName})
	reply := c.recv()
	require.Equal(t, wire.TypeError, reply.Type)
}

func TestHandshakeRejectsOldVersion(t *testing.T) {
	srv := testServer(t)
	serverConn, clientConn := net.Pipe()
	go srv.serveConn(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	c := newClient(t, clientConn)
	c.recv() // server greeting VERSION

	var vb wire.Builder
	vb.PutU32(auth.MinProtocolVersion - 1)
	c.send(wire.Packet{Type: wire.TypeVersion, Payload: vb.Bytes()})
	reply := c.recv()
	require.Equal(t, wire.TypeError, reply.Type)
}

func TestGetDriverNameModelIDDisplaySize(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeGetDriverName})
	reply := c.recv()
	require.Equal(t, wire.TypeGetDriverName, reply.Type)
	name, err := wire.NewCursor(reply.Payload).NulString()
	require.NoError(t, err)
	require.Equal(t, "fake", name)

	c.send(wire.Packet{Type: wire.TypeGetModelID})
	reply = c.recv()
	model, err := wire.NewCursor(reply.Payload).NulString()
	require.NoError(t, err)
	require.Equal(t, "fake-model", model)

	c.send(wire.Packet{Type: wire.TypeGetDisplaySize})
	reply = c.recv()
	cur := wire.NewCursor(reply.Payload)
	cols, err := cur.U32()
	require.NoError(t, err)
	rows, err := cur.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(40), cols)
	require.Equal(t, uint32(1), rows)
}

func encodeEnterTTY(how byte, path []uint32) []byte {
	var b wire.Builder
	b.PutU8(how)
	b.PutU32(uint32(len(path)))
	for _, id := range path {
		b.PutU32(id)
	}
	return b.Bytes()
}

func TestEnterSetLeaveTTYMode(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterTTYMode, Payload: encodeEnterTTY(0, []uint32{1})})
	reply := c.recv()
	require.Equal(t, wire.TypeAck, reply.Type)

	var fb wire.Builder
	fb.PutU32(2)
	c.send(wire.Packet{Type: wire.TypeSetFocus, Payload: fb.Bytes()})
	reply = c.recv()
	require.Equal(t, wire.TypeAck, reply.Type)

	c.send(wire.Packet{Type: wire.TypeLeaveTTYMode})
	reply = c.recv()
	require.Equal(t, wire.TypeAck, reply.Type)
}

func encodeKeyRanges(pairs [][2]uint64) []byte {
	var b wire.Builder
	b.PutU32(uint32(len(pairs)))
	for _, pr := range pairs {
		b.PutU64(pr[0]).PutU64(pr[1])
	}
	return b.Bytes()
}

func TestAcceptKeyRangesRejectsPrivilegedRange(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterTTYMode, Payload: encodeEnterTTY(0, []uint32{1})})
	require.Equal(t, wire.TypeAck, c.recv().Type)

	press := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: 1, Press: true})
	release := wire.Pack(wire.Fields{Type: wire.KeyTypeCommand, Command: 1, Press: false})
	c.send(wire.Packet{Type: wire.TypeAcceptKeyRanges, Payload: encodeKeyRanges([][2]uint64{{uint64(release), uint64(press)}})})
	reply := c.recv()
	require.Equal(t, wire.TypeError, reply.Type)
}

func TestAcceptKeyRangesAcceptsOrdinaryRange(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterTTYMode, Payload: encodeEnterTTY(0, []uint32{1})})
	require.Equal(t, wire.TypeAck, c.recv().Type)

	// 0 sits below every privileged command's release code (the lowest,
	// CmdOffline, codes at 1), so this range cannot overlap one.
	c.send(wire.Packet{Type: wire.TypeAcceptKeyRanges, Payload: encodeKeyRanges([][2]uint64{{0, 0}})})
	reply := c.recv()
	require.Equal(t, wire.TypeAck, reply.Type)
}

func encodeWrite(text string) []byte {
	var b wire.Builder
	b.PutU8(writeFlagText)
	b.PutLenString("")
	b.PutU32(uint32(len(text)))
	b.PutBytes([]byte(text))
	return b.Bytes()
}

func TestWriteRequiresAttachedMode(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeWrite, Payload: encodeWrite("hi")})
	reply := c.recv()
	require.Equal(t, wire.TypeError, reply.Type)
}

func TestWriteAfterEnterTTYMode(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterTTYMode, Payload: encodeEnterTTY(0, []uint32{1})})
	require.Equal(t, wire.TypeAck, c.recv().Type)

	c.send(wire.Packet{Type: wire.TypeWrite, Payload: encodeWrite("hi")})
	reply := c.recv()
	require.Equal(t, wire.TypeAck, reply.Type)
}

func TestEnterLeaveRawMode(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterRawMode})
	require.Equal(t, wire.TypeAck, c.recv().Type)

	c.send(wire.Packet{Type: wire.TypeLeaveRawMode})
	require.Equal(t, wire.TypeAck, c.recv().Type)
}

func TestSuspendResumeDriver(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeSuspendDriver})
	require.Equal(t, wire.TypeAck, c.recv().Type)

	c.send(wire.Packet{Type: wire.TypeResumeDriver})
	require.Equal(t, wire.TypeAck, c.recv().Type)
}

func TestParamGetServerVersion(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	var b wire.Builder
	b.PutU32(uint32(params.ServerVersion)).PutU64(0).PutU8(byte(params.FlagGet))
	c.send(wire.Packet{Type: wire.TypeParamRequest, Payload: b.Bytes()})
	reply := c.recv()
	require.Equal(t, wire.TypeParamValue, reply.Type)

	cur := wire.NewCursor(reply.Payload)
	id, err := cur.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(params.ServerVersion), id)
	_, err = cur.U64()
	require.NoError(t, err)
	_, err = cur.U8()
	require.NoError(t, err)
	n, err := cur.U32()
	require.NoError(t, err)
	data, err := cur.Bytes(int(n))
	require.NoError(t, err)
	require.Len(t, data, 4)
}

func TestParamSubscribeReceivesUpdateFromAnotherConnection(t *testing.T) {
	srv := testServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	var sub wire.Builder
	sub.PutU32(uint32(params.ClientPriority)).PutU64(0).PutU8(byte(params.FlagSubscribe))
	a.send(wire.Packet{Type: wire.TypeParamRequest, Payload: sub.Bytes()})
	require.Equal(t, wire.TypeAck, a.recv().Type)

	var set wire.Builder
	set.PutU32(uint32(params.ClientPriority)).PutU64(0).PutU8(0).PutU32(4).PutBytes(u32bytes(75))
	b.send(wire.Packet{Type: wire.TypeParamValue, Payload: set.Bytes()})
	require.Equal(t, wire.TypeAck, b.recv().Type)

	update := a.recv()
	require.Equal(t, wire.TypeParamUpdate, update.Type)
	cur := wire.NewCursor(update.Payload)
	id, err := cur.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(params.ClientPriority), id)
}

func TestSynchronizeAcks(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeSynchronize})
	require.Equal(t, wire.TypeAck, c.recv().Type)
}

func TestUnknownPacketTypeReturnsException(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.Type(9999)})
	reply := c.recv()
	require.Equal(t, wire.TypeException, reply.Type)
}

func TestCommandPumpDeliversKeyToFocusedConnection(t *testing.T) {
	srv := testServer(t)
	c := dial(t, srv)

	c.send(wire.Packet{Type: wire.TypeEnterTTYMode, Payload: encodeEnterTTY(1, []uint32{1})})
	require.Equal(t, wire.TypeAck, c.recv().Type)
	require.NoError(t, srv.SetRootFocus(context.Background(), 1))

	drv := srv.Driver.(*fakeDriver)
	drv.commands <- device.Command{Group: 0, Number: 5, Press: true}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go srv.RunCommandPump(ctx)

	reply := c.recv()
	require.Equal(t, wire.TypeKey, reply.Type)
	cur := wire.NewCursor(reply.Payload)
	code, err := cur.U64()
	require.NoError(t, err)
	fields := wire.Unpack(wire.KeyCode(code))
	require.Equal(t, wire.KeyTypeDriver, fields.Type)
	require.Equal(t, uint8(5), fields.Number)
}
