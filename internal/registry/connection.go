// Package registry implements the connection registry and tty tree
// (component C4): Connection lifecycle, the tty tree described in spec
// §3, and the unauthenticated-connection quota/timeout.
//
// Connection mode follows spec §9's design note: rather than three
// booleans with a global "not all true" invariant, mode is one tagged
// variant (Mode + the fields that are only meaningful in that mode),
// grounded on the teacher's internal/agent.Controller State type
// (a small enum plus sentinel errors for invalid transitions).
package registry

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brlapi/brlapi-core/internal/keyrange"
	"github.com/brlapi/brlapi-core/internal/wire"
	"github.com/brlapi/brlapi-core/internal/window"
)

// AuthState is a connection's place in the C3 handshake state machine.
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthFailed
	AuthAuthed
)

// How selects the delivery style of a tty-attached connection (spec
// GLOSSARY).
type How int

const (
	HowCommands How = iota
	HowDriverKeyCodes
)

// Mode is the mutually-exclusive state a Connection is in (spec §3
// invariants, §9 design note).
type Mode int

const (
	ModeUnattached Mode = iota
	ModeAttached
	ModeRaw
	ModeSuspend
)

// BufferState tracks whether a connection's window has unflushed content.
type BufferState int

const (
	BufferEmpty BufferState = iota
	BufferToDisplay
)

// DefaultPriority is the priority a connection starts with (spec §3).
const DefaultPriority = 50

// Connection is the per-client object (spec §3).
type Connection struct {
	ID   string // internal uuid, never wire-visible; log/debug correlation only
	Conn net.Conn

	// mu is the "per-connection mutex" guarding Auth/Version/Mode/Tty/How/
	// RetainDots/Priority — everything except the two independently
	// updated sub-structures (AcceptedKeys, Window), per spec §4.4's lock
	// partition.
	mu              sync.Mutex
	auth            AuthState
	protocolVersion uint32
	mode            Mode
	tty             *TtyNode
	how             How
	retainDots      bool
	priority        int
	buffer          BufferState

	acceptedMu sync.Mutex
	accepted   *keyrange.Set

	windowMu sync.Mutex
	window   *window.Window

	sendMu sync.Mutex

	// UpstreamSince records when the connection arrived, used to age out
	// unauthenticated peers (spec §3, §4.3).
	UpstreamSince time.Time

	// Reader is this connection's C1 frame accumulator.
	Reader wire.Reader

	// SubscriptionKeys is not populated or read anywhere: the params
	// engine owns the subscription bookkeeping, and teardown unwinds it
	// through Engine.UnsubscribeAll.
	SubscriptionKeys []uint64
}

// NewConnection creates a fresh, unattached, unauthenticated connection.
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		ID:            uuid.New().String(),
		Conn:          conn,
		priority:      DefaultPriority,
		UpstreamSince: time.Now(),
	}
}

// Auth returns the current authentication state.
func (c *Connection) Auth() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auth
}

// SetAuth transitions the authentication state.
func (c *Connection) SetAuth(s AuthState) {
	c.mu.Lock()
	c.auth = s
	c.mu.Unlock()
}

// ProtocolVersion returns the negotiated wire-protocol version.
func (c *Connection) ProtocolVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// SetProtocolVersion records the negotiated version.
func (c *Connection) SetProtocolVersion(v uint32) {
	c.mu.Lock()
	c.protocolVersion = v
	c.mu.Unlock()
}

// Mode returns the connection's current mode.
func (c *Connection) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Tty returns the tty node this connection is attached to, or nil.
func (c *Connection) Tty() *TtyNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tty
}

// How returns the delivery style, valid only while Mode()==ModeAttached.
func (c *Connection) How() How {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.how
}

// RetainDots reports whether command-to-wire conversion should preserve
// dot payload bits.
func (c *Connection) RetainDots() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retainDots
}

// SetRetainDots updates the retainDots flag (RETAIN_DOTS parameter).
func (c *Connection) SetRetainDots(v bool) {
	c.mu.Lock()
	c.retainDots = v
	c.mu.Unlock()
}

// Priority returns the connection's arbitration priority.
func (c *Connection) Priority() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priority
}

// SetPriority updates the connection's priority (CLIENT_PRIORITY
// parameter write); callers are responsible for re-sorting the tty
// node's connection list (spec §4.8).
func (c *Connection) SetPriority(p int) {
	c.mu.Lock()
	c.priority = p
	c.mu.Unlock()
}

// BufferState returns whether this connection's window needs flushing.
func (c *Connection) BufferState() BufferState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// SetBufferState updates the flush-pending flag.
func (c *Connection) SetBufferState(s BufferState) {
	c.mu.Lock()
	c.buffer = s
	c.mu.Unlock()
}

// AttachTTY moves the connection into ModeAttached on the given node with
// the given delivery style, starting with the default accepted-key set
// (spec §4.5) and an empty display-size window.
func (c *Connection) AttachTTY(node *TtyNode, how How, displaySize int) {
	c.mu.Lock()
	c.mode = ModeAttached
	c.tty = node
	c.how = how
	c.mu.Unlock()

	c.acceptedMu.Lock()
	c.accepted = keyrange.DefaultForHow(how == HowDriverKeyCodes)
	c.acceptedMu.Unlock()

	c.windowMu.Lock()
	c.window = window.New(displaySize)
	c.windowMu.Unlock()
}

// DetachTTY returns the connection to ModeUnattached.
func (c *Connection) DetachTTY() {
	c.mu.Lock()
	c.mode = ModeUnattached
	c.tty = nil
	c.mu.Unlock()
	c.SetBufferState(BufferEmpty)
}

// SetRaw transitions into/out of ModeRaw. enter=false returns to
// ModeUnattached (LEAVE_RAW always drops back to unattached per spec
// §4.9, since raw mode is entered from outside tty attachment).
func (c *Connection) SetRaw(enter bool) {
	c.mu.Lock()
	if enter {
		c.mode = ModeRaw
	} else {
		c.mode = ModeUnattached
	}
	c.mu.Unlock()
}

// SetSuspend transitions into/out of ModeSuspend.
func (c *Connection) SetSuspend(enter bool) {
	c.mu.Lock()
	if enter {
		c.mode = ModeSuspend
	} else {
		c.mode = ModeUnattached
	}
	c.mu.Unlock()
}

// AcceptedKeys returns the connection's key acceptance filter. Nil until
// AttachTTY has been called.
func (c *Connection) AcceptedKeys() *keyrange.Set {
	c.acceptedMu.Lock()
	defer c.acceptedMu.Unlock()
	return c.accepted
}

// WithAcceptedKeys runs fn with the accepted-keys mutex held, for atomic
// IGNORE/ACCEPT mutation (spec §4.5).
func (c *Connection) WithAcceptedKeys(fn func(*keyrange.Set)) {
	c.acceptedMu.Lock()
	defer c.acceptedMu.Unlock()
	if c.accepted == nil {
		c.accepted = keyrange.NewEmpty()
	}
	fn(c.accepted)
}

// Window returns the connection's braille window buffer. Nil until
// AttachTTY has been called.
func (c *Connection) Window() *window.Window {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	return c.window
}

// WithWindow runs fn with the braille-window mutex held, for atomic WRITE
// application and rendering (spec §4.6).
func (c *Connection) WithWindow(fn func(*window.Window)) {
	c.windowMu.Lock()
	defer c.windowMu.Unlock()
	if c.window != nil {
		fn(c.window)
	}
}

// Send serializes and writes one packet to this connection's stream
// endpoint. Writes are blocking on the connection endpoint (spec §4.1)
// and serialized against concurrent senders (the connection's own read
// loop, and parameter-update broadcasts from other connections'
// goroutines) by sendMu.
func (c *Connection) Send(p wire.Packet) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.Encode(c.Conn, p)
}

// SendError writes an ERROR packet to the connection.
func (c *Connection) SendError(code uint32) error {
	var b wire.Builder
	b.PutU32(code)
	return c.Send(wire.Packet{Type: wire.TypeError, Payload: b.Bytes()})
}
