// Package params implements the parameter engine (component C8): a
// table of readable/writable parameters, a subscription list with
// local/global counters, and update dispatch with loop-suppression and
// a self-notification flag.
//
// The descriptor table below is grounded on the teacher's cmd/server
// Handler() method: one explicit, flat table entry per operation rather
// than reflection or a code-generated switch, translated from HTTP
// routes (method+path -> handler func) to parameter IDs (id -> read/write
// handler pair).
package params

import (
	"sync"

	"github.com/brlapi/brlapi-core/internal/brlerr"
)

// ID identifies a parameter (spec §4.8's fixed list).
type ID uint32

const (
	ServerVersion ID = iota + 1
	ClientPriority
	DriverName
	DriverCode
	DriverVersion
	DeviceModel
	DeviceCellSize
	DisplaySize
	DeviceIdentifier
	DeviceSpeed
	DeviceOnline
	RetainDots
	ComputerBrailleCellSize
	LiteraryBraille
	CursorDots
	CursorBlinkPeriod
	CursorBlinkPercentage
	RenderedCells
	SkipIdenticalLines
	AudibleAlerts
	ClipboardContent
	BoundCommandKeycodes
	CommandKeycodeName
	CommandKeycodeSummary
	DefinedDriverKeycodes
	DriverKeycodeName
	DriverKeycodeSummary
	ComputerBrailleRowsMask
	ComputerBrailleRowCells
	ComputerBrailleTable
	LiteraryBrailleTable
	MessageLocale
)

// Flags decorate a PARAM_REQUEST/subscription (spec §4.8, §3).
type Flags uint32

const (
	FlagGlobal Flags = 1 << iota
	FlagSelf
	FlagGet
	FlagSubscribe
	FlagUnsubscribe
)

// ReadFunc produces the current wire-encoded value of a parameter for the
// given connection (ignored for global parameters) and subparam.
type ReadFunc func(connID string, sub uint64) ([]byte, error)

// WriteFunc consumes a new wire-encoded value. A non-nil error's message
// becomes the human-readable reason surfaced to the client.
type WriteFunc func(connID string, sub uint64, data []byte) error

// Descriptor is one parameter's table entry (spec §4.8).
type Descriptor struct {
	ID     ID
	Local  bool
	Global bool
	Root   ID // 0 means self-rooted; non-zero names the root subscriptions must target
	Read   ReadFunc
	Write  WriteFunc // nil means read-only
}

type subKey struct {
	connID string
	param  ID
	sub    uint64
}

// NotifyFunc delivers a PARAM_UPDATE to one connection. The engine calls
// it once per subscriber on every successful write (spec §4.8 VALUE) or
// host-triggered Update call.
type NotifyFunc func(connID string, param ID, sub uint64, flags Flags, data []byte)

// Engine is the parameter table plus live subscription state.
type Engine struct {
	mu sync.Mutex

	table map[ID]*Descriptor
	subs  map[subKey]Flags

	localCount  map[ID]int
	globalCount map[ID]int

	notify NotifyFunc
}

// NewEngine creates an empty engine; callers Register descriptors before
// serving any connection.
func NewEngine() *Engine {
	return &Engine{
		table:       make(map[ID]*Descriptor),
		subs:        make(map[subKey]Flags),
		localCount:  make(map[ID]int),
		globalCount: make(map[ID]int),
	}
}

// Register adds or replaces a parameter's table entry.
func (e *Engine) Register(d Descriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := d
	e.table[d.ID] = &cp
}

// SetNotifier installs the broadcast callback.
func (e *Engine) SetNotifier(fn NotifyFunc) {
	e.mu.Lock()
	e.notify = fn
	e.mu.Unlock()
}

// Get reads a parameter's current value (PARAM_REQUEST with GET set, or
// the GET half of a subscribe-and-get).
func (e *Engine) Get(connID string, param ID, sub uint64) ([]byte, error) {
	e.mu.Lock()
	d, ok := e.table[param]
	e.mu.Unlock()
	if !ok {
		return nil, brlerr.New(brlerr.InvalidParameter, "unknown parameter")
	}
	return d.Read(connID, sub)
}

// Set applies a VALUE packet: validate, invoke the write handler under
// the parameter lock with connID installed as the update origin, and on
// success broadcast to subscribers (spec §4.8 VALUE).
func (e *Engine) Set(connID string, param ID, sub uint64, data []byte, global, self bool) error {
	e.mu.Lock()
	d, ok := e.table[param]
	if !ok {
		e.mu.Unlock()
		return brlerr.New(brlerr.InvalidParameter, "unknown parameter")
	}
	if d.Write == nil {
		e.mu.Unlock()
		return brlerr.New(brlerr.ReadOnlyParameter, "parameter is read-only")
	}
	notify := e.notify
	err := d.Write(connID, sub, data)
	e.mu.Unlock()

	if err != nil {
		return brlerr.New(brlerr.InvalidParameter, err.Error())
	}

	e.broadcast(connID, param, sub, global, self, data, notify)
	return nil
}

// Update broadcasts an externally-driven change (the host calling
// update_parameter(p, subp) to reflect something outside any client's
// VALUE write, e.g. a device resize) without invoking a write handler.
func (e *Engine) Update(param ID, sub uint64, global bool, data []byte) {
	e.mu.Lock()
	notify := e.notify
	e.mu.Unlock()
	e.broadcast("", param, sub, global, false, data, notify)
}

func (e *Engine) broadcast(originID string, param ID, sub uint64, global, self bool, data []byte, notify NotifyFunc) {
	if notify == nil {
		return
	}
	flags := Flags(0)
	if global {
		flags |= FlagGlobal
	}
	e.mu.Lock()
	var targets []string
	for key, subFlags := range e.subs {
		if key.param != param || key.sub != sub {
			continue
		}
		if (subFlags&FlagGlobal != 0) != global {
			continue
		}
		if key.connID == originID && subFlags&FlagSelf == 0 {
			continue
		}
		targets = append(targets, key.connID)
	}
	e.mu.Unlock()

	for _, connID := range targets {
		notify(connID, param, sub, flags, data)
	}
	if self && originID != "" {
		// The origin always sees its own write ack separately (ACK
		// packet); FlagSelf governs whether it *also* gets an UPDATE,
		// already covered by the subs loop above keeping self-flagged
		// origin subscriptions in targets.
		_ = self
	}
}

// Subscribe records connID's interest in (param, sub). Subscribing to a
// leaf whose Root names a different parameter is rejected: subscriptions
// must be taken on the root (spec §4.8).
func (e *Engine) Subscribe(connID string, param ID, sub uint64, flags Flags) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.table[param]
	if !ok {
		return brlerr.New(brlerr.InvalidParameter, "unknown parameter")
	}
	if d.Root != 0 {
		return brlerr.New(brlerr.InvalidParameter, "subscribe must target the root parameter")
	}

	key := subKey{connID: connID, param: param, sub: sub}
	if _, exists := e.subs[key]; exists {
		e.subs[key] = flags
		return nil
	}
	e.subs[key] = flags
	if flags&FlagGlobal != 0 {
		e.globalCount[param]++
	} else {
		e.localCount[param]++
	}
	return nil
}

// Unsubscribe removes a matching subscription record.
func (e *Engine) Unsubscribe(connID string, param ID, sub uint64, global bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := subKey{connID: connID, param: param, sub: sub}
	flags, ok := e.subs[key]
	if !ok {
		return nil
	}
	delete(e.subs, key)
	if flags&FlagGlobal != 0 {
		e.globalCount[param]--
	} else {
		e.localCount[param]--
	}
	_ = global
	return nil
}

// UnsubscribeAll drops every subscription owned by connID, used when a
// connection is torn down (spec §7 "subscriptions are decremented").
func (e *Engine) UnsubscribeAll(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, flags := range e.subs {
		if key.connID != connID {
			continue
		}
		delete(e.subs, key)
		if flags&FlagGlobal != 0 {
			e.globalCount[key.param]--
		} else {
			e.localCount[key.param]--
		}
	}
}

// Counts returns the local and global subscription counts for param, for
// the invariant in spec §8 ("paramState[p].local_count + global_count ==
// Σ subscriptions of c on p").
func (e *Engine) Counts(param ID) (local, global int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localCount[param], e.globalCount[param]
}

// Descriptor returns the table entry for param, if registered.
func (e *Engine) Descriptor(param ID) (Descriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.table[param]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}
