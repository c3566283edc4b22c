package registry

import (
	"errors"
	"sync"
	"time"
)

// UnauthLimit is the hard ceiling on simultaneously non-authed
// connections (spec §3, §4.3).
const UnauthLimit = 5

// UnauthTimeout is how long a connection may stay non-authed before the
// main loop closes it (spec §4.3).
const UnauthTimeout = 30 * time.Second

var (
	// ErrUnauthLimit is returned by Add when accepting would exceed
	// UnauthLimit; the caller must reply CONNREFUSED and close (spec
	// §4.3).
	ErrUnauthLimit = errors.New("registry: unauthenticated connection limit reached")
)

// Registry owns the tty tree and the set of live connections (component
// C4), grounded on the teacher's internal/sessions.Manager (map +
// sync.RWMutex, Create/Get/Delete/Shutdown lifecycle) generalized from a
// flat session map to the tree of spec §3.
type Registry struct {
	// mu is the "connections mutex" from spec §5's lock order: it covers
	// the tty tree, the per-tty connection lists, and the sentinels'
	// lists.
	mu sync.RWMutex

	ttys  *TtyNode // root of client-attached paths
	notty *TtyNode // sentinel holding unattached connections

	byID        map[string]*Connection
	unauthCount int
	nextNodeID  uint32
}

// New creates a registry with its two sentinel nodes.
func New() *Registry {
	return &Registry{
		ttys:       &TtyNode{ID: 0, Focus: NoFocus},
		notty:      &TtyNode{ID: 0, Focus: NoFocus},
		byID:       make(map[string]*Connection),
		nextNodeID: 1,
	}
}

// Add registers a newly-accepted, not-yet-authenticated connection onto
// the notty sentinel. It enforces UnauthLimit (spec §4.3).
func (r *Registry) Add(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unauthCount >= UnauthLimit {
		return ErrUnauthLimit
	}
	r.notty.connections = append(r.notty.connections, c)
	r.byID[c.ID] = c
	r.unauthCount++
	return nil
}

// MarkAuthed decrements the unauthenticated-connection counter once a
// connection completes the C3 handshake.
func (r *Registry) MarkAuthed() {
	r.mu.Lock()
	if r.unauthCount > 0 {
		r.unauthCount--
	}
	r.mu.Unlock()
}

// UnauthCount returns the current number of non-authed connections.
func (r *Registry) UnauthCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unauthCount
}

// Get looks up a connection by its internal ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// All returns every live connection, for sweeps and broadcast fan-out.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// NottyConnections returns the connections currently unattached.
func (r *Registry) NottyConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notty.Connections()
}

// Root returns the ttys sentinel, the root of the focus-walk the
// arbitrator performs (spec §4.7).
func (r *Registry) Root() *TtyNode {
	return r.ttys
}

// EnterTTYMode resolves (creating lazily as needed) the tty node named by
// path — a stack of identities from the root, per spec §3's "Lifecycle"
// — detaches c from wherever it currently is, and attaches it there. The
// node's connections are kept sorted by descending priority.
func (r *Registry) EnterTTYMode(c *Connection, path []uint32, how How, displaySize int) *TtyNode {
	r.mu.Lock()
	r.detachLocked(c)

	node := r.ttys
	for _, id := range path {
		child := node.childByID(id)
		if child == nil {
			child = node.addChild(id)
		}
		node = child
	}
	node.insertConnection(c)
	r.mu.Unlock()

	c.AttachTTY(node, how, displaySize)
	return node
}

// LeaveTTYMode detaches c from its current tty node back to notty, and
// garbage-collects any node left empty (spec §4.10).
func (r *Registry) LeaveTTYMode(c *Connection) {
	r.mu.Lock()
	r.detachLocked(c)
	r.notty.connections = append(r.notty.connections, c)
	r.mu.Unlock()
	c.DetachTTY()
}

// detachLocked removes c from whichever list currently holds it. Callers
// must hold r.mu.
func (r *Registry) detachLocked(c *Connection) {
	if node := c.Tty(); node != nil {
		node.removeConnection(c)
		r.gcLocked(node)
		return
	}
	r.notty.removeConnection(c)
}

// SetFocus updates c's tty node's focus pointer, steering the
// arbitrator's root-to-leaf walk (spec §4.7) toward childID the next
// time Flush runs.
func (r *Registry) SetFocus(c *Connection, childID uint32) {
	node := c.Tty()
	if node == nil {
		return
	}
	r.mu.Lock()
	node.Focus = childID
	r.mu.Unlock()
}

// Reorder re-sorts c within its tty node after a priority change (spec
// §4.8, CLIENT_PRIORITY write).
func (r *Registry) Reorder(c *Connection) {
	node := c.Tty()
	if node == nil {
		return
	}
	r.mu.Lock()
	node.reorderConnection(c)
	r.mu.Unlock()
}

// Remove fully disposes of a connection: detaches it from any tty node
// (or notty), decrements the unauth counter if it was never authed, and
// drops it from the by-ID index. Callers are responsible for the
// raw/suspend rollback described in spec §4.10/§7 before calling Remove.
func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	r.detachLocked(c)
	delete(r.byID, c.ID)
	if c.Auth() != AuthAuthed && r.unauthCount > 0 {
		r.unauthCount--
	}
	r.mu.Unlock()
}

// GCEmptyTTYs walks the tree bottom-up (via any node reachable from
// Root()) pruning nodes with no connections and no children, per spec
// §4.10 step 6. It is safe to call periodically from the main loop; most
// pruning already happens inline in detachLocked/gcLocked.
func (r *Registry) GCEmptyTTYs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var walk func(n *TtyNode)
	walk = func(n *TtyNode) {
		for _, child := range n.Children() {
			walk(child)
			if child.IsEmpty() {
				n.removeChild(child)
			}
		}
	}
	walk(r.ttys)
}

// gcLocked frees node and its now-empty ancestors, bottom-up. Callers
// must hold r.mu.
func (r *Registry) gcLocked(node *TtyNode) {
	for node != nil && node != r.ttys && node.IsEmpty() {
		parent := node.Parent
		if parent != nil {
			parent.removeChild(node)
		}
		node = parent
	}
}

// Sweep removes every non-authed connection older than
// UnauthTimeout (spec §4.3, §8 scenario 6), returning the connections
// that were evicted so the caller can close their transport endpoints.
func (r *Registry) Sweep(now time.Time) []*Connection {
	var stale []*Connection
	for _, c := range r.All() {
		if c.Auth() != AuthAuthed && now.Sub(c.UpstreamSince) > UnauthTimeout {
			stale = append(stale, c)
		}
	}
	for _, c := range stale {
		r.Remove(c)
	}
	return stale
}
