package registry

// NoFocus is the sentinel meaning "no specific child is focused" (spec
// §3).
const NoFocus = ^uint32(0)

// TtyNode is one node of the tty tree (spec §3). Parent/child/sibling
// pointers are plain Go pointers rather than arena indices: spec §9's
// design note recommends an arena specifically to avoid raw-pointer
// cycles across an FFI/unsafe boundary, which does not apply to a
// garbage-collected language — Go pointers with a single owning
// *Registry are the idiomatic equivalent here, and every "current tty"
// reference outside this package (Connection.tty) is nil-able exactly
// like the note's Option<NodeID>.
type TtyNode struct {
	ID     uint32
	Focus  uint32 // child ID, or NoFocus
	Parent *TtyNode

	children    []*TtyNode
	connections []*Connection // ordered by descending priority, ties by insertion order
}

// Children returns the node's children in insertion order.
func (t *TtyNode) Children() []*TtyNode {
	out := make([]*TtyNode, len(t.children))
	copy(out, t.children)
	return out
}

// Connections returns the node's attached connections, ordered by
// descending priority.
func (t *TtyNode) Connections() []*Connection {
	out := make([]*Connection, len(t.connections))
	copy(out, t.connections)
	return out
}

// IsEmpty reports whether the node has no connections and no children —
// the condition under which §4.10 garbage-collects it.
func (t *TtyNode) IsEmpty() bool {
	return len(t.connections) == 0 && len(t.children) == 0
}

// ChildByID finds an existing child by identity, or nil.
func (t *TtyNode) ChildByID(id uint32) *TtyNode {
	return t.childByID(id)
}

// childByID finds an existing child, or nil.
func (t *TtyNode) childByID(id uint32) *TtyNode {
	for _, c := range t.children {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// addChild appends a new child with the given id, set up lazily the
// first time a Connection names it (spec §3 "Lifecycle").
func (t *TtyNode) addChild(id uint32) *TtyNode {
	child := &TtyNode{ID: id, Focus: NoFocus, Parent: t}
	t.children = append(t.children, child)
	return child
}

// removeChild drops a (now-empty) child from this node's child list.
func (t *TtyNode) removeChild(child *TtyNode) {
	for i, c := range t.children {
		if c == child {
			t.children = append(t.children[:i], t.children[i+1:]...)
			return
		}
	}
}

// insertConnection inserts c into the node's connection list, keeping it
// sorted by descending priority with ties broken by insertion order.
func (t *TtyNode) insertConnection(c *Connection) {
	pri := c.Priority()
	i := 0
	for ; i < len(t.connections); i++ {
		if t.connections[i].Priority() < pri {
			break
		}
	}
	t.connections = append(t.connections, nil)
	copy(t.connections[i+1:], t.connections[i:])
	t.connections[i] = c
}

// removeConnection drops c from the node's connection list.
func (t *TtyNode) removeConnection(c *Connection) {
	for i, cc := range t.connections {
		if cc == c {
			t.connections = append(t.connections[:i], t.connections[i+1:]...)
			return
		}
	}
}

// reorderConnection re-sorts c within the list after a priority change
// (CLIENT_PRIORITY write, spec §4.8).
func (t *TtyNode) reorderConnection(c *Connection) {
	t.removeConnection(c)
	t.insertConnection(c)
}
