package server

import "fmt"

// Table is the process-wide fd→Connection mapping described in spec.md
// §4.6: a fixed-capacity array indexed directly by descriptor value gives
// O(1) lookup with no hashing, matching the original C server's fds/fdstate
// globals. Reads are intentionally unsynchronized — each slot is only
// touched while its descriptor is "owned", either by the demultiplexer
// before dispatch or by the single worker that received it afterward, and
// edge-triggered readiness keeps those ownerships disjoint in time. Only
// the handshake handler (which creates a pairing) and the close path
// (which clears one) need no additional locking beyond that discipline.
type Table struct {
	slots []*Connection
}

// NewTable allocates a table sized for maxSessions concurrent sessions.
// Capacity is 2×maxSessions (socket + master per session) plus a small
// constant to cover low-numbered reserved descriptors (stdin/out/err, the
// listening socket itself).
func NewTable(maxSessions int) *Table {
	return &Table{slots: make([]*Connection, 2*maxSessions+16)}
}

// Cap reports the table's key domain — the exclusive upper bound on
// descriptor values it can hold.
func (t *Table) Cap() int {
	return len(t.slots)
}

// Fits reports whether fd falls within the table's key domain.
func (t *Table) Fits(fd int) bool {
	return fd >= 0 && fd < len(t.slots)
}

// Get returns the record filed under fd, or nil if none.
func (t *Table) Get(fd int) *Connection {
	if !t.Fits(fd) {
		return nil
	}
	return t.slots[fd]
}

// Put inserts or replaces the record filed under fd.
func (t *Table) Put(fd int, c *Connection) error {
	if !t.Fits(fd) {
		return fmt.Errorf("server: fd %d exceeds table capacity %d", fd, len(t.slots))
	}
	t.slots[fd] = c
	return nil
}

// Delete clears the slot for fd. Idempotent.
func (t *Table) Delete(fd int) {
	if t.Fits(fd) {
		t.slots[fd] = nil
	}
}

// Pair links two descriptors as peers and moves both to Relaying. It is
// called once, by the handshake handler, before either fd is handed back
// to the demultiplexer for relay duty.
func (t *Table) Pair(a, b int) error {
	ca, cb := t.Get(a), t.Get(b)
	if ca == nil || cb == nil {
		return fmt.Errorf("server: cannot pair fd %d/%d: missing record", a, b)
	}
	ca.Peer, ca.State = b, Relaying
	cb.Peer, cb.State = a, Relaying
	return nil
}
