package tuntcp

import (
	"sync"

	"tuntcp/tcp"
)

// table is the Connection Table: the process-wide, single-instance registry
// of active connections and per-port accept queues described by the data
// model. Every mutation of a Conn happens while mu is held; pendingCond and
// readCond are attached to the same mutex so waiters always re-check their
// predicate under the lock that protects it.
type table struct {
	mu sync.Mutex

	connections map[tcp.Quad]*tcp.Conn
	pending     map[uint16][]tcp.Quad
	listeners   map[uint16]bool

	pendingCond *sync.Cond
	readCond    *sync.Cond

	terminate bool
}

func newTable() *table {
	t := &table{
		connections: make(map[tcp.Quad]*tcp.Conn),
		pending:     make(map[uint16][]tcp.Quad),
		listeners:   make(map[uint16]bool),
	}
	t.pendingCond = sync.NewCond(&t.mu)
	t.readCond = sync.NewCond(&t.mu)
	return t
}

// registerListener claims port for a new Listener, failing with
// [tcp.ErrAddrInUse] if a Listener already owns it.
func (t *table) registerListener(port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners[port] {
		return tcp.ErrAddrInUse
	}
	t.listeners[port] = true
	t.pending[port] = nil
	return nil
}

// deregisterListener drops port's accept queue. Any Quads still queued are
// aborted: their connections are removed without a FIN, per the documented
// "abort: remove from table" decision for dropped pending connections.
func (t *table) deregisterListener(port uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, q := range t.pending[port] {
		delete(t.connections, q)
	}
	delete(t.pending, port)
	delete(t.listeners, port)
}

// popPending blocks until port has a queued Quad (or the table is
// terminated) and returns the oldest one.
func (t *table) popPending(port uint16) (tcp.Quad, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		q, ok := t.pending[port]
		if !ok {
			return tcp.Quad{}, false // listener was closed concurrently
		}
		if len(q) > 0 {
			next := q[0]
			t.pending[port] = q[1:]
			return next, true
		}
		if t.terminate {
			return tcp.Quad{}, false
		}
		t.pendingCond.Wait()
	}
}

// shutdown sets the terminate flag and wakes every waiter so blocked
// Accept/Read calls can observe it and return.
func (t *table) shutdown() {
	t.mu.Lock()
	t.terminate = true
	t.mu.Unlock()
	t.pendingCond.Broadcast()
	t.readCond.Broadcast()
}
