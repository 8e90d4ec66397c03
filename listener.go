package tuntcp

import "tuntcp/tcp"

// Listener owns a local port and hands off inbound connections as soon as
// their SYN arrives. Creating one registers the port; closing it
// deregisters the port and aborts any connections still waiting to be
// accepted.
type Listener struct {
	port  uint16
	table *table
}

// Listen registers port on the interface's Connection Table, returning
// [tcp.ErrAddrInUse] if another Listener already owns it.
func (ifc *Interface) Listen(port uint16) (*Listener, error) {
	if err := ifc.table.registerListener(port); err != nil {
		return nil, err
	}
	return &Listener{port: port, table: ifc.table}, nil
}

// Accept blocks until a peer's SYN has been queued for this Listener's port,
// then returns a Stream bound to that connection. The handshake may still be
// in SYN-RECEIVED when Accept returns.
// It returns [tcp.ErrConnAborted] once the Listener or its Interface has
// been closed.
func (l *Listener) Accept() (*Stream, error) {
	quad, ok := l.table.popPending(l.port)
	if !ok {
		return nil, tcp.ErrConnAborted
	}
	return &Stream{quad: quad, table: l.table}, nil
}

// Port returns the local port this Listener owns.
func (l *Listener) Port() uint16 { return l.port }

// Close deregisters the port, aborting any Quads still queued for accept.
func (l *Listener) Close() error {
	l.table.deregisterListener(l.port)
	return nil
}
