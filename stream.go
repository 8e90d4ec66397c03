package tuntcp

import "tuntcp/tcp"

// Stream owns a Quad and a reference to the Connection Table; it never
// holds a direct pointer to a Conn; every operation looks the Conn up by
// Quad under the table lock, so a Stream stays safe to use even after its
// Conn has been concurrently torn down.
type Stream struct {
	quad  tcp.Quad
	table *table
}

// Quad returns the connection's 4-tuple.
func (s *Stream) Quad() tcp.Quad { return s.quad }

// Read copies up to len(buf) bytes of delivered payload into buf, blocking
// if none is yet available. It returns (0, nil) once the connection has
// reached TIME-WAIT (the peer's FIN processed after a local close); a FIN
// that arrives before a local close does not end reads.
func (s *Stream) Read(buf []byte) (int, error) {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		c, ok := t.connections[s.quad]
		if !ok {
			return 0, tcp.ErrConnAborted
		}
		if c.HasIncoming() {
			n, _ := c.ReadIncoming(buf)
			return n, nil
		}
		if c.State() == tcp.StateTimeWait {
			return 0, nil
		}
		if t.terminate {
			return 0, tcp.ErrConnAborted
		}
		t.readCond.Wait()
	}
}

// Write appends up to len(buf) bytes to the connection's send queue,
// returning the number accepted. It never blocks: once the queue reaches
// [tcp.SendQueueSize] it fails with [tcp.ErrWouldBlock] instead (see
// DESIGN.md for why write-side blocking was not implemented).
func (s *Stream) Write(buf []byte) (int, error) {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.connections[s.quad]
	if !ok {
		return 0, tcp.ErrConnAborted
	}
	if c.UnackedLen() >= tcp.SendQueueSize {
		return 0, tcp.ErrWouldBlock
	}
	return c.Enqueue(buf), nil
}

// Flush reports whether every previously-written byte has been
// acknowledged by the peer, failing with [tcp.ErrWouldBlock] otherwise.
func (s *Stream) Flush() error {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.connections[s.quad]
	if !ok {
		return tcp.ErrConnAborted
	}
	if c.UnackedLen() != 0 {
		return tcp.ErrWouldBlock
	}
	return nil
}

// Shutdown requests a local active close: the connection's next tick emits
// a FIN once any queued data has drained. The connection stays in the table
// so the close handshake can actually run to TIME-WAIT; see Close.
func (s *Stream) Shutdown() error {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.connections[s.quad]; ok {
		c.MarkClosed()
	}
	return nil
}

// Close is the Go-idiomatic equivalent of dropping a Stream: it requests
// shutdown exactly like Shutdown. The connection is reaped from the table
// by the tick loop once it reaches TIME-WAIT (see [Interface.tickLoop]),
// rather than being torn down synchronously here, so the FIN/ACK sequence
// spec.md's active-close scenario describes has a chance to complete.
func (s *Stream) Close() error {
	return s.Shutdown()
}
