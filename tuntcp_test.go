package tuntcp

import (
	"net"
	"testing"
	"time"

	"tuntcp/tcp"
)

// testQuad is the connection as the Interface under test sees it: its own
// address on :9000, one peer address on a high port.
func testQuad() tcp.Quad {
	return tcp.Quad{
		LocalAddr:  [4]byte{10, 0, 0, 1},
		RemoteAddr: [4]byte{10, 0, 0, 2},
		LocalPort:  9000,
		RemotePort: 54321,
	}
}

// peerQuad flips q so it can be handed to encodeSegment to build a packet
// as the remote peer would send it (peer's own address as "local").
func peerQuad(q tcp.Quad) tcp.Quad {
	return tcp.Quad{
		LocalAddr:  q.RemoteAddr,
		RemoteAddr: q.LocalAddr,
		LocalPort:  q.RemotePort,
		RemotePort: q.LocalPort,
	}
}

func sendFromPeer(t *testing.T, conn net.Conn, q tcp.Quad, seg tcp.Segment, payload []byte) {
	t.Helper()
	buf := make([]byte, maxFrame)
	n, err := encodeSegment(buf, peerQuad(q), seg, payload)
	if err != nil {
		t.Fatalf("encodeSegment: %v", err)
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(buf[:n]); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recvAtPeer(t *testing.T, conn net.Conn) (tcp.Segment, []byte) {
	t.Helper()
	buf := make([]byte, maxFrame)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, seg, payload, ok := decodeSegment(buf[:n])
	if !ok {
		t.Fatalf("decodeSegment: malformed packet %x", buf[:n])
	}
	return seg, append([]byte(nil), payload...)
}

// TestEndToEndHandshakePayloadClose drives a full connection lifecycle
// through a fake tun device: three-way handshake, a payload exchange, and
// a symmetric active/passive close, exercising Interface, Listener and
// Stream together rather than tcp.Conn in isolation.
func TestEndToEndHandshakePayloadClose(t *testing.T) {
	local, peer := net.Pipe()
	ifc := newInterface(local, NewConfig(WithTickInterval(10*time.Millisecond), WithRecvTimeout(20*time.Millisecond)))
	defer ifc.Close()

	ln, err := ifc.Listen(9000)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	q := testQuad()

	// Peer -> SYN
	sendFromPeer(t, peer, q, tcp.Segment{SEQ: 1000, WND: 64240, Flags: tcp.FlagSYN}, nil)

	synack, _ := recvAtPeer(t, peer)
	if !synack.Flags.HasAll(tcp.FlagSYN | tcp.FlagACK) {
		t.Fatalf("want SYN+ACK, got %s", synack.Flags)
	}
	if synack.SEQ != 0 || synack.ACK != 1001 {
		t.Fatalf("want seq=0 ack=1001, got seq=%d ack=%d", synack.SEQ, synack.ACK)
	}

	// Peer -> ACK, completing the handshake.
	sendFromPeer(t, peer, q, tcp.Segment{SEQ: 1001, ACK: 1, WND: 64240, Flags: tcp.FlagACK}, nil)

	stream, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// Peer -> PSH+ACK("hello")
	data := []byte("hello")
	sendFromPeer(t, peer, q, tcp.Segment{SEQ: 1001, ACK: 1, WND: 64240, DATALEN: tcp.Size(len(data)), Flags: tcp.FlagPSH | tcp.FlagACK}, data)

	ack, _ := recvAtPeer(t, peer)
	if ack.ACK != 1006 || !ack.Flags.HasAll(tcp.FlagACK) {
		t.Fatalf("want ACK(1006), got %s", ack)
	}

	buf := make([]byte, 16)
	n, err := stream.Read(buf)
	if err != nil {
		t.Fatalf("Stream.Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("want %q, got %q", "hello", buf[:n])
	}

	// Local actively closes; the tick loop emits the FIN asynchronously.
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fin, _ := recvAtPeer(t, peer)
	if !fin.Flags.HasAll(tcp.FlagFIN | tcp.FlagACK) {
		t.Fatalf("want FIN+ACK, got %s", fin.Flags)
	}
	if fin.SEQ != 1 {
		t.Fatalf("want FIN at seq=1, got %d", fin.SEQ)
	}

	// Peer ACKs our FIN, then sends its own FIN.
	sendFromPeer(t, peer, q, tcp.Segment{SEQ: 1006, ACK: fin.SEQ + 1, WND: 64240, Flags: tcp.FlagACK}, nil)
	sendFromPeer(t, peer, q, tcp.Segment{SEQ: 1006, ACK: fin.SEQ + 1, WND: 64240, Flags: tcp.FlagFIN | tcp.FlagACK}, nil)

	final, _ := recvAtPeer(t, peer)
	if final.ACK != 1007 || !final.Flags.HasAll(tcp.FlagACK) {
		t.Fatalf("want final ACK(1007), got %s", final)
	}

	// Connection should now be reaped from the table once TIME-WAIT is
	// reached; Read on the dangling Stream reports it as aborted.
	time.Sleep(50 * time.Millisecond)
	if _, err := stream.Read(buf); err != tcp.ErrConnAborted {
		t.Fatalf("want ErrConnAborted after reap, got %v", err)
	}
}

// TestDoubleBind exercises spec.md §8 scenario 6: a second Listen on an
// already-bound port fails with ErrAddrInUse.
func TestDoubleBind(t *testing.T) {
	local, _ := net.Pipe()
	ifc := newInterface(local, NewConfig())
	defer ifc.Close()

	ln, err := ifc.Listen(9000)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	if _, err := ifc.Listen(9000); err != tcp.ErrAddrInUse {
		t.Fatalf("want ErrAddrInUse, got %v", err)
	}
}
