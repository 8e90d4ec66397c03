// Package tcp implements the per-connection TCP segment engine: segment
// acceptance under wrapping 32-bit sequence arithmetic, the SYN/ACK/FIN
// handshake, acknowledgment processing, byte-stream delivery, retransmission
// with a smoothed-RTT timer, and the restricted active-close path through
// FIN-WAIT-1 -> FIN-WAIT-2 -> TIME-WAIT. The package owns no sockets, no
// goroutines and no locks: every exported method on Conn mutates state
// synchronously and is intended to be called while a caller-owned mutex (see
// package tuntcp) is held.
package tcp

import (
	"log/slog"
	"time"

	"tuntcp/internal"
)

// sendSpace is the per-connection send sequence space (RFC 9293 3.3.1).
type sendSpace struct {
	ISS Value // initial send sequence number
	UNA Value // oldest unacknowledged sequence number
	NXT Value // next sequence number to send
	WND Size  // fixed at 10 by Accept; bounds in-flight bytes and is advertised on every emitted segment
}

// recvSpace is the per-connection receive sequence space.
type recvSpace struct {
	IRS Value // initial peer sequence number
	NXT Value // next expected sequence number
	WND Size  // window the peer advertised on its SYN; gates segment acceptance
}

// Outbound is a segment the engine has decided to transmit: the caller must
// frame Segment and Payload into a wire IPv4/TCP datagram (computing the
// checksum over the pseudo-header) and hand it to the tun device.
type Outbound struct {
	Segment Segment
	Payload []byte
}

// Conn is a single TCP connection's segment engine. The zero Conn is not
// usable; construct one with [Accept].
type Conn struct {
	quad  Quad
	state State

	send sendSpace
	recv recvSpace

	incoming internal.Ring // delivered, not yet read by the local consumer
	unacked  []byte        // queued by the local writer; at most nxt-una leading bytes are in flight (SYN and FIN take sequence space but no byte here)

	closed      bool  // local shutdown requested
	closedAt    Value // sequence assigned to our FIN, once chosen
	hasClosedAt bool

	sendTimes map[Value]time.Time
	srtt      time.Duration

	logger
}

// Accept performs the passive-open operation described for a freshly
// arrived SYN: it builds a new Conn in SYN-RECEIVED and returns the
// SYN+ACK segment that must be transmitted in reply. iss is the initial
// send sequence number chosen by the caller (package tuntcp always passes
// zero; production should randomize per RFC 6528).
func Accept(now time.Time, quad Quad, iss Value, peerSeq Value, peerWindow Size, log *slog.Logger) (*Conn, Outbound) {
	c := &Conn{
		quad:      quad,
		state:     StateSynRcvd,
		send:      sendSpace{ISS: iss, UNA: iss, NXT: iss, WND: 10},
		recv:      recvSpace{IRS: peerSeq, NXT: peerSeq.Add(1), WND: peerWindow},
		incoming:  internal.Ring{Buf: make([]byte, RecvQueueSize)},
		sendTimes: make(map[Value]time.Time),
		srtt:      60 * time.Second,
		logger:    logger{log: log},
	}
	out := c.emit(now, c.send.ISS, nil, FlagSYN|FlagACK)
	c.debug("tcp:accept", slog.String("quad", c.quad.String()))
	return c, out
}

// Quad returns the connection's 4-tuple.
func (c *Conn) Quad() Quad { return c.quad }

// State returns the connection's current TCP state.
func (c *Conn) State() State { return c.state }

// emit assembles a Segment for transmission and applies the bookkeeping
// required of every emission: record the send time of any segment carrying
// new sequence-space octets, clear the edge-triggered SYN/FIN by advancing
// send.NXT past them, and otherwise advance send.NXT past any payload.
func (c *Conn) emit(now time.Time, seqn Value, payload []byte, flags Flags) Outbound {
	seg := Segment{
		SEQ:     seqn,
		ACK:     c.recv.NXT,
		WND:     c.send.WND,
		DATALEN: Size(len(payload)),
		Flags:   flags,
	}
	if len(payload) > 0 || flags.HasAny(FlagSYN|FlagFIN) {
		c.sendTimes[seqn] = now
	}
	if flags.HasAny(FlagSYN) {
		c.send.NXT = c.send.NXT.Add(1)
	}
	if flags.HasAny(FlagFIN) {
		c.send.NXT = c.send.NXT.Add(1)
	}
	nextSeq := seqn.Add(Size(len(payload)))
	if c.send.NXT.LessThan(nextSeq) {
		c.send.NXT = nextSeq
	}
	c.traceSeg("tcp:emit", seg)
	return Outbound{Segment: seg, Payload: payload}
}

func (c *Conn) bareACK(now time.Time) Outbound {
	return c.emit(now, c.send.NXT, nil, FlagACK)
}

// segmentAcceptable implements the RFC 793 3.3 acceptance test.
func segmentAcceptable(seq Value, slen Size, rcvNxt Value, rcvWnd Size) bool {
	wend := rcvNxt.Add(rcvWnd)
	nxtM1 := rcvNxt - 1
	switch {
	case slen == 0 && rcvWnd == 0:
		return seq == rcvNxt
	case slen == 0:
		return inOpenInterval(nxtM1, seq, wend)
	case rcvWnd == 0:
		return false
	default:
		last := seq.Add(slen - 1)
		return inOpenInterval(nxtM1, seq, wend) || inOpenInterval(nxtM1, last, wend)
	}
}

// OnPacket ingests one inbound segment and returns whatever segments must be
// transmitted in response, along with the resulting Availability.
func (c *Conn) OnPacket(now time.Time, seg Segment, payload []byte) ([]Outbound, Availability) {
	c.traceSeg("tcp:onpacket", seg)
	slen := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		slen++
	}
	if seg.Flags.HasAny(FlagFIN) {
		slen++
	}

	// Step A: segment acceptance.
	if !segmentAcceptable(seg.SEQ, slen, c.recv.NXT, c.recv.WND) {
		return []Outbound{c.bareACK(now)}, c.availability()
	}

	// Step B: ACK-less handling.
	if !seg.Flags.HasAny(FlagACK) {
		if seg.Flags.HasAny(FlagSYN) {
			c.recv.NXT = seg.SEQ.Add(1)
		} else {
			c.recv.NXT = c.recv.NXT.Add(slen)
		}
		return nil, c.availability()
	}

	var out []Outbound

	// Step C: SYN-RECEIVED -> ESTABLISHED transition.
	if c.state == StateSynRcvd {
		if inClosedInterval(c.send.UNA, seg.ACK, c.send.NXT) {
			c.state = StateEstablished
		} else {
			// Segment should trigger RST in production; silently ignored here.
			return out, c.availability()
		}
	}

	// Step D: ACK processing.
	if c.state == StateEstablished || c.state == StateFinWait1 || c.state == StateFinWait2 {
		if inClosedInterval(c.send.UNA, seg.ACK, c.send.NXT+1) {
			dataStart := c.send.UNA
			if c.send.UNA == c.send.ISS {
				dataStart = c.send.UNA + 1
			}
			var ackedBytes Size
			if !seg.ACK.LessThan(dataStart) {
				ackedBytes = seg.ACK.Sub(dataStart)
			}
			drain := len(c.unacked)
			if int(ackedBytes) < drain {
				drain = int(ackedBytes)
			}
			if drain > 0 {
				c.unacked = c.unacked[drain:]
			}
			oldUNA := c.send.UNA
			for seq, t := range c.sendTimes {
				if inLeftClosedInterval(oldUNA, seq, seg.ACK) {
					sample := now.Sub(t)
					c.srtt = (8*c.srtt + 2*sample) / 10
					delete(c.sendTimes, seq)
				}
			}
			c.send.UNA = seg.ACK
		}
	}

	// Step E: FIN-ACK detection.
	if c.state == StateFinWait1 && c.hasClosedAt && c.send.UNA == c.closedAt+1 {
		c.state = StateFinWait2
	}

	// Step F: data delivery.
	if len(payload) > 0 && (c.state == StateEstablished || c.state == StateFinWait1 || c.state == StateFinWait2) {
		skip := c.recv.NXT.Sub(seg.SEQ)
		if int(skip) > len(payload) {
			skip = 0
		}
		if data := payload[skip:]; len(data) > 0 {
			if _, err := c.incoming.Write(data); err != nil {
				c.error("tcp: recv buffer full, dropping data", slog.String("quad", c.quad.String()))
			}
		}
		adv := Size(len(payload)) - skip
		if seg.Flags.HasAny(FlagFIN) {
			adv++
		}
		c.recv.NXT = c.recv.NXT.Add(adv)
		out = append(out, c.bareACK(now))
	} else if len(payload) == 0 && c.state == StateFinWait2 && seg.Flags.HasAny(FlagFIN) {
		// Step G: passive close.
		c.recv.NXT = c.recv.NXT.Add(1)
		out = append(out, c.bareACK(now))
		c.state = StateTimeWait
	}

	return out, c.availability()
}

func (c *Conn) availability() Availability {
	var a Availability
	if c.incoming.Buffered() > 0 || c.state == StateTimeWait {
		a |= AvailRead
	}
	return a
}

// OnTick drives periodic retransmission and fresh-data transmission. It is
// a no-op in FIN-WAIT-2 and TIME-WAIT, where no further sends are expected.
func (c *Conn) OnTick(now time.Time) []Outbound {
	if c.state == StateFinWait2 || c.state == StateTimeWait {
		return nil
	}

	nunacked := c.send.NXT.Sub(c.send.UNA)
	var unsent Size
	if queued := Size(len(c.unacked)); queued > nunacked {
		unsent = queued - nunacked
	}

	if wait, ok := c.earliestOutstandingWait(now); ok && wait > time.Second && wait > (c.srtt*3)/2 {
		resend := len(c.unacked)
		if resend > int(c.send.WND) {
			resend = int(c.send.WND)
		}
		flags := FlagACK
		if resend < int(c.send.WND) && c.closed {
			flags |= FlagFIN
			c.closedAt = c.send.UNA.Add(Size(len(c.unacked)))
			c.hasClosedAt = true
			if c.state == StateEstablished {
				c.state = StateFinWait1
			}
		}
		out := c.emit(now, c.send.UNA, c.unacked[:resend], flags)
		c.send.NXT = c.send.UNA.Add(c.send.WND)
		return []Outbound{out}
	}

	if unsent == 0 && c.hasClosedAt {
		return nil
	}
	var allowed Size
	if c.send.WND > nunacked {
		allowed = c.send.WND - nunacked
	}
	if allowed == 0 {
		return nil
	}
	sendN := unsent
	if sendN > allowed {
		sendN = allowed
	}
	flags := FlagACK
	if sendN < allowed && c.closed && !c.hasClosedAt {
		flags |= FlagFIN
		c.closedAt = c.send.NXT.Add(unsent)
		c.hasClosedAt = true
		if c.state == StateEstablished {
			c.state = StateFinWait1
		}
	}
	if sendN == 0 && !flags.HasAny(FlagFIN) {
		return nil
	}
	start := min(int(nunacked), len(c.unacked))
	out := c.emit(now, c.send.NXT, c.unacked[start:start+int(sendN)], flags)
	return []Outbound{out}
}

func (c *Conn) earliestOutstandingWait(now time.Time) (time.Duration, bool) {
	var earliest time.Time
	found := false
	for seq, t := range c.sendTimes {
		if seq.LessThan(c.send.UNA) {
			continue
		}
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return now.Sub(earliest), true
}

//
// Blocking-adapter support: these methods are called by package tuntcp
// while holding the connection table's mutex.
//

// ReadIncoming copies up to len(buf) bytes from the front of the connection's
// delivered-but-unread queue, returning the count copied and whether the
// receive side has reached TIME-WAIT (no further data will ever arrive).
func (c *Conn) ReadIncoming(buf []byte) (n int, recvClosed bool) {
	n, _ = c.incoming.Read(buf) // io.EOF on an empty ring just means n==0
	return n, c.state == StateTimeWait
}

// HasIncoming reports whether there is unread data buffered.
func (c *Conn) HasIncoming() bool { return c.incoming.Buffered() > 0 }

// Enqueue appends up to SendQueueSize-|unacked| bytes of buf to the local
// writer's queue, returning the number of bytes accepted.
func (c *Conn) Enqueue(buf []byte) int {
	room := SendQueueSize - len(c.unacked)
	if room <= 0 {
		return 0
	}
	if len(buf) > room {
		buf = buf[:room]
	}
	c.unacked = append(c.unacked, buf...)
	return len(buf)
}

// UnackedLen returns the number of bytes queued by the local writer that
// have not yet been acknowledged by the peer.
func (c *Conn) UnackedLen() int { return len(c.unacked) }

// MarkClosed requests a local active close: the next call to OnTick will
// emit a FIN once all previously-queued data has been sent.
func (c *Conn) MarkClosed() { c.closed = true }

// Closed reports whether a local close has been requested.
func (c *Conn) Closed() bool { return c.closed }
