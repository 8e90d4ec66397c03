package tcp

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrConnAborted = errors.New("tcp: connection aborted")
	ErrWouldBlock  = errors.New("tcp: would block")
	ErrAddrInUse   = errors.New("tcp: address already in use")
)

// SendQueueSize is the maximum number of unacknowledged-or-unsent bytes a
// Stream.Write call is allowed to buffer in a connection's unacked queue.
const SendQueueSize = 1024

// RecvQueueSize is the capacity of a connection's delivered-but-unread ring
// buffer. Data arriving once it is full is logged and dropped rather than
// stalling the segment engine; see DESIGN.md for why recv.wnd does not
// reflect this capacity.
const RecvQueueSize = 4096

// Flags is a TCP flags bit-mask, restricted to the flags this stack ever
// sets or inspects: SYN, ACK, FIN, RST and PSH.
type Flags uint8

const (
	FlagFIN Flags = 1 << iota // FlagFIN - no more data from sender.
	FlagSYN                   // FlagSYN - synchronize sequence numbers.
	FlagRST                   // FlagRST - reset the connection.
	FlagPSH                   // FlagPSH - push function.
	FlagACK                   // FlagACK - acknowledgment field significant.
)

// HasAll reports whether all bits in mask are set in flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny reports whether any bit in mask is set in flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// String returns a human readable flag string, e.g. "[SYN,ACK]".
func (flags Flags) String() string {
	switch flags {
	case 0:
		return "[]"
	case FlagSYN | FlagACK:
		return "[SYN,ACK]"
	case FlagFIN | FlagACK:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount8(uint8(flags)))
	buf = append(buf, '[')
	buf = flags.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag string to b, returning the
// extended buffer.
func (flags Flags) AppendFormat(b []byte) []byte {
	const flaglen = 4
	const names = "FIN SYN RST PSH ACK "
	var addcomma bool
	for flags != 0 {
		i := bits.TrailingZeros8(uint8(flags))
		if addcomma {
			b = append(b, ',')
		}
		addcomma = true
		b = append(b, trimSpace(names[i*flaglen:i*flaglen+flaglen])...)
		flags &^= 1 << i
	}
	return b
}

func trimSpace(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// State enumerates the states a connection progresses through. This stack
// only implements the subset that a passively-opened connection reaches
// during the handshake, data transfer and the active-close path through
// FIN-WAIT-1 -> FIN-WAIT-2 -> TIME-WAIT; CLOSE-WAIT, LAST-ACK, CLOSING and
// simultaneous-open are out of scope.
type State uint8

const (
	StateClosed State = iota // CLOSED - pseudo-state before a Connection exists.
	StateSynRcvd
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateSynRcvd:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Segment represents an incoming/outgoing TCP segment in the sequence space.
type Segment struct {
	SEQ     Value // sequence number of first octet of segment.
	ACK     Value // acknowledgment number, valid when Flags has FlagACK.
	DATALEN Size  // number of payload octets, not counting SYN/FIN.
	WND     Size  // advertised window.
	Flags   Flags
}

// Len returns the length of the segment in sequence-space octets, including
// the unit octet consumed by SYN and FIN.
func (seg Segment) Len() Size {
	n := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		n++
	}
	if seg.Flags.HasAny(FlagFIN) {
		n++
	}
	return n
}

func (seg Segment) String() string {
	return fmt.Sprintf("<SEQ=%d><ACK=%d><DATALEN=%d><WND=%d>%s", seg.SEQ, seg.ACK, seg.DATALEN, seg.WND, seg.Flags)
}

// Availability is a bitset of local operations that will not block.
type Availability uint8

const (
	AvailRead Availability = 1 << iota
	AvailWrite
)
