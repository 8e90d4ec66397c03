package tcp

import "fmt"

// Value is a 32-bit TCP sequence/acknowledgment number. Arithmetic on Value
// wraps modulo 2**32 the way the wire field does; comparisons must use
// [Value.LessThan] rather than Go's native operators, which would treat the
// sequence space as a line instead of a ring.
type Value uint32

// Add returns v advanced by delta octets, wrapping modulo 2**32.
func (v Value) Add(delta Size) Value { return v + Value(delta) }

// Sub returns the wrapping distance from u to v, i.e. the Size s such that
// u.Add(s) == v.
func (v Value) Sub(u Value) Size { return Size(v - u) }

// LessThan implements the RFC 1323 wrapping comparison: a < b iff
// (a-b) mod 2**32 > 2**31. The literal 0x80000000 must not be confused with
// a shift or exponentiation; it is exactly one half of the sequence ring.
func (v Value) LessThan(u Value) bool {
	return Value(v-u) > 0x80000000
}

// LessThanEq reports whether v==u or v.LessThan(u).
func (v Value) LessThanEq(u Value) bool { return v == u || v.LessThan(u) }

// Size is a byte count or window size, always non-negative in practice but
// represented as a plain wrapping integer so it composes with Value.Add.
type Size uint32

// inOpenInterval reports whether lo < v < hi, all wrapping comparisons.
func inOpenInterval(lo, v, hi Value) bool {
	return lo.LessThan(v) && v.LessThan(hi)
}

// inClosedInterval reports whether lo <= v <= hi, all wrapping comparisons.
func inClosedInterval(lo, v, hi Value) bool {
	return lo.LessThanEq(v) && v.LessThanEq(hi)
}

// inLeftClosedInterval reports whether lo <= v < hi, all wrapping comparisons.
func inLeftClosedInterval(lo, v, hi Value) bool {
	return lo.LessThanEq(v) && v.LessThan(hi)
}

// Quad is the 4-tuple identifying a TCP connection: local and remote IPv4
// address and port. It is comparable and usable directly as a map key.
type Quad struct {
	LocalAddr  [4]byte
	RemoteAddr [4]byte
	LocalPort  uint16
	RemotePort uint16
}

func (q Quad) String() string {
	return fmtAddr(q.LocalAddr, q.LocalPort) + "<->" + fmtAddr(q.RemoteAddr, q.RemotePort)
}

func fmtAddr(ip [4]byte, port uint16) string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], port)
}
