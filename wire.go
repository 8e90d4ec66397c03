package tuntcp

import (
	"errors"

	"tuntcp/ipv4"
	"tuntcp/tcp"
	"tuntcp/wire"
)

// maxFrame bounds the IPv4 datagrams this stack will emit or accept: a
// single unfragmented TCP segment at MSS 1460 plus the fixed 20+20 byte
// IPv4/TCP headers, rounded up with a little slack for the tun device.
const maxFrame = 1504

const (
	ipHeaderLen  = 20
	tcpHeaderLen = 20
)

var errFrameTooLarge = errors.New("tuntcp: segment exceeds max frame size")

// encodeSegment renders seg/payload as a complete IPv4+TCP datagram into
// buf, addressed per quad, and returns the number of bytes written. No TCP
// options are emitted; the header offset is always 5 words, matching
// spec's "no options emitted" wire contract.
func encodeSegment(buf []byte, quad tcp.Quad, seg tcp.Segment, payload []byte) (int, error) {
	total := ipHeaderLen + tcpHeaderLen + len(payload)
	if total > len(buf) {
		return 0, errFrameTooLarge
	}

	ifrm, err := ipv4.NewFrame(buf[:total])
	if err != nil {
		return 0, err
	}
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(uint16(total))
	ifrm.SetTTL(64)
	ifrm.SetProtocol(wire.IPProtoTCP)
	*ifrm.SourceAddr() = quad.LocalAddr
	*ifrm.DestinationAddr() = quad.RemoteAddr
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	tfrm, err := tcp.NewFrame(buf[ipHeaderLen:total])
	if err != nil {
		return 0, err
	}
	tfrm.ClearHeader()
	tfrm.SetSourcePort(quad.LocalPort)
	tfrm.SetDestinationPort(quad.RemotePort)
	tfrm.SetSegment(seg, tcpHeaderLen/4)
	copy(tfrm.Payload(), payload)

	var crc wire.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	tfrm.SetCRC(wire.NeverZeroChecksum(crc.PayloadSum16(tfrm.RawData())))

	return total, nil
}

// decodeSegment parses pkt as an inbound IPv4 datagram and, if it carries a
// well-formed TCP segment, returns the Quad (as seen from the local side),
// Segment and payload view. ok is false if the datagram should be silently
// dropped: wrong protocol or any header validation failure.
func decodeSegment(pkt []byte) (quad tcp.Quad, seg tcp.Segment, payload []byte, ok bool) {
	ifrm, err := ipv4.NewFrame(pkt)
	if err != nil {
		return quad, seg, nil, false
	}
	var v wire.Validator
	ifrm.ValidateExceptCRC(&v)
	if v.Err() != nil || ifrm.Protocol() != wire.IPProtoTCP {
		return quad, seg, nil, false
	}

	tfrm, err := tcp.NewFrame(ifrm.Payload())
	if err != nil {
		return quad, seg, nil, false
	}
	var v2 wire.Validator
	tfrm.ValidateExceptCRC(&v2)
	if v2.Err() != nil {
		return quad, seg, nil, false
	}

	payload = tfrm.Payload()
	seg = tfrm.Segment(len(payload))
	quad = tcp.Quad{
		LocalAddr:  *ifrm.DestinationAddr(),
		RemoteAddr: *ifrm.SourceAddr(),
		LocalPort:  tfrm.DestinationPort(),
		RemotePort: tfrm.SourcePort(),
	}
	return quad, seg, payload, true
}
