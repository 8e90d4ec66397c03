package wire

// IPProto represents the IPv4 protocol number carried in the protocol field
// of the IP header. Only the handful of values the demultiplexer needs to
// recognize are named; everything else is treated as "not TCP" and dropped.
type IPProto uint8

const (
	IPProtoICMP IPProto = 1 // Internet Control Message [RFC792]
	IPProtoTCP  IPProto = 6 // Transmission Control [RFC793]
	IPProtoUDP  IPProto = 17
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "unknown"
	}
}
