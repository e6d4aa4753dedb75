package netstack

// IPProto identifies the transport protocol carried by an IPv4 datagram,
// per the IANA protocol numbers registry.
type IPProto uint8

const (
	IPProtoICMP IPProto = 1
	IPProtoTCP  IPProto = 6
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
