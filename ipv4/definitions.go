package ipv4

const (
	sizeHeader = 20
)

// ToS represents the Type of Service byte: 6 MSB are Differentiated
// Services, 2 LSB are Explicit Congestion Notification.
type ToS uint8

// DS returns the Differentiated Services field used to classify packets.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification field.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }

// Flags holds the fragmentation flags/offset field of an IPv4 header.
type Flags uint16

const (
	// FlagDontFragment marks a datagram that must not be fragmented, even if
	// routing requires it; such a datagram is instead dropped.
	FlagDontFragment Flags = 0x4000
	// FlagMoreFragments is set on every fragment of a fragmented datagram
	// except the last.
	FlagMoreFragments Flags = 0x2000
)

// DontFragment reports whether the datagram must not be fragmented.
func (f Flags) DontFragment() bool { return f&FlagDontFragment != 0 }

// MoreFragments reports whether more fragments follow this one.
func (f Flags) MoreFragments() bool { return f&FlagMoreFragments != 0 }

// FragmentOffset specifies, in units of 8 bytes, this fragment's offset
// relative to the start of the original unfragmented datagram.
func (f Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }
