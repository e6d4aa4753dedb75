package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/soypat/netstack"
)

// NewFrame returns a Frame with data set to buf. An error is returned if the
// buffer is shorter than a minimal (no options) IPv4 header. Callers should
// still call [Frame.ValidateSize] before trusting Payload/Options to avoid
// panics on malformed input.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an IPv4 datagram and provides methods
// for manipulating, validating and retrieving its fields and payload. See
// [RFC 791].
//
// [RFC 791]: https://tools.ietf.org/html/rfc791
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

// HeaderLength returns the length of the IPv4 header as calculated from IHL,
// including any options.
func (ifrm Frame) HeaderLength() int { return int(ifrm.ihl()) * 4 }

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// VersionAndIHL returns the version and IHL fields. Version is always 4.
func (ifrm Frame) VersionAndIHL() (version, ihl uint8) {
	v := ifrm.buf[0]
	return v >> 4, v & 0xf
}

// SetVersionAndIHL sets the version and IHL fields.
func (ifrm Frame) SetVersionAndIHL(version, ihl uint8) { ifrm.buf[0] = version<<4 | ihl&0xf }

// ToS returns the Type of Service / DiffServ+ECN byte.
func (ifrm Frame) ToS() ToS { return ToS(ifrm.buf[1]) }

// SetToS sets the ToS field.
func (ifrm Frame) SetToS(tos ToS) { ifrm.buf[1] = byte(tos) }

// TotalLength returns the entire datagram size in bytes, header plus data.
func (ifrm Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(ifrm.buf[2:4]) }

// SetTotalLength sets the TotalLength field.
func (ifrm Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(ifrm.buf[2:4], tl) }

// ID identifies the group of fragments of a single IP datagram.
func (ifrm Frame) ID() uint16 { return binary.BigEndian.Uint16(ifrm.buf[4:6]) }

// SetID sets the ID field.
func (ifrm Frame) SetID(id uint16) { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }

// Flags returns the fragmentation flags/offset field.
func (ifrm Frame) Flags() Flags { return Flags(binary.BigEndian.Uint16(ifrm.buf[6:8])) }

// SetFlags sets the fragmentation flags/offset field.
func (ifrm Frame) SetFlags(flags Flags) { binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(flags)) }

// TTL is the time-to-live hop counter.
func (ifrm Frame) TTL() uint8 { return ifrm.buf[8] }

// SetTTL sets the TTL field.
func (ifrm Frame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// Protocol identifies the encapsulated transport protocol. See [netstack.IPProto].
func (ifrm Frame) Protocol() netstack.IPProto { return netstack.IPProto(ifrm.buf[9]) }

// SetProtocol sets the Protocol field.
func (ifrm Frame) SetProtocol(proto netstack.IPProto) { ifrm.buf[9] = uint8(proto) }

// Checksum returns the header checksum field.
func (ifrm Frame) Checksum() uint16 { return binary.BigEndian.Uint16(ifrm.buf[10:12]) }

// SetChecksum sets the header checksum field.
func (ifrm Frame) SetChecksum(cs uint16) { binary.BigEndian.PutUint16(ifrm.buf[10:12], cs) }

// CalculateHeaderChecksum computes the RFC 791 header checksum over the
// header bytes as they currently stand, treating the checksum field as zero.
func (ifrm Frame) CalculateHeaderChecksum() uint16 {
	var cs netstack.Checksum
	hl := ifrm.HeaderLength()
	cs.Write(ifrm.buf[0:10])
	cs.Write(ifrm.buf[12:hl])
	return cs.Sum16()
}

// SourceAddr returns the source address of the datagram.
func (ifrm Frame) SourceAddr() netstack.Ipv4Addr {
	return netstack.Ipv4Addr(ifrm.buf[12:16])
}

// SetSourceAddr sets the source address of the datagram.
func (ifrm Frame) SetSourceAddr(ip netstack.Ipv4Addr) { copy(ifrm.buf[12:16], ip[:]) }

// DestinationAddr returns the destination address of the datagram.
func (ifrm Frame) DestinationAddr() netstack.Ipv4Addr {
	return netstack.Ipv4Addr(ifrm.buf[16:20])
}

// SetDestinationAddr sets the destination address of the datagram.
func (ifrm Frame) SetDestinationAddr(ip netstack.Ipv4Addr) { copy(ifrm.buf[16:20], ip[:]) }

// Payload returns the contents of the IPv4 datagram following the header.
// Call [Frame.ValidateSize] beforehand to avoid a panic.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	l := ifrm.TotalLength()
	return ifrm.buf[off:l]
}

// Options returns the options portion of the header, which may be empty.
// Call [Frame.ValidateSize] beforehand to avoid a panic.
func (ifrm Frame) Options() []byte {
	off := ifrm.HeaderLength()
	return ifrm.buf[sizeHeader:off]
}

// ClearHeader zeros out the fixed (non-options) header contents.
func (ifrm Frame) ClearHeader() {
	for i := range ifrm.buf[:sizeHeader] {
		ifrm.buf[i] = 0
	}
}

//
// Validation API.
//

var (
	errBadTL      = errors.New("ipv4: bad total length")
	errShort      = errors.New("ipv4: short data")
	errBadIHL     = errors.New("ipv4: bad IHL")
	errBadVersion = errors.New("ipv4: bad version")
	errBadTTL     = errors.New("ipv4: ttl is zero")
)

// ValidateSize checks the frame's size fields against the actual buffer,
// accumulating any mismatch on v.
func (ifrm Frame) ValidateSize(v *netstack.Validator) {
	if len(ifrm.buf) < sizeHeader {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "ipv4", Detail: "short header"})
		return
	}
	ihl := ifrm.ihl()
	tl := ifrm.TotalLength()
	if tl < sizeHeader {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "ipv4", Detail: errBadTL.Error()})
	}
	if int(tl) > len(ifrm.RawData()) {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "ipv4", Detail: errShort.Error()})
	}
	if ihl < 5 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidHeaderLength, Proto: "ipv4", Detail: errBadIHL.Error()})
	}
}

// ValidateExceptChecksum checks for invalid frame values but does not verify
// the header checksum.
func (ifrm Frame) ValidateExceptChecksum(v *netstack.Validator) {
	ifrm.ValidateSize(v)
	if ifrm.version() != 4 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidVersion, Proto: "ipv4", Detail: errBadVersion.Error()})
	}
	if ifrm.TTL() == 0 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidTTL, Proto: "ipv4", Detail: errBadTTL.Error()})
	}
}

// ValidateChecksum verifies the header checksum, accumulating an error on v
// if it does not match.
func (ifrm Frame) ValidateChecksum(v *netstack.Validator) {
	var cs netstack.Checksum
	cs.Write(ifrm.buf[0:10])
	cs.Write(ifrm.buf[12:ifrm.HeaderLength()])
	cs.AddUint16(ifrm.Checksum())
	if cs.Sum16() != 0 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidChecksum, Proto: "ipv4"})
	}
}

func (ifrm Frame) String() string {
	dst := ifrm.DestinationAddr()
	src := ifrm.SourceAddr()
	hl := ifrm.HeaderLength()
	tl := int(ifrm.TotalLength())
	return fmt.Sprintf("IP %s SRC=%s DST=%s LEN=%d OPT=%d TTL=%d ID=%d ToS=0x%x",
		ifrm.Protocol(), src, dst, tl, hl-sizeHeader, ifrm.TTL(), ifrm.ID(), ifrm.ToS())
}

// BuildOptions configures an outgoing IPv4 datagram built with [Build].
type BuildOptions struct {
	Source      netstack.Ipv4Addr
	Destination netstack.Ipv4Addr
	Protocol    netstack.IPProto
	TTL         uint8
	ID          uint16
	DontFrag    bool
}

// Build writes a complete IPv4 header with no options, followed by payload,
// into dst, then fills in the header checksum. Returns the number of bytes
// written, dst must be at least 20+len(payload) bytes.
func Build(dst []byte, opts BuildOptions, payload []byte) (int, error) {
	total := sizeHeader + len(payload)
	if len(dst) < total {
		return 0, errShort
	}
	ifrm, err := NewFrame(dst[:total])
	if err != nil {
		return 0, err
	}
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(uint16(total))
	ifrm.SetID(opts.ID)
	var flags Flags
	if opts.DontFrag {
		flags |= FlagDontFragment
	}
	ifrm.SetFlags(flags)
	ttl := opts.TTL
	if ttl == 0 {
		ttl = 64
	}
	ifrm.SetTTL(ttl)
	ifrm.SetProtocol(opts.Protocol)
	ifrm.SetSourceAddr(opts.Source)
	ifrm.SetDestinationAddr(opts.Destination)
	copy(dst[sizeHeader:], payload)
	ifrm.SetChecksum(ifrm.CalculateHeaderChecksum())
	return total, nil
}
