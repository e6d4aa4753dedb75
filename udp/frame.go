// Package udp implements the UDP (RFC 768) datagram codec.
package udp

import (
	"encoding/binary"
	"errors"

	"github.com/soypat/netstack"
)

// HeaderLength is the size of the UDP header: source port, destination
// port, length and checksum.
const HeaderLength = 8

const sizeHeader = HeaderLength

// NewFrame returns a Frame with data set to buf. An error is returned if the
// buffer is shorter than a UDP header. Callers should still call
// [Frame.ValidateSize] before trusting Payload to avoid panics.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of a UDP datagram and provides methods
// for manipulating, validating and retrieving its fields and payload. See
// [RFC 768].
//
// [RFC 768]: https://tools.ietf.org/html/rfc768
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (ufrm Frame) RawData() []byte { return ufrm.buf }

// SourcePort identifies the sending port. May be zero if unused.
func (ufrm Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(ufrm.buf[0:2]) }

// SetSourcePort sets the source port field.
func (ufrm Frame) SetSourcePort(src uint16) { binary.BigEndian.PutUint16(ufrm.buf[0:2], src) }

// DestinationPort identifies the receiving port.
func (ufrm Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(ufrm.buf[2:4]) }

// SetDestinationPort sets the destination port field.
func (ufrm Frame) SetDestinationPort(dst uint16) { binary.BigEndian.PutUint16(ufrm.buf[2:4], dst) }

// Length is the size in bytes of the UDP header plus payload. The minimum
// is 8 (header only, no data).
func (ufrm Frame) Length() uint16 { return binary.BigEndian.Uint16(ufrm.buf[4:6]) }

// SetLength sets the Length field.
func (ufrm Frame) SetLength(length uint16) { binary.BigEndian.PutUint16(ufrm.buf[4:6], length) }

// Checksum returns the checksum field. Zero means "no checksum computed".
func (ufrm Frame) Checksum() uint16 { return binary.BigEndian.Uint16(ufrm.buf[6:8]) }

// SetChecksum sets the checksum field.
func (ufrm Frame) SetChecksum(cs uint16) { binary.BigEndian.PutUint16(ufrm.buf[6:8], cs) }

// Payload returns the data section of the datagram. Call
// [Frame.ValidateSize] beforehand to avoid a panic.
func (ufrm Frame) Payload() []byte {
	l := ufrm.Length()
	return ufrm.buf[sizeHeader:l]
}

// ClearHeader zeros out the header contents.
func (ufrm Frame) ClearHeader() {
	for i := range ufrm.buf[:sizeHeader] {
		ufrm.buf[i] = 0
	}
}

// ComputeChecksum computes the RFC 768 checksum over the IPv4 pseudo-header
// (built from src/dst passed in directly, since UDP has no dependency on
// the ipv4 package) plus the UDP header and payload, treating the checksum
// field as zero. A result of zero is mapped to 0xffff, since zero on the
// wire means "checksum not computed".
func (ufrm Frame) ComputeChecksum(src, dst netstack.Ipv4Addr) uint16 {
	var cs netstack.Checksum
	cs.Write(src[:])
	cs.Write(dst[:])
	cs.AddUint16(uint16(netstack.IPProtoUDP))
	cs.AddUint16(ufrm.Length())
	cs.Write(ufrm.buf[0:6])
	cs.WritePadded(ufrm.Payload())
	return netstack.NeverZero(cs.Sum16())
}

// VerifyChecksum reports whether the frame's stored checksum matches
// [Frame.ComputeChecksum] for the given pseudo-header addresses. A stored
// checksum of zero always verifies, per RFC 768's "checksum not computed"
// convention.
func (ufrm Frame) VerifyChecksum(src, dst netstack.Ipv4Addr) bool {
	stored := ufrm.Checksum()
	if stored == 0 {
		return true
	}
	var cs netstack.Checksum
	cs.Write(src[:])
	cs.Write(dst[:])
	cs.AddUint16(uint16(netstack.IPProtoUDP))
	cs.AddUint16(ufrm.Length())
	cs.Write(ufrm.buf[0:6])
	cs.AddUint16(stored)
	cs.WritePadded(ufrm.Payload())
	return cs.Sum16() == 0
}

//
// Validation API.
//

var (
	errBadLen = errors.New("udp: bad UDP length")
	errShort  = errors.New("udp: short buffer")
)

// ValidateSize checks the frame's Length field against the actual buffer,
// accumulating any mismatch on v.
func (ufrm Frame) ValidateSize(v *netstack.Validator) {
	if len(ufrm.buf) < sizeHeader {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "udp", Detail: "short header"})
		return
	}
	ul := ufrm.Length()
	if ul < sizeHeader {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "udp", Detail: errBadLen.Error()})
	}
	if int(ul) > len(ufrm.RawData()) {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "udp", Detail: errShort.Error()})
	}
}

// ValidateChecksum verifies the pseudo-header checksum, accumulating an
// error on v if it does not match.
func (ufrm Frame) ValidateChecksum(v *netstack.Validator, src, dst netstack.Ipv4Addr) {
	if !ufrm.VerifyChecksum(src, dst) {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidChecksum, Proto: "udp"})
	}
}

// Build writes a complete UDP datagram into dst: header plus payload, with
// the checksum computed over the given IPv4 pseudo-header addresses.
// Returns the number of bytes written. dst must be at least
// 8+len(payload) bytes.
func Build(dst []byte, srcPort, dstPort uint16, srcIP, dstIP netstack.Ipv4Addr, payload []byte) (int, error) {
	total := sizeHeader + len(payload)
	if len(dst) < total {
		return 0, errShort
	}
	ufrm, err := NewFrame(dst[:total])
	if err != nil {
		return 0, err
	}
	ufrm.ClearHeader()
	ufrm.SetSourcePort(srcPort)
	ufrm.SetDestinationPort(dstPort)
	ufrm.SetLength(uint16(total))
	copy(dst[sizeHeader:], payload)
	ufrm.SetChecksum(ufrm.ComputeChecksum(srcIP, dstIP))
	return total, nil
}
