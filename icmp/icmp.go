// Package icmp implements the ICMP (RFC 792) message codec, restricted to
// the echo request/reply and timestamp exchanges used for reachability
// probing over the stack's IPv4 layer.
package icmp

import (
	"encoding/binary"
	"errors"

	"github.com/soypat/netstack"
)

// Type identifies an ICMP message type.
type Type uint8

const (
	TypeEchoReply   Type = 0
	TypeEcho        Type = 8
	TypeTimestamp   Type = 13
	TypeTimestampReply Type = 14

	TypeDestinationUnreachable Type = 3
	TypeTimeExceeded           Type = 11
)

func (t Type) String() string {
	switch t {
	case TypeEchoReply:
		return "echo reply"
	case TypeEcho:
		return "echo"
	case TypeTimestamp:
		return "timestamp"
	case TypeTimestampReply:
		return "timestamp reply"
	case TypeDestinationUnreachable:
		return "destination unreachable"
	case TypeTimeExceeded:
		return "time exceeded"
	default:
		return "unknown"
	}
}

// CodeDestinationUnreachable enumerates the Code field values accompanying
// [TypeDestinationUnreachable].
type CodeDestinationUnreachable uint8

const (
	CodeNetUnreachable      CodeDestinationUnreachable = 0
	CodeHostUnreachable     CodeDestinationUnreachable = 1
	CodeProtoUnreachable    CodeDestinationUnreachable = 2
	CodePortUnreachable     CodeDestinationUnreachable = 3
	CodeFragNeededAndDFSet  CodeDestinationUnreachable = 4
)

var errShortFrame = errors.New("icmp: short frame")

// HeaderLength is the size of the common ICMP header: type, code and
// checksum.
const HeaderLength = 4

// NewFrame returns a Frame with data set to buf. An error is returned if buf
// is shorter than the common ICMP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderLength {
		return Frame{}, errShortFrame
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an ICMP message's common header plus
// type-specific payload.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (frm Frame) RawData() []byte { return frm.buf }

func (frm Frame) Type() Type { return Type(frm.buf[0]) }

func (frm Frame) SetType(t Type) { frm.buf[0] = uint8(t) }

func (frm Frame) Code() uint8 { return frm.buf[1] }

func (frm Frame) SetCode(code uint8) { frm.buf[1] = code }

// Checksum returns the checksum field of the frame.
func (frm Frame) Checksum() uint16 { return binary.BigEndian.Uint16(frm.buf[2:4]) }

// SetChecksum sets the checksum field of the frame.
func (frm Frame) SetChecksum(cs uint16) { binary.BigEndian.PutUint16(frm.buf[2:4], cs) }

// Payload returns the bytes following the common header.
func (frm Frame) Payload() []byte { return frm.buf[4:] }

// CalculateChecksum computes the RFC 792 checksum over the whole message,
// treating the checksum field as zero.
func (frm Frame) CalculateChecksum() uint16 {
	var cs netstack.Checksum
	cs.AddUint16(binary.BigEndian.Uint16(frm.buf[0:2]))
	cs.WritePadded(frm.buf[4:])
	return cs.Sum16()
}

// ValidateChecksum verifies the checksum field, accumulating an error on v
// if it does not match.
func (frm Frame) ValidateChecksum(v *netstack.Validator) {
	var cs netstack.Checksum
	cs.AddUint16(binary.BigEndian.Uint16(frm.buf[0:2]))
	cs.AddUint16(frm.Checksum())
	cs.WritePadded(frm.buf[4:])
	if cs.Sum16() != 0 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidChecksum, Proto: "icmp"})
	}
}

// ValidateSize checks buf is at least large enough to hold the common
// header, accumulating an error on v otherwise.
func (frm Frame) ValidateSize(v *netstack.Validator) {
	if len(frm.buf) < HeaderLength {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "icmp", Detail: "short header"})
	}
}

// FrameEcho views an ICMP echo request/reply message: identifier, sequence
// number, an optional originate timestamp and arbitrary trailing data.
type FrameEcho struct {
	Frame
}

// NewFrameEcho returns a FrameEcho with data set to buf. An error is
// returned if buf is shorter than the echo header (8 bytes).
func NewFrameEcho(buf []byte) (FrameEcho, error) {
	if len(buf) < 8 {
		return FrameEcho{}, errShortFrame
	}
	return FrameEcho{Frame{buf: buf}}, nil
}

func (frm FrameEcho) Identifier() uint16 { return binary.BigEndian.Uint16(frm.buf[4:6]) }

func (frm FrameEcho) SetIdentifier(id uint16) { binary.BigEndian.PutUint16(frm.buf[4:6], id) }

func (frm FrameEcho) SequenceNumber() uint16 { return binary.BigEndian.Uint16(frm.buf[6:8]) }

func (frm FrameEcho) SetSequenceNumber(seq uint16) {
	binary.BigEndian.PutUint16(frm.buf[6:8], seq)
}

// Timestamp returns the first 4 bytes of echo Data interpreted as a 32 bit
// originate timestamp, for callers using the optional ping timestamp
// extension. Panics if Data is shorter than 4 bytes.
func (frm FrameEcho) Timestamp() uint32 { return binary.BigEndian.Uint32(frm.buf[8:12]) }

// SetTimestamp sets the first 4 bytes of echo Data to a 32 bit timestamp.
func (frm FrameEcho) SetTimestamp(ts uint32) { binary.BigEndian.PutUint32(frm.buf[8:12], ts) }

// Data returns the echo payload following identifier and sequence number.
func (frm FrameEcho) Data() []byte { return frm.buf[8:] }

// BuildEcho writes a complete ICMP echo request or reply into dst and
// returns the number of bytes written. dst must be at least
// 8+len(data) bytes. typ must be [TypeEcho] or [TypeEchoReply].
func BuildEcho(dst []byte, typ Type, id, seq uint16, data []byte) (int, error) {
	total := 8 + len(data)
	if len(dst) < total {
		return 0, errShortFrame
	}
	frm, err := NewFrameEcho(dst[:total])
	if err != nil {
		return 0, err
	}
	frm.SetType(typ)
	frm.SetCode(0)
	frm.SetIdentifier(id)
	frm.SetSequenceNumber(seq)
	copy(frm.Data(), data)
	frm.SetChecksum(0)
	frm.SetChecksum(frm.CalculateChecksum())
	return total, nil
}
