package arp

import (
	"encoding/binary"
	"fmt"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/ethernet"
)

// NewFrame returns a Frame with data set to buf. An error is returned if the
// buffer is shorter than a full IPv4-over-Ethernet ARP packet (28 bytes).
// Callers should still call [Frame.ValidateSize] before trusting field
// lengths derived from the header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < FrameLength {
		return Frame{buf: nil}, errShortARP
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an ARP packet restricted to the
// IPv4-over-Ethernet case and provides methods for manipulating, validating
// and retrieving its fields. See [RFC 826].
//
// [RFC 826]: https://tools.ietf.org/html/rfc826
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the hardware type and hardware address length fields.
func (afrm Frame) Hardware() (typ uint16, length uint8) {
	return binary.BigEndian.Uint16(afrm.buf[0:2]), afrm.buf[4]
}

// SetHardware sets the hardware type and hardware address length fields.
func (afrm Frame) SetHardware(typ uint16, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[0:2], typ)
	afrm.buf[4] = length
}

// Protocol returns the protocol type and protocol address length fields.
func (afrm Frame) Protocol() (typ ethernet.Type, length uint8) {
	return ethernet.Type(binary.BigEndian.Uint16(afrm.buf[2:4])), afrm.buf[5]
}

// SetProtocol sets the protocol type and protocol address length fields.
func (afrm Frame) SetProtocol(typ ethernet.Type, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[2:4], uint16(typ))
	afrm.buf[5] = length
}

// Operation returns the ARP header operation field.
func (afrm Frame) Operation() Operation { return Operation(binary.BigEndian.Uint16(afrm.buf[6:8])) }

// SetOperation sets the ARP header operation field.
func (afrm Frame) SetOperation(op Operation) { binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op)) }

// SenderHardwareAddr returns the sender's hardware (MAC) address.
func (afrm Frame) SenderHardwareAddr() netstack.MacAddr { return netstack.MacAddr(afrm.buf[8:14]) }

// SetSenderHardwareAddr sets the sender's hardware (MAC) address.
func (afrm Frame) SetSenderHardwareAddr(mac netstack.MacAddr) { copy(afrm.buf[8:14], mac[:]) }

// SenderProtoAddr returns the sender's IPv4 address.
func (afrm Frame) SenderProtoAddr() netstack.Ipv4Addr { return netstack.Ipv4Addr(afrm.buf[14:18]) }

// SetSenderProtoAddr sets the sender's IPv4 address.
func (afrm Frame) SetSenderProtoAddr(ip netstack.Ipv4Addr) { copy(afrm.buf[14:18], ip[:]) }

// TargetHardwareAddr returns the target's hardware (MAC) address. In a
// request this field is ignored by the sender and typically zeroed.
func (afrm Frame) TargetHardwareAddr() netstack.MacAddr { return netstack.MacAddr(afrm.buf[18:24]) }

// SetTargetHardwareAddr sets the target's hardware (MAC) address.
func (afrm Frame) SetTargetHardwareAddr(mac netstack.MacAddr) { copy(afrm.buf[18:24], mac[:]) }

// TargetProtoAddr returns the target's IPv4 address.
func (afrm Frame) TargetProtoAddr() netstack.Ipv4Addr { return netstack.Ipv4Addr(afrm.buf[24:28]) }

// SetTargetProtoAddr sets the target's IPv4 address.
func (afrm Frame) SetTargetProtoAddr(ip netstack.Ipv4Addr) { copy(afrm.buf[24:28], ip[:]) }

// ClearHeader zeros out the fixed (non-address) header contents.
func (afrm Frame) ClearHeader() {
	for i := range afrm.buf[:HeaderLength] {
		afrm.buf[i] = 0
	}
}

// ValidateSize checks the frame's declared hardware/protocol address lengths
// against the actual buffer, accumulating any mismatch on v.
func (afrm Frame) ValidateSize(v *netstack.Validator) {
	if len(afrm.buf) < HeaderLength {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "arp", Detail: "short header"})
		return
	}
	_, hlen := afrm.Hardware()
	_, plen := afrm.Protocol()
	if hlen != 6 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidHardwareLen, Proto: "arp"})
	}
	if plen != 4 {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidProtocolLen, Proto: "arp"})
	}
	minLen := HeaderLength + 2*int(hlen) + 2*int(plen)
	if len(afrm.buf) < minLen {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "arp", Detail: "buffer shorter than declared addresses"})
	}
}

func (afrm Frame) String() string {
	op := afrm.Operation()
	return fmt.Sprintf("ARP %s SENDER=(%s,%s) TARGET=(%s,%s)",
		op, afrm.SenderHardwareAddr(), afrm.SenderProtoAddr(),
		afrm.TargetHardwareAddr(), afrm.TargetProtoAddr())
}

// BuildRequest writes a complete "who has TargetIP tell SenderIP" ARP
// request into dst, which must be at least FrameLength bytes.
func BuildRequest(dst []byte, senderMAC netstack.MacAddr, senderIP netstack.Ipv4Addr, targetIP netstack.Ipv4Addr) (Frame, error) {
	afrm, err := NewFrame(dst)
	if err != nil {
		return Frame{}, err
	}
	afrm.ClearHeader()
	afrm.SetHardware(HardwareTypeEthernet, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpRequest)
	afrm.SetSenderHardwareAddr(senderMAC)
	afrm.SetSenderProtoAddr(senderIP)
	afrm.SetTargetHardwareAddr(netstack.ZeroMAC())
	afrm.SetTargetProtoAddr(targetIP)
	return afrm, nil
}

// BuildReply writes a complete ARP reply answering a request from
// (targetMAC, targetIP) claiming ownership of senderIP with senderMAC.
func BuildReply(dst []byte, senderMAC netstack.MacAddr, senderIP netstack.Ipv4Addr, targetMAC netstack.MacAddr, targetIP netstack.Ipv4Addr) (Frame, error) {
	afrm, err := NewFrame(dst)
	if err != nil {
		return Frame{}, err
	}
	afrm.ClearHeader()
	afrm.SetHardware(HardwareTypeEthernet, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpReply)
	afrm.SetSenderHardwareAddr(senderMAC)
	afrm.SetSenderProtoAddr(senderIP)
	afrm.SetTargetHardwareAddr(targetMAC)
	afrm.SetTargetProtoAddr(targetIP)
	return afrm, nil
}
