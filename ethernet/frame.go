package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/soypat/netstack"
)

// HeaderLength is the size in bytes of an Ethernet II header: destination
// address, source address and EtherType, with no 802.1Q VLAN tag.
const HeaderLength = sizeHeaderNoVLAN

// NewFrame returns a Frame with data set to buf. An error is returned if the
// buffer is shorter than a full header. Callers should still invoke
// [Frame.ValidateSize] before touching the payload to avoid panics on
// malformed captures.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderNoVLAN {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an Ethernet II frame, from the
// destination address up to and including the payload, with no preamble or
// frame check sequence. See [IEEE 802.3].
//
// [IEEE 802.3]: https://standards.ieee.org/ieee/802.3/7071/
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (efrm Frame) RawData() []byte { return efrm.buf }

// HeaderLength returns the length of the ethernet header, always 14.
func (efrm Frame) HeaderLength() int { return sizeHeaderNoVLAN }

// Payload returns the data portion of the ethernet frame following the
// header. If the EtherType field holds the 802.3 payload-size encoding, the
// payload is sliced to that length; otherwise it extends to the end of buf.
func (efrm Frame) Payload() []byte {
	et := efrm.EtherTypeOrSize()
	if et.IsSize() {
		return efrm.buf[sizeHeaderNoVLAN : sizeHeaderNoVLAN+int(et)]
	}
	return efrm.buf[sizeHeaderNoVLAN:]
}

// DestinationHardwareAddr returns the target's MAC address.
func (efrm Frame) DestinationHardwareAddr() netstack.MacAddr {
	return netstack.MacAddr(efrm.buf[0:6])
}

// SetDestinationHardwareAddr sets the target's MAC address.
func (efrm Frame) SetDestinationHardwareAddr(mac netstack.MacAddr) {
	copy(efrm.buf[0:6], mac[:])
}

// SourceHardwareAddr returns the sender's MAC address.
func (efrm Frame) SourceHardwareAddr() netstack.MacAddr {
	return netstack.MacAddr(efrm.buf[6:12])
}

// SetSourceHardwareAddr sets the sender's MAC address.
func (efrm Frame) SetSourceHardwareAddr(mac netstack.MacAddr) {
	copy(efrm.buf[6:12], mac[:])
}

// IsBroadcast returns true if the destination address is ff:ff:ff:ff:ff:ff.
func (efrm Frame) IsBroadcast() bool {
	return efrm.DestinationHardwareAddr().IsBroadcast()
}

// EtherTypeOrSize returns the EtherType/Size field of the ethernet frame.
// Callers should check [Type.IsSize] to tell apart a length encoding from a
// valid EtherType.
func (efrm Frame) EtherTypeOrSize() Type {
	return Type(binary.BigEndian.Uint16(efrm.buf[12:14]))
}

// SetEtherType sets the EtherType field of the ethernet frame.
func (efrm Frame) SetEtherType(v Type) {
	binary.BigEndian.PutUint16(efrm.buf[12:14], uint16(v))
}

// ClearHeader zeros out the fixed header contents.
func (efrm Frame) ClearHeader() {
	for i := range efrm.buf[:sizeHeaderNoVLAN] {
		efrm.buf[i] = 0
	}
}

// Build writes a complete Ethernet II header and payload into dst, returning
// the number of bytes written. If the resulting frame would be shorter than
// the IEEE 802.3 minimum of 60 bytes (excluding FCS), the payload is zero
// padded to meet it. dst must be at least HeaderLength+len(payload) long, or
// 60 bytes if padding is required.
func Build(dst []byte, dstMAC, srcMAC netstack.MacAddr, etype Type, payload []byte) (int, error) {
	total := sizeHeaderNoVLAN + len(payload)
	if total < minFrameLength {
		total = minFrameLength
	}
	if len(dst) < total {
		return 0, errShort
	}
	frm, err := NewFrame(dst[:total])
	if err != nil {
		return 0, err
	}
	frm.ClearHeader()
	frm.SetDestinationHardwareAddr(dstMAC)
	frm.SetSourceHardwareAddr(srcMAC)
	frm.SetEtherType(etype)
	n := copy(dst[sizeHeaderNoVLAN:], payload)
	for i := sizeHeaderNoVLAN + n; i < total; i++ {
		dst[i] = 0
	}
	return total, nil
}

//
// Validation API.
//

var (
	errShort = errors.New("ethernet: too short")
)

// ValidateSize checks the frame's length-encoded EtherType field, if
// present, against the actual buffer length, accumulating any mismatch on v.
func (efrm Frame) ValidateSize(v *netstack.Validator) {
	if len(efrm.buf) < sizeHeaderNoVLAN {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "ethernet", Detail: "short header"})
		return
	}
	sz := efrm.EtherTypeOrSize()
	if sz.IsSize() && len(efrm.buf) < sizeHeaderNoVLAN+int(sz) {
		v.AddError(&netstack.ParseError{Kind: netstack.InvalidLength, Proto: "ethernet", Detail: "payload shorter than size field"})
	}
}
