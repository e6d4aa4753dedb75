package stack

import (
	"context"
	"fmt"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/arp"
	"github.com/soypat/netstack/ethernet"
	"github.com/soypat/netstack/icmp"
	"github.com/soypat/netstack/internal"
	"github.com/soypat/netstack/ipv4"
	"github.com/soypat/netstack/udp"
)

// maxFrameSize is the largest Ethernet frame this stack will build or
// accept, generous enough for a full MTU-1500 IPv4 datagram plus header.
const maxFrameSize = 1518

// HandleFrame processes one inbound raw Ethernet frame: validating it,
// dispatching by EtherType, and updating the ARP cache and socket state as
// a side effect. Errors returned are for logging only; a malformed or
// irrelevant frame is not a fatal condition for the caller.
func (s *Stack) HandleFrame(raw []byte) error {
	efrm, err := ethernet.NewFrame(raw)
	if err != nil {
		s.Metrics.FrameDropped("short")
		return err
	}
	var v netstack.Validator
	efrm.ValidateSize(&v)
	if v.HasError() {
		s.Metrics.FrameDropped("invalid")
		return v.Err()
	}
	if efrm.DestinationHardwareAddr() != s.hwAddr && !efrm.IsBroadcast() {
		return nil // not addressed to us, and we're not promiscuous-processing it.
	}
	etype := efrm.EtherTypeOrSize()
	switch etype {
	case ethernet.TypeARP:
		s.Metrics.FrameReceived("arp")
		return s.handleARP(efrm.Payload())
	case ethernet.TypeIPv4:
		s.Metrics.FrameReceived("ipv4")
		return s.handleIPv4(efrm.Payload())
	default:
		s.Metrics.FrameDropped("unsupported-ethertype")
		return nil
	}
}

func (s *Stack) handleARP(payload []byte) error {
	afrm, err := arp.NewFrame(payload)
	if err != nil {
		return err
	}
	var v netstack.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		return v.Err()
	}
	senderIP := afrm.SenderProtoAddr()
	senderMAC := afrm.SenderHardwareAddr()
	if !senderIP.IsUnspecified() {
		s.Arp.Learn(senderIP, senderMAC)
		s.Metrics.ArpTableSize(s.Arp.Len())
		s.log.Log(context.Background(), internal.LevelTrace, "arp learn",
			internal.SlogAddr4("ip", (*[4]byte)(&senderIP)),
			internal.SlogAddr6("mac", (*[6]byte)(&senderMAC)))
		s.flushPending(senderIP)
	}
	if afrm.Operation() == arp.OpRequest && afrm.TargetProtoAddr() == s.ip {
		return s.sendARPReply(senderMAC, senderIP)
	}
	return nil
}

func (s *Stack) sendARPReply(toMAC netstack.MacAddr, toIP netstack.Ipv4Addr) error {
	var buf [arp.FrameLength]byte
	afrm, err := arp.BuildReply(buf[:], s.hwAddr, s.ip, toMAC, toIP)
	if err != nil {
		return err
	}
	return s.sendEthernet(toMAC, ethernet.TypeARP, afrm.RawData())
}

func (s *Stack) sendARPRequest(targetIP netstack.Ipv4Addr) error {
	var buf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(buf[:], s.hwAddr, s.ip, targetIP)
	if err != nil {
		return err
	}
	return s.sendEthernet(netstack.BroadcastMAC(), ethernet.TypeARP, afrm.RawData())
}

func (s *Stack) sendEthernet(dstMAC netstack.MacAddr, etype ethernet.Type, payload []byte) error {
	var buf [maxFrameSize]byte
	n, err := ethernet.Build(buf[:], dstMAC, s.hwAddr, etype, payload)
	if err != nil {
		return err
	}
	if err := s.sendFrame(buf[:n]); err != nil {
		return err
	}
	s.Metrics.FrameSent(etype.String())
	return nil
}

func (s *Stack) handleIPv4(payload []byte) error {
	ifrm, err := ipv4.NewFrame(payload)
	if err != nil {
		return err
	}
	var v netstack.Validator
	ifrm.ValidateExceptChecksum(&v)
	if v.HasError() {
		return v.Err()
	}
	dstAddr := ifrm.DestinationAddr()
	if dstAddr != s.ip && !dstAddr.IsBroadcast() && !dstAddr.IsMulticast() {
		return nil // not addressed to us; no routing/forwarding performed.
	}
	ifrm.ValidateChecksum(&v)
	if v.HasError() {
		s.Metrics.FrameDropped("bad-checksum")
		return v.Err()
	}
	src := ifrm.SourceAddr()
	dst := ifrm.DestinationAddr()
	payloadData := ifrm.Payload()
	switch ifrm.Protocol() {
	case netstack.IPProtoICMP:
		return s.handleICMP(src, payloadData)
	case netstack.IPProtoUDP:
		return s.handleUDP(src, dst, payloadData)
	default:
		s.Metrics.FrameDropped("unsupported-protocol")
		return nil
	}
}

func (s *Stack) handleICMP(src netstack.Ipv4Addr, payload []byte) error {
	frm, err := icmp.NewFrame(payload)
	if err != nil {
		return err
	}
	var v netstack.Validator
	frm.ValidateSize(&v)
	if v.HasError() {
		return v.Err()
	}
	frm.ValidateChecksum(&v)
	if v.HasError() {
		s.Metrics.FrameDropped("bad-checksum")
		return v.Err()
	}
	switch frm.Type() {
	case icmp.TypeEcho:
		echo, err := icmp.NewFrameEcho(payload)
		if err != nil {
			return err
		}
		var replyBuf [1500]byte
		n, err := icmp.BuildEcho(replyBuf[:], icmp.TypeEchoReply, echo.Identifier(), echo.SequenceNumber(), echo.Data())
		if err != nil {
			return err
		}
		return s.SendIPv4(src, netstack.IPProtoICMP, replyBuf[:n])
	case icmp.TypeEchoReply:
		echo, err := icmp.NewFrameEcho(payload)
		if err != nil {
			return err
		}
		nowMS := uint32(s.clock.Now().UnixMilli())
		if len(echo.Data()) >= 4 {
			rtt := nowMS - echo.Timestamp() // saturating: wraps harmlessly on clock skew
			if nowMS < echo.Timestamp() {
				rtt = 0
			}
			s.log.Debug("icmp echo reply", "src", src, "id", echo.Identifier(), "seq", echo.SequenceNumber(), "rtt_ms", rtt)
		} else {
			s.log.Debug("icmp echo reply", "src", src, "id", echo.Identifier(), "seq", echo.SequenceNumber())
		}
		return nil
	default:
		s.log.Debug("icmp unhandled type", "src", src, "type", frm.Type(), "code", frm.Code())
		return nil
	}
}

func (s *Stack) handleUDP(src, dst netstack.Ipv4Addr, payload []byte) error {
	ufrm, err := udp.NewFrame(payload)
	if err != nil {
		return err
	}
	var v netstack.Validator
	ufrm.ValidateSize(&v)
	if v.HasError() {
		return v.Err()
	}
	ufrm.ValidateChecksum(&v, src, dst)
	if v.HasError() {
		s.Metrics.FrameDropped("bad-checksum")
		return v.Err()
	}
	if dst.IsBroadcast() || dst.IsMulticast() {
		socks := s.Sockets.LookupMulticast(netstack.IPProtoUDP, dst, ufrm.DestinationPort(), src, ufrm.SourcePort())
		if len(socks) == 0 {
			s.Metrics.FrameDropped("no-listener")
			return nil
		}
		for _, sock := range socks {
			body := make([]byte, len(ufrm.Payload()))
			copy(body, ufrm.Payload())
			sock.Deliver(UDPMessage{Addr: netstack.AddrPort{IP: src, Port: ufrm.SourcePort()}, Payload: body})
		}
		return nil
	}
	sock, ok := s.Sockets.Lookup(dst, ufrm.DestinationPort(), src, ufrm.SourcePort())
	if !ok {
		s.Metrics.FrameDropped("no-listener")
		return nil
	}
	body := make([]byte, len(ufrm.Payload()))
	copy(body, ufrm.Payload())
	sock.Deliver(UDPMessage{Addr: netstack.AddrPort{IP: src, Port: ufrm.SourcePort()}, Payload: body})
	return nil
}

// flushPending re-attempts delivery of every datagram queued behind a
// now-resolved destination IP.
func (s *Stack) flushPending(ip netstack.Ipv4Addr) {
	packets := s.Pending.Flush(ip)
	if len(packets) == 0 {
		return
	}
	mac, ok := s.Arp.Lookup(ip)
	if !ok {
		return
	}
	for _, pkt := range packets {
		if err := s.sendEthernet(mac, ethernet.TypeIPv4, pkt.Datagram); err != nil {
			s.log.Warn("flush pending datagram failed", "dest", ip, "err", err)
		}
	}
}

// SendIPv4 builds and transmits an IPv4 datagram to dst carrying proto
// payload. If dst's MAC is unknown, the datagram is queued and an ARP
// request is broadcast; it will be sent once resolution completes or
// dropped once the pending queue's timeout (Config.PendingTimeout, by
// default [DefaultPendingTimeout]) elapses.
func (s *Stack) SendIPv4(dst netstack.Ipv4Addr, proto netstack.IPProto, payload []byte) error {
	var buf [maxFrameSize]byte
	n, err := ipv4.Build(buf[:], ipv4.BuildOptions{
		Source:      s.ip,
		Destination: dst,
		Protocol:    proto,
		TTL:         64,
		ID:          s.nextDatagramID(),
	}, payload)
	if err != nil {
		return fmt.Errorf("stack: building ipv4 datagram: %w", err)
	}
	datagram := buf[:n]

	if dst.IsBroadcast() {
		return s.sendEthernet(netstack.BroadcastMAC(), ethernet.TypeIPv4, datagram)
	}
	// Routing is out of scope: every unicast destination is resolved
	// directly rather than forwarded via s.gateway.
	if mac, ok := s.Arp.Lookup(dst); ok {
		return s.sendEthernet(mac, ethernet.TypeIPv4, datagram)
	}
	if !s.Pending.Enqueue(dst, datagram) {
		s.Metrics.FrameDropped("pending-queue-full")
	}
	return s.sendARPRequest(dst)
}
