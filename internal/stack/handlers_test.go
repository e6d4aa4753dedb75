package stack

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/netstack"
	"github.com/soypat/netstack/arp"
	"github.com/soypat/netstack/ethernet"
	"github.com/soypat/netstack/icmp"
	"github.com/soypat/netstack/ipv4"
	"github.com/soypat/netstack/udp"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) (*Stack, *fakeDevice) {
	t.Helper()
	hw := netstack.MacAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	dev := newFakeDevice(hw)
	s := New(Config{
		HardwareAddr: hw,
		IP:           mustIP(t, "192.168.1.1"),
		Clock:        clockwork.NewFakeClock(),
	}, dev)
	return s, dev
}

func buildEthFrame(t *testing.T, dst, src netstack.MacAddr, etype ethernet.Type, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, 1518)
	n, err := ethernet.Build(buf, dst, src, etype, payload)
	require.NoError(t, err)
	return buf[:n]
}

func TestHandleFrameLearnsARPAndReplies(t *testing.T) {
	s, dev := newTestStack(t)
	peerMAC := netstack.MacAddr{0xc0, 0xff, 0xee, 0xc0, 0xff, 0xee}
	peerIP := mustIP(t, "192.168.1.50")

	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(abuf[:], peerMAC, peerIP, s.IP())
	require.NoError(t, err)

	frame := buildEthFrame(t, netstack.BroadcastMAC(), peerMAC, ethernet.TypeARP, afrm.RawData())
	require.NoError(t, s.HandleFrame(frame))

	mac, ok := s.Arp.Lookup(peerIP)
	require.True(t, ok)
	require.Equal(t, peerMAC, mac)

	sent, ok := dev.popSent()
	require.True(t, ok, "expected an ARP reply to be sent")
	efrm, err := ethernet.NewFrame(sent)
	require.NoError(t, err)
	require.Equal(t, ethernet.TypeARP, efrm.EtherTypeOrSize())
	replyFrm, err := arp.NewFrame(efrm.Payload())
	require.NoError(t, err)
	require.Equal(t, arp.OpReply, replyFrm.Operation())
	require.Equal(t, s.IP(), replyFrm.SenderProtoAddr())
	require.Equal(t, peerMAC, replyFrm.TargetHardwareAddr())
}

func TestHandleFrameARPLearnsWithoutReplyWhenNotTargeted(t *testing.T) {
	s, dev := newTestStack(t)
	peerMAC := netstack.MacAddr{1, 2, 3, 4, 5, 6}
	peerIP := mustIP(t, "192.168.1.77")
	otherIP := mustIP(t, "192.168.1.200")

	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(abuf[:], peerMAC, peerIP, otherIP)
	require.NoError(t, err)

	frame := buildEthFrame(t, netstack.BroadcastMAC(), peerMAC, ethernet.TypeARP, afrm.RawData())
	require.NoError(t, s.HandleFrame(frame))

	_, ok := s.Arp.Lookup(peerIP)
	require.True(t, ok, "an ARP request not addressed to us is still learned")

	_, ok = dev.popSent()
	require.False(t, ok, "no reply expected for a request targeting someone else")
}

func TestHandleFrameICMPEchoReply(t *testing.T) {
	s, dev := newTestStack(t)
	peerMAC := netstack.MacAddr{1, 1, 1, 1, 1, 1}
	peerIP := mustIP(t, "192.168.1.99")
	s.Arp.Learn(peerIP, peerMAC)

	var icmpBuf [16]byte
	n, err := icmp.BuildEcho(icmpBuf[:], icmp.TypeEcho, 0x1234, 1, []byte("ping"))
	require.NoError(t, err)

	var ipBuf [64]byte
	ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
		Source:      peerIP,
		Destination: s.IP(),
		Protocol:    netstack.IPProtoICMP,
		TTL:         64,
	}, icmpBuf[:n])
	require.NoError(t, err)

	frame := buildEthFrame(t, s.HardwareAddr(), peerMAC, ethernet.TypeIPv4, ipBuf[:ipn])
	require.NoError(t, s.HandleFrame(frame))

	sent, ok := dev.popSent()
	require.True(t, ok, "expected an echo reply to be sent")
	efrm, err := ethernet.NewFrame(sent)
	require.NoError(t, err)
	ifrm, err := ipv4.NewFrame(efrm.Payload())
	require.NoError(t, err)
	require.Equal(t, netstack.IPProtoICMP, ifrm.Protocol())
	echoReply, err := icmp.NewFrameEcho(ifrm.Payload())
	require.NoError(t, err)
	require.Equal(t, icmp.TypeEchoReply, echoReply.Type())
	require.Equal(t, uint16(0x1234), echoReply.Identifier())
	require.Equal(t, []byte("ping"), echoReply.Data())
}

func TestHandleFrameUDPDeliversToBoundSocket(t *testing.T) {
	s, _ := newTestStack(t)
	conn, err := s.ListenUDP(s.IP(), 5000)
	require.NoError(t, err)
	defer conn.Close()

	peerMAC := netstack.MacAddr{2, 2, 2, 2, 2, 2}
	peerIP := mustIP(t, "192.168.1.150")

	var udpBuf [64]byte
	un, err := udp.Build(udpBuf[:], 6000, 5000, peerIP, s.IP(), []byte("hello"))
	require.NoError(t, err)

	var ipBuf [96]byte
	ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
		Source:      peerIP,
		Destination: s.IP(),
		Protocol:    netstack.IPProtoUDP,
		TTL:         64,
	}, udpBuf[:un])
	require.NoError(t, err)

	frame := buildEthFrame(t, s.HardwareAddr(), peerMAC, ethernet.TypeIPv4, ipBuf[:ipn])
	require.NoError(t, s.HandleFrame(frame))

	payload, from, ok := conn.RecvFrom()
	require.True(t, ok)
	require.Equal(t, []byte("hello"), payload)
	require.Equal(t, peerIP, from.IP)
	require.Equal(t, uint16(6000), from.Port)
}

func TestHandleFrameUDPNoListenerDrops(t *testing.T) {
	s, dev := newTestStack(t)
	peerMAC := netstack.MacAddr{3, 3, 3, 3, 3, 3}
	peerIP := mustIP(t, "192.168.1.150")

	var udpBuf [64]byte
	un, err := udp.Build(udpBuf[:], 6000, 9999, peerIP, s.IP(), []byte("nobody home"))
	require.NoError(t, err)

	var ipBuf [96]byte
	ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
		Source:      peerIP,
		Destination: s.IP(),
		Protocol:    netstack.IPProtoUDP,
		TTL:         64,
	}, udpBuf[:un])
	require.NoError(t, err)

	frame := buildEthFrame(t, s.HardwareAddr(), peerMAC, ethernet.TypeIPv4, ipBuf[:ipn])
	require.NoError(t, s.HandleFrame(frame))

	_, ok := dev.popSent()
	require.False(t, ok, "no ICMP port-unreachable is generated; datagram is silently dropped")
}

func TestHandleFrameDropsZeroTTLDatagram(t *testing.T) {
	s, dev := newTestStack(t)
	peerMAC := netstack.MacAddr{4, 4, 4, 4, 4, 4}
	peerIP := mustIP(t, "192.168.1.60")

	var icmpBuf [16]byte
	n, err := icmp.BuildEcho(icmpBuf[:], icmp.TypeEcho, 1, 1, []byte("ping"))
	require.NoError(t, err)

	var ipBuf [64]byte
	ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
		Source:      peerIP,
		Destination: s.IP(),
		Protocol:    netstack.IPProtoICMP,
		TTL:         64,
	}, icmpBuf[:n])
	require.NoError(t, err)
	ifrm, err := ipv4.NewFrame(ipBuf[:ipn])
	require.NoError(t, err)
	ifrm.SetTTL(0)
	ifrm.SetChecksum(0)
	ifrm.SetChecksum(ifrm.CalculateHeaderChecksum())

	frame := buildEthFrame(t, s.HardwareAddr(), peerMAC, ethernet.TypeIPv4, ipBuf[:ipn])
	err = s.HandleFrame(frame)
	require.Error(t, err)
	var parseErr *netstack.ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, netstack.InvalidTTL, parseErr.Kind)

	_, ok := dev.popSent()
	require.False(t, ok, "a TTL=0 datagram must be silently dropped, never replied to")
}

func TestHandleUDPDeliversToEveryMulticastListener(t *testing.T) {
	s, _ := newTestStack(t)
	mcastIP := netstack.Ipv4Addr{224, 0, 0, 5}
	connA, err := s.ListenUDP(mcastIP, 7000)
	require.NoError(t, err)
	defer connA.Close()
	connB, err := s.ListenUDP(netstack.UnspecifiedIPv4(), 7000)
	require.NoError(t, err)
	defer connB.Close()

	peerMAC := netstack.MacAddr{5, 5, 5, 5, 5, 5}
	peerIP := mustIP(t, "192.168.1.88")

	var udpBuf [64]byte
	un, err := udp.Build(udpBuf[:], 6000, 7000, peerIP, mcastIP, []byte("hello-all"))
	require.NoError(t, err)

	var ipBuf [96]byte
	ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
		Source:      peerIP,
		Destination: mcastIP,
		Protocol:    netstack.IPProtoUDP,
		TTL:         64,
	}, udpBuf[:un])
	require.NoError(t, err)

	frame := buildEthFrame(t, netstack.BroadcastMAC(), peerMAC, ethernet.TypeIPv4, ipBuf[:ipn])
	require.NoError(t, s.HandleFrame(frame))

	payloadA, _, ok := connA.RecvFrom()
	require.True(t, ok, "socket bound to the multicast group address should receive the datagram")
	require.Equal(t, []byte("hello-all"), payloadA)

	payloadB, _, ok := connB.RecvFrom()
	require.True(t, ok, "wildcard-bound socket should also receive the multicast datagram")
	require.Equal(t, []byte("hello-all"), payloadB)
}

func TestSendIPv4QueuesWhenUnresolvedAndFlushesAfterARP(t *testing.T) {
	s, dev := newTestStack(t)
	dstIP := mustIP(t, "192.168.1.222")
	dstMAC := netstack.MacAddr{9, 9, 9, 9, 9, 9}

	err := s.SendIPv4(dstIP, netstack.IPProtoICMP, []byte("payload"))
	require.NoError(t, err)

	sent, ok := dev.popSent()
	require.True(t, ok, "expected a broadcast ARP request")
	efrm, err := ethernet.NewFrame(sent)
	require.NoError(t, err)
	require.True(t, efrm.IsBroadcast())
	require.Equal(t, ethernet.TypeARP, efrm.EtherTypeOrSize())

	_, ok = dev.popSent()
	require.False(t, ok, "the IPv4 datagram itself should still be queued, not sent yet")

	// A reply from dstIP resolves the ARP table and should flush the queued datagram.
	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildReply(abuf[:], dstMAC, dstIP, s.HardwareAddr(), s.IP())
	require.NoError(t, err)
	frame := buildEthFrame(t, s.HardwareAddr(), dstMAC, ethernet.TypeARP, afrm.RawData())
	require.NoError(t, s.HandleFrame(frame))

	sent, ok = dev.popSent()
	require.True(t, ok, "expected the queued datagram to flush once ARP resolved")
	efrm, err = ethernet.NewFrame(sent)
	require.NoError(t, err)
	require.Equal(t, dstMAC, efrm.DestinationHardwareAddr())
	require.Equal(t, ethernet.TypeIPv4, efrm.EtherTypeOrSize())
}
