package main

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/arp"
	"github.com/soypat/netstack/ethernet"
	"github.com/soypat/netstack/icmp"
	"github.com/soypat/netstack/ipv4"
	"github.com/soypat/netstack/udp"
)

func buildEthernetFrame(t *testing.T, etype ethernet.Type, payload []byte) []byte {
	t.Helper()
	dst := netstack.MacAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	src := netstack.MacAddr{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	buf := make([]byte, ethernet.HeaderLength+len(payload))
	n, err := ethernet.Build(buf, dst, src, etype, payload)
	require.NoError(t, err)
	return buf[:n]
}

func TestDecodeFrameSummarizesARPRequest(t *testing.T) {
	sender := mustIP(t, "192.168.1.1")
	target := mustIP(t, "192.168.1.2")
	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(abuf[:], netstack.MacAddr{1, 1, 1, 1, 1, 1}, sender, target)
	require.NoError(t, err)

	lines := decodeFrame(buildEthernetFrame(t, ethernet.TypeARP, afrm.RawData()), nil, "", time.Now(), false)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ARP")
	require.Contains(t, lines[0], sender.String())
}

func TestDecodeFrameSummarizesICMPEcho(t *testing.T) {
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")
	var ibuf [64]byte
	n, err := icmp.BuildEcho(ibuf[:], icmp.TypeEcho, 7, 1, []byte("ping"))
	require.NoError(t, err)

	var ipbuf [84]byte
	ipn, err := ipv4.Build(ipbuf[:], ipv4.BuildOptions{Source: src, Destination: dst, Protocol: netstack.IPProtoICMP, TTL: 64}, ibuf[:n])
	require.NoError(t, err)

	lines := decodeFrame(buildEthernetFrame(t, ethernet.TypeIPv4, ipbuf[:ipn]), nil, "", time.Now(), false)
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "ICMP")
	require.Contains(t, lines[1], "type=echo")
}

func TestDecodeFrameSummarizesUDP(t *testing.T) {
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")
	var ubuf [32]byte
	un, err := udp.Build(ubuf[:], 5000, 53, src, dst, []byte("hi"))
	require.NoError(t, err)

	var ipbuf [52]byte
	ipn, err := ipv4.Build(ipbuf[:], ipv4.BuildOptions{Source: src, Destination: dst, Protocol: netstack.IPProtoUDP, TTL: 64}, ubuf[:un])
	require.NoError(t, err)

	lines := decodeFrame(buildEthernetFrame(t, ethernet.TypeIPv4, ipbuf[:ipn]), nil, "", time.Now(), false)
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "UDP 5000 -> 53")
}

func TestDecodeFrameReassemblesAndWritesFile(t *testing.T) {
	dir := t.TempDir()
	src, dst := mustIP(t, "172.16.0.1"), mustIP(t, "172.16.0.2")
	reasm := newReassembler(time.Minute)
	now := time.Now()

	first := buildFragment(t, src, dst, 99, 0, []byte("abcdefgh"), false)
	firstLines := decodeFrame(buildEthernetFrame(t, ethernet.TypeIPv4, first.RawData()), reasm, dir, now, false)
	require.Len(t, firstLines, 1)
	require.Contains(t, firstLines[0], "FRAGMENT")

	second := buildFragment(t, src, dst, 99, 8, []byte("ijk"), true)
	secondLines := decodeFrame(buildEthernetFrame(t, ethernet.TypeIPv4, second.RawData()), reasm, dir, now, false)
	require.Len(t, secondLines, 1)
	require.Contains(t, secondLines[0], "REASSEMBLED")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), ".bin"))

	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	require.Equal(t, "abcdefghijk", string(data))
}

func TestDecodeFrameUnknownEtherType(t *testing.T) {
	lines := decodeFrame(buildEthernetFrame(t, ethernet.TypeIPv6, []byte{1, 2, 3, 4}), nil, "", time.Now(), false)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ETH")
}

func TestDecodeFrameVerifiesAndStripsFCS(t *testing.T) {
	sender := mustIP(t, "192.168.1.1")
	target := mustIP(t, "192.168.1.2")
	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(abuf[:], netstack.MacAddr{1, 1, 1, 1, 1, 1}, sender, target)
	require.NoError(t, err)

	frame := appendFCS(buildEthernetFrame(t, ethernet.TypeARP, afrm.RawData()))
	lines := decodeFrame(frame, nil, "", time.Now(), true)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "ARP")
}

func TestDecodeFrameReportsBadFCS(t *testing.T) {
	sender := mustIP(t, "192.168.1.1")
	target := mustIP(t, "192.168.1.2")
	var abuf [arp.FrameLength]byte
	afrm, err := arp.BuildRequest(abuf[:], netstack.MacAddr{1, 1, 1, 1, 1, 1}, sender, target)
	require.NoError(t, err)

	frame := appendFCS(buildEthernetFrame(t, ethernet.TypeARP, afrm.RawData()))
	frame[len(frame)-1] ^= 0xff // corrupt the trailer

	lines := decodeFrame(frame, nil, "", time.Now(), true)
	require.Contains(t, lines[0], "FCS mismatch")
}
