package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/ipv4"
)

func mustIP(t *testing.T, s string) netstack.Ipv4Addr {
	t.Helper()
	ip, err := netstack.ParseIPv4(s)
	require.NoError(t, err)
	return ip
}

// buildFragment constructs a single IPv4 fragment carrying chunk at the
// given 8-byte-aligned offset, setting MoreFragments unless last is true.
func buildFragment(t *testing.T, src, dst netstack.Ipv4Addr, id uint16, offset int, chunk []byte, last bool) ipv4.Frame {
	t.Helper()
	buf := make([]byte, 20+len(chunk))
	n, err := ipv4.Build(buf, ipv4.BuildOptions{
		Source:      src,
		Destination: dst,
		Protocol:    netstack.IPProtoUDP,
		TTL:         64,
		ID:          id,
	}, chunk)
	require.NoError(t, err)
	ifrm, err := ipv4.NewFrame(buf[:n])
	require.NoError(t, err)
	flags := ipv4.Flags(uint16(offset/8) & 0x1fff)
	if !last {
		flags |= ipv4.FlagMoreFragments
	}
	ifrm.SetFlags(flags)
	return ifrm
}

func TestReassemblerCompletesInOrderChain(t *testing.T) {
	r := newReassembler(time.Minute)
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")

	first := buildFragment(t, src, dst, 42, 0, make([]byte, 8), false)
	_, _, ok := r.Add(time.Now(), first)
	require.False(t, ok, "chain incomplete after first fragment")

	second := buildFragment(t, src, dst, 42, 8, []byte("tail-data"), true)
	full, key, ok := r.Add(time.Now(), second)
	require.True(t, ok)
	require.Equal(t, uint16(42), key.id)
	require.Equal(t, 17, len(full))
	require.Equal(t, "tail-data", string(full[8:]))
}

func TestReassemblerCompletesOutOfOrderChain(t *testing.T) {
	r := newReassembler(time.Minute)
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")

	last := buildFragment(t, src, dst, 7, 8, []byte("world!"), true)
	_, _, ok := r.Add(time.Now(), last)
	require.False(t, ok)

	first := buildFragment(t, src, dst, 7, 0, []byte("hello, \x00"), false)
	full, _, ok := r.Add(time.Now(), first)
	require.True(t, ok)
	require.Equal(t, "world!", string(full[8:]))
}

func TestReassemblerSweepExpiresStaleChain(t *testing.T) {
	r := newReassembler(time.Second)
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")

	frag := buildFragment(t, src, dst, 9, 0, make([]byte, 8), false)
	now := time.Now()
	_, _, ok := r.Add(now, frag)
	require.False(t, ok)

	expired := r.Sweep(now.Add(500 * time.Millisecond))
	require.Empty(t, expired, "not yet past timeout")

	expired = r.Sweep(now.Add(2 * time.Second))
	require.Len(t, expired, 1)
	require.Equal(t, uint16(9), expired[0].id)

	// A fully-swept chain must not reappear on a later sweep.
	require.Empty(t, r.Sweep(now.Add(10*time.Second)))
}

func TestReassemblerRejectsOverlap(t *testing.T) {
	r := newReassembler(time.Minute)
	src, dst := mustIP(t, "10.0.0.1"), mustIP(t, "10.0.0.2")

	first := buildFragment(t, src, dst, 3, 0, make([]byte, 16), false)
	_, _, ok := r.Add(time.Now(), first)
	require.False(t, ok)

	// Overlapping fragment starting mid-way through the first chunk: the
	// naive gap check must not falsely report completion.
	overlap := buildFragment(t, src, dst, 3, 8, make([]byte, 8), true)
	_, _, ok = r.Add(time.Now(), overlap)
	require.False(t, ok, "overlapping fragment must not be treated as completing the chain")
}
