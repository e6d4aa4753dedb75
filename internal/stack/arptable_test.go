package stack

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/netstack"
	"github.com/stretchr/testify/require"
)

func mustIP(t *testing.T, s string) netstack.Ipv4Addr {
	t.Helper()
	ip, err := netstack.ParseIPv4(s)
	require.NoError(t, err)
	return ip
}

func TestArpTableLearnAndLookup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := NewArpTable(time.Minute, clock)

	ip := mustIP(t, "192.168.1.10")
	mac := netstack.MacAddr{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}

	_, ok := tbl.Lookup(ip)
	require.False(t, ok, "lookup before Learn should miss")

	tbl.Learn(ip, mac)
	got, ok := tbl.Lookup(ip)
	require.True(t, ok)
	require.Equal(t, mac, got)
	require.Equal(t, 1, tbl.Len())
}

func TestArpTableExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := NewArpTable(time.Minute, clock)

	ip := mustIP(t, "192.168.1.10")
	mac := netstack.MacAddr{1, 2, 3, 4, 5, 6}
	tbl.Learn(ip, mac)

	clock.Advance(2 * time.Minute)
	_, ok := tbl.Lookup(ip)
	require.False(t, ok, "entry should have expired")

	evicted := tbl.Cleanup()
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, tbl.Len())
}

func TestArpTableDefaultTTL(t *testing.T) {
	tbl := NewArpTable(0, nil)
	require.Equal(t, DefaultArpTTL, tbl.ttl)
	require.NotNil(t, tbl.clock)
}

func TestArpTableRelearnResetsTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tbl := NewArpTable(time.Minute, clock)
	ip := mustIP(t, "10.0.0.1")
	mac := netstack.MacAddr{1, 1, 1, 1, 1, 1}

	tbl.Learn(ip, mac)
	clock.Advance(50 * time.Second)
	tbl.Learn(ip, mac) // refresh before expiry
	clock.Advance(50 * time.Second)

	_, ok := tbl.Lookup(ip)
	require.True(t, ok, "relearning should have reset the TTL")
}
