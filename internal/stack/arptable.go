package stack

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/netstack"
)

// DefaultArpTTL is how long a learned ARP mapping is trusted before it must
// be relearned.
const DefaultArpTTL = 300 * time.Second

type arpEntry struct {
	mac     netstack.MacAddr
	expires time.Time
}

// ArpTable is the stack's IPv4-to-MAC mapping cache. Entries are learned
// passively from any inbound ARP packet naming that sender, not only from
// replies to our own requests, and expire after ttl.
type ArpTable struct {
	mu      sync.Mutex
	entries map[netstack.Ipv4Addr]arpEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewArpTable returns an ArpTable with the given entry lifetime. A zero ttl
// defaults to [DefaultArpTTL]. A nil clock defaults to the real wall clock.
func NewArpTable(ttl time.Duration, clock clockwork.Clock) *ArpTable {
	if ttl <= 0 {
		ttl = DefaultArpTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ArpTable{
		entries: make(map[netstack.Ipv4Addr]arpEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Lookup returns the MAC address mapped to ip, if known and unexpired.
func (t *ArpTable) Lookup(ip netstack.Ipv4Addr) (netstack.MacAddr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[ip]
	if !ok || t.clock.Now().After(e.expires) {
		return netstack.MacAddr{}, false
	}
	return e.mac, true
}

// Learn records or refreshes the mapping ip -> mac, resetting its TTL.
func (t *ArpTable) Learn(ip netstack.Ipv4Addr, mac netstack.MacAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[ip] = arpEntry{mac: mac, expires: t.clock.Now().Add(t.ttl)}
}

// Cleanup removes every expired entry and returns how many were evicted.
func (t *ArpTable) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	evicted := 0
	for ip, e := range t.entries {
		if now.After(e.expires) {
			delete(t.entries, ip)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of entries currently cached, expired or not.
func (t *ArpTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
