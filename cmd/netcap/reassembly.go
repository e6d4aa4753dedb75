package main

import (
	"sort"
	"time"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/ipv4"
)

// fragKey identifies the fragment chain a single IPv4 datagram belongs to,
// per RFC 791: source, destination, protocol and datagram ID together are
// unique regardless of which fragment arrives first.
type fragKey struct {
	src, dst netstack.Ipv4Addr
	id       uint16
	proto    netstack.IPProto
}

type fragChunk struct {
	offset int
	data   []byte
}

type fragEntry struct {
	chunks    []fragChunk
	total     int // -1 until the final fragment (MoreFragments=false) arrives
	firstSeen time.Time
}

// reassembler buffers IPv4 fragments by (src, dst, id, proto) and reconstructs the
// original datagram payload once every fragment in the chain has arrived.
// It is entirely local to netcap: the live stack never fragments or
// reassembles, so this logic has no counterpart in internal/stack.
type reassembler struct {
	entries map[fragKey]*fragEntry
	timeout time.Duration
}

func newReassembler(timeout time.Duration) *reassembler {
	return &reassembler{entries: make(map[fragKey]*fragEntry), timeout: timeout}
}

// Add feeds one IPv4 fragment into the reassembler. If ifrm completes its
// fragment chain, the full reassembled payload is returned with ok=true and
// the chain's state is discarded.
func (r *reassembler) Add(now time.Time, ifrm ipv4.Frame) (payload []byte, key fragKey, ok bool) {
	key = fragKey{src: ifrm.SourceAddr(), dst: ifrm.DestinationAddr(), id: ifrm.ID(), proto: ifrm.Protocol()}
	entry := r.entries[key]
	if entry == nil {
		entry = &fragEntry{total: -1, firstSeen: now}
		r.entries[key] = entry
	}
	offset := int(ifrm.Flags().FragmentOffset()) * 8
	data := append([]byte(nil), ifrm.Payload()...)
	entry.chunks = append(entry.chunks, fragChunk{offset: offset, data: data})
	if !ifrm.Flags().MoreFragments() {
		entry.total = offset + len(data)
	}

	full, complete := entry.assemble()
	if !complete {
		return nil, key, false
	}
	delete(r.entries, key)
	return full, key, true
}

// assemble checks whether the chain's chunks cover [0, total) without gaps
// or overlaps and, if so, concatenates them in order.
func (e *fragEntry) assemble() ([]byte, bool) {
	if e.total < 0 {
		return nil, false
	}
	sort.Slice(e.chunks, func(i, j int) bool { return e.chunks[i].offset < e.chunks[j].offset })
	out := make([]byte, 0, e.total)
	next := 0
	for _, c := range e.chunks {
		if c.offset != next {
			return nil, false // gap or overlap: chain still incomplete
		}
		out = append(out, c.data...)
		next += len(c.data)
	}
	return out, next == e.total
}

// Sweep removes and returns the keys of fragment chains that have been held
// longer than the reassembler's timeout without completing, so the caller
// can log and drop them instead of buffering forever.
func (r *reassembler) Sweep(now time.Time) []fragKey {
	var expired []fragKey
	for key, entry := range r.entries {
		if now.Sub(entry.firstSeen) >= r.timeout {
			expired = append(expired, key)
			delete(r.entries, key)
		}
	}
	return expired
}
