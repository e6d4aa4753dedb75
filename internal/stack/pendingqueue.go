package stack

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/netstack"
)

// DefaultPendingTimeout bounds how long an outbound packet may wait on ARP
// resolution before it is dropped.
const DefaultPendingTimeout = 3 * time.Second

// maxPendingPerDest caps how many packets may queue behind a single
// unresolved destination; further sends tail-drop.
const maxPendingPerDest = 16

// PendingPacket is a fully-built IPv4 datagram (ready to be wrapped in an
// Ethernet frame once its destination's MAC is known) queued while waiting
// on address resolution.
type PendingPacket struct {
	Dest     netstack.Ipv4Addr
	Datagram []byte
	enqueued time.Time
}

type pendingEntry struct {
	packets []PendingPacket
}

// PendingQueue holds outbound IPv4 datagrams whose destination's hardware
// address is still unresolved, keyed by destination IP, and flushed once
// [ArpTable] learns the mapping or dropped once timeout elapses.
type PendingQueue struct {
	mu      sync.Mutex
	queues  map[netstack.Ipv4Addr]*pendingEntry
	timeout time.Duration
	clock   clockwork.Clock
}

// NewPendingQueue returns a PendingQueue with the given resolution timeout,
// applied to each queued packet from its own enqueue time. A zero timeout defaults to [DefaultPendingTimeout]. A
// nil clock defaults to the real wall clock.
func NewPendingQueue(timeout time.Duration, clock clockwork.Clock) *PendingQueue {
	if timeout <= 0 {
		timeout = DefaultPendingTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PendingQueue{
		queues:  make(map[netstack.Ipv4Addr]*pendingEntry),
		timeout: timeout,
		clock:   clock,
	}
}

// Enqueue appends datagram to dest's pending FIFO, stamped with its own
// enqueue time for [PendingQueue.Cleanup]. Returns false if the
// per-destination queue was already full and the packet was tail-dropped.
func (q *PendingQueue) Enqueue(dest netstack.Ipv4Addr, datagram []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queues[dest]
	if !ok {
		e = &pendingEntry{}
		q.queues[dest] = e
	}
	if len(e.packets) >= maxPendingPerDest {
		return false
	}
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	e.packets = append(e.packets, PendingPacket{Dest: dest, Datagram: cp, enqueued: q.clock.Now()})
	return true
}

// Flush removes and returns every packet queued for dest, in FIFO order.
func (q *PendingQueue) Flush(dest netstack.Ipv4Addr) []PendingPacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queues[dest]
	if !ok {
		return nil
	}
	delete(q.queues, dest)
	return e.packets
}

// Cleanup drops every packet whose own resolution timer has expired,
// regardless of how many other packets share its destination, and returns
// the total number of packets discarded.
func (q *PendingQueue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	dropped := 0
	for dest, e := range q.queues {
		kept := e.packets[:0]
		for _, pkt := range e.packets {
			if now.Sub(pkt.enqueued) >= q.timeout {
				dropped++
				continue
			}
			kept = append(kept, pkt)
		}
		e.packets = kept
		if len(e.packets) == 0 {
			delete(q.queues, dest)
		}
	}
	return dropped
}
