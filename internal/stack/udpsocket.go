package stack

import (
	"sync"

	"github.com/soypat/netstack"
)

// socketQueueCapacity bounds each UDPSocket's inbound and outbound message
// queues. Once full, further messages are tail-dropped: the newest arrival
// is discarded rather than evicting what's already queued.
const socketQueueCapacity = 32

// UDPMessage is a single datagram payload exchanged through a UDPSocket,
// addressed with its peer.
type UDPMessage struct {
	Addr    netstack.AddrPort
	Payload []byte
}

type messageFIFO struct {
	mu   sync.Mutex
	buf  []UDPMessage
	cap  int
}

func newMessageFIFO(capacity int) *messageFIFO {
	return &messageFIFO{cap: capacity}
}

// push appends msg, reporting false (and dropping msg) if the queue was
// already at capacity.
func (f *messageFIFO) push(msg UDPMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) >= f.cap {
		return false
	}
	f.buf = append(f.buf, msg)
	return true
}

// pop removes and returns the oldest message, if any.
func (f *messageFIFO) pop() (UDPMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		return UDPMessage{}, false
	}
	msg := f.buf[0]
	f.buf = f.buf[1:]
	return msg, true
}

func (f *messageFIFO) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// SocketHandle identifies a socket's binding within a [SocketSet] by its
// full 5-tuple, following IANA protocol numbers (UDP=17; TCP=6 is reserved
// for a future SocketVariant, never bound by this package today). A zero
// RemoteIP/RemotePort means "unconnected", matching any peer; a zero
// LocalIP means bound to all local addresses (the wildcard socket).
type SocketHandle struct {
	Protocol   netstack.IPProto
	LocalIP    netstack.Ipv4Addr
	LocalPort  uint16
	RemoteIP   netstack.Ipv4Addr
	RemotePort uint16
}

// UDPSocket holds the demultiplexed state of a single bound UDP endpoint:
// its identifying handle and bounded inbound/outbound message queues.
type UDPSocket struct {
	Handle SocketHandle
	rx     *messageFIFO
	tx     *messageFIFO
}

func newUDPSocket(handle SocketHandle) *UDPSocket {
	return &UDPSocket{
		Handle: handle,
		rx:     newMessageFIFO(socketQueueCapacity),
		tx:     newMessageFIFO(socketQueueCapacity),
	}
}

// Deliver enqueues an inbound message for the socket's owner to read via
// RecvFrom. Returns false if the receive queue was full.
func (s *UDPSocket) Deliver(msg UDPMessage) bool { return s.rx.push(msg) }

// Receive dequeues the oldest inbound message, if any.
func (s *UDPSocket) Receive() (UDPMessage, bool) { return s.rx.pop() }

// QueueSend enqueues an outbound message for the event loop to drain onto
// the wire. Returns false if the send queue was full.
func (s *UDPSocket) QueueSend(msg UDPMessage) bool { return s.tx.push(msg) }

// NextSend dequeues the oldest outbound message, if any.
func (s *UDPSocket) NextSend() (UDPMessage, bool) { return s.tx.pop() }

// RxLen and TxLen expose current queue depths for metrics.
func (s *UDPSocket) RxLen() int { return s.rx.len() }
func (s *UDPSocket) TxLen() int { return s.tx.len() }
