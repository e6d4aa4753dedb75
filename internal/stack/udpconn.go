package stack

import (
	"errors"
	"sync/atomic"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/udp"
)

var errConnClosed = errors.New("stack: connection closed")

// UDPConn is the user-facing handle to a bound UDP socket: bind once with
// [Stack.ListenUDP] or [Stack.DialUDP], then SendTo/RecvFrom to exchange
// datagrams. Safe for concurrent use by multiple goroutines.
type UDPConn struct {
	stack  *Stack
	sock   *UDPSocket
	closed atomic.Bool
}

// ListenUDP binds a socket to localIP:localPort, receiving datagrams from
// any peer. localPort 0 picks an ephemeral port.
func (s *Stack) ListenUDP(localIP netstack.Ipv4Addr, localPort uint16) (*UDPConn, error) {
	sock, err := s.Sockets.Bind(localIP, localPort, netstack.Ipv4Addr{}, 0)
	if err != nil {
		return nil, err
	}
	return &UDPConn{stack: s, sock: sock}, nil
}

// DialUDP binds a socket to localIP:localPort connected to a fixed remote
// peer; RecvFrom then only receives datagrams from that peer, while SendTo
// still sends to whatever dst it is given.
func (s *Stack) DialUDP(localIP netstack.Ipv4Addr, localPort uint16, remote netstack.AddrPort) (*UDPConn, error) {
	sock, err := s.Sockets.Bind(localIP, localPort, remote.IP, remote.Port)
	if err != nil {
		return nil, err
	}
	return &UDPConn{stack: s, sock: sock}, nil
}

// LocalAddr returns the socket's bound local address.
func (c *UDPConn) LocalAddr() netstack.AddrPort {
	return netstack.AddrPort{IP: c.sock.Handle.LocalIP, Port: c.sock.Handle.LocalPort}
}

// SendTo queues payload for transmission to dst. The event loop drains the
// send queue and performs the actual device write; SendTo never blocks: if
// the bounded send queue is full it reports an error instead.
func (c *UDPConn) SendTo(dst netstack.AddrPort, payload []byte) error {
	if c.closed.Load() {
		return errConnClosed
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	if !c.sock.QueueSend(UDPMessage{Addr: dst, Payload: body}) {
		return errors.New("stack: send queue full")
	}
	return nil
}

// RecvFrom dequeues the oldest received datagram, if any. ok is false if no
// datagram is currently queued; callers typically poll this from the same
// goroutine driving the event loop or from a separate reader goroutine.
func (c *UDPConn) RecvFrom() (payload []byte, from netstack.AddrPort, ok bool) {
	msg, got := c.sock.Receive()
	if !got {
		return nil, netstack.AddrPort{}, false
	}
	return msg.Payload, msg.Addr, true
}

// Close releases the socket's binding. Queued but undelivered messages are
// discarded.
func (c *UDPConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stack.Sockets.Unbind(c.sock.Handle)
	return nil
}

// drainSendQueues is called by the event loop each tick to push every
// socket's queued outbound messages onto the wire.
func (s *Stack) drainSendQueues() {
	for _, sock := range s.Sockets.All() {
		for {
			msg, ok := sock.NextSend()
			if !ok {
				break
			}
			srcPort := sock.Handle.LocalPort
			srcIP := sock.Handle.LocalIP
			if srcIP.IsUnspecified() {
				srcIP = s.ip
			}
			var buf [1500]byte
			n, err := udp.Build(buf[:], srcPort, msg.Addr.Port, srcIP, msg.Addr.IP, msg.Payload)
			if err != nil {
				s.log.Warn("build udp datagram failed", "err", err)
				continue
			}
			if err := s.SendIPv4(msg.Addr.IP, netstack.IPProtoUDP, buf[:n]); err != nil {
				s.log.Warn("send udp datagram failed", "dst", msg.Addr, "err", err)
			}
		}
	}
}
