package stack

import (
	"errors"
	"sync"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/internal"
)

var (
	errPortInUse  = errors.New("stack: port already bound")
	errNoSocket   = errors.New("stack: no socket for handle")
	errPortRange  = errors.New("stack: no free ephemeral port")
)

// firstEphemeralPort is the start of the range handed out by Bind when the
// caller requests port 0.
const firstEphemeralPort = 49152

// SocketSet owns every bound UDP socket and demultiplexes inbound datagrams
// to them using a three-tier lookup: an exact 5-tuple match, then a
// bound-local-address match ignoring the remote peer, then the wildcard
// socket bound to the unspecified address.
type SocketSet struct {
	mu      sync.Mutex
	sockets map[SocketHandle]*UDPSocket
	nextEph uint16
	allBuf  []*UDPSocket // scratch slice reused by All, called every event loop tick
}

// NewSocketSet returns an empty SocketSet.
func NewSocketSet() *SocketSet {
	return &SocketSet{
		sockets: make(map[SocketHandle]*UDPSocket),
		nextEph: firstEphemeralPort,
	}
}

// Bind creates a new socket listening on localIP:localPort (localPort 0
// picks an ephemeral port) optionally connected to a fixed remote peer.
// Returns the resulting handle's socket.
func (s *SocketSet) Bind(localIP netstack.Ipv4Addr, localPort uint16, remoteIP netstack.Ipv4Addr, remotePort uint16) (*UDPSocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if localPort == 0 {
		port, err := s.allocEphemeralLocked(localIP)
		if err != nil {
			return nil, err
		}
		localPort = port
	}
	handle := SocketHandle{Protocol: netstack.IPProtoUDP, LocalIP: localIP, LocalPort: localPort, RemoteIP: remoteIP, RemotePort: remotePort}
	if _, exists := s.sockets[handle]; exists {
		return nil, errPortInUse
	}
	sock := newUDPSocket(handle)
	s.sockets[handle] = sock
	return sock, nil
}

func (s *SocketSet) allocEphemeralLocked(localIP netstack.Ipv4Addr) (uint16, error) {
	for i := 0; i < 1<<15; i++ {
		port := s.nextEph
		s.nextEph++
		if s.nextEph == 0 {
			s.nextEph = firstEphemeralPort
		}
		handle := SocketHandle{Protocol: netstack.IPProtoUDP, LocalIP: localIP, LocalPort: port}
		if _, exists := s.sockets[handle]; !exists {
			return port, nil
		}
	}
	return 0, errPortRange
}

// Unbind removes the socket identified by handle.
func (s *SocketSet) Unbind(handle SocketHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets, handle)
}

// Lookup demultiplexes an inbound datagram (srcIP:srcPort -> dstIP:dstPort)
// to the most specific bound socket: exact 5-tuple, then bound-local
// ignoring the peer, then the wildcard socket on dstPort.
func (s *SocketSet) Lookup(dstIP netstack.Ipv4Addr, dstPort uint16, srcIP netstack.Ipv4Addr, srcPort uint16) (*UDPSocket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sock, ok := s.sockets[SocketHandle{Protocol: netstack.IPProtoUDP, LocalIP: dstIP, LocalPort: dstPort, RemoteIP: srcIP, RemotePort: srcPort}]; ok {
		return sock, true
	}
	if sock, ok := s.sockets[SocketHandle{Protocol: netstack.IPProtoUDP, LocalIP: dstIP, LocalPort: dstPort}]; ok {
		return sock, true
	}
	if sock, ok := s.sockets[SocketHandle{Protocol: netstack.IPProtoUDP, LocalIP: netstack.UnspecifiedIPv4(), LocalPort: dstPort}]; ok {
		return sock, true
	}
	return nil, false
}

// LookupMulticast returns every bound socket whose protocol and local port
// match and whose local address is either dstIP or the unspecified wildcard
// address, and whose remote fields either match the sender or were left
// unspecified. Used for inbound datagrams addressed to a broadcast or
// multicast destination, where more than one bound socket may legitimately
// want the same datagram, unlike [SocketSet.Lookup]'s single-match tiers.
func (s *SocketSet) LookupMulticast(protocol netstack.IPProto, dstIP netstack.Ipv4Addr, dstPort uint16, srcIP netstack.Ipv4Addr, srcPort uint16) []*UDPSocket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*UDPSocket
	for handle, sock := range s.sockets {
		if handle.Protocol != protocol || handle.LocalPort != dstPort {
			continue
		}
		if handle.LocalIP != dstIP && !handle.LocalIP.IsUnspecified() {
			continue
		}
		if !handle.RemoteIP.IsUnspecified() && handle.RemoteIP != srcIP {
			continue
		}
		if handle.RemotePort != 0 && handle.RemotePort != srcPort {
			continue
		}
		matches = append(matches, sock)
	}
	return matches
}

// All returns a snapshot slice of every bound socket, used by the event
// loop to drain outbound queues each tick.
func (s *SocketSet) All() []*UDPSocket {
	s.mu.Lock()
	defer s.mu.Unlock()
	internal.SliceReuse(&s.allBuf, len(s.sockets))
	for _, sock := range s.sockets {
		s.allBuf = append(s.allBuf, sock)
	}
	return s.allBuf
}

// Get returns the socket bound to handle, if any.
func (s *SocketSet) Get(handle SocketHandle) (*UDPSocket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sock, ok := s.sockets[handle]
	return sock, ok
}
