// Package stack implements the core engine of the user-space IPv4 network
// stack: address resolution, IPv4/ICMP/UDP protocol handling, UDP socket
// demultiplexing and the event loop that drives them over a raw-frame
// [device.Device].
package stack

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/soypat/netstack"
	"github.com/soypat/netstack/internal"
	"github.com/soypat/netstack/internal/device"
)

// Config configures a new [Stack].
type Config struct {
	HardwareAddr   netstack.MacAddr
	IP             netstack.Ipv4Addr
	Gateway        netstack.Ipv4Addr
	ArpTTL         time.Duration
	PendingTimeout time.Duration
	Logger         *slog.Logger
	Clock          clockwork.Clock
}

// Metrics is the subset of the Prometheus collector set that the stack
// engine updates directly, kept as an interface so tests can stub it out
// without importing the metrics package.
type Metrics interface {
	FrameDropped(reason string)
	FrameReceived(etherType string)
	FrameSent(etherType string)
	ArpTableSize(n int)
}

type noopMetrics struct{}

func (noopMetrics) FrameDropped(string)   {}
func (noopMetrics) FrameReceived(string)  {}
func (noopMetrics) FrameSent(string)      {}
func (noopMetrics) ArpTableSize(int)      {}

// Stack owns every piece of mutable state shared by the protocol handlers
// and the event loop: the ARP cache, the pending-packet queue, the bound
// UDP sockets, the outbound raw-frame device and the datagram ID counter.
//
// The canonical lock order across these tables, followed by every handler,
// is: socket set, then ARP table, then pending queue. Handlers release all
// locks before performing device I/O.
type Stack struct {
	hwAddr  netstack.MacAddr
	ip      netstack.Ipv4Addr
	gateway netstack.Ipv4Addr

	Arp     *ArpTable
	Pending *PendingQueue
	Sockets *SocketSet

	dev    device.Device
	devMu  sync.Mutex
	log    *slog.Logger
	clock  clockwork.Clock
	nextID atomic.Uint32

	Metrics Metrics
}

// New builds a Stack bound to dev, ready to have frames fed through
// [Stack.HandleFrame] and to originate traffic via [Stack.SendIPv4].
func New(cfg Config, dev device.Device) *Stack {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Stack{
		hwAddr:  cfg.HardwareAddr,
		ip:      cfg.IP,
		gateway: cfg.Gateway,
		Arp:     NewArpTable(cfg.ArpTTL, clock),
		Pending: NewPendingQueue(cfg.PendingTimeout, clock),
		Sockets: NewSocketSet(),
		dev:     dev,
		log:     logger,
		clock:   clock,
		Metrics: noopMetrics{},
	}
	if s.hasGateway() {
		logger.Debug("gateway configured, but routing is out of scope", "gateway", cfg.Gateway)
	}
	return s
}

// HardwareAddr returns the stack's own MAC address.
func (s *Stack) HardwareAddr() netstack.MacAddr { return s.hwAddr }

// IP returns the stack's own IPv4 address.
func (s *Stack) IP() netstack.Ipv4Addr { return s.ip }

// hasGateway reports whether a default gateway was configured. Routing
// through it is out of scope; this only gates the startup log line.
func (s *Stack) hasGateway() bool { return !internal.IsZeroed(s.gateway) }

// nextDatagramID returns the next value of the per-stack IPv4 identification
// counter, shared across every outbound datagram regardless of destination.
func (s *Stack) nextDatagramID() uint16 {
	return uint16(s.nextID.Add(1))
}

// sendFrame transmits a fully-built Ethernet frame, serializing access to
// the device so concurrent senders (handlers and user Sends) don't
// interleave writes.
func (s *Stack) sendFrame(frame []byte) error {
	s.devMu.Lock()
	defer s.devMu.Unlock()
	return s.dev.SendFrame(frame)
}
