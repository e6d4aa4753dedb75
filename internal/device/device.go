// Package device provides the raw-frame capture/injection backends the
// stack's event loop polls: a libpcap-backed NIC capture and a raw AF_PACKET
// bridge socket, both satisfying the same minimal Device interface.
package device

import (
	"errors"
	"time"
)

// ErrTimeout is returned by NextFrame when no frame arrived within the
// requested timeout. Callers should treat it as "poll again", not a fatal
// device error.
var ErrTimeout = errors.New("device: read timeout")

// Device abstracts a raw Ethernet-frame capture/injection endpoint, whether
// backed by libpcap, a Linux TAP device or a raw AF_PACKET socket bridge.
type Device interface {
	// SendFrame transmits a single, already-built Ethernet frame.
	SendFrame(frame []byte) error
	// NextFrame blocks up to timeout for a single inbound frame, copying it
	// into buf and returning its length. Returns ErrTimeout if none arrives.
	NextFrame(buf []byte, timeout time.Duration) (int, error)
	// HardwareAddr returns the device's own MAC address, used to populate
	// the Ethernet source address field.
	HardwareAddr() [6]byte
	// Close releases the underlying descriptor.
	Close() error
}

// Info describes a capture-capable network interface, as enumerated by
// [ListDevices].
type Info struct {
	Name        string
	Description string
	Addresses   []string
}
