//go:build !linux || baremetal

package device

import (
	"errors"
	"time"
)

// RawSocketDevice is unsupported outside Linux; use [PcapDevice] instead.
type RawSocketDevice struct{}

func OpenRawSocket(name string) (*RawSocketDevice, error) {
	return nil, errors.ErrUnsupported
}

func (r *RawSocketDevice) SendFrame(frame []byte) error { return errors.ErrUnsupported }

func (r *RawSocketDevice) NextFrame(buf []byte, timeout time.Duration) (int, error) {
	return 0, errors.ErrUnsupported
}

func (r *RawSocketDevice) HardwareAddr() [6]byte { return [6]byte{} }

func (r *RawSocketDevice) Close() error { return errors.ErrUnsupported }
