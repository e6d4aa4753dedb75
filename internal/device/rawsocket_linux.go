//go:build linux && !baremetal

package device

import (
	"fmt"
	"net"
	"syscall"
	"time"
)

// RawSocketDevice bridges to an existing Linux network interface (a
// physical NIC or a TAP device already configured with `ip link`/`ip addr`)
// via a raw AF_PACKET socket, as an alternative to [PcapDevice] that avoids
// the libpcap dependency when running on Linux.
type RawSocketDevice struct {
	fd     int
	name   string
	index  int
	hwAddr [6]byte
}

// OpenRawSocket binds a raw AF_PACKET socket to the named interface,
// capturing every ethertype.
func OpenRawSocket(name string) (*RawSocketDevice, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("device: interface %q: %w", name, err)
	}
	proto := htons(syscall.ETH_P_ALL)
	fd, err := syscall.Socket(syscall.AF_PACKET, syscall.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("device: opening raw socket: %w", err)
	}
	ll := syscall.SockaddrLinklayer{Protocol: proto, Ifindex: iface.Index}
	if err := syscall.Bind(fd, &ll); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("device: binding to %q: %w", name, err)
	}
	var hw [6]byte
	copy(hw[:], iface.HardwareAddr)
	return &RawSocketDevice{fd: fd, name: iface.Name, index: iface.Index, hwAddr: hw}, nil
}

// SendFrame writes frame to the bound interface.
func (r *RawSocketDevice) SendFrame(frame []byte) error {
	_, err := syscall.Write(r.fd, frame)
	return err
}

// NextFrame reads the next frame from the bound interface, blocking up to
// timeout.
func (r *RawSocketDevice) NextFrame(buf []byte, timeout time.Duration) (int, error) {
	tv := syscall.NsecToTimeval(timeout.Nanoseconds())
	if err := syscall.SetsockoptTimeval(r.fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		return 0, fmt.Errorf("device: setting read timeout: %w", err)
	}
	n, err := syscall.Read(r.fd, buf)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return 0, ErrTimeout
		}
		return 0, err
	}
	return n, nil
}

// HardwareAddr returns the bound interface's MAC address.
func (r *RawSocketDevice) HardwareAddr() [6]byte { return r.hwAddr }

// Close closes the underlying socket.
func (r *RawSocketDevice) Close() error {
	return syscall.Close(r.fd)
}

func htons(i uint16) uint16 { return (i<<8)&0xff00 | i>>8 }
