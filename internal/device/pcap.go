package device

import (
	"fmt"
	"time"

	"github.com/gopacket/gopacket/pcap"
)

// ListDevices enumerates the capture-capable network interfaces visible to
// libpcap on this host.
func ListDevices() ([]Info, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("device: enumerating pcap interfaces: %w", err)
	}
	out := make([]Info, 0, len(devs))
	for _, d := range devs {
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			if a.IP != nil {
				addrs = append(addrs, a.IP.String())
			}
		}
		out = append(out, Info{Name: d.Name, Description: d.Description, Addresses: addrs})
	}
	return out, nil
}

// PcapDevice captures and injects Ethernet frames on a live interface via
// libpcap.
type PcapDevice struct {
	handle  *pcap.Handle
	hwAddr  [6]byte
	ifName  string
}

// OpenLive opens ifaceName for live capture with the given snap length,
// promiscuous mode and read timeout. hwAddr is the interface's own MAC
// address, used to stamp outgoing Ethernet source addresses.
func OpenLive(ifaceName string, snapLen int32, promisc bool, timeout time.Duration, hwAddr [6]byte) (*PcapDevice, error) {
	handle, err := pcap.OpenLive(ifaceName, snapLen, promisc, timeout)
	if err != nil {
		return nil, fmt.Errorf("device: opening %q: %w", ifaceName, err)
	}
	return &PcapDevice{handle: handle, hwAddr: hwAddr, ifName: ifaceName}, nil
}

// SendFrame writes frame onto the wire as-is.
func (d *PcapDevice) SendFrame(frame []byte) error {
	return d.handle.WritePacketData(frame)
}

// NextFrame reads the next captured frame into buf.
func (d *PcapDevice) NextFrame(buf []byte, timeout time.Duration) (int, error) {
	data, _, err := d.handle.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return 0, ErrTimeout
	}
	if err != nil {
		return 0, fmt.Errorf("device: reading from %q: %w", d.ifName, err)
	}
	n := copy(buf, data)
	return n, nil
}

// HardwareAddr returns the interface's MAC address.
func (d *PcapDevice) HardwareAddr() [6]byte { return d.hwAddr }

// Close releases the pcap handle.
func (d *PcapDevice) Close() error {
	d.handle.Close()
	return nil
}
