package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/netstack"
	"github.com/soypat/netstack/arp"
	"github.com/soypat/netstack/ethernet"
	"github.com/soypat/netstack/icmp"
	"github.com/soypat/netstack/internal/device"
	"github.com/soypat/netstack/ipv4"
	"github.com/soypat/netstack/udp"
)

var errNoSuchInterface = errors.New("netcap: interface has no hardware address")

// appendFCS appends a 4-byte little-endian Ethernet FCS trailer computed
// over frame, the way the reference send utility emits one on the wire.
// Most pcap/AF_PACKET capture points generate or strip the FCS in hardware
// before userspace ever sees the frame, so this is opt-in via --fcs and
// meant for interop with a --fcs capture on the other end.
func appendFCS(frame []byte) []byte {
	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], ethernet.CRC32(frame))
	return append(frame, trailer[:]...)
}

// openInjectDevice opens iface for frame injection, defaulting to the pcap
// backend; "rawsocket" selects the AF_PACKET bridge instead. Unlike
// netstackd's openDevice this performs no retry: a one-shot CLI tool should
// fail fast and let the operator retry the command.
func openInjectDevice(iface, backend string) (device.Device, error) {
	if backend == "rawsocket" {
		return device.OpenRawSocket(iface)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("netcap: %w", err)
	}
	if len(ifi.HardwareAddr) != 6 {
		return nil, errNoSuchInterface
	}
	var hw [6]byte
	copy(hw[:], ifi.HardwareAddr)
	return device.OpenLive(iface, 65536, false, 100*time.Millisecond, hw)
}

// sendN transmits frame over dev count times, pausing interval between
// each send after the first.
func sendN(dev device.Device, frame []byte, count int, interval time.Duration) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		if err := dev.SendFrame(frame); err != nil {
			return fmt.Errorf("netcap: send frame %d/%d: %w", i+1, count, err)
		}
	}
	return nil
}

func injectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Build and send a single raw frame from flags",
	}
	cmd.AddCommand(injectARPCmd())
	cmd.AddCommand(injectICMPCmd())
	cmd.AddCommand(injectUDPCmd())
	return cmd
}

func injectARPCmd() *cobra.Command {
	var (
		iface, backend       string
		srcMAC, srcIP        string
		targetMAC, targetIP  string
		reply                bool
		fcs                  bool
	)
	cmd := &cobra.Command{
		Use:   "arp",
		Short: "Send an ARP request or reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			smac, err := netstack.ParseMAC(srcMAC)
			if err != nil {
				return fmt.Errorf("parse --src-mac: %w", err)
			}
			sip, err := netstack.ParseIPv4(srcIP)
			if err != nil {
				return fmt.Errorf("parse --src-ip: %w", err)
			}
			tip, err := netstack.ParseIPv4(targetIP)
			if err != nil {
				return fmt.Errorf("parse --target-ip: %w", err)
			}

			var abuf [arp.FrameLength]byte
			var afrm arp.Frame
			var dstMAC netstack.MacAddr
			if reply {
				tmac, err := netstack.ParseMAC(targetMAC)
				if err != nil {
					return fmt.Errorf("parse --target-mac (required with --reply): %w", err)
				}
				afrm, err = arp.BuildReply(abuf[:], smac, sip, tmac, tip)
				if err != nil {
					return fmt.Errorf("build arp reply: %w", err)
				}
				dstMAC = tmac
			} else {
				afrm, err = arp.BuildRequest(abuf[:], smac, sip, tip)
				if err != nil {
					return fmt.Errorf("build arp request: %w", err)
				}
				dstMAC = netstack.BroadcastMAC()
			}

			var ebuf [ethernet.HeaderLength + arp.FrameLength]byte
			n, err := ethernet.Build(ebuf[:], dstMAC, smac, ethernet.TypeARP, afrm.RawData())
			if err != nil {
				return fmt.Errorf("build ethernet frame: %w", err)
			}

			frame := ebuf[:n]
			if fcs {
				frame = appendFCS(frame)
			}
			dev, err := openInjectDevice(iface, backend)
			if err != nil {
				return err
			}
			defer dev.Close()
			if err := dev.SendFrame(frame); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Println(afrm.String())
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&iface, "interface", "", "network interface to send on (required)")
	flags.StringVar(&backend, "backend", "pcap", "device backend: pcap or rawsocket")
	flags.StringVar(&srcMAC, "src-mac", "", "sender hardware address (required)")
	flags.StringVar(&srcIP, "src-ip", "", "sender protocol address (required)")
	flags.StringVar(&targetIP, "target-ip", "", "target protocol address (required)")
	flags.StringVar(&targetMAC, "target-mac", "", "target hardware address (required with --reply)")
	flags.BoolVar(&reply, "reply", false, "send an ARP reply instead of a request")
	flags.BoolVar(&fcs, "fcs", false, "append a 4-byte Ethernet FCS trailer (pair with capture --fcs)")
	cmd.MarkFlagRequired("interface")
	cmd.MarkFlagRequired("src-mac")
	cmd.MarkFlagRequired("src-ip")
	cmd.MarkFlagRequired("target-ip")
	return cmd
}

func injectICMPCmd() *cobra.Command {
	var (
		iface, backend   string
		srcMAC, dstMAC   string
		srcIP, dstIP     string
		id, seq          uint16
		payload          string
		count            int
		interval         time.Duration
		fcs              bool
	)
	cmd := &cobra.Command{
		Use:   "icmp",
		Short: "Send an ICMP echo request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			smac, err := netstack.ParseMAC(srcMAC)
			if err != nil {
				return fmt.Errorf("parse --src-mac: %w", err)
			}
			dmac, err := netstack.ParseMAC(dstMAC)
			if err != nil {
				return fmt.Errorf("parse --dst-mac: %w", err)
			}
			sip, err := netstack.ParseIPv4(srcIP)
			if err != nil {
				return fmt.Errorf("parse --src-ip: %w", err)
			}
			dip, err := netstack.ParseIPv4(dstIP)
			if err != nil {
				return fmt.Errorf("parse --dst-ip: %w", err)
			}

			var icmpBuf [1500]byte
			n, err := icmp.BuildEcho(icmpBuf[:], icmp.TypeEcho, id, seq, []byte(payload))
			if err != nil {
				return fmt.Errorf("build icmp echo: %w", err)
			}

			var ipBuf [1500]byte
			ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
				Source:      sip,
				Destination: dip,
				Protocol:    netstack.IPProtoICMP,
				TTL:         64,
			}, icmpBuf[:n])
			if err != nil {
				return fmt.Errorf("build ipv4 datagram: %w", err)
			}

			var ebuf [1518]byte
			en, err := ethernet.Build(ebuf[:], dmac, smac, ethernet.TypeIPv4, ipBuf[:ipn])
			if err != nil {
				return fmt.Errorf("build ethernet frame: %w", err)
			}

			frame := ebuf[:en]
			if fcs {
				frame = appendFCS(frame)
			}
			dev, err := openInjectDevice(iface, backend)
			if err != nil {
				return err
			}
			defer dev.Close()
			if err := sendN(dev, frame, count, interval); err != nil {
				return err
			}
			fmt.Printf("sent %d ICMP echo request(s) %s -> %s\n", count, sip, dip)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&iface, "interface", "", "network interface to send on (required)")
	flags.StringVar(&backend, "backend", "pcap", "device backend: pcap or rawsocket")
	flags.StringVar(&srcMAC, "src-mac", "", "source hardware address (required)")
	flags.StringVar(&dstMAC, "dst-mac", "", "destination hardware address (required)")
	flags.StringVar(&srcIP, "src-ip", "", "source IPv4 address (required)")
	flags.StringVar(&dstIP, "dst-ip", "", "destination IPv4 address (required)")
	flags.Uint16Var(&id, "id", 1, "echo identifier")
	flags.Uint16Var(&seq, "seq", 1, "echo sequence number")
	flags.StringVar(&payload, "payload", "netcap", "echo payload data")
	flags.IntVar(&count, "count", 1, "number of echo requests to send")
	flags.DurationVar(&interval, "interval", time.Second, "delay between successive echo requests")
	flags.BoolVar(&fcs, "fcs", false, "append a 4-byte Ethernet FCS trailer (pair with capture --fcs)")
	cmd.MarkFlagRequired("interface")
	cmd.MarkFlagRequired("src-mac")
	cmd.MarkFlagRequired("dst-mac")
	cmd.MarkFlagRequired("src-ip")
	cmd.MarkFlagRequired("dst-ip")
	return cmd
}

func injectUDPCmd() *cobra.Command {
	var (
		iface, backend         string
		srcMAC, dstMAC         string
		srcIP, dstIP           string
		srcPort, dstPort       uint16
		payload                string
		fcs                    bool
	)
	cmd := &cobra.Command{
		Use:   "udp",
		Short: "Send a single UDP datagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			smac, err := netstack.ParseMAC(srcMAC)
			if err != nil {
				return fmt.Errorf("parse --src-mac: %w", err)
			}
			dmac, err := netstack.ParseMAC(dstMAC)
			if err != nil {
				return fmt.Errorf("parse --dst-mac: %w", err)
			}
			sip, err := netstack.ParseIPv4(srcIP)
			if err != nil {
				return fmt.Errorf("parse --src-ip: %w", err)
			}
			dip, err := netstack.ParseIPv4(dstIP)
			if err != nil {
				return fmt.Errorf("parse --dst-ip: %w", err)
			}

			var udpBuf [1500]byte
			un, err := udp.Build(udpBuf[:], srcPort, dstPort, sip, dip, []byte(payload))
			if err != nil {
				return fmt.Errorf("build udp datagram: %w", err)
			}

			var ipBuf [1500]byte
			ipn, err := ipv4.Build(ipBuf[:], ipv4.BuildOptions{
				Source:      sip,
				Destination: dip,
				Protocol:    netstack.IPProtoUDP,
				TTL:         64,
			}, udpBuf[:un])
			if err != nil {
				return fmt.Errorf("build ipv4 datagram: %w", err)
			}

			var ebuf [1518]byte
			en, err := ethernet.Build(ebuf[:], dmac, smac, ethernet.TypeIPv4, ipBuf[:ipn])
			if err != nil {
				return fmt.Errorf("build ethernet frame: %w", err)
			}

			frame := ebuf[:en]
			if fcs {
				frame = appendFCS(frame)
			}
			dev, err := openInjectDevice(iface, backend)
			if err != nil {
				return err
			}
			defer dev.Close()
			if err := dev.SendFrame(frame); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Printf("sent UDP datagram %s:%d -> %s:%d (%d bytes payload)\n", sip, srcPort, dip, dstPort, len(payload))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&iface, "interface", "", "network interface to send on (required)")
	flags.StringVar(&backend, "backend", "pcap", "device backend: pcap or rawsocket")
	flags.StringVar(&srcMAC, "src-mac", "", "source hardware address (required)")
	flags.StringVar(&dstMAC, "dst-mac", "", "destination hardware address (required)")
	flags.StringVar(&srcIP, "src-ip", "", "source IPv4 address (required)")
	flags.StringVar(&dstIP, "dst-ip", "", "destination IPv4 address (required)")
	flags.Uint16Var(&srcPort, "src-port", 0, "source UDP port")
	flags.Uint16Var(&dstPort, "dst-port", 0, "destination UDP port (required)")
	flags.StringVar(&payload, "payload", "", "datagram payload data")
	flags.BoolVar(&fcs, "fcs", false, "append a 4-byte Ethernet FCS trailer (pair with capture --fcs)")
	cmd.MarkFlagRequired("interface")
	cmd.MarkFlagRequired("src-mac")
	cmd.MarkFlagRequired("dst-mac")
	cmd.MarkFlagRequired("src-ip")
	cmd.MarkFlagRequired("dst-ip")
	cmd.MarkFlagRequired("dst-port")
	return cmd
}
