package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
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

func captureCmd() *cobra.Command {
	var (
		iface, backend   string
		promisc          bool
		snaplen          int
		reassemble       bool
		reassembleTO     time.Duration
		outDir           string
		fcs              bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Sniff frames off an interface and print a decoded summary per frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dev device.Device
			var err error
			if backend == "rawsocket" {
				dev, err = device.OpenRawSocket(iface)
			} else {
				dev, err = openPcapCapture(iface, snaplen, promisc)
			}
			if err != nil {
				return err
			}
			defer dev.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var reasm *reassembler
			if reassemble {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("netcap: creating --out-dir: %w", err)
				}
				reasm = newReassembler(reassembleTO)
			}

			return runCapture(ctx, dev, reasm, outDir, fcs)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&iface, "interface", "", "network interface to capture on (required)")
	flags.StringVar(&backend, "backend", "pcap", "device backend: pcap or rawsocket")
	flags.BoolVar(&promisc, "promisc", false, "enable promiscuous mode (pcap backend only)")
	flags.IntVar(&snaplen, "snaplen", 65536, "maximum bytes captured per frame (pcap backend only)")
	flags.BoolVar(&reassemble, "reassemble", false, "reassemble fragmented IPv4 datagrams and write them to --out-dir")
	flags.DurationVar(&reassembleTO, "reassemble-timeout", 30*time.Second, "how long to hold an incomplete fragment chain before dropping it")
	flags.StringVar(&outDir, "out-dir", "netcap-reassembled", "directory reassembled datagrams are written to")
	flags.BoolVar(&fcs, "fcs", false, "verify and strip a trailing 4-byte Ethernet FCS appended by a netcap inject --fcs sender")
	cmd.MarkFlagRequired("interface")
	return cmd
}

func openPcapCapture(iface string, snaplen int, promisc bool) (device.Device, error) {
	// The source hardware address is irrelevant for a pure listener; netcap
	// never re-transmits what it captures.
	return device.OpenLive(iface, int32(snaplen), promisc, 100*time.Millisecond, [6]byte{})
}

func runCapture(ctx context.Context, dev device.Device, reasm *reassembler, outDir string, fcs bool) error {
	var buf [65536]byte
	sweepEvery := time.Second
	lastSweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := dev.NextFrame(buf[:], 100*time.Millisecond)
		if err == device.ErrTimeout {
			if reasm != nil && time.Since(lastSweep) >= sweepEvery {
				for _, line := range sweepFragments(reasm, time.Now()) {
					fmt.Println(line)
				}
				lastSweep = time.Now()
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("netcap: capture: %w", err)
		}
		for _, line := range decodeFrame(buf[:n], reasm, outDir, time.Now(), fcs) {
			fmt.Println(line)
		}
	}
}

// sweepFragments logs and drops any fragment chain netcap has held past its
// reassembly timeout without completing.
func sweepFragments(reasm *reassembler, now time.Time) []string {
	var lines []string
	for _, key := range reasm.Sweep(now) {
		lines = append(lines, fmt.Sprintf("DROP incomplete fragment chain src=%s dst=%s id=%d", key.src, key.dst, key.id))
	}
	return lines
}

// stripFCS verifies a trailing 4-byte little-endian Ethernet FCS against
// raw's preceding bytes and returns the frame with it removed. If the
// trailer doesn't match, it falls back to [ethernet.CRC32Search] to report
// where a valid FCS actually lands, as a diagnostic for a misaligned
// capture, and returns the frame unmodified.
func stripFCS(raw []byte) (body []byte, warning string) {
	if len(raw) < 4 {
		return raw, "FCS: frame too short to carry a trailer"
	}
	body = raw[:len(raw)-4]
	want := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if ethernet.CRC32(body) == want {
		return body, ""
	}
	if off := ethernet.CRC32Search(raw, 0); off >= 0 {
		return raw, fmt.Sprintf("FCS mismatch: trailer invalid, valid CRC found at offset %d instead of %d", off, len(body))
	}
	return raw, "FCS mismatch: no valid trailer found in frame"
}

// decodeFrame parses raw as an Ethernet frame and returns one or more
// human-readable summary lines describing it. It never returns an error:
// a malformed or unrecognized frame is summarized as such rather than
// dropped silently, since the whole point of capture is visibility.
func decodeFrame(raw []byte, reasm *reassembler, outDir string, now time.Time, fcs bool) []string {
	var warn []string
	if fcs {
		var warning string
		raw, warning = stripFCS(raw)
		if warning != "" {
			warn = append(warn, warning)
		}
	}
	efrm, err := ethernet.NewFrame(raw)
	if err != nil {
		return append(warn, fmt.Sprintf("SHORT frame (%d bytes): %v", len(raw), err))
	}
	var v netstack.Validator
	efrm.ValidateSize(&v)
	if v.HasError() {
		return append(warn, fmt.Sprintf("INVALID ethernet frame: %v", v.Err()))
	}
	switch efrm.EtherTypeOrSize() {
	case ethernet.TypeARP:
		return append(warn, decodeARP(efrm)...)
	case ethernet.TypeIPv4:
		return append(warn, decodeIPv4(efrm, reasm, outDir, now)...)
	default:
		return append(warn, fmt.Sprintf("ETH %s -> %s type=0x%04x len=%d",
			efrm.SourceHardwareAddr(), efrm.DestinationHardwareAddr(), uint16(efrm.EtherTypeOrSize()), len(raw)))
	}
}

func decodeARP(efrm ethernet.Frame) []string {
	afrm, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		return []string{fmt.Sprintf("ARP short packet: %v", err)}
	}
	return []string{afrm.String()}
}

func decodeIPv4(efrm ethernet.Frame, reasm *reassembler, outDir string, now time.Time) []string {
	ifrm, err := ipv4.NewFrame(efrm.Payload())
	if err != nil {
		return []string{fmt.Sprintf("IPv4 short packet: %v", err)}
	}
	var v netstack.Validator
	ifrm.ValidateExceptChecksum(&v)
	if v.HasError() {
		return []string{fmt.Sprintf("IPv4 invalid packet: %v", v.Err())}
	}

	fragmented := ifrm.Flags().MoreFragments() || ifrm.Flags().FragmentOffset() != 0
	if fragmented && reasm != nil {
		full, key, complete := reasm.Add(now, ifrm)
		if !complete {
			return []string{fmt.Sprintf("FRAGMENT src=%s dst=%s id=%d offset=%d more=%v",
				ifrm.SourceAddr(), ifrm.DestinationAddr(), ifrm.ID(),
				ifrm.Flags().FragmentOffset()*8, ifrm.Flags().MoreFragments())}
		}
		path := writeReassembled(outDir, key, full)
		return []string{fmt.Sprintf("REASSEMBLED src=%s dst=%s id=%d proto=%s bytes=%d -> %s",
			key.src, key.dst, key.id, key.proto, len(full), path)}
	}
	if fragmented {
		return []string{fmt.Sprintf("%s (fragment, --reassemble not set)", ifrm.String())}
	}

	lines := []string{ifrm.String()}
	switch ifrm.Protocol() {
	case netstack.IPProtoICMP:
		lines = append(lines, decodeICMP(ifrm)...)
	case netstack.IPProtoUDP:
		lines = append(lines, decodeUDP(ifrm)...)
	}
	return lines
}

func decodeICMP(ifrm ipv4.Frame) []string {
	frm, err := icmp.NewFrame(ifrm.Payload())
	if err != nil {
		return nil
	}
	return []string{fmt.Sprintf("  ICMP type=%s code=%d", frm.Type(), frm.Code())}
}

func decodeUDP(ifrm ipv4.Frame) []string {
	ufrm, err := udp.NewFrame(ifrm.Payload())
	if err != nil {
		return nil
	}
	return []string{fmt.Sprintf("  UDP %d -> %d len=%d", ufrm.SourcePort(), ufrm.DestinationPort(), ufrm.Length())}
}

func writeReassembled(outDir string, key fragKey, payload []byte) string {
	name := fmt.Sprintf("%s-%s-%d.bin", key.src, key.dst, key.id)
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		fmt.Printf("netcap: writing reassembled datagram: %v\n", err)
	}
	return path
}
