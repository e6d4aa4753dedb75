package netstack

import (
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
)

// Ipv4Addr is a 4-byte IPv4 address.
type Ipv4Addr [4]byte

// UnspecifiedIPv4 returns the "any" address 0.0.0.0, used by sockets bound
// to all local interfaces.
func UnspecifiedIPv4() Ipv4Addr { return Ipv4Addr{} }

// BroadcastIPv4 returns the limited broadcast address 255.255.255.255.
func BroadcastIPv4() Ipv4Addr { return Ipv4Addr{255, 255, 255, 255} }

// LocalhostIPv4 returns 127.0.0.1.
func LocalhostIPv4() Ipv4Addr { return Ipv4Addr{127, 0, 0, 1} }

// IsUnspecified reports whether ip is 0.0.0.0.
func (ip Ipv4Addr) IsUnspecified() bool { return ip == Ipv4Addr{} }

// IsBroadcast reports whether ip is the limited broadcast address.
func (ip Ipv4Addr) IsBroadcast() bool { return ip == BroadcastIPv4() }

// IsMulticast reports whether ip falls in the 224.0.0.0/4 multicast range.
func (ip Ipv4Addr) IsMulticast() bool { return ip[0] >= 224 && ip[0] <= 239 }

// Uint32 returns ip as a big-endian-interpreted 32 bit integer, useful for
// subnet/mask arithmetic.
func (ip Ipv4Addr) Uint32() uint32 { return binary.BigEndian.Uint32(ip[:]) }

// String returns the dotted-decimal representation, e.g. "192.168.1.1".
func (ip Ipv4Addr) String() string {
	var buf [15]byte
	n := 0
	for i, b := range ip {
		if i != 0 {
			buf[n] = '.'
			n++
		}
		n += copy(buf[n:], strconv.Itoa(int(b)))
	}
	return string(buf[:n])
}

var (
	errIPv4Octets = errors.New("netstack: IPv4 address must have 4 octets")
	errIPv4Octet  = errors.New("netstack: invalid IPv4 octet")
)

// ParseIPv4 parses a dotted-decimal address such as "10.0.0.1".
func ParseIPv4(s string) (Ipv4Addr, error) {
	var ip Ipv4Addr
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return Ipv4Addr{}, errIPv4Octets
	}
	for i, oct := range octets {
		v, err := strconv.ParseUint(oct, 10, 8)
		if err != nil {
			return Ipv4Addr{}, errIPv4Octet
		}
		ip[i] = byte(v)
	}
	return ip, nil
}

// AddrPort is a parsed "IP:PORT" socket address string.
type AddrPort struct {
	IP   Ipv4Addr
	Port uint16
}

func (ap AddrPort) String() string {
	return ap.IP.String() + ":" + strconv.Itoa(int(ap.Port))
}

var errAddrPort = errors.New("netstack: invalid \"ip:port\" address")

// ParseAddrPort parses a "IP:PORT" string as used by the UDP socket API.
func ParseAddrPort(s string) (AddrPort, error) {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return AddrPort{}, errAddrPort
	}
	ip, err := ParseIPv4(s[:idx])
	if err != nil {
		return AddrPort{}, errAddrPort
	}
	port, err := strconv.ParseUint(s[idx+1:], 10, 16)
	if err != nil {
		return AddrPort{}, errAddrPort
	}
	return AddrPort{IP: ip, Port: uint16(port)}, nil
}
