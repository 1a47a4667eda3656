package domain

import (
	"encoding/binary"
	"net/netip"

	"go4.org/netipx"
)

// DefaultHostCeiling bounds materialisation. A /16 (65,534 hosts) is the
// largest block that may be materialised without an explicit override.
const DefaultHostCeiling = 65534

// ParseCIDR parses an IPv4 a.b.c.d/p block and normalises it to its network
// address. Non-IPv4 input is rejected; the system does not track IPv6.
func ParseCIDR(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, Errorf(ErrMalformedCIDR, "无效的网段格式: %s", s)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, Errorf(ErrMalformedCIDR, "仅支持IPv4网段: %s", s)
	}
	return p.Masked(), nil
}

// ParseIP parses a dotted-quad IPv4 address.
func ParseIP(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Addr{}, Errorf(ErrMalformedIP, "无效的IP地址格式: %s", s)
	}
	return a, nil
}

// HostCount returns the number of usable host addresses in p: block size
// minus network and broadcast, clamped at zero. /31 and /32 yield 0.
func HostCount(p netip.Prefix) int {
	bits := p.Bits()
	if bits >= 31 {
		return 0
	}
	return (1 << (32 - bits)) - 2
}

// HostRange returns the first and last usable host address of p. ok is false
// when the block has no usable hosts.
func HostRange(p netip.Prefix) (first, last netip.Addr, ok bool) {
	if HostCount(p) == 0 {
		return netip.Addr{}, netip.Addr{}, false
	}
	r := netipx.RangeOfPrefix(p)
	return r.From().Next(), r.To().Prev(), true
}

// Hosts enumerates every usable host address of p in ascending numeric order,
// excluding the network and broadcast addresses. ceiling bounds the result;
// pass 0 to lift the bound (explicit override path only).
func Hosts(p netip.Prefix, ceiling int) ([]netip.Addr, error) {
	n := HostCount(p)
	if ceiling > 0 && n > ceiling {
		return nil, Errorf(ErrInvalidInput, "网段过大，无法自动生成所有IP地址（%d 个主机地址，上限 %d）", n, ceiling)
	}
	if n == 0 {
		return nil, nil
	}
	first, last, _ := HostRange(p)
	out := make([]netip.Addr, 0, n)
	for a := first; a.Compare(last) <= 0; a = a.Next() {
		out = append(out, a)
	}
	return out, nil
}

// Contains reports whether ip falls inside p (network and broadcast included).
func Contains(p netip.Prefix, ip netip.Addr) bool {
	return p.Contains(ip)
}

// IsUsableHost reports whether ip is a host address of p, i.e. inside the
// block and neither the network nor the broadcast address.
func IsUsableHost(p netip.Prefix, ip netip.Addr) bool {
	if !p.Contains(ip) || !ip.Is4() {
		return false
	}
	if p.Bits() >= 31 {
		return false
	}
	r := netipx.RangeOfPrefix(p)
	return ip != r.From() && ip != r.To()
}

// Overlaps reports whether two IPv4 blocks share any address.
func Overlaps(a, b netip.Prefix) bool {
	return a.Overlaps(b)
}

// IPv4ToUint32 returns the 32-bit integer form of an IPv4 address, the value
// the store indexes for ordered scans.
func IPv4ToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

// Uint32ToIPv4 is the inverse of IPv4ToUint32.
func Uint32ToIPv4(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// NetmaskString renders the dotted-quad netmask for a prefix length, stored
// alongside the CIDR for compatibility with older tooling.
func NetmaskString(p netip.Prefix) string {
	v := uint32(0xffffffff) << (32 - p.Bits())
	if p.Bits() == 0 {
		v = 0
	}
	return Uint32ToIPv4(v).String()
}
