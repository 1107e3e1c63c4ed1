package netctl

import (
	"hash/fnv"
	"net"
	"net/netip"
)

// Link-local host range usable for self-assignment (RFC 3927 §2.1):
// 169.254.1.0 through 169.254.254.255.
const (
	linkLocalFirstSubnet = 1
	linkLocalSubnets     = 254
)

// LinkLocal derives a stable IPv4 link-local address from a hardware
// address, so a device that never gets a lease comes up at the same
// address on every boot.
func LinkLocal(mac net.HardwareAddr) netip.Addr {
	h := fnv.New32a()
	_, _ = h.Write(mac)
	v := h.Sum32() % (linkLocalSubnets * 256)
	return netip.AddrFrom4([4]byte{169, 254, byte(linkLocalFirstSubnet + v/256), byte(v % 256)})
}

// IsLinkLocal reports whether a is in the self-assignable link-local range.
func IsLinkLocal(a netip.Addr) bool {
	if !a.Is4() {
		return false
	}
	b := a.As4()
	return b[0] == 169 && b[1] == 254 && b[2] >= linkLocalFirstSubnet && b[2] <= linkLocalSubnets
}
