package netctl

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/ardnew/soundbooster/pkg"
)

// Stack is the network stack the control task runs on. Lease may block
// and must honor ctx; the task bounds each attempt with its DHCP timeout.
type Stack interface {
	// Lease acquires an IPv4 address for the interface.
	Lease(ctx context.Context) (netip.Addr, error)

	// Listen binds a TCP listener.
	Listen(addr netip.AddrPort) (net.Listener, error)

	// HardwareAddr identifies the interface for link-local derivation.
	HardwareAddr() net.HardwareAddr
}

// HostStack adapts the host operating system's network stack. The host's
// own DHCP client has already run, so a "lease" is the first routable IPv4
// address configured on the interface.
type HostStack struct {
	// Interface names the interface to use. Empty selects the first
	// interface that is up and not a loopback.
	Interface string
}

// Lease implements Stack.
func (h HostStack) Lease(ctx context.Context) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	ifaces, err := h.interfaces()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			pfx, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			ip := pfx.Addr()
			if ip.Is4() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
				return ip, nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: no IPv4 address on %s", pkg.ErrLeaseUnavailable, h.name())
}

// Listen implements Stack.
func (h HostStack) Listen(addr netip.AddrPort) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", addr.String())
}

// HardwareAddr implements Stack.
func (h HostStack) HardwareAddr() net.HardwareAddr {
	ifaces, err := h.interfaces()
	if err != nil {
		return nil
	}
	for _, ifi := range ifaces {
		if len(ifi.HardwareAddr) > 0 {
			return ifi.HardwareAddr
		}
	}
	return nil
}

func (h HostStack) name() string {
	if h.Interface == "" {
		return "any interface"
	}
	return h.Interface
}

func (h HostStack) interfaces() ([]net.Interface, error) {
	if h.Interface != "" {
		ifi, err := net.InterfaceByName(h.Interface)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrLeaseUnavailable, err)
		}
		return []net.Interface{*ifi}, nil
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var up []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagLoopback == 0 {
			up = append(up, ifi)
		}
	}
	return up, nil
}
