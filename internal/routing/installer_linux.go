//go:build linux
// +build linux

package routing

import (
	"net"
	"strings"

	"github.com/vishvananda/netlink"
)

// netlinker abstracts the subset of vishvananda/netlink used here, so
// tests can substitute a fake without touching the kernel.
type netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	RouteAdd(route *netlink.Route) error
	RouteDel(route *netlink.Route) error
}

type realNetlinker struct{}

func (realNetlinker) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (realNetlinker) RouteAdd(route *netlink.Route) error          { return netlink.RouteAdd(route) }
func (realNetlinker) RouteDel(route *netlink.Route) error          { return netlink.RouteDel(route) }

// LinuxInstaller installs routes via rtnetlink.
type LinuxInstaller struct {
	nl netlinker
}

// NewLinuxInstaller returns an Installer backed by the real netlink
// package.
func NewLinuxInstaller() *LinuxInstaller {
	return &LinuxInstaller{nl: realNetlinker{}}
}

func maskFor(network net.IP, prefixLen uint8) net.IPMask {
	bits := 32
	if network.To4() == nil {
		bits = 128
	}
	return net.CIDRMask(int(prefixLen), bits)
}

func (l *LinuxInstaller) AddVia(network net.IP, prefixLen uint8, gateway net.IP) error {
	route := &netlink.Route{
		Dst: &net.IPNet{IP: network, Mask: maskFor(network, prefixLen)},
		Gw:  gateway,
	}
	if err := l.nl.RouteAdd(route); err != nil {
		if strings.Contains(err.Error(), "file exists") {
			return nil
		}
		return err
	}
	return nil
}

func (l *LinuxInstaller) AddDev(network net.IP, prefixLen uint8, device string) error {
	link, err := l.nl.LinkByName(device)
	if err != nil {
		return err
	}
	route := &netlink.Route{
		Dst:       &net.IPNet{IP: network, Mask: maskFor(network, prefixLen)},
		LinkIndex: link.Attrs().Index,
	}
	if err := l.nl.RouteAdd(route); err != nil {
		if strings.Contains(err.Error(), "file exists") {
			return nil
		}
		return err
	}
	return nil
}

func (l *LinuxInstaller) Remove(network net.IP, prefixLen uint8) error {
	route := &netlink.Route{
		Dst: &net.IPNet{IP: network, Mask: maskFor(network, prefixLen)},
	}
	if err := l.nl.RouteDel(route); err != nil {
		if strings.Contains(err.Error(), "no such process") {
			return nil
		}
		return err
	}
	return nil
}
