package routing

import (
	"fmt"
	"net"
	"os"
	"strings"

	"leshy/internal/config"
)

// Installer applies RouteActions to the running kernel routing table. A
// platform provides exactly one implementation; callers never see the
// difference.
type Installer interface {
	// AddVia installs network/prefixLen routed through gateway.
	AddVia(network net.IP, prefixLen uint8, gateway net.IP) error
	// AddDev installs network/prefixLen routed out device.
	AddDev(network net.IP, prefixLen uint8, device string) error
	// Remove withdraws network/prefixLen. Absence is not an error.
	Remove(network net.IP, prefixLen uint8) error
}

// Apply executes actions against ins in order, resolving each Add's
// route_target according to routeType. routeTarget is either a gateway
// IP (RouteVia) or the path to a device file (RouteDev) whose trimmed
// contents name the tunnel interface, read fresh on every call since
// the VPN client may not have written it yet.
func Apply(ins Installer, actions []RouteAction) error {
	for _, act := range actions {
		network := u32ToIP(act.Network)

		switch act.Kind {
		case ActionRemove:
			if err := ins.Remove(network, act.PrefixLen); err != nil {
				return fmt.Errorf("remove %s/%d: %w", network, act.PrefixLen, err)
			}
		case ActionAdd:
			if err := applyAdd(ins, network, act); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyAdd(ins Installer, network net.IP, act RouteAction) error {
	switch act.RouteType {
	case config.RouteDev:
		device, err := resolveDevice(act.RouteTarget)
		if err != nil {
			return err
		}
		if err := ins.AddDev(network, act.PrefixLen, device); err != nil {
			return fmt.Errorf("add %s/%d dev %s: %w", network, act.PrefixLen, device, err)
		}
	default: // "via"
		gw := net.ParseIP(act.RouteTarget)
		if gw == nil {
			return fmt.Errorf("add %s/%d: invalid gateway %q", network, act.PrefixLen, act.RouteTarget)
		}
		if err := ins.AddVia(network, act.PrefixLen, gw); err != nil {
			return fmt.Errorf("add %s/%d via %s: %w", network, act.PrefixLen, gw, err)
		}
	}
	return nil
}

// resolveDevice reads path (a zone's route_target for a dev
// disposition) and returns its trimmed contents as the device name. A
// missing or empty device file usually means the VPN client hasn't
// started yet.
func resolveDevice(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read device file %s: %w (VPN not connected?)", path, err)
	}
	device := strings.TrimSpace(string(data))
	if device == "" {
		return "", fmt.Errorf("device file %s is empty (VPN not connected?)", path)
	}
	return device, nil
}
