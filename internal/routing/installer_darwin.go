//go:build darwin
// +build darwin

package routing

import (
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// DarwinInstaller shells out to /sbin/route, the only supported way to
// manipulate the BSD routing table.
type DarwinInstaller struct{}

// NewDarwinInstaller returns an Installer backed by /sbin/route.
func NewDarwinInstaller() *DarwinInstaller {
	return &DarwinInstaller{}
}

func dest(network net.IP, prefixLen uint8) (string, bool) {
	isHost := prefixLen == 32
	if isHost {
		return network.String(), true
	}
	return fmt.Sprintf("%s/%d", network, prefixLen), false
}

func runRoute(args []string) error {
	cmd := exec.Command("/sbin/route", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err == nil {
		return nil
	}
	return fmt.Errorf("route %v: %s", args, stderr.String())
}

func (d *DarwinInstaller) AddVia(network net.IP, prefixLen uint8, gateway net.IP) error {
	target, isHost := dest(network, prefixLen)
	args := []string{"-n", "add"}
	if isHost {
		args = append(args, "-host", target, gateway.String())
	} else {
		args = append(args, "-net", target, gateway.String())
	}

	if err := runRoute(args); err != nil {
		if strings.Contains(err.Error(), "File exists") {
			return nil
		}
		return err
	}
	return nil
}

func (d *DarwinInstaller) AddDev(network net.IP, prefixLen uint8, device string) error {
	target, isHost := dest(network, prefixLen)
	args := []string{"-n", "add"}
	if isHost {
		args = append(args, "-host", target, "-interface", device)
	} else {
		args = append(args, "-net", target, "-interface", device)
	}

	if err := runRoute(args); err != nil {
		if strings.Contains(err.Error(), "File exists") {
			return nil
		}
		return err
	}
	return nil
}

func (d *DarwinInstaller) Remove(network net.IP, prefixLen uint8) error {
	target, isHost := dest(network, prefixLen)
	args := []string{"-n", "delete"}
	if isHost {
		args = append(args, "-host", target)
	} else {
		args = append(args, "-net", target)
	}

	if err := runRoute(args); err != nil {
		if strings.Contains(err.Error(), "not in table") {
			return nil
		}
		return err
	}
	return nil
}
