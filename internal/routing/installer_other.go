//go:build !linux && !darwin
// +build !linux,!darwin

package routing

import (
	"fmt"
	"net"
	"runtime"
)

// UnsupportedInstaller reports every call as an error; used on
// platforms with no route-table integration.
type UnsupportedInstaller struct{}

func NewUnsupportedInstaller() *UnsupportedInstaller { return &UnsupportedInstaller{} }

func (u *UnsupportedInstaller) err() error {
	return fmt.Errorf("route installation is not supported on %s", runtime.GOOS)
}

func (u *UnsupportedInstaller) AddVia(net.IP, uint8, net.IP) error { return u.err() }
func (u *UnsupportedInstaller) AddDev(net.IP, uint8, string) error { return u.err() }
func (u *UnsupportedInstaller) Remove(net.IP, uint8) error         { return u.err() }
