//go:build linux
// +build linux

package resolver

import "leshy/internal/routing"

func newPlatformInstaller() routing.Installer {
	return routing.NewLinuxInstaller()
}
