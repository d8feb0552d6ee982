//go:build darwin
// +build darwin

package resolver

import "leshy/internal/routing"

func newPlatformInstaller() routing.Installer {
	return routing.NewDarwinInstaller()
}
