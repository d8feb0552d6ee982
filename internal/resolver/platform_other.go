//go:build !linux && !darwin
// +build !linux,!darwin

package resolver

import "leshy/internal/routing"

func newPlatformInstaller() routing.Installer {
	return routing.NewUnsupportedInstaller()
}
