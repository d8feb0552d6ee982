//go:build !linux && !darwin
// +build !linux,!darwin

package service

import (
	"fmt"
	"runtime"
)

type unsupportedPlatform struct{}

func currentPlatform() platform { return unsupportedPlatform{} }

func (unsupportedPlatform) install(name, binary, config string) error {
	return fmt.Errorf("service install is not supported on %s", runtime.GOOS)
}

func (unsupportedPlatform) uninstall(name string) error {
	return fmt.Errorf("service uninstall is not supported on %s", runtime.GOOS)
}
