//go:build darwin
// +build darwin

package service

import (
	"fmt"
	"os"
	"os/exec"
)

type darwinPlatform struct{}

func currentPlatform() platform { return darwinPlatform{} }

func plistLabel(name string) string {
	return fmt.Sprintf("com.%s.server", name)
}

func plistPath(name string) string {
	return fmt.Sprintf("/Library/LaunchDaemons/%s.plist", plistLabel(name))
}

func generatePlist(name, binary, config string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>%s</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>%s</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>/var/log/%s.log</string>
    <key>StandardErrorPath</key>
    <string>/var/log/%s.err</string>
</dict>
</plist>
`, plistLabel(name), binary, config, name, name)
}

func (darwinPlatform) install(name, binary, config string) error {
	path := plistPath(name)
	plist := generatePlist(name, binary, config)

	if err := os.WriteFile(path, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("write plist %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)

	cmd := exec.Command("launchctl", "load", "-w", path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}

	fmt.Printf("Service %s loaded. It will start automatically.\n", plistLabel(name))
	return nil
}

func (darwinPlatform) uninstall(name string) error {
	path := plistPath(name)

	if _, err := os.Stat(path); err == nil {
		cmd := exec.Command("launchctl", "unload", "-w", path)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		_ = cmd.Run()

		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		fmt.Printf("Removed %s\n", path)
	} else {
		fmt.Printf("Plist %s does not exist, nothing to remove\n", path)
	}

	fmt.Printf("Service %s uninstalled\n", plistLabel(name))
	return nil
}
