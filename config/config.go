// Package config reads device-specific tool configuration, such as the
// HTTP password of a device's update endpoint.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

func userConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		logrus.Fatalf("os.UserConfigDir failed: %v", err)
	}
	return dir
}

// Typically ~/.config/neoromfs on Linux
// Typically ~/Library/Application\ Support/neoromfs on macOS/Darwin
func neoromfsConfigDir() string {
	return filepath.Join(userConfigDir(), "neoromfs")
}

// Dir returns the top-level configuration directory.
func Dir() string { return neoromfsConfigDir() }

// DeviceDir holds the configuration files of one device.
type DeviceDir string

// ReadFile returns the trimmed contents of baseName from the device
// directory, falling back to the top-level configuration directory so
// that settings can be shared between devices.
func (d DeviceDir) ReadFile(baseName string) (string, error) {
	b, err := os.ReadFile(filepath.Join(string(d), baseName))
	if err != nil {
		// fall back to global path
		b, err = os.ReadFile(filepath.Join(neoromfsConfigDir(), baseName))
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(string(b)), nil
}

// DeviceSpecific returns the configuration directory of the named
// device, typically ~/.config/neoromfs/devices/<device>.
func DeviceSpecific(device string) DeviceDir {
	return DeviceDir(filepath.Join(neoromfsConfigDir(), "devices", device))
}
