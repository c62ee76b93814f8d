// Package service installs echoprobe watch as a system service. Only
// systemd on Linux is supported.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServiceConfig holds configuration for installing the service.
type ServiceConfig struct {
	// Name is the systemd unit name without the .service suffix
	Name string

	// Description is the service description
	Description string

	// ConfigPath is the absolute path to the config file
	ConfigPath string

	// WorkingDir is the working directory for the service
	WorkingDir string

	// Target is the address the service watches
	Target string

	// User is the user to run the service as (empty for root)
	User string

	// Group is the group to run the service as (empty for root)
	Group string

	// RawSockets grants CAP_NET_RAW so raw mode works without root
	RawSockets bool
}

// DefaultConfig returns a default service configuration watching target.
func DefaultConfig(configPath, target string) ServiceConfig {
	absPath, _ := filepath.Abs(configPath)
	workDir := filepath.Dir(absPath)

	return ServiceConfig{
		Name:        "echoprobe",
		Description: "ICMP echo probe for " + target,
		ConfigPath:  absPath,
		WorkingDir:  workDir,
		Target:      target,
	}
}

// IsRoot returns true if the current process is running as root.
func IsRoot() bool {
	return isRootImpl()
}

// Install creates, enables and starts the service unit.
func Install(cfg ServiceConfig) error {
	if !IsRoot() {
		return fmt.Errorf("must run as root to install service")
	}
	if cfg.Target == "" {
		return fmt.Errorf("service target address is required")
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the real path
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	return installImpl(cfg, execPath)
}

// Uninstall stops, disables and removes the service unit.
func Uninstall(serviceName string) error {
	if !IsRoot() {
		return fmt.Errorf("must run as root to uninstall service")
	}
	return uninstallImpl(serviceName)
}

// Status returns the current status of the service.
func Status(serviceName string) (string, error) {
	return statusImpl(serviceName)
}

// IsInstalled checks if the service is already installed.
func IsInstalled(serviceName string) bool {
	return isInstalledImpl(serviceName)
}

// IsSupported returns true if service installation is supported on this platform.
func IsSupported() bool {
	return runtime.GOOS == "linux"
}

// runCommand executes a command and returns combined output.
func runCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}
