package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Install registers joybridge as a service running the bridge.
type Install struct {
	User bool `help:"Install a per-user service instead of a system one"`
}

// Run is called by Kong when the install command is executed.
func (i *Install) Run(logger *slog.Logger) error { return install(logger, i.User) }

// Uninstall removes the service.
type Uninstall struct {
	User bool `help:"Remove the per-user service"`
}

// Run is called by Kong when the uninstall command is executed.
func (u *Uninstall) Run(logger *slog.Logger) error { return uninstall(logger, u.User) }

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Abs(exe)
}
