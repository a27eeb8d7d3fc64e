//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Alia5/joybridge/internal/configpaths"
)

const serviceName = "joybridge.service"

// unit locates the service file and the systemctl scope.
type unit struct {
	path string
	user bool
}

func unitFor(user bool) (unit, error) {
	if !user {
		return unit{path: filepath.Join("/etc/systemd/system", serviceName)}, nil
	}
	dir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return unit{}, err
	}
	// The config dir is <XDG config>/joybridge; user units live next to it.
	return unit{path: filepath.Join(filepath.Dir(dir), "systemd", "user", serviceName), user: true}, nil
}

func (u unit) systemctl(args ...string) error {
	if u.user {
		args = append([]string{"--user"}, args...)
	}
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u unit) content(exePath string) string {
	target := "multi-user.target"
	if u.user {
		target = "default.target"
	}
	return fmt.Sprintf(`[Unit]
Description=joybridge controller bridge
After=bluetooth.target

[Service]
Type=simple
ExecStart=%q run
WorkingDirectory=%s
Restart=on-failure
RestartSec=2

[Install]
WantedBy=%s
`, exePath, filepath.Dir(exePath), target)
}

func install(logger *slog.Logger, user bool) error {
	exePath, err := currentExecutable()
	if err != nil {
		return err
	}
	u, err := unitFor(user)
	if err != nil {
		return err
	}
	if err := configpaths.EnsureDir(u.path); err != nil {
		return err
	}
	if err := os.WriteFile(u.path, []byte(u.content(exePath)), 0o644); err != nil {
		return err
	}
	for _, args := range [][]string{{"daemon-reload"}, {"enable", serviceName}, {"restart", serviceName}} {
		if err := u.systemctl(args...); err != nil {
			return err
		}
	}
	logger.Info("joybridge service installed", "path", u.path, "exe", exePath, "user", user)
	return nil
}

// uninstall runs every step and reports all failures.
func uninstall(logger *slog.Logger, user bool) error {
	u, err := unitFor(user)
	if err != nil {
		return err
	}
	var errs []error
	for _, args := range [][]string{{"stop", serviceName}, {"disable", serviceName}} {
		if err := u.systemctl(args...); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(u.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := u.systemctl("daemon-reload"); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("joybridge service removed", "path", u.path)
	return nil
}
