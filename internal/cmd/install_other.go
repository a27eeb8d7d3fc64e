//go:build !linux

package cmd

import (
	"errors"
	"log/slog"
)

var errInstallUnsupported = errors.New("service installation is only supported on Linux")

func install(*slog.Logger, bool) error   { return errInstallUnsupported }
func uninstall(*slog.Logger, bool) error { return errInstallUnsupported }
