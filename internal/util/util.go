//go:build !windows

package util

// IsRunFromGUI is always false outside Windows; a desktop launcher there
// starts the bridge through a .desktop file or a service instead.
func IsRunFromGUI() bool { return false }

func HideConsoleWindow() {}
