//go:build windows

// Package util detects an executable started from Explorer so the bridge
// can run without a terminal.
package util

import (
	"log/slog"
	"os"
	"slices"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procFreeConsole      = kernel32.NewProc("FreeConsole")
	procShowWindow       = user32.NewProc("ShowWindow")
)

var terminals = []string{
	"cmd.exe",
	"conhost.exe",
	"powershell.exe",
	"pwsh.exe",
	"windowsterminal.exe",
	"wt.exe",
}

func consoleWindow() uintptr {
	hwnd, _, _ := procGetConsoleWindow.Call()
	return hwnd
}

// IsRunFromGUI reports whether the process has no console or was started
// by Explorer rather than a terminal.
func IsRunFromGUI() bool {
	if consoleWindow() == 0 {
		return true
	}
	parent := strings.ToLower(parentProcessName())
	slog.Debug("Parent process", "name", parent)
	if slices.Contains(terminals, parent) {
		return false
	}
	return parent == "explorer.exe"
}

// HideConsoleWindow hides and detaches the console, if any.
func HideConsoleWindow() {
	hwnd := consoleWindow()
	if hwnd == 0 {
		return
	}
	_, _, _ = procShowWindow.Call(hwnd, windows.SW_HIDE)
	_, _, _ = procFreeConsole.Call()
}

// parentProcessName walks one process snapshot, collecting parent links and
// names, and returns the executable name of our parent.
func parentProcessName() string {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snapshot)

	parents := map[uint32]uint32{}
	names := map[uint32]string{}
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	for err = windows.Process32First(snapshot, &pe); err == nil; err = windows.Process32Next(snapshot, &pe) {
		parents[pe.ProcessID] = pe.ParentProcessID
		names[pe.ProcessID] = windows.UTF16ToString(pe.ExeFile[:])
	}
	ppid, ok := parents[uint32(os.Getpid())]
	if !ok || ppid == 0 {
		return ""
	}
	return names[ppid]
}
