// Package hidio is the HID transport used by controller sessions.
//
// Sessions only see the Device and Enumerator interfaces; the go-hid binding
// in hidapi.go is the production implementation and tests substitute fakes.
package hidio

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Device.Read when no report arrived in time.
	ErrTimeout = errors.New("hid read timed out")
	// ErrDisconnected is returned by bindings that can tell an unplug apart
	// from a failed read. Plain read errors are retried by the session.
	ErrDisconnected = errors.New("hid device disconnected")
	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("hid device closed")
)

// Device is an open HID handle.
type Device interface {
	// Read blocks for at most timeout and returns one input report.
	Read(p []byte, timeout time.Duration) (int, error)
	// Write sends one output report; p[0] is the report ID.
	Write(p []byte) (int, error)
	GetFeatureReport(p []byte) (int, error)
	SendFeatureReport(p []byte) (int, error)
	Close() error
	// Valid reports whether the handle is still usable.
	Valid() bool
}

// Info describes an enumerated HID device.
type Info struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string
	// Bluetooth is true when the device has no USB interface number.
	Bluetooth bool
}

// Enumerator lists and opens HID devices.
type Enumerator interface {
	Enumerate() ([]Info, error)
	Open(path string) (Device, error)
}
