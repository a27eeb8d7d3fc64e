package hidio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sstallion/go-hid"
)

// HIDAPI enumerates and opens devices through hidapi.
type HIDAPI struct {
	vendorID uint16
	filter   func(Info) bool
}

var initOnce sync.Once
var initErr error

// NewHIDAPI initializes hidapi. Only devices of vendorID that pass filter
// (nil accepts everything) are reported by Enumerate.
func NewHIDAPI(vendorID uint16, filter func(Info) bool) (*HIDAPI, error) {
	initOnce.Do(func() { initErr = hid.Init() })
	if initErr != nil {
		return nil, fmt.Errorf("hid init: %w", initErr)
	}
	return &HIDAPI{vendorID: vendorID, filter: filter}, nil
}

// Close releases hidapi. Open devices must be closed first.
func (h *HIDAPI) Close() error {
	return hid.Exit()
}

func (h *HIDAPI) Enumerate() ([]Info, error) {
	var out []Info
	err := hid.Enumerate(h.vendorID, 0, func(info *hid.DeviceInfo) error {
		i := Info{
			Path:      info.Path,
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Serial:    info.SerialNbr,
			Product:   info.ProductStr,
			Bluetooth: info.InterfaceNbr < 0,
		}
		if h.filter == nil || h.filter(i) {
			out = append(out, i)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hid enumerate: %w", err)
	}
	return out, nil
}

func (h *HIDAPI) Open(path string) (Device, error) {
	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("hid open %s: %w", path, err)
	}
	return &hidDevice{d: d}, nil
}

type hidDevice struct {
	d      *hid.Device
	closed atomic.Bool
	failed atomic.Bool
}

func (h *hidDevice) Read(p []byte, timeout time.Duration) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	n, err := h.d.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, ErrTimeout
	}
	if err != nil {
		h.failed.Store(true)
		return n, fmt.Errorf("hid read: %w", err)
	}
	h.failed.Store(false)
	return n, nil
}

func (h *hidDevice) Write(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	n, err := h.d.Write(p)
	if err != nil {
		return n, fmt.Errorf("hid write: %w", err)
	}
	return n, nil
}

func (h *hidDevice) GetFeatureReport(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	return h.d.GetFeatureReport(p)
}

func (h *hidDevice) SendFeatureReport(p []byte) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}
	return h.d.SendFeatureReport(p)
}

func (h *hidDevice) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.d.Close()
}

func (h *hidDevice) Valid() bool {
	return !h.closed.Load() && !h.failed.Load()
}
