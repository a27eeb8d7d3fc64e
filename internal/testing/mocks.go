// Package testing holds fakes shared by package tests.
package testing

import (
	"sync"
	"time"

	"github.com/Alia5/joybridge/internal/hidio"
)

// Responder returns the input reports a device answers to an output report.
type Responder func(out []byte) [][]byte

// FakeDevice is a scripted hidio.Device. Reports pushed with Push or
// produced by the Responder are returned by Read in order.
type FakeDevice struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   [][]byte
	writes  [][]byte
	closed  bool
	readErr error

	Respond Responder
}

func NewFakeDevice(r Responder) *FakeDevice {
	d := &FakeDevice{Respond: r}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Push queues input reports.
func (d *FakeDevice) Push(reports ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range reports {
		d.queue = append(d.queue, append([]byte(nil), r...))
	}
	d.cond.Broadcast()
}

// FailReads makes every following Read return err.
func (d *FakeDevice) FailReads(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Writes returns a copy of all output reports written so far.
func (d *FakeDevice) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.writes))
	copy(out, d.writes)
	return out
}

func (d *FakeDevice) Read(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && d.readErr == nil && !d.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, hidio.ErrTimeout
		}
		t := time.AfterFunc(remaining, d.cond.Broadcast)
		d.cond.Wait()
		t.Stop()
	}
	if d.closed {
		return 0, hidio.ErrClosed
	}
	if d.readErr != nil {
		return 0, d.readErr
	}
	r := d.queue[0]
	d.queue = d.queue[1:]
	return copy(p, r), nil
}

func (d *FakeDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, hidio.ErrClosed
	}
	out := append([]byte(nil), p...)
	d.writes = append(d.writes, out)
	respond := d.Respond
	d.mu.Unlock()

	if respond != nil {
		d.Push(respond(out)...)
	}
	return len(p), nil
}

func (d *FakeDevice) GetFeatureReport(p []byte) (int, error)  { return 0, nil }
func (d *FakeDevice) SendFeatureReport(p []byte) (int, error) { return len(p), nil }

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
	return nil
}

func (d *FakeDevice) Valid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// FakeEnumerator serves a mutable device list.
type FakeEnumerator struct {
	mu      sync.Mutex
	devices []hidio.Info
	opened  map[string]hidio.Device
	Err     error
	OpenFn  func(info hidio.Info) (hidio.Device, error)
}

func (e *FakeEnumerator) Set(infos ...hidio.Info) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devices = append([]hidio.Info(nil), infos...)
}

func (e *FakeEnumerator) Enumerate() ([]hidio.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return append([]hidio.Info(nil), e.devices...), nil
}

func (e *FakeEnumerator) Open(path string) (hidio.Device, error) {
	e.mu.Lock()
	var info hidio.Info
	for _, d := range e.devices {
		if d.Path == path {
			info = d
		}
	}
	open := e.OpenFn
	e.mu.Unlock()
	if open == nil {
		return nil, hidio.ErrClosed
	}
	dev, err := open(info)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.opened == nil {
		e.opened = map[string]hidio.Device{}
	}
	e.opened[path] = dev
	e.mu.Unlock()
	return dev, nil
}

// Opened returns the device opened for path, if any.
func (e *FakeEnumerator) Opened(path string) (hidio.Device, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.opened[path]
	return d, ok
}
