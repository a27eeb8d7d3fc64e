// Package sink pushes mapped controller states to virtual gamepads.
package sink

import (
	"bytes"
	"context"
	"encoding"
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("virtual pad not connected")

// Feedback is a motor request coming back from the virtual pad.
type Feedback struct {
	Large, Small uint8
}

type FeedbackFunc func(Feedback)

// Pad is one virtual gamepad.
type Pad interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	// Update pushes state and reports whether anything was sent.
	Update(state encoding.BinaryMarshaler) (bool, error)
	SetFeedbackHandler(FeedbackFunc)
}

// Dedup remembers the last encoded state.
type Dedup struct {
	mu   sync.Mutex
	last []byte
}

// Changed records b and reports whether it differs from the previous call.
func (d *Dedup) Changed(b []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil && bytes.Equal(d.last, b) {
		return false
	}
	d.last = append(d.last[:0], b...)
	return true
}

// Reset forgets the last state so the next one is always sent.
func (d *Dedup) Reset() {
	d.mu.Lock()
	d.last = nil
	d.mu.Unlock()
}
