package apiclient

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Alia5/joybridge/apitypes"
	"github.com/Alia5/joybridge/device"
)

var ErrStreamClosed = errors.New("stream closed")

// DeviceStream is the bidirectional channel of one virtual device: input
// states go out, feedback (rumble, LEDs) comes back.
type DeviceStream struct {
	BusID uint32
	DevID string

	conn      net.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

// OpenStream attaches to an existing device's stream.
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*DeviceStream, error) {
	if c.transport.mock != nil {
		return nil, fmt.Errorf("stream connections not supported with mock transport")
	}
	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte(fmt.Sprintf("bus/%d/%s\x00", busID, devID))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}
	return &DeviceStream{BusID: busID, DevID: devID, conn: conn, closed: make(chan struct{})}, nil
}

// AddDeviceAndConnect combines DeviceAddCtx and OpenStream. The device is
// returned even when opening the stream fails so callers can remove it.
func (c *Client) AddDeviceAndConnect(ctx context.Context, busID uint32, devType string, o *device.CreateOptions) (*DeviceStream, *apitypes.Device, error) {
	dev, err := c.DeviceAddCtx(ctx, busID, devType, o)
	if err != nil {
		return nil, nil, err
	}
	s, err := c.OpenStream(ctx, busID, dev.DevID)
	if err != nil {
		return nil, dev, err
	}
	return s, dev, nil
}

// WriteBinary marshals v and sends it as one input report.
func (s *DeviceStream) WriteBinary(v encoding.BinaryMarshaler) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = s.conn.Write(data)
	return err
}

// ReadFeedback fills buf with exactly one fixed-size feedback message.
func (s *DeviceStream) ReadFeedback(buf []byte) error {
	_, err := io.ReadFull(s.conn, buf)
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	return err
}

func (s *DeviceStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Done is closed once Close was called.
func (s *DeviceStream) Done() <-chan struct{} { return s.closed }

func (s *DeviceStream) Close() error {
	err := ErrStreamClosed
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
