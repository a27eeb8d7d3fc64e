// Package apiclient talks to a VIIPER server: bus and device management
// plus the per-device input/feedback stream.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Alia5/joybridge/apitypes"
	"github.com/Alia5/joybridge/device"
)

type Client struct{ transport *Transport }

func New(addr string) *Client { return &Client{transport: NewTransport(addr)} }

func NewWithConfig(addr string, cfg *Config) *Client {
	return &Client{transport: NewTransportWithConfig(addr, cfg)}
}

// WithTransport wraps an existing transport, typically a mock.
func WithTransport(t *Transport) *Client { return &Client{transport: t} }

func (c *Client) PingCtx(ctx context.Context) (*apitypes.PingResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "ping", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.PingResponse](raw)
}

func (c *Client) BusListCtx(ctx context.Context) (*apitypes.BusListResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "bus/list", nil, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.BusListResponse](raw)
}

// BusCreateCtx creates a bus. busID 0 lets the server pick one.
func (c *Client) BusCreateCtx(ctx context.Context, busID uint32) (*apitypes.BusCreateResponse, error) {
	var payload any
	if busID != 0 {
		payload = fmt.Sprintf("%d", busID)
	}
	raw, err := c.transport.DoCtx(ctx, "bus/create", payload, nil)
	if err != nil {
		return nil, err
	}
	return parse[apitypes.BusCreateResponse](raw)
}

// DeviceAddCtx adds a device of devType ("xbox360", "dualshock4") to a bus.
func (c *Client) DeviceAddCtx(ctx context.Context, busID uint32, devType string, o *device.CreateOptions) (*apitypes.Device, error) {
	if o == nil {
		o = &device.CreateOptions{}
	}
	req := apitypes.DeviceCreateRequest{Type: &devType, VendorID: o.VendorID, ProductID: o.ProductID}
	raw, err := c.transport.DoCtx(ctx, "bus/{id}/add", req, busParams(busID))
	if err != nil {
		return nil, err
	}
	return parse[apitypes.Device](raw)
}

func (c *Client) DeviceRemoveCtx(ctx context.Context, busID uint32, devID string) (*apitypes.DeviceRemoveResponse, error) {
	raw, err := c.transport.DoCtx(ctx, "bus/{id}/remove", devID, busParams(busID))
	if err != nil {
		return nil, err
	}
	return parse[apitypes.DeviceRemoveResponse](raw)
}

func busParams(busID uint32) map[string]string {
	return map[string]string{"id": fmt.Sprintf("%d", busID)}
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem apitypes.Problem
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
