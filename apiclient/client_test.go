package apiclient_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/joybridge/apiclient"
	"github.com/Alia5/joybridge/apitypes"
	"github.com/Alia5/joybridge/device"
	"github.com/Alia5/joybridge/device/xbox360"
)

// testClient answers requests from responses, keyed by the unfilled path.
// A non-nil err fails every request.
func testClient(responses map[string]string, err error) *apiclient.Client {
	return apiclient.WithTransport(apiclient.NewMockTransport(func(path string, _ any, _ map[string]string) (string, error) {
		if err != nil {
			return "", err
		}
		return responses[path], nil
	}))
}

func TestHighLevelClient(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		responses map[string]string
		failWith  error
		call      func(c *apiclient.Client) (any, error)
		wantErr   string
		check     func(t *testing.T, got any)
	}{
		{
			name:      "ping",
			responses: map[string]string{"ping": `{"server":"VIIPER","version":"1.2.3"}`},
			call:      func(c *apiclient.Client) (any, error) { return c.PingCtx(ctx) },
			check: func(t *testing.T, got any) {
				assert.Equal(t, "1.2.3", got.(*apitypes.PingResponse).Version)
			},
		},
		{
			name:      "bus create",
			responses: map[string]string{"bus/create": `{"busId":42}`},
			call:      func(c *apiclient.Client) (any, error) { return c.BusCreateCtx(ctx, 0) },
			check: func(t *testing.T, got any) {
				assert.Equal(t, uint32(42), got.(*apitypes.BusCreateResponse).BusID)
			},
		},
		{
			name:      "problem reply",
			responses: map[string]string{"bus/create": `{"status":409,"title":"Conflict","detail":"bus 1 exists"}`},
			call:      func(c *apiclient.Client) (any, error) { return c.BusCreateCtx(ctx, 1) },
			wantErr:   "409 Conflict: bus 1 exists",
		},
		{
			name:      "device add",
			responses: map[string]string{"bus/{id}/add": `{"busId":1,"devId":"3","vid":"0x045e","pid":"0x028e","type":"xbox360"}`},
			call:      func(c *apiclient.Client) (any, error) { return c.DeviceAddCtx(ctx, 1, "xbox360", nil) },
			check: func(t *testing.T, got any) {
				assert.Equal(t, "3", got.(*apitypes.Device).DevID)
			},
		},
		{
			name:     "transport failure",
			failWith: errors.New("dial fail"),
			call:     func(c *apiclient.Client) (any, error) { return c.BusListCtx(ctx) },
			wantErr:  "dial fail",
		},
		{
			name:    "blank response",
			call:    func(c *apiclient.Client) (any, error) { return c.BusListCtx(ctx) },
			wantErr: "empty response",
		},
		{
			name:      "malformed",
			responses: map[string]string{"bus/list": `{"buses":"nope"}`},
			call:      func(c *apiclient.Client) (any, error) { return c.BusListCtx(ctx) },
			wantErr:   "decode:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(tt.responses, tt.failWith)
			got, err := tt.call(c)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestDeviceAddPayload(t *testing.T) {
	var gotPayload any
	var gotParams map[string]string
	c := apiclient.WithTransport(apiclient.NewMockTransport(func(_ string, payload any, params map[string]string) (string, error) {
		gotPayload, gotParams = payload, params
		return `{"busId":7,"devId":"1","type":"dualshock4"}`, nil
	}))
	vid := uint16(0x054C)
	_, err := c.DeviceAddCtx(context.Background(), 7, "dualshock4", &device.CreateOptions{VendorID: &vid})
	require.NoError(t, err)

	b, err := json.Marshal(gotPayload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"dualshock4","idVendor":1356}`, string(b))
	assert.Equal(t, map[string]string{"id": "7"}, gotParams)
}

func TestContextCancellation(t *testing.T) {
	c := apiclient.WithTransport(apiclient.NewTransport("127.0.0.1:9"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.BusListCtx(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamMockUnsupported(t *testing.T) {
	_, _, err := testClient(map[string]string{"bus/{id}/add": `{"busId":1,"devId":"2"}`}, nil).
		AddDeviceAndConnect(context.Background(), 1, "xbox360", nil)
	assert.ErrorContains(t, err, "not supported with mock transport")
}

// fakeViiper serves one request per connection. Stream paths stay open and
// echo an Xbox rumble message for every input report received.
func fakeViiper(t *testing.T) (addr string, requests chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	requests = make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				line, err := r.ReadString('\x00')
				if err != nil {
					return
				}
				line = line[:len(line)-1]
				requests <- line
				if line == "bus/1/3" {
					buf := make([]byte, 20)
					for {
						if _, err := r.Read(buf); err != nil {
							return
						}
						_, _ = conn.Write([]byte{0x10, 0x20})
					}
				}
				_, _ = conn.Write([]byte(`{"busId":1}` + "\n"))
			}()
		}
	}()
	return ln.Addr().String(), requests
}

func TestTransportFraming(t *testing.T) {
	addr, requests := fakeViiper(t)
	c := apiclient.NewWithConfig(addr, &apiclient.Config{DialTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second})

	resp, err := c.BusCreateCtx(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), resp.BusID)
	assert.Equal(t, "bus/create 5", <-requests)

	removed, err := c.DeviceRemoveCtx(context.Background(), 1, "3")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), removed.BusID)
	assert.Equal(t, "bus/1/remove 3", <-requests)
}

func TestStreamRoundTrip(t *testing.T) {
	addr, requests := fakeViiper(t)
	c := apiclient.New(addr)

	s, err := c.OpenStream(context.Background(), 1, "3")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "bus/1/3", <-requests)

	require.NoError(t, s.WriteBinary(&xbox360.InputState{Buttons: xbox360.ButtonA}))
	buf := make([]byte, 2)
	require.NoError(t, s.ReadFeedback(buf))
	assert.Equal(t, []byte{0x10, 0x20}, buf)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.WriteBinary(&xbox360.InputState{}), apiclient.ErrStreamClosed)
	<-s.Done()
}
