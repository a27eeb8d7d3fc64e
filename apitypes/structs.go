// Package apitypes holds the JSON bodies exchanged with the VIIPER API.
package apitypes

import "fmt"

// Problem is the RFC 7807 error body the API returns in place of a result.
type Problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (p Problem) Error() string {
	switch {
	case p.Status == 0 && p.Title == "":
		return "unknown error"
	case p.Status == 0:
		return p.Title + ": " + p.Detail
	}
	return fmt.Sprintf("%d %s: %s", p.Status, p.Title, p.Detail)
}

// NotFound reports whether the server rejected a missing bus or device.
func (p Problem) NotFound() bool { return p.Status == 404 }

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

type BusListResponse struct {
	Buses []uint32 `json:"buses"`
}

type BusCreateResponse struct {
	BusID uint32 `json:"busId"`
}

// Device identifies a virtual device attached to a bus. DevID is the
// bus-local port used by the stream endpoint.
type Device struct {
	BusID uint32 `json:"busId"`
	DevID string `json:"devId"`
	VID   string `json:"vid"`
	PID   string `json:"pid"`
	Type  string `json:"type"`
}

type DeviceCreateRequest struct {
	Type      *string `json:"type"`
	VendorID  *uint16 `json:"idVendor,omitempty"`
	ProductID *uint16 `json:"idProduct,omitempty"`
}

type DeviceRemoveResponse struct {
	BusID uint32 `json:"busId"`
	DevID string `json:"devId"`
}
