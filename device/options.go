// Package device holds the wire types of the virtual controllers created on
// the VIIPER server.
package device

// CreateOptions overrides the USB identity of a new virtual device.
type CreateOptions struct {
	VendorID  *uint16
	ProductID *uint16
}
