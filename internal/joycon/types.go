// Package joycon talks to Nintendo Switch Joy-Con, Pro Controller and the
// retro controllers that share their protocol. A Session owns one HID handle,
// runs its receive and send loops, and publishes an immutable Snapshot per
// input report.
package joycon

import (
	"errors"
	"fmt"
	"strings"
)

// VendorNintendo is the USB vendor ID of every supported controller.
const VendorNintendo uint16 = 0x057E

// Product IDs.
const (
	ProductJoyconLeft   uint16 = 0x2006
	ProductJoyconRight  uint16 = 0x2007
	ProductPro          uint16 = 0x2009
	ProductChargingGrip uint16 = 0x200E
	ProductSNES         uint16 = 0x2017
	ProductN64          uint16 = 0x2019
)

var (
	ErrInvalidPacket = errors.New("invalid packet")
	ErrNoData        = errors.New("no data")
	ErrSubcommand    = errors.New("subcommand failed")
	ErrAttach        = errors.New("attach failed")
	ErrNotRunning    = errors.New("session not running")
)

type ControllerType int

const (
	TypeUnknown ControllerType = iota
	TypePro
	TypeJoyconLeft
	TypeJoyconRight
	TypeSNES
	TypeNES
	TypeFamicomI
	TypeFamicomII
	TypeN64
)

var typeNames = map[ControllerType]string{
	TypeUnknown:     "unknown",
	TypePro:         "pro",
	TypeJoyconLeft:  "joycon-left",
	TypeJoyconRight: "joycon-right",
	TypeSNES:        "snes",
	TypeNES:         "nes",
	TypeFamicomI:    "famicom-i",
	TypeFamicomII:   "famicom-ii",
	TypeN64:         "n64",
}

func (t ControllerType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseControllerType is the inverse of String.
func ParseControllerType(s string) (ControllerType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown controller type %q", s)
}

func (t ControllerType) IsJoycon() bool { return t == TypeJoyconLeft || t == TypeJoyconRight }
func (t ControllerType) IsLeft() bool   { return t == TypeJoyconLeft }
func (t ControllerType) IsRight() bool  { return t == TypeJoyconRight }

// HasHomeLED reports whether the controller has a controllable home light.
func (t ControllerType) HasHomeLED() bool { return t == TypePro || t == TypeJoyconRight }

// HasIMU reports whether the controller reports motion data.
func (t ControllerType) HasIMU() bool {
	return t == TypePro || t == TypeJoyconLeft || t == TypeJoyconRight
}

// HasLeftStick reports whether the left stick bytes carry data.
func (t ControllerType) HasLeftStick() bool {
	return t == TypePro || t == TypeJoyconLeft || t == TypeN64
}

// HasRightStick reports whether the right stick bytes carry data.
func (t ControllerType) HasRightStick() bool {
	return t == TypePro || t == TypeJoyconRight
}

// TypeFromProduct derives a controller type from the USB product ID. The
// charging grip carries either Joy-Con; its type is settled by device info.
func TypeFromProduct(pid uint16) ControllerType {
	switch pid {
	case ProductJoyconLeft:
		return TypeJoyconLeft
	case ProductJoyconRight:
		return TypeJoyconRight
	case ProductPro:
		return TypePro
	case ProductSNES:
		return TypeSNES
	case ProductN64:
		return TypeN64
	}
	return TypeUnknown
}

// IsSupportedProduct reports whether pid belongs to a supported controller.
func IsSupportedProduct(pid uint16) bool {
	return pid == ProductChargingGrip || TypeFromProduct(pid) != TypeUnknown
}

// typeFromDeviceInfo maps the controller-type byte of the device info reply.
func typeFromDeviceInfo(b byte) ControllerType {
	switch b {
	case 0x01:
		return TypeJoyconLeft
	case 0x02:
		return TypeJoyconRight
	case 0x03:
		return TypePro
	case 0x07:
		return TypeFamicomI
	case 0x08:
		return TypeFamicomII
	case 0x09, 0x0A:
		return TypeNES
	case 0x0B:
		return TypeSNES
	case 0x0C:
		return TypeN64
	}
	return TypeUnknown
}

// State is the session lifecycle state.
type State int32

const (
	StateNotAttached State = iota
	StateAttachError
	StateDropped
	StateErrored
	StateAttached
	StateIMUDataOk
)

func (s State) String() string {
	switch s {
	case StateNotAttached:
		return "not-attached"
	case StateAttachError:
		return "attach-error"
	case StateDropped:
		return "dropped"
	case StateErrored:
		return "errored"
	case StateAttached:
		return "attached"
	case StateIMUDataOk:
		return "imu-data-ok"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Operational reports whether the session is attached and delivering input.
func (s State) Operational() bool { return s >= StateAttached }

// Side selects one stick of a controller.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}
