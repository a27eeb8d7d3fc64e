package xbox360

import (
	"encoding/binary"
	"io"
)

const (
	// TypeName is the VIIPER device type.
	TypeName = "xbox360"

	InputSize  = 20
	RumbleSize = 2
)

var le = binary.LittleEndian

// InputState is the input message of a virtual Xbox 360 pad. Values follow
// XInput: 16 bit signed sticks with Y up, 8 bit triggers.
type InputState struct {
	Buttons  uint32
	LT, RT   uint8
	LX, LY   int16
	RX, RY   int16
	Reserved [6]byte
}

func (x *InputState) MarshalBinary() ([]byte, error) {
	b := make([]byte, InputSize)
	le.PutUint32(b[0:], x.Buttons)
	b[4], b[5] = x.LT, x.RT
	for i, v := range [4]int16{x.LX, x.LY, x.RX, x.RY} {
		le.PutUint16(b[6+2*i:], uint16(v))
	}
	copy(b[14:], x.Reserved[:])
	return b, nil
}

func (x *InputState) UnmarshalBinary(data []byte) error {
	if len(data) < InputSize {
		return io.ErrUnexpectedEOF
	}
	x.Buttons = le.Uint32(data[0:])
	x.LT, x.RT = data[4], data[5]
	x.LX = int16(le.Uint16(data[6:]))
	x.LY = int16(le.Uint16(data[8:]))
	x.RX = int16(le.Uint16(data[10:]))
	x.RY = int16(le.Uint16(data[12:]))
	copy(x.Reserved[:], data[14:InputSize])
	return nil
}

// XRumbleState is the feedback message: left (large) then right (small)
// motor strength.
type XRumbleState struct {
	LeftMotor  uint8
	RightMotor uint8
}

func (r *XRumbleState) MarshalBinary() ([]byte, error) {
	return []byte{r.LeftMotor, r.RightMotor}, nil
}

func (r *XRumbleState) UnmarshalBinary(data []byte) error {
	if len(data) < RumbleSize {
		return io.ErrUnexpectedEOF
	}
	r.LeftMotor, r.RightMotor = data[0], data[1]
	return nil
}
