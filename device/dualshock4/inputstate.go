package dualshock4

import (
	"encoding/binary"
	"io"
)

var le = binary.LittleEndian

// InputState is the input message of a virtual DualShock 4. Sticks are
// signed with Y down, motion uses the fixed point scales in const.go.
type InputState struct {
	LX, LY  int8
	RX, RY  int8
	Buttons uint16
	DPad    uint8
	L2, R2  uint8

	Touch1X, Touch1Y uint16
	Touch1Active     bool
	Touch2X, Touch2Y uint16
	Touch2Active     bool

	GyroX, GyroY, GyroZ    int16
	AccelX, AccelY, AccelZ int16
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (s *InputState) MarshalBinary() ([]byte, error) {
	b := make([]byte, InputSize)
	b[0], b[1], b[2], b[3] = uint8(s.LX), uint8(s.LY), uint8(s.RX), uint8(s.RY)
	le.PutUint16(b[4:], s.Buttons)
	b[6], b[7], b[8] = s.DPad, s.L2, s.R2
	le.PutUint16(b[9:], s.Touch1X)
	le.PutUint16(b[11:], s.Touch1Y)
	b[13] = boolByte(s.Touch1Active)
	le.PutUint16(b[14:], s.Touch2X)
	le.PutUint16(b[16:], s.Touch2Y)
	b[18] = boolByte(s.Touch2Active)
	for i, v := range [6]int16{s.GyroX, s.GyroY, s.GyroZ, s.AccelX, s.AccelY, s.AccelZ} {
		le.PutUint16(b[19+2*i:], uint16(v))
	}
	return b, nil
}

func (s *InputState) UnmarshalBinary(data []byte) error {
	if len(data) < InputSize {
		return io.ErrUnexpectedEOF
	}
	s.LX, s.LY, s.RX, s.RY = int8(data[0]), int8(data[1]), int8(data[2]), int8(data[3])
	s.Buttons = le.Uint16(data[4:])
	s.DPad, s.L2, s.R2 = data[6], data[7], data[8]
	s.Touch1X, s.Touch1Y = le.Uint16(data[9:]), le.Uint16(data[11:])
	s.Touch1Active = data[13] != 0
	s.Touch2X, s.Touch2Y = le.Uint16(data[14:]), le.Uint16(data[16:])
	s.Touch2Active = data[18] != 0
	motion := [6]*int16{&s.GyroX, &s.GyroY, &s.GyroZ, &s.AccelX, &s.AccelY, &s.AccelZ}
	for i, p := range motion {
		*p = int16(le.Uint16(data[19+2*i:]))
	}
	return nil
}

// OutputState is the feedback message: motors then lightbar colour and
// flash timing in 2.5 ms units.
type OutputState struct {
	RumbleSmall uint8
	RumbleLarge uint8
	LedRed      uint8
	LedGreen    uint8
	LedBlue     uint8
	FlashOn     uint8
	FlashOff    uint8
}

func (f *OutputState) MarshalBinary() ([]byte, error) {
	return []byte{f.RumbleSmall, f.RumbleLarge, f.LedRed, f.LedGreen, f.LedBlue, f.FlashOn, f.FlashOff}, nil
}

func (f *OutputState) UnmarshalBinary(data []byte) error {
	if len(data) < FeedbackSize {
		return io.ErrUnexpectedEOF
	}
	f.RumbleSmall, f.RumbleLarge = data[0], data[1]
	f.LedRed, f.LedGreen, f.LedBlue = data[2], data[3], data[4]
	f.FlashOn, f.FlashOff = data[5], data[6]
	return nil
}
