package joycon

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Input report IDs.
const (
	ReportSubcommandReply byte = 0x21
	ReportFull            byte = 0x30
	ReportSimpleHID       byte = 0x3F
	ReportUSBReply        byte = 0x81
)

const (
	fullReportLen   = 49
	simpleReportLen = 12
	imuOffset       = 13
	imuSampleLen    = 12
	// IMUSamples is the number of IMU samples embedded in a full report.
	IMUSamples = 3
)

// StickRaw is an unpacked 12-bit stick position; 0x800 is nominal center and
// larger Y is up.
type StickRaw struct {
	X, Y uint16
}

// IMURaw is one unconverted IMU sample.
type IMURaw struct {
	Accel [3]int16
	Gyro  [3]int16
}

// Report is a decoded input report.
type Report struct {
	ID       byte
	Timer    byte
	Battery  uint8 // 0 (empty) .. 4 (full)
	Charging bool
	Buttons  Buttons
	Left     StickRaw
	Right    StickRaw
	IMU      [IMUSamples]IMURaw
	// HasIMU is set when any IMU byte is non-zero.
	HasIMU bool
}

// DecodeReport parses one input report for a controller of type t. Short
// reads are zero-padded; unknown report IDs return ErrInvalidPacket.
func DecodeReport(buf []byte, t ControllerType) (Report, error) {
	if len(buf) == 0 {
		return Report{}, ErrNoData
	}
	switch buf[0] {
	case ReportFull:
		return decodeFull(pad(buf, fullReportLen)), nil
	case ReportSimpleHID:
		return decodeSimple(pad(buf, simpleReportLen), t), nil
	}
	return Report{}, fmt.Errorf("%w: report id 0x%02x", ErrInvalidPacket, buf[0])
}

func pad(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}

func decodeFull(b []byte) Report {
	r := Report{
		ID:       b[0],
		Timer:    b[1],
		Battery:  (b[2] >> 5) & 0x07,
		Charging: b[2]&0x10 != 0,
		Buttons:  buttonsFromFull(b[3], b[4], b[5]),
		Left:     unpackStick(b[6:9]),
		Right:    unpackStick(b[9:12]),
	}
	if r.Battery > 4 {
		r.Battery = 4
	}
	for i := range IMUSamples {
		off := imuOffset + i*imuSampleLen
		for axis := range 3 {
			r.IMU[i].Accel[axis] = int16(binary.LittleEndian.Uint16(b[off+axis*2:]))
			r.IMU[i].Gyro[axis] = int16(binary.LittleEndian.Uint16(b[off+6+axis*2:]))
		}
	}
	for _, v := range b[imuOffset : imuOffset+IMUSamples*imuSampleLen] {
		if v != 0 {
			r.HasIMU = true
			break
		}
	}
	return r
}

// unpackStick splits three bytes into two 12-bit values.
func unpackStick(b []byte) StickRaw {
	return StickRaw{
		X: uint16(b[0]) | uint16(b[1]&0x0F)<<8,
		Y: uint16(b[1])>>4 | uint16(b[2])<<4,
	}
}

// Button bit order of the simple HID report, byte 1.
var (
	simpleLeftFace  = [6]Button{ButtonLeft, ButtonDown, ButtonUp, ButtonRight, ButtonLeftSL, ButtonLeftSR}
	simpleRightFace = [6]Button{ButtonA, ButtonX, ButtonB, ButtonY, ButtonRightSL, ButtonRightSR}
	simpleProFace   = [8]Button{ButtonB, ButtonA, ButtonY, ButtonX, ButtonL, ButtonR, ButtonZL, ButtonZR}
)

func decodeSimple(b []byte, t ControllerType) Report {
	r := Report{ID: b[0], Battery: 4}
	var s Buttons
	hat := Hat(b[3] & 0x0F)

	switch t {
	case TypeJoyconLeft, TypeJoyconRight:
		face := simpleLeftFace
		if t == TypeJoyconRight {
			face = simpleRightFace
		}
		for i, btn := range face {
			s = s.With(btn, b[1]&(1<<i) != 0)
		}
		s |= simpleShared(b[2], t)
		// The hat is reported for the sideways grip; turn it back into a
		// vertical stick position.
		stick := hatStick(hat.Rotate(hatRotation(t)))
		if t == TypeJoyconLeft {
			r.Left = stick
			r.Right = centerStick
		} else {
			r.Right = stick
			r.Left = centerStick
		}
	default:
		for i, btn := range simpleProFace {
			s = s.With(btn, b[1]&(1<<i) != 0)
		}
		s |= simpleShared(b[2], t)
		s |= hatButtons(hat)
		r.Left = StickRaw{X: rescale16(b[4:6]), Y: invert12(rescale16(b[6:8]))}
		r.Right = StickRaw{X: rescale16(b[8:10]), Y: invert12(rescale16(b[10:12]))}
	}
	r.Buttons = s
	return r
}

func simpleShared(b byte, t ControllerType) Buttons {
	var s Buttons
	s = s.With(ButtonMinus, b&0x01 != 0)
	s = s.With(ButtonPlus, b&0x02 != 0)
	s = s.With(ButtonLStick, b&0x04 != 0)
	s = s.With(ButtonRStick, b&0x08 != 0)
	s = s.With(ButtonHome, b&0x10 != 0)
	s = s.With(ButtonCapture, b&0x20 != 0)
	switch t {
	case TypeJoyconLeft:
		s = s.With(ButtonL, b&0x40 != 0).With(ButtonZL, b&0x80 != 0)
	case TypeJoyconRight:
		s = s.With(ButtonR, b&0x40 != 0).With(ButtonZR, b&0x80 != 0)
	}
	return s
}

// hatRotation converts sideways hat directions to vertical ones.
func hatRotation(t ControllerType) int {
	if t == TypeJoyconLeft {
		return 2
	}
	return 6
}

var centerStick = StickRaw{X: 0x800, Y: 0x800}

// hatStick places a simulated stick at full deflection in the hat direction,
// built at 16-bit precision and rescaled to 12 bits.
func hatStick(h Hat) StickRaw {
	if h >= HatNeutral {
		return centerStick
	}
	angle := float64(h) * math.Pi / 4
	x := math.Sin(angle)
	y := math.Cos(angle)
	return StickRaw{X: to16(x) >> 4, Y: to16(y) >> 4}
}

func to16(v float64) uint16 {
	return uint16(math.Round(0x8000 + v*0x7FFF))
}

func rescale16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b) >> 4
}

func invert12(v uint16) uint16 {
	return 0xFFF - v
}
