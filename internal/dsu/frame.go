package dsu

import (
	"math"

	"github.com/Alia5/joybridge/device/dualshock4"
)

// axisByte converts a DS4 axis to the unsigned DSU range. Y grows upwards
// on DSU and downwards on DS4.
func axisByte(v int8, invert bool) uint8 {
	f := float64(v)
	if invert {
		f = -f
	}
	return uint8(max(0, min(255, math.Round(128+f))))
}

// FromDS4 builds a frame from a mapped DualShock 4 state.
func FromDS4(info SlotInfo, s dualshock4.InputState, motion []Motion) Frame {
	f := Frame{Info: info, L2: s.L2, R2: s.R2, Motion: motion}
	b := s.Buttons
	bit := func(dst *uint8, set uint8, on bool) {
		if on {
			*dst |= set
		}
	}
	bit(&f.Buttons1, Btn1Share, b&dualshock4.ButtonShare != 0)
	bit(&f.Buttons1, Btn1L3, b&dualshock4.ButtonL3 != 0)
	bit(&f.Buttons1, Btn1R3, b&dualshock4.ButtonR3 != 0)
	bit(&f.Buttons1, Btn1Options, b&dualshock4.ButtonOptions != 0)
	bit(&f.Buttons1, Btn1Up, s.DPad&dualshock4.DPadUp != 0)
	bit(&f.Buttons1, Btn1Right, s.DPad&dualshock4.DPadRight != 0)
	bit(&f.Buttons1, Btn1Down, s.DPad&dualshock4.DPadDown != 0)
	bit(&f.Buttons1, Btn1Left, s.DPad&dualshock4.DPadLeft != 0)

	bit(&f.Buttons2, Btn2L2, b&dualshock4.ButtonL2 != 0)
	bit(&f.Buttons2, Btn2R2, b&dualshock4.ButtonR2 != 0)
	bit(&f.Buttons2, Btn2L1, b&dualshock4.ButtonL1 != 0)
	bit(&f.Buttons2, Btn2R1, b&dualshock4.ButtonR1 != 0)
	bit(&f.Buttons2, Btn2Triangle, b&dualshock4.ButtonTriangle != 0)
	bit(&f.Buttons2, Btn2Circle, b&dualshock4.ButtonCircle != 0)
	bit(&f.Buttons2, Btn2Cross, b&dualshock4.ButtonCross != 0)
	bit(&f.Buttons2, Btn2Square, b&dualshock4.ButtonSquare != 0)

	f.PS = b&dualshock4.ButtonPS != 0
	f.Touch = b&dualshock4.ButtonTouchpadClick != 0
	f.LX, f.LY = axisByte(s.LX, false), axisByte(s.LY, true)
	f.RX, f.RY = axisByte(s.RX, false), axisByte(s.RY, true)
	return f
}
