package mapping

import (
	"math"

	"github.com/Alia5/joybridge/device/dualshock4"
	"github.com/Alia5/joybridge/device/xbox360"
	"github.com/Alia5/joybridge/internal/joycon"
)

// Options change the button tables.
type Options struct {
	// SwapAB and SwapXY exchange the face buttons after mapping.
	SwapAB bool `help:"Swap the A/B face buttons" default:"false"`
	SwapXY bool `help:"Swap the X/Y face buttons" default:"false"`
	// GyroAnalogSliders turns ZL/ZR into analog triggers driven by the
	// session's integrated gyro slider values. It follows the session gyro
	// slider option and is not a flag of its own.
	GyroAnalogSliders bool `kong:"-"`
}

// Mapper converts pads to virtual controller states.
type Mapper struct {
	Options Options
}

// gamepad is the layout-independent intermediate state.
type gamepad struct {
	south, east, west, north bool
	lb, rb                   bool
	lt, rt                   uint8
	back, start, guide       bool
	capture                  bool
	lthumb, rthumb           bool
	up, down, left, right    bool
	lx, ly, rx, ry           float64
}

func has(b joycon.Buttons, bs ...joycon.Button) bool { return b.Any(bs...) }

func trigger(pressed bool) uint8 {
	if pressed {
		return 255
	}
	return 0
}

func (m Mapper) gamepad(p Pad) gamepad {
	b := p.Buttons
	var g gamepad
	switch p.Layout {
	case LayoutSideways:
		left := p.Type.IsLeft()
		if left {
			g.south = has(b, joycon.ButtonLeft)
			g.east = has(b, joycon.ButtonDown)
			g.north = has(b, joycon.ButtonRight)
			g.west = has(b, joycon.ButtonUp)
			g.lb = has(b, joycon.ButtonLeftSL)
			g.rb = has(b, joycon.ButtonLeftSR)
			g.lt = trigger(has(b, joycon.ButtonZL))
			g.rt = trigger(has(b, joycon.ButtonL))
		} else {
			g.south = has(b, joycon.ButtonA)
			g.east = has(b, joycon.ButtonX)
			g.north = has(b, joycon.ButtonY)
			g.west = has(b, joycon.ButtonB)
			g.lb = has(b, joycon.ButtonRightSL)
			g.rb = has(b, joycon.ButtonRightSR)
			g.lt = trigger(has(b, joycon.ButtonR))
			g.rt = trigger(has(b, joycon.ButtonZR))
		}
		g.back = has(b, joycon.ButtonMinus, joycon.ButtonHome)
		g.start = has(b, joycon.ButtonPlus, joycon.ButtonCapture)
		g.lthumb = has(b, joycon.ButtonLStick, joycon.ButtonRStick)
		// The stick turns with the controller.
		sign := 1.0
		if !left {
			sign = -1
		}
		g.lx = -sign * p.Left.Y
		g.ly = sign * p.Left.X

	case LayoutN64:
		g.south = has(b, joycon.ButtonA)
		g.east = has(b, joycon.ButtonB)
		g.lb = has(b, joycon.ButtonL)
		g.rb = has(b, joycon.ButtonR)
		g.lt = trigger(has(b, joycon.ButtonZL))
		g.start = has(b, joycon.ButtonPlus)
		g.guide = has(b, joycon.ButtonHome)
		g.back = has(b, joycon.ButtonCapture)
		g.up, g.down = has(b, joycon.ButtonUp), has(b, joycon.ButtonDown)
		g.left, g.right = has(b, joycon.ButtonLeft), has(b, joycon.ButtonRight)
		g.lx, g.ly = p.Left.X, p.Left.Y
		// C buttons act as a digital right stick.
		if has(b, joycon.ButtonY) {
			g.rx--
		}
		if has(b, joycon.ButtonMinus) {
			g.rx++
		}
		if has(b, joycon.ButtonX) {
			g.ry++
		}
		if has(b, joycon.ButtonZR) {
			g.ry--
		}

	default:
		// Positional: Xbox A sits where the Switch B button is.
		g.south = has(b, joycon.ButtonB)
		g.east = has(b, joycon.ButtonA)
		g.west = has(b, joycon.ButtonY)
		g.north = has(b, joycon.ButtonX)
		g.lb = has(b, joycon.ButtonL)
		g.rb = has(b, joycon.ButtonR)
		if p.analogTriggers(m.Options) {
			g.lt, g.rt = p.Sliders[0], p.Sliders[1]
		} else {
			g.lt = trigger(has(b, joycon.ButtonZL))
			g.rt = trigger(has(b, joycon.ButtonZR))
		}
		g.back = has(b, joycon.ButtonMinus)
		g.start = has(b, joycon.ButtonPlus)
		g.guide = has(b, joycon.ButtonHome)
		g.capture = has(b, joycon.ButtonCapture)
		g.lthumb = has(b, joycon.ButtonLStick)
		g.rthumb = has(b, joycon.ButtonRStick)
		g.up, g.down = has(b, joycon.ButtonUp), has(b, joycon.ButtonDown)
		g.left, g.right = has(b, joycon.ButtonLeft), has(b, joycon.ButtonRight)
		g.lx, g.ly = p.Left.X, p.Left.Y
		g.rx, g.ry = p.Right.X, p.Right.Y
	}

	if m.Options.SwapAB {
		g.south, g.east = g.east, g.south
	}
	if m.Options.SwapXY {
		g.west, g.north = g.north, g.west
	}
	return g
}

func axis16(v float64) int16 {
	return int16(math.Round(math.Max(-1, math.Min(1, v)) * math.MaxInt16))
}

func axis8(v float64) int8 {
	return int8(math.Round(math.Max(-1, math.Min(1, v)) * math.MaxInt8))
}

func setBit[T ~uint8 | ~uint16 | ~uint32](dst *T, bit T, on bool) {
	if on {
		*dst |= bit
	}
}

// ToXbox360 maps a pad to an Xbox 360 input state.
func (m Mapper) ToXbox360(p Pad) xbox360.InputState {
	g := m.gamepad(p)
	var s xbox360.InputState
	setBit(&s.Buttons, xbox360.ButtonA, g.south)
	setBit(&s.Buttons, xbox360.ButtonB, g.east)
	setBit(&s.Buttons, xbox360.ButtonX, g.west)
	setBit(&s.Buttons, xbox360.ButtonY, g.north)
	setBit(&s.Buttons, xbox360.ButtonLShoulder, g.lb)
	setBit(&s.Buttons, xbox360.ButtonRShoulder, g.rb)
	setBit(&s.Buttons, xbox360.ButtonBack, g.back)
	setBit(&s.Buttons, xbox360.ButtonStart, g.start)
	setBit(&s.Buttons, xbox360.ButtonGuide, g.guide)
	setBit(&s.Buttons, xbox360.ButtonLThumb, g.lthumb)
	setBit(&s.Buttons, xbox360.ButtonRThumb, g.rthumb)
	setBit(&s.Buttons, xbox360.ButtonDPadUp, g.up)
	setBit(&s.Buttons, xbox360.ButtonDPadDown, g.down)
	setBit(&s.Buttons, xbox360.ButtonDPadLeft, g.left)
	setBit(&s.Buttons, xbox360.ButtonDPadRight, g.right)
	s.LT, s.RT = g.lt, g.rt
	s.LX, s.LY = axis16(g.lx), axis16(g.ly)
	s.RX, s.RY = axis16(g.rx), axis16(g.ry)
	return s
}

// ToDS4 maps a pad to a DualShock 4 input state including motion.
func (m Mapper) ToDS4(p Pad) dualshock4.InputState {
	g := m.gamepad(p)
	var s dualshock4.InputState
	setBit(&s.Buttons, dualshock4.ButtonCross, g.south)
	setBit(&s.Buttons, dualshock4.ButtonCircle, g.east)
	setBit(&s.Buttons, dualshock4.ButtonSquare, g.west)
	setBit(&s.Buttons, dualshock4.ButtonTriangle, g.north)
	setBit(&s.Buttons, dualshock4.ButtonL1, g.lb)
	setBit(&s.Buttons, dualshock4.ButtonR1, g.rb)
	setBit(&s.Buttons, dualshock4.ButtonL2, g.lt > 0)
	setBit(&s.Buttons, dualshock4.ButtonR2, g.rt > 0)
	setBit(&s.Buttons, dualshock4.ButtonShare, g.back)
	setBit(&s.Buttons, dualshock4.ButtonOptions, g.start)
	setBit(&s.Buttons, dualshock4.ButtonPS, g.guide)
	setBit(&s.Buttons, dualshock4.ButtonTouchpadClick, g.capture)
	setBit(&s.Buttons, dualshock4.ButtonL3, g.lthumb)
	setBit(&s.Buttons, dualshock4.ButtonR3, g.rthumb)
	setBit(&s.DPad, dualshock4.DPadUp, g.up)
	setBit(&s.DPad, dualshock4.DPadDown, g.down)
	setBit(&s.DPad, dualshock4.DPadLeft, g.left)
	setBit(&s.DPad, dualshock4.DPadRight, g.right)
	s.L2, s.R2 = g.lt, g.rt
	// DS4 Y axes grow downwards.
	s.LX, s.LY = axis8(g.lx), axis8(-g.ly)
	s.RX, s.RY = axis8(g.rx), axis8(-g.ry)

	s.AccelX, s.AccelY, s.AccelZ = dualshock4.DefaultAccelRaw()
	if n := len(p.Motion); n > 0 {
		accel, gyro := PadMotion(p, p.Motion[n-1])
		s.GyroX = dualshock4.GyroDpsToRaw(gyro[0])
		s.GyroY = dualshock4.GyroDpsToRaw(gyro[1])
		s.GyroZ = dualshock4.GyroDpsToRaw(gyro[2])
		s.AccelX = dualshock4.AccelMS2ToRaw(accel[0] * dualshock4.StandardGravityMS2)
		s.AccelY = dualshock4.AccelMS2ToRaw(accel[1] * dualshock4.StandardGravityMS2)
		s.AccelZ = dualshock4.AccelMS2ToRaw(accel[2] * dualshock4.StandardGravityMS2)
	}
	return s
}
