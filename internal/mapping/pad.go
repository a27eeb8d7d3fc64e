// Package mapping turns controller snapshots into virtual gamepad states.
// All functions are pure; deduplication happens in the sink.
package mapping

import (
	"github.com/Alia5/joybridge/internal/joycon"
)

// Layout selects the button table.
type Layout int

const (
	// LayoutStandard covers the Pro Controller, joined Joy-Cons, vertical
	// solo Joy-Cons and the SNES/NES/Famicom clones.
	LayoutStandard Layout = iota
	// LayoutSideways is a single Joy-Con held horizontally.
	LayoutSideways
	LayoutN64
)

// Pad is the merged logical controller behind one virtual output.
type Pad struct {
	Type   joycon.ControllerType
	Layout Layout
	Paired bool

	Buttons     joycon.Buttons
	Left, Right joycon.Stick
	Sliders     [2]uint8

	// Motion comes from the half that owns the gyro used for aiming.
	Motion   []joycon.MotionSample
	Battery  uint8
	Charging bool
}

func layoutFor(t joycon.ControllerType, soloVertical bool) Layout {
	switch {
	case t == joycon.TypeN64:
		return LayoutN64
	case t.IsJoycon() && !soloVertical:
		return LayoutSideways
	}
	return LayoutStandard
}

// Single builds the pad of an unpaired controller.
func Single(t joycon.ControllerType, snap *joycon.Snapshot, soloVertical bool) Pad {
	p := Pad{Type: t, Layout: layoutFor(t, soloVertical)}
	if snap == nil {
		return p
	}
	p.Buttons = snap.Buttons
	p.Sliders = snap.Sliders
	p.Motion = snap.Motion
	p.Battery = snap.Battery
	p.Charging = snap.Charging
	switch {
	case t.IsRight() && soloVertical:
		p.Right = snap.Right
	case t.IsRight():
		p.Left = snap.Right
	default:
		p.Left, p.Right = snap.Left, snap.Right
	}
	return p
}

// Joined merges the two halves of a pair. Either snapshot may be nil while
// a half has not reported yet.
func Joined(left, right *joycon.Snapshot) Pad {
	p := Pad{Type: joycon.TypeJoyconLeft, Layout: LayoutStandard, Paired: true, Battery: 4}
	if left != nil {
		p.Buttons |= left.Buttons & joycon.LeftHalfButtons
		p.Left = left.Left
		p.Sliders[0] = left.Sliders[0]
		p.Motion = left.Motion
		p.Battery = left.Battery
		p.Charging = left.Charging
	}
	if right != nil {
		p.Buttons |= right.Buttons & joycon.RightHalfButtons
		p.Right = right.Right
		p.Sliders[1] = right.Sliders[1]
		if len(right.Motion) > 0 {
			p.Motion = right.Motion
		}
		if left == nil || right.Battery < p.Battery {
			p.Battery = right.Battery
		}
		p.Charging = p.Charging || right.Charging
	}
	return p
}

// analogTriggers reports whether triggers carry gyro slider values.
func (p Pad) analogTriggers(opts Options) bool {
	return opts.GyroAnalogSliders && (p.Paired || p.Type == joycon.TypePro)
}
