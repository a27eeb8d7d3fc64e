package joycon

import "strings"

// Button identifies one physical button. The low 22 bits of Buttons follow
// the wire layout of the full report: left byte, right byte, shared byte.
type Button uint8

const (
	ButtonDown Button = iota
	ButtonUp
	ButtonRight
	ButtonLeft
	ButtonLeftSR
	ButtonLeftSL
	ButtonL
	ButtonZL

	ButtonY
	ButtonX
	ButtonB
	ButtonA
	ButtonRightSR
	ButtonRightSL
	ButtonR
	ButtonZR

	ButtonMinus
	ButtonPlus
	ButtonRStick
	ButtonLStick
	ButtonHome
	ButtonCapture

	NumButtons
)

var buttonNames = [NumButtons]string{
	"down", "up", "right", "left", "left-sr", "left-sl", "l", "zl",
	"y", "x", "b", "a", "right-sr", "right-sl", "r", "zr",
	"minus", "plus", "rstick", "lstick", "home", "capture",
}

func (b Button) String() string {
	if b < NumButtons {
		return buttonNames[b]
	}
	return "invalid"
}

// Buttons is a set of pressed buttons.
type Buttons uint32

func (s Buttons) Has(b Button) bool { return s&(1<<b) != 0 }

func (s Buttons) With(b Button, pressed bool) Buttons {
	if pressed {
		return s | 1<<b
	}
	return s &^ (1 << b)
}

// Any reports whether any of bs is pressed.
func (s Buttons) Any(bs ...Button) bool {
	for _, b := range bs {
		if s.Has(b) {
			return true
		}
	}
	return false
}

func (s Buttons) String() string {
	var names []string
	for b := Button(0); b < NumButtons; b++ {
		if s.Has(b) {
			names = append(names, b.String())
		}
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Masks for the buttons owned by each Joy-Con half.
const (
	LeftHalfButtons Buttons = 1<<ButtonDown | 1<<ButtonUp | 1<<ButtonRight | 1<<ButtonLeft |
		1<<ButtonLeftSR | 1<<ButtonLeftSL | 1<<ButtonL | 1<<ButtonZL |
		1<<ButtonMinus | 1<<ButtonLStick | 1<<ButtonCapture
	RightHalfButtons Buttons = 1<<ButtonY | 1<<ButtonX | 1<<ButtonB | 1<<ButtonA |
		1<<ButtonRightSR | 1<<ButtonRightSL | 1<<ButtonR | 1<<ButtonZR |
		1<<ButtonPlus | 1<<ButtonRStick | 1<<ButtonHome
)

func buttonsFromFull(right, shared, left byte) Buttons {
	return Buttons(left) | Buttons(right)<<8 | Buttons(shared&0x3F)<<16
}

// Hat is an 8-way direction, 0 = up, clockwise, HatNeutral = released.
type Hat uint8

const HatNeutral Hat = 8

// Rotate turns h clockwise by steps of 45 degrees.
func (h Hat) Rotate(steps int) Hat {
	if h >= HatNeutral {
		return HatNeutral
	}
	return Hat((int(h) + steps%8 + 8) % 8)
}

// DPad reduces the directional buttons to a hat value.
func (s Buttons) DPad() Hat {
	up, down := s.Has(ButtonUp), s.Has(ButtonDown)
	left, right := s.Has(ButtonLeft), s.Has(ButtonRight)
	switch {
	case up && right:
		return 1
	case down && right:
		return 3
	case down && left:
		return 5
	case up && left:
		return 7
	case up:
		return 0
	case right:
		return 2
	case down:
		return 4
	case left:
		return 6
	}
	return HatNeutral
}

// hatButtons expands a hat to directional buttons.
func hatButtons(h Hat) Buttons {
	var s Buttons
	switch h {
	case 0:
		s = s.With(ButtonUp, true)
	case 1:
		s = s.With(ButtonUp, true).With(ButtonRight, true)
	case 2:
		s = s.With(ButtonRight, true)
	case 3:
		s = s.With(ButtonDown, true).With(ButtonRight, true)
	case 4:
		s = s.With(ButtonDown, true)
	case 5:
		s = s.With(ButtonDown, true).With(ButtonLeft, true)
	case 6:
		s = s.With(ButtonLeft, true)
	case 7:
		s = s.With(ButtonUp, true).With(ButtonLeft, true)
	}
	return s
}
