package dualshock4

const (
	// TypeName is the VIIPER device type.
	TypeName = "dualshock4"

	InputSize    = 31
	FeedbackSize = 7
)

// Face, shoulder and menu button bits of InputState.Buttons.
const (
	ButtonPS            uint16 = 0x0001
	ButtonTouchpadClick uint16 = 0x0002
	ButtonSquare        uint16 = 0x0010
	ButtonCross         uint16 = 0x0020
	ButtonCircle        uint16 = 0x0040
	ButtonTriangle      uint16 = 0x0080
	ButtonL1            uint16 = 0x0100
	ButtonR1            uint16 = 0x0200
	ButtonL2            uint16 = 0x0400
	ButtonR2            uint16 = 0x0800
	ButtonShare         uint16 = 0x1000
	ButtonOptions       uint16 = 0x2000
	ButtonL3            uint16 = 0x4000
	ButtonR3            uint16 = 0x8000
)

// DPad bits of InputState.DPad.
const (
	DPadUp    = 0x01
	DPadDown  = 0x02
	DPadLeft  = 0x04
	DPadRight = 0x08
)

// Motion travels as fixed point int16: gyro in 1/16 deg/s (about +-2048
// deg/s), accel in 1/512 m/s² (about +-6.5 g).
const (
	GyroCountsPerDps   = 16.0
	AccelCountsPerMS2  = 512.0
	StandardGravityMS2 = 9.81
)

// Accelerometer of a pad lying flat.
const (
	DefaultAccelXRaw int16 = 0
	DefaultAccelYRaw int16 = 0
	DefaultAccelZRaw int16 = -5023
)
