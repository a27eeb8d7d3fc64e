package joycon

import (
	"encoding/binary"
	"math"
)

// AxisCal holds the calibration of one stick axis. Max and Min are the
// extents above and below Center.
type AxisCal struct {
	Max    uint16 `yaml:"max"`
	Center uint16 `yaml:"center"`
	Min    uint16 `yaml:"min"`
}

// StickCal is the calibration of one analog stick.
type StickCal struct {
	X        AxisCal `yaml:"x"`
	Y        AxisCal `yaml:"y"`
	Deadzone uint16  `yaml:"deadzone"`
	// Range is the stick travel treated as full deflection, in 1/0xFFF units.
	Range uint16 `yaml:"range"`
	// AntiDeadzone is the per-axis output floor applied outside the deadzone.
	AntiDeadzone [2]float64 `yaml:"antiDeadzone"`
}

// IMUCal holds per-axis neutral offsets and sensitivities.
type IMUCal struct {
	AccelNeutral     [3]int16 `yaml:"accelNeutral"`
	AccelSensitivity [3]int16 `yaml:"accelSensitivity"`
	GyroNeutral      [3]int16 `yaml:"gyroNeutral"`
	GyroSensitivity  [3]int16 `yaml:"gyroSensitivity"`
}

// Profile is the full calibration of a controller.
type Profile struct {
	Left  StickCal
	Right StickCal
	IMU   IMUCal
	// UsedDefaultValues is set when any part fell back to defaults.
	UsedDefaultValues bool
}

// Hardware defaults.
const (
	DefaultAccelSensitivity int16 = 16384 // 4 g full scale
	DefaultGyroSensitivity  int16 = 13371 // 2000 dps full scale
	defaultDeadzone         uint16 = 0xAE
	defaultRange            uint16 = 0xE14
	accelScaleG                    = 4.0
	gyroScaleDps                   = 936.0
)

var defaultAxis = AxisCal{Max: 0x580, Center: 0x800, Min: 0x580}

// DefaultStickCal is used when SPI data is missing or unreadable.
func DefaultStickCal() StickCal {
	return StickCal{X: defaultAxis, Y: defaultAxis, Deadzone: defaultDeadzone, Range: defaultRange}
}

func DefaultIMUCal() IMUCal {
	s := DefaultAccelSensitivity
	g := DefaultGyroSensitivity
	return IMUCal{
		AccelSensitivity: [3]int16{s, s, s},
		GyroSensitivity:  [3]int16{g, g, g},
	}
}

func DefaultProfile() Profile {
	return Profile{
		Left:              DefaultStickCal(),
		Right:             DefaultStickCal(),
		IMU:               DefaultIMUCal(),
		UsedDefaultValues: true,
	}
}

// Stick returns the calibration for side.
func (p *Profile) Stick(side Side) *StickCal {
	if side == Left {
		return &p.Left
	}
	return &p.Right
}

// unpackTriple decodes a 9-byte stick block into three x/y pairs.
func unpackTriple(b []byte) [3]StickRaw {
	var out [3]StickRaw
	for i := range out {
		out[i] = unpackStick(b[i*3 : i*3+3])
	}
	return out
}

func isErased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// DecodeStickBlock decodes a 9-byte SPI stick block. The left block stores
// max, center, min; the right block center, min, max. Erased blocks report
// ok == false.
func DecodeStickBlock(b []byte, side Side) (x, y AxisCal, ok bool) {
	if len(b) < 9 || isErased(b[:9]) {
		return defaultAxis, defaultAxis, false
	}
	v := unpackTriple(b)
	var maxV, center, minV StickRaw
	if side == Left {
		maxV, center, minV = v[0], v[1], v[2]
	} else {
		center, minV, maxV = v[0], v[1], v[2]
	}
	x = AxisCal{Max: maxV.X, Center: center.X, Min: minV.X}
	y = AxisCal{Max: maxV.Y, Center: center.Y, Min: minV.Y}
	if x.Max == 0 || x.Min == 0 || y.Max == 0 || y.Min == 0 {
		return defaultAxis, defaultAxis, false
	}
	return x, y, true
}

// DecodeStickParams decodes deadzone and range from a stick parameter block.
func DecodeStickParams(b []byte) (deadzone, rng uint16, ok bool) {
	if len(b) < 6 || isErased(b[3:6]) {
		return defaultDeadzone, defaultRange, false
	}
	p := unpackStick(b[3:6])
	return p.X, p.Y, true
}

// DecodeIMUBlock decodes a 24-byte IMU calibration block. An axis holding
// the -1 sentinel falls back to the hardware default independently; the
// returned flag reports whether any fallback happened.
func DecodeIMUBlock(b []byte) (IMUCal, bool) {
	cal := DefaultIMUCal()
	if len(b) < 24 {
		return cal, true
	}
	fallback := false
	read := func(off int, dst *[3]int16) {
		for i := range 3 {
			v := int16(binary.LittleEndian.Uint16(b[off+i*2:]))
			if v == -1 {
				fallback = true
				continue
			}
			dst[i] = v
		}
	}
	read(0, &cal.AccelNeutral)
	read(6, &cal.AccelSensitivity)
	read(12, &cal.GyroNeutral)
	read(18, &cal.GyroSensitivity)
	return cal, fallback
}

// Accel converts a raw sample to g.
func (c IMUCal) Accel(raw [3]int16) [3]float64 {
	var out [3]float64
	for i := range 3 {
		den := float64(c.AccelSensitivity[i]) - float64(c.AccelNeutral[i])
		if den == 0 {
			den = float64(DefaultAccelSensitivity)
		}
		out[i] = (float64(raw[i]) - float64(c.AccelNeutral[i])) * accelScaleG / den
	}
	return out
}

// Gyro converts a raw sample to degrees per second.
func (c IMUCal) Gyro(raw [3]int16) [3]float64 {
	var out [3]float64
	for i := range 3 {
		den := float64(c.GyroSensitivity[i]) - float64(c.GyroNeutral[i])
		if den == 0 {
			den = float64(DefaultGyroSensitivity)
		}
		out[i] = (float64(raw[i]) - float64(c.GyroNeutral[i])) * gyroScaleDps / den
	}
	return out
}

// DeadzoneFraction is the deadzone relative to the full normalized travel.
func (c StickCal) DeadzoneFraction() float64 {
	span := math.Max(float64(c.X.Max)+float64(c.X.Min), float64(c.Y.Max)+float64(c.Y.Min))
	if span == 0 {
		return 0
	}
	return 2 * float64(c.Deadzone) / span
}

// RangeFraction is the travel treated as full deflection; 0 means 1.
func (c StickCal) RangeFraction() float64 {
	if c.Range == 0 {
		return 1
	}
	return float64(c.Range) / 0xFFF
}

// Normalize maps a raw stick position to [-1, 1] on both axes. Positive Y
// is up.
func (c StickCal) Normalize(raw StickRaw, square bool) (float64, float64) {
	nx := axisNorm(float64(raw.X)-float64(c.X.Center), c.X)
	ny := axisNorm(float64(raw.Y)-float64(c.Y.Center), c.Y)

	mag := math.Hypot(nx, ny)
	dz := c.DeadzoneFraction()
	rng := c.RangeFraction()
	if mag <= dz || rng <= dz {
		return 0, 0
	}
	scaled := math.Min(1, (mag-dz)/(rng-dz))
	nx = nx / mag * scaled
	ny = ny / mag * scaled

	nx = antiDeadzone(nx, c.AntiDeadzone[0])
	ny = antiDeadzone(ny, c.AntiDeadzone[1])

	if square {
		nx, ny = circleToSquare(nx, ny)
	}
	return clampUnit(nx), clampUnit(ny)
}

func axisNorm(delta float64, a AxisCal) float64 {
	ext := a.Max
	if delta < 0 {
		ext = a.Min
	}
	if ext == 0 {
		return 0
	}
	return delta / float64(ext)
}

func antiDeadzone(v, floor float64) float64 {
	if v == 0 || floor <= 0 {
		return v
	}
	return math.Copysign(floor+(1-floor)*math.Abs(v), v)
}

// circleToSquare stretches the circular response so the dominant axis
// carries the full magnitude.
func circleToSquare(x, y float64) (float64, float64) {
	dominant := math.Max(math.Abs(x), math.Abs(y))
	if dominant == 0 {
		return 0, 0
	}
	k := math.Hypot(x, y) / dominant
	return x * k, y * k
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
