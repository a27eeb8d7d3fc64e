package joycon

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packTriple(vals ...StickRaw) []byte {
	out := make([]byte, 0, len(vals)*3)
	for _, v := range vals {
		out = append(out,
			byte(v.X),
			byte(v.X>>8)&0x0F|byte(v.Y<<4),
			byte(v.Y>>4),
		)
	}
	return out
}

func TestNormalizeCenterAndExtents(t *testing.T) {
	cal := DefaultStickCal()
	c := defaultAxis.Center

	x, y := cal.Normalize(StickRaw{X: c, Y: c}, false)
	assert.Zero(t, x)
	assert.Zero(t, y)

	x, y = cal.Normalize(StickRaw{X: c + defaultAxis.Max, Y: c}, false)
	assert.InDelta(t, 1.0, x, 1e-9)
	assert.Zero(t, y)

	x, y = cal.Normalize(StickRaw{X: c, Y: c - defaultAxis.Min}, false)
	assert.Zero(t, x)
	assert.InDelta(t, -1.0, y, 1e-9)

	x, y = cal.Normalize(StickRaw{X: 0xFFF, Y: 0xFFF}, false)
	assert.InDelta(t, 1.0, math.Hypot(x, y), 1e-9)
	assert.LessOrEqual(t, math.Abs(x), 1.0)
	assert.LessOrEqual(t, math.Abs(y), 1.0)
}

func TestNormalizeMonotonicOutsideDeadzone(t *testing.T) {
	cal := DefaultStickCal()
	c := defaultAxis.Center
	prev := -1.0
	for d := uint16(0); d <= defaultAxis.Max; d += 8 {
		x, _ := cal.Normalize(StickRaw{X: c + d, Y: c}, false)
		assert.GreaterOrEqual(t, x, prev, "offset %d", d)
		prev = x
	}

	dz := cal.DeadzoneFraction()
	inside := uint16(dz * float64(defaultAxis.Max) * 0.9)
	x, y := cal.Normalize(StickRaw{X: c + inside, Y: c}, false)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestNormalizeSquareAndAntiDeadzone(t *testing.T) {
	cal := DefaultStickCal()
	c := defaultAxis.Center
	diag := uint16(float64(defaultAxis.Max) / math.Sqrt2)

	x, y := cal.Normalize(StickRaw{X: c + diag, Y: c + diag}, true)
	assert.InDelta(t, 1.0, x, 0.01)
	assert.InDelta(t, 1.0, y, 0.01)

	cal.AntiDeadzone = [2]float64{0.2, 0.2}
	x, _ = cal.Normalize(StickRaw{X: c + defaultAxis.Max/4, Y: c}, false)
	assert.Greater(t, x, 0.2)
}

func TestDecodeStickBlock(t *testing.T) {
	maxV := StickRaw{X: 0x600, Y: 0x610}
	center := StickRaw{X: 0x7F0, Y: 0x810}
	minV := StickRaw{X: 0x5A0, Y: 0x5B0}

	x, y, ok := DecodeStickBlock(packTriple(maxV, center, minV), Left)
	require.True(t, ok)
	assert.Equal(t, AxisCal{Max: 0x600, Center: 0x7F0, Min: 0x5A0}, x)
	assert.Equal(t, AxisCal{Max: 0x610, Center: 0x810, Min: 0x5B0}, y)

	x, y, ok = DecodeStickBlock(packTriple(center, minV, maxV), Right)
	require.True(t, ok)
	assert.Equal(t, AxisCal{Max: 0x600, Center: 0x7F0, Min: 0x5A0}, x)
	assert.Equal(t, AxisCal{Max: 0x610, Center: 0x810, Min: 0x5B0}, y)

	erased := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	x, _, ok = DecodeStickBlock(erased, Left)
	assert.False(t, ok)
	assert.Equal(t, defaultAxis, x)

	_, _, ok = DecodeStickBlock([]byte{1, 2}, Left)
	assert.False(t, ok)
}

func TestDecodeStickParams(t *testing.T) {
	b := make([]byte, 18)
	copy(b[3:6], packTriple(StickRaw{X: 0x0AE, Y: 0xE14}))
	dz, rng, ok := DecodeStickParams(b)
	require.True(t, ok)
	assert.Equal(t, uint16(0xAE), dz)
	assert.Equal(t, uint16(0xE14), rng)

	for i := range b {
		b[i] = 0xFF
	}
	dz, rng, ok = DecodeStickParams(b)
	assert.False(t, ok)
	assert.Equal(t, defaultDeadzone, dz)
	assert.Equal(t, defaultRange, rng)
}

func TestDecodeIMUBlockSentinel(t *testing.T) {
	b := make([]byte, 24)
	put := func(off int, v int16) { binary.LittleEndian.PutUint16(b[off:], uint16(v)) }
	for i := range 3 {
		put(i*2, int16(10+i))
		put(6+i*2, 16000)
		put(12+i*2, int16(-5-i))
		put(18+i*2, 13000)
	}
	cal, fallback := DecodeIMUBlock(b)
	assert.False(t, fallback)
	assert.Equal(t, [3]int16{10, 11, 12}, cal.AccelNeutral)
	assert.Equal(t, [3]int16{-5, -6, -7}, cal.GyroNeutral)

	put(6+2, -1)
	put(18, -1)
	cal, fallback = DecodeIMUBlock(b)
	assert.True(t, fallback)
	assert.Equal(t, [3]int16{16000, DefaultAccelSensitivity, 16000}, cal.AccelSensitivity)
	assert.Equal(t, [3]int16{DefaultGyroSensitivity, 13000, 13000}, cal.GyroSensitivity)
}

func TestIMUConversion(t *testing.T) {
	cal := DefaultIMUCal()
	a := cal.Accel([3]int16{DefaultAccelSensitivity, 0, -DefaultAccelSensitivity / 4})
	assert.InDelta(t, 4.0, a[0], 1e-9)
	assert.Zero(t, a[1])
	assert.InDelta(t, -1.0, a[2], 1e-9)

	g := cal.Gyro([3]int16{DefaultGyroSensitivity, 0, 0})
	assert.InDelta(t, 936.0, g[0], 1e-9)
}

func TestOverrideApply(t *testing.T) {
	p := DefaultProfile()
	dz := uint16(0x100)
	o := Override{
		LeftCenter:   &StickRaw{X: 0x7A0, Y: 0x820},
		LeftDeadzone: &dz,
		AntiDeadzone: &[2]float64{0.1, 0.2},
	}
	o.Apply(&p)
	assert.Equal(t, uint16(0x7A0), p.Left.X.Center)
	assert.Equal(t, uint16(0x820), p.Left.Y.Center)
	assert.Equal(t, dz, p.Left.Deadzone)
	assert.Equal(t, defaultDeadzone, p.Right.Deadzone)
	assert.Equal(t, [2]float64{0.1, 0.2}, p.Right.AntiDeadzone)
}
