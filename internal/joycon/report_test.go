package joycon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	th "github.com/Alia5/joybridge/internal/testing"
)

func TestDecodeReportNeutralFull(t *testing.T) {
	buf := th.FullReport(7, [3]byte{}, 0x800, 0x800, 0x800, 0x800, [3][6]int16{})

	rep, err := DecodeReport(buf, TypePro)
	require.NoError(t, err)
	assert.Equal(t, ReportFull, rep.ID)
	assert.Equal(t, byte(7), rep.Timer)
	assert.Equal(t, uint8(4), rep.Battery)
	assert.False(t, rep.Charging)
	assert.Equal(t, Buttons(0), rep.Buttons)
	assert.Equal(t, HatNeutral, rep.Buttons.DPad())
	assert.False(t, rep.HasIMU)

	cal := DefaultStickCal()
	x, y := cal.Normalize(rep.Left, false)
	assert.Zero(t, x)
	assert.Zero(t, y)
	x, y = cal.Normalize(rep.Right, true)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestDecodeReportFullButtonsAndIMU(t *testing.T) {
	imu := [3][6]int16{
		{100, -200, 4096, 1, 2, 3},
		{0, 0, 0, 0, 0, 0},
		{-1, -1, -1, -1, -1, -1},
	}
	// right: A (0x08), shared: Home (0x10), left: ZL (0x80)
	buf := th.FullReport(0, [3]byte{0x08, 0x10, 0x80}, 0x123, 0xABC, 0xFFF, 0x000, imu)

	rep, err := DecodeReport(buf, TypePro)
	require.NoError(t, err)
	assert.True(t, rep.Buttons.Has(ButtonA))
	assert.True(t, rep.Buttons.Has(ButtonHome))
	assert.True(t, rep.Buttons.Has(ButtonZL))
	assert.False(t, rep.Buttons.Has(ButtonB))
	assert.Equal(t, StickRaw{X: 0x123, Y: 0xABC}, rep.Left)
	assert.Equal(t, StickRaw{X: 0xFFF, Y: 0x000}, rep.Right)
	require.True(t, rep.HasIMU)
	assert.Equal(t, [3]int16{100, -200, 4096}, rep.IMU[0].Accel)
	assert.Equal(t, [3]int16{1, 2, 3}, rep.IMU[0].Gyro)
	assert.Equal(t, [3]int16{-1, -1, -1}, rep.IMU[2].Gyro)
}

func TestDecodeReportErrors(t *testing.T) {
	_, err := DecodeReport(nil, TypePro)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = DecodeReport([]byte{0x21, 0x00}, TypePro)
	assert.ErrorIs(t, err, ErrInvalidPacket)

	rep, err := DecodeReport([]byte{0x30, 0x01}, TypeJoyconLeft)
	require.NoError(t, err)
	assert.Equal(t, StickRaw{}, rep.Left)
	assert.False(t, rep.HasIMU)
}

func TestDecodeReportSimple(t *testing.T) {
	tests := []struct {
		name  string
		ctype ControllerType
		buf   []byte
		check func(t *testing.T, r Report)
	}{
		{
			name:  "pro face buttons and hat",
			ctype: TypePro,
			buf:   []byte{0x3F, 0x03, 0x00, 0x02, 0, 0x80, 0, 0x80, 0, 0x80, 0, 0x80},
			check: func(t *testing.T, r Report) {
				assert.True(t, r.Buttons.Has(ButtonB))
				assert.True(t, r.Buttons.Has(ButtonA))
				assert.True(t, r.Buttons.Has(ButtonRight))
				assert.Equal(t, Hat(2), r.Buttons.DPad())
			},
		},
		{
			name:  "left joycon neutral hat centers stick",
			ctype: TypeJoyconLeft,
			buf:   []byte{0x3F, 0x00, 0x00, 0x08},
			check: func(t *testing.T, r Report) {
				assert.Equal(t, Buttons(0), r.Buttons)
				assert.InDelta(t, 0x800, int(r.Left.X), 1)
				assert.InDelta(t, 0x800, int(r.Left.Y), 1)
			},
		},
		{
			name:  "right joycon face",
			ctype: TypeJoyconRight,
			buf:   []byte{0x3F, 0x01, 0x00, 0x08},
			check: func(t *testing.T, r Report) {
				assert.True(t, r.Buttons.Has(ButtonA))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := DecodeReport(tt.buf, tt.ctype)
			require.NoError(t, err)
			assert.Equal(t, ReportSimpleHID, r.ID)
			tt.check(t, r)
		})
	}
}

func TestHatRotate(t *testing.T) {
	assert.Equal(t, Hat(2), Hat(0).Rotate(2))
	assert.Equal(t, Hat(6), Hat(0).Rotate(-2))
	assert.Equal(t, Hat(1), Hat(3).Rotate(6))
	assert.Equal(t, HatNeutral, HatNeutral.Rotate(3))
	for h := Hat(0); h < HatNeutral; h++ {
		assert.Equal(t, h, hatButtons(h).DPad())
	}
}
