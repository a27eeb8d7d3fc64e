package ahrs_test

import (
	"math"
	"testing"

	"github.com/Alia5/joybridge/internal/ahrs"
	"github.com/stretchr/testify/assert"
)

func TestMadgwickStaysNormalized(t *testing.T) {
	cases := []struct {
		name       string
		gx, gy, gz float64
		ax, ay, az float64
	}{
		{name: "at rest", az: 1},
		{name: "spinning yaw", gz: 3, az: 1},
		{name: "tilted", gx: 0.5, gy: -0.2, ax: 0.3, ay: 0.1, az: 0.9},
		{name: "free fall", gx: 1, gy: 1, gz: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := ahrs.NewMadgwick(0.005, 0.05)
			for i := 0; i < 500; i++ {
				m.UpdateIMU(tc.gx, tc.gy, tc.gz, tc.ax, tc.ay, tc.az)
			}
			assert.InDelta(t, 1.0, m.Quaternion().Norm(), 1e-9)
		})
	}
}

func TestMadgwickIntegratesYaw(t *testing.T) {
	m := ahrs.NewMadgwick(0.01, 0)
	// 90 deg/s for one second with no correction.
	for i := 0; i < 100; i++ {
		m.UpdateIMU(0, 0, math.Pi/2, 0, 0, 1)
	}
	assert.InDelta(t, math.Pi/2, m.Angles().Yaw, 0.01)
	assert.InDelta(t, 0, m.Angles().Pitch, 1e-6)
}

func TestMadgwickDoubleBuffersAngles(t *testing.T) {
	m := ahrs.NewMadgwick(0.01, 0)
	m.UpdateIMU(0, 0, 1, 0, 0, 1)
	first := m.Angles()
	m.UpdateIMU(0, 0, 1, 0, 0, 1)
	assert.Equal(t, first, m.PreviousAngles())
	assert.Greater(t, m.Angles().Yaw, first.Yaw)
}

func TestMadgwickConvergesToGravity(t *testing.T) {
	m := ahrs.NewMadgwick(0.01, 0.5)
	// Device rolled 90 degrees: gravity along +y.
	for i := 0; i < 2000; i++ {
		m.UpdateIMU(0, 0, 0, 0, 1, 0)
	}
	assert.InDelta(t, math.Pi/2, math.Abs(m.Angles().Roll), 0.05)
}

func TestSetSamplePeriodIgnoresNonPositive(t *testing.T) {
	m := ahrs.NewMadgwick(0.005, 0.1)
	m.SetSamplePeriod(0)
	assert.Equal(t, 0.005, m.SamplePeriod)
	m.SetSamplePeriod(0.015)
	assert.Equal(t, 0.015, m.SamplePeriod)
	m.Reset()
	assert.Equal(t, ahrs.Identity, m.Quaternion())
}

func TestEulerIdentity(t *testing.T) {
	assert.Equal(t, ahrs.Angles{}, ahrs.Identity.Euler())
}
