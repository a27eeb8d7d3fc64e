// Package ahrs implements the Madgwick gradient-descent orientation filter
// for 6-axis IMUs (gyroscope + accelerometer, no magnetometer).
package ahrs

import "math"

// Quaternion is a rotation in w, x, y, z order.
type Quaternion [4]float64

// Identity is the zero rotation.
var Identity = Quaternion{1, 0, 0, 0}

// Angles are Euler angles in radians.
type Angles struct {
	Pitch, Yaw, Roll float64
}

// Madgwick holds the filter state. It is not safe for concurrent use; each
// controller session owns one.
type Madgwick struct {
	// Beta is the filter gain. Larger values trust the accelerometer more.
	Beta float64
	// SamplePeriod is the integration step in seconds.
	SamplePeriod float64

	q    Quaternion
	cur  Angles
	prev Angles
}

func NewMadgwick(samplePeriod, beta float64) *Madgwick {
	return &Madgwick{Beta: beta, SamplePeriod: samplePeriod, q: Identity}
}

func (m *Madgwick) Quaternion() Quaternion { return m.q }

func (m *Madgwick) SetSamplePeriod(seconds float64) {
	if seconds > 0 {
		m.SamplePeriod = seconds
	}
}

// Reset returns the filter to the identity orientation.
func (m *Madgwick) Reset() {
	m.q = Identity
	m.cur = Angles{}
	m.prev = Angles{}
}

// UpdateIMU integrates one sample. Gyro is in rad/s; accel may use any unit
// since it is normalized. A zero accelerometer vector skips the correction
// step.
func (m *Madgwick) UpdateIMU(gx, gy, gz, ax, ay, az float64) {
	q1, q2, q3, q4 := m.q[0], m.q[1], m.q[2], m.q[3]

	qDot1 := 0.5 * (-q2*gx - q3*gy - q4*gz)
	qDot2 := 0.5 * (q1*gx + q3*gz - q4*gy)
	qDot3 := 0.5 * (q1*gy - q2*gz + q4*gx)
	qDot4 := 0.5 * (q1*gz + q2*gy - q3*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		ax /= norm
		ay /= norm
		az /= norm

		_2q1 := 2 * q1
		_2q2 := 2 * q2
		_2q3 := 2 * q3
		_2q4 := 2 * q4
		_4q1 := 4 * q1
		_4q2 := 4 * q2
		_4q3 := 4 * q3
		_8q2 := 8 * q2
		_8q3 := 8 * q3
		q1q1 := q1 * q1
		q2q2 := q2 * q2
		q3q3 := q3 * q3
		q4q4 := q4 * q4

		s1 := _4q1*q3q3 + _2q3*ax + _4q1*q2q2 - _2q2*ay
		s2 := _4q2*q4q4 - _2q4*ax + 4*q1q1*q2 - _2q1*ay - _4q2 + _8q2*q2q2 + _8q2*q3q3 + _4q2*az
		s3 := 4*q1q1*q3 + _2q1*ax + _4q3*q4q4 - _2q4*ay - _4q3 + _8q3*q2q2 + _8q3*q3q3 + _4q3*az
		s4 := 4*q2q2*q4 - _2q2*ax + 4*q3q3*q4 - _2q3*ay

		if n := math.Sqrt(s1*s1 + s2*s2 + s3*s3 + s4*s4); n > 0 {
			s1 /= n
			s2 /= n
			s3 /= n
			s4 /= n
			qDot1 -= m.Beta * s1
			qDot2 -= m.Beta * s2
			qDot3 -= m.Beta * s3
			qDot4 -= m.Beta * s4
		}
	}

	q1 += qDot1 * m.SamplePeriod
	q2 += qDot2 * m.SamplePeriod
	q3 += qDot3 * m.SamplePeriod
	q4 += qDot4 * m.SamplePeriod

	norm := math.Sqrt(q1*q1 + q2*q2 + q3*q3 + q4*q4)
	if norm == 0 || math.IsNaN(norm) {
		m.q = Identity
	} else {
		m.q = Quaternion{q1 / norm, q2 / norm, q3 / norm, q4 / norm}
	}

	m.prev = m.cur
	m.cur = m.q.Euler()
}

// Angles returns the orientation after the last update.
func (m *Madgwick) Angles() Angles { return m.cur }

// PreviousAngles returns the orientation before the last update.
func (m *Madgwick) PreviousAngles() Angles { return m.prev }

// Euler converts q to pitch (asin), yaw and roll (atan2).
func (q Quaternion) Euler() Angles {
	w, x, y, z := q[0], q[1], q[2], q[3]
	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	return Angles{
		Pitch: math.Asin(sinp),
		Yaw:   math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
		Roll:  math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
	}
}

// Norm is the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
}
