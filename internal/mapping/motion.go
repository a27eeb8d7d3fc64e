package mapping

import "github.com/Alia5/joybridge/internal/joycon"

// Motion converts a sample from the controller's sensor frame to the
// frame shared by DS4 and cemuhook clients: accel in g as (x, y, z) and
// gyro in deg/s as (pitch, yaw, roll).
func Motion(s joycon.MotionSample) (accel, gyro [3]float64) {
	a, g := s.Accel, s.Gyro
	accel = [3]float64{-a[1], a[2], a[0]}
	gyro = [3]float64{g[1], g[2], g[0]}
	return accel, gyro
}

// Sideways rotates a Joy-Con sample held horizontally so pitch and roll
// follow the grip.
func Sideways(s joycon.MotionSample, left bool) joycon.MotionSample {
	a, g := s.Accel, s.Gyro
	if left {
		a[0], a[1] = -a[0], -a[1]
		g[0] = -g[0]
	} else {
		g[1] = -g[1]
	}
	a[0], a[1] = a[1], -a[0]
	g[0], g[1] = g[1], g[0]
	s.Accel, s.Gyro = a, g
	return s
}

// PadMotion applies the grip rotation of p before converting.
func PadMotion(p Pad, s joycon.MotionSample) (accel, gyro [3]float64) {
	if p.Layout == LayoutSideways {
		s = Sideways(s, p.Type.IsLeft())
	}
	return Motion(s)
}
