package dualshock4

import "math"

// GyroDpsToRaw converts deg/s to the fixed point wire value, saturating.
func GyroDpsToRaw(dps float64) int16 { return clampI16(math.Round(dps * GyroCountsPerDps)) }

// AccelMS2ToRaw converts m/s² to the fixed point wire value, saturating.
func AccelMS2ToRaw(ms2 float64) int16 { return clampI16(math.Round(ms2 * AccelCountsPerMS2)) }

func GyroRawToDps(raw int16) float64 { return float64(raw) / GyroCountsPerDps }
func AccelRawToMS2(raw int16) float64 { return float64(raw) / AccelCountsPerMS2 }

// DefaultAccelRaw is the accelerometer vector of a pad lying flat.
func DefaultAccelRaw() (x, y, z int16) {
	return DefaultAccelXRaw, DefaultAccelYRaw, DefaultAccelZRaw
}

func clampI16(v float64) int16 {
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}
