package flw

import "math"

// ClampMagnitude bounds the absolute value of every component of v into
// [min, max] in place, keeping each component's sign. A component whose
// magnitude is below min is pushed out to ±min; one above max is pulled in to
// ±max. Zero is treated as positive and -0 as negative, as math.Copysign does.
func ClampMagnitude(v []float64, min, max float64) {
	for i, x := range v {
		if math.Abs(x) < min {
			v[i] = math.Copysign(min, x)
		} else if math.Abs(x) > max {
			v[i] = math.Copysign(max, x)
		}
	}
}

// InMagnitude reports whether every component of v has an absolute value in
// [min, max].
func InMagnitude(v []float64, min, max float64) bool {
	for _, x := range v {
		if a := math.Abs(x); a < min || a > max {
			return false
		}
	}
	return true
}

func copyVec(v []float64) []float64 {
	return append([]float64(nil), v...)
}
