package transform

import "math"

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi
)

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * degToRad }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * radToDeg }

// NormalizeDegrees maps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	// math.Mod of a tiny negative value can round back up to 360.
	if deg >= 360.0 {
		deg = 0
	}
	return deg
}

// NormalizeRadians maps an angle into [0, 2π).
func NormalizeRadians(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	if rad >= 2*math.Pi {
		rad = 0
	}
	return rad
}

// ForwardDelta returns the eastward angular distance from a to b in degrees, in [0, 360).
func ForwardDelta(a, b float64) float64 {
	return NormalizeDegrees(b - a)
}

// SignedDelta returns the shortest signed angular distance from a to b in degrees,
// in (-180, 180]. Positive means b lies east of a.
func SignedDelta(a, b float64) float64 {
	d := ForwardDelta(a, b)
	if d > 180.0 {
		d -= 360.0
	}
	return d
}
