package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard astronomical algorithm valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// JulianEphemerisDate returns the Julian Ephemeris Day (TT) for a UTC instant,
// i.e. JulianDate(t) + ΔT.
func JulianEphemerisDate(t time.Time) float64 {
	return JulianDate(t) + DeltaT(t)/86400.0
}

// DeltaT returns TT − UT in seconds using the Espenak–Meeus polynomial fits.
// Valid for 1900 through 2150; outside that span the nearest fit is extrapolated.
func DeltaT(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year()) + (float64(t.Month())-0.5)/12.0

	switch {
	case y < 1920:
		u := y - 1900
		return -2.79 + 1.494119*u - 0.0598939*u*u + 0.0061966*u*u*u - 0.000197*u*u*u*u
	case y < 1941:
		u := y - 1920
		return 21.20 + 0.84493*u - 0.076100*u*u + 0.0020936*u*u*u
	case y < 1961:
		u := y - 1950
		return 29.07 + 0.407*u - u*u/233 + u*u*u/2547
	case y < 1986:
		u := y - 1975
		return 45.45 + 1.067*u - u*u/260 - u*u*u/718
	case y < 2005:
		u := y - 2000
		return 63.86 + 0.3345*u - 0.060374*u*u + 0.0017275*u*u*u + 0.000651814*u*u*u*u + 0.00002373599*u*u*u*u*u
	case y < 2050:
		u := y - 2000
		return 62.92 + 0.32217*u + 0.005589*u*u
	default:
		u := (y - 1820) / 100
		return -20 + 32*u*u - 0.5628*(2150-y)
	}
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a given UTC time.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
// UT1 is taken as UTC; the difference is below a second.
func GMST(t time.Time) float64 {
	jd := JulianDate(t)
	tUT1 := (jd - j2000) / 36525.0

	// 876600h = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// LocalSiderealTime returns the apparent local sidereal time in radians, in [0, 2π).
// eqEquinoxes is the equation of the equinoxes (Δψ·cos ε) in radians; pass 0 for
// mean sidereal time. lonRad is the observer's east longitude.
func LocalSiderealTime(t time.Time, lonRad, eqEquinoxes float64) float64 {
	return NormalizeRadians(GMST(t) + eqEquinoxes + lonRad)
}
