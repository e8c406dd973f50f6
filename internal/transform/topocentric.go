package transform

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Site holds a ground observer's location. The parallax constants ρ·sin φ′ and
// ρ·cos φ′ (in units of the equatorial radius) are precomputed once so they can be
// reused across every sample of a calculation.
type Site struct {
	LatRad, LonRad, AltM float64 // geodetic (radians, meters above ellipsoid)
	RhoSinPhi, RhoCosPhi float64 // geocentric parallax constants
}

// NewSite creates a Site from geodetic coordinates.
// Latitude and longitude (east positive) are in degrees, altitude in meters above
// the WGS-84 ellipsoid.
func NewSite(latDeg, lonDeg, altM float64) Site {
	lat := Radians(latDeg)
	lon := Radians(lonDeg)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Site{
		LatRad:    lat,
		LonRad:    lon,
		AltM:      altM,
		RhoCosPhi: (N + altM) * cosLat / wgs84A,
		RhoSinPhi: (N*(1-wgs84E2) + altM) * sinLat / wgs84A,
	}
}

// TopocentricEcliptic corrects geocentric ecliptic coordinates for the observer's
// position on the Earth (Meeus, Astronomical Algorithms, eq. 40.6).
//
// lonRad, latRad are the body's apparent geocentric ecliptic longitude and latitude,
// sinParallax is the sine of its equatorial horizontal parallax, eps is the true
// obliquity of the ecliptic and lst the apparent local sidereal time, all in radians.
// Returns topocentric ecliptic longitude in [0, 2π) and latitude.
func TopocentricEcliptic(lonRad, latRad, sinParallax, eps, lst float64, site Site) (float64, float64) {
	sinLon, cosLon := math.Sincos(lonRad)
	sinLat, cosLat := math.Sincos(latRad)
	sinEps, cosEps := math.Sincos(eps)
	sinLST, cosLST := math.Sincos(lst)
	S, C := site.RhoSinPhi, site.RhoCosPhi

	n := cosLon*cosLat - C*sinParallax*cosLST
	lonTopo := math.Atan2(sinLon*cosLat-sinParallax*(S*sinEps+C*cosEps*sinLST), n)
	latTopo := math.Atan(math.Cos(lonTopo) * (sinLat - sinParallax*(S*cosEps-C*sinEps*sinLST)) / n)

	return NormalizeRadians(lonTopo), latTopo
}
