package ephemeris

import (
	"errors"
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"

	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

// Supported range of the Meeus provider. ΔT is modelled over this span only.
var (
	MinInstant = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxInstant = time.Date(2150, 1, 1, 0, 0, 0, 0, time.UTC)
)

var errClosed = errors.New("ephemeris: provider closed")

// Meeus is a Source backed by the ELP-2000/82 truncated lunar theory from
// Meeus, Astronomical Algorithms, chapter 47.
type Meeus struct{}

// Open returns a new provider session.
func (Meeus) Open() (Provider, error) {
	return &meeusProvider{nutHour: math.MinInt64}, nil
}

type meeusProvider struct {
	closed bool

	// Nutation for the hour starting at nutHour (Unix seconds). Evaluated at the
	// start of the hour so results do not depend on sampling order.
	nutHour   int64
	dPsi, eps float64
	eqEquinox float64
}

func (p *meeusProvider) MoonPosition(t time.Time, site *transform.Site) (float64, float64, error) {
	if p.closed {
		return 0, 0, errClosed
	}
	if t.Before(MinInstant) || !t.Before(MaxInstant) {
		return 0, 0, &UnavailableError{Instant: t, Reason: "outside supported range 1900-2150"}
	}

	jde := transform.JulianEphemerisDate(t)
	lambda, beta, dist := moonposition.Position(jde)
	p.nutation(t)

	lon := lambda.Rad() + p.dPsi
	lat := beta.Rad()

	if site != nil {
		lst := transform.LocalSiderealTime(t, site.LonRad, p.eqEquinox)
		sinPi := math.Sin(moonposition.Parallax(dist).Rad())
		lon, lat = transform.TopocentricEcliptic(lon, lat, sinPi, p.eps, lst, *site)
	}

	return transform.NormalizeDegrees(transform.Degrees(lon)), transform.Degrees(lat), nil
}

func (p *meeusProvider) nutation(t time.Time) {
	hour := t.Unix() - ((t.Unix()%3600)+3600)%3600
	if hour == p.nutHour {
		return
	}
	jde := transform.JulianEphemerisDate(time.Unix(hour, 0))
	dPsi, dEps := nutation.Nutation(jde)
	p.nutHour = hour
	p.dPsi = dPsi.Rad()
	p.eps = nutation.MeanObliquity(jde).Rad() + dEps.Rad()
	p.eqEquinox = p.dPsi * math.Cos(p.eps)
}

func (p *meeusProvider) Close() error {
	p.closed = true
	return nil
}
