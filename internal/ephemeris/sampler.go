package ephemeris

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

// Frame selects whether positions are corrected for the observer's location.
type Frame int

const (
	// Topocentric positions are seen from the observer's site.
	Topocentric Frame = iota
	// Geocentric positions are seen from the Earth's centre.
	Geocentric
)

// String returns the frame name.
func (f Frame) String() string {
	switch f {
	case Topocentric:
		return "topocentric"
	case Geocentric:
		return "geocentric"
	default:
		return "unknown"
	}
}

// ParseFrame parses a frame name, case-insensitively.
func ParseFrame(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "topocentric", "topo":
		return Topocentric, nil
	case "geocentric", "geo":
		return Geocentric, nil
	default:
		return 0, fmt.Errorf("unknown frame %q", s)
	}
}

// Sample is the Moon's position at one instant.
type Sample struct {
	Instant   time.Time
	Longitude float64 // degrees [0, 360)
	Latitude  float64 // degrees
}

// PositionSampler yields Moon positions for the fixed observer of a calculation.
type PositionSampler interface {
	PositionAt(t time.Time) (Sample, error)
}

// Sampler adapts a Provider to a fixed frame and observer site.
type Sampler struct {
	provider Provider
	site     *transform.Site
}

// NewSampler returns a Sampler. The site is ignored in the geocentric frame.
func NewSampler(p Provider, frame Frame, site transform.Site) *Sampler {
	s := &Sampler{provider: p}
	if frame == Topocentric {
		s.site = &site
	}
	return s
}

// PositionAt returns the Moon's position at t. Provider failures and non-finite
// coordinates are reported as *UnavailableError.
func (s *Sampler) PositionAt(t time.Time) (Sample, error) {
	t = t.UTC()
	lon, lat, err := s.provider.MoonPosition(t, s.site)
	if err != nil {
		var ue *UnavailableError
		if errors.As(err, &ue) {
			return Sample{}, err
		}
		return Sample{}, &UnavailableError{Instant: t, Reason: err.Error()}
	}
	if !finite(lon) || !finite(lat) {
		return Sample{}, &UnavailableError{Instant: t, Reason: "non-finite position"}
	}
	return Sample{
		Instant:   t,
		Longitude: transform.NormalizeDegrees(lon),
		Latitude:  lat,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
