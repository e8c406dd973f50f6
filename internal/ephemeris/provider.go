// Package ephemeris supplies the Moon's apparent ecliptic position for an
// instant and observer site.
package ephemeris

import (
	"errors"
	"fmt"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

// ErrUnavailable is returned when a position cannot be resolved for an instant.
var ErrUnavailable = errors.New("ephemeris unavailable")

// UnavailableError carries the instant that could not be resolved.
type UnavailableError struct {
	Instant time.Time
	Reason  string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ephemeris unavailable at %s: %s", e.Instant.UTC().Format(time.RFC3339), e.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// Provider resolves Moon positions. A Provider belongs to one calculation and is
// not safe for concurrent use.
type Provider interface {
	// MoonPosition returns apparent ecliptic longitude and latitude of date in
	// degrees. A nil site yields geocentric coordinates.
	MoonPosition(t time.Time, site *transform.Site) (lonDeg, latDeg float64, err error)
	Close() error
}

// Source opens providers, one per calculation.
type Source interface {
	Open() (Provider, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (Provider, error)

// Open calls f.
func (f SourceFunc) Open() (Provider, error) { return f() }
