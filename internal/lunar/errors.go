package lunar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
)

// Error taxonomy of a calculation. Match with errors.Is.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrEphemerisUnavailable = ephemeris.ErrUnavailable
	ErrSequenceValidation   = errors.New("sequence validation failed")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ValidationError reports a station sequence that is not a contiguous cycle.
type ValidationError struct {
	Report *Report
}

func (e *ValidationError) Error() string {
	var parts []string
	r := e.Report
	if n := len(r.Gaps); n > 0 {
		g := r.Gaps[0]
		parts = append(parts, fmt.Sprintf("%d gap(s), first missing %v between %s and %s",
			n, g.Missing, g.Previous.Format(timeLayout), g.Instant.Format(timeLayout)))
	}
	if n := len(r.Duplicates); n > 0 {
		d := r.Duplicates[0]
		parts = append(parts, fmt.Sprintf("%d duplicate(s), first station %d at %s and %s",
			n, d.Station, d.First.Format(timeLayout), d.Second.Format(timeLayout)))
	}
	if n := len(r.OutOfOrder); n > 0 {
		o := r.OutOfOrder[0]
		parts = append(parts, fmt.Sprintf("%d out of order, first station %d at %s after %s",
			n, o.Station, o.Instant.Format(timeLayout), o.Previous.Format(timeLayout)))
	}
	return ErrSequenceValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrSequenceValidation }

const timeLayout = "2006-01-02T15:04:05Z07:00"
