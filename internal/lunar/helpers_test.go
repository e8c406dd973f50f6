package lunar

import (
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var epoch = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

// linearProvider moves the Moon east at a constant rate.
type linearProvider struct {
	lon0      float64 // longitude at epoch, degrees
	rate      float64 // degrees per hour
	failAfter time.Time
	calls     int
	closed    bool
}

func (p *linearProvider) MoonPosition(t time.Time, _ *transform.Site) (float64, float64, error) {
	p.calls++
	if !p.failAfter.IsZero() && !t.Before(p.failAfter) {
		return 0, 0, &ephemeris.UnavailableError{Instant: t, Reason: "test cutoff"}
	}
	h := t.Sub(epoch).Hours()
	return transform.NormalizeDegrees(p.lon0 + p.rate*h), 5 * math.Sin(h/100), nil
}

func (p *linearProvider) Close() error {
	p.closed = true
	return nil
}

// funcProvider returns positions from a function.
type funcProvider func(t time.Time) float64

func (f funcProvider) MoonPosition(t time.Time, _ *transform.Site) (float64, float64, error) {
	return f(t), 0, nil
}

func (f funcProvider) Close() error { return nil }

func sourceOf(p ephemeris.Provider) ephemeris.Source {
	return ephemeris.SourceFunc(func() (ephemeris.Provider, error) { return p, nil })
}

func sample(t time.Time, lon float64) ephemeris.Sample {
	return ephemeris.Sample{Instant: t, Longitude: lon}
}

// samplesFunc adapts a function to ephemeris.PositionSampler.
type samplesFunc func(t time.Time) (ephemeris.Sample, error)

func (f samplesFunc) PositionAt(t time.Time) (ephemeris.Sample, error) { return f(t) }
