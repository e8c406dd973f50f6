// Package lunar finds the instants at which the Moon enters each lunar station
// over a date range, and validates the resulting sequence.
package lunar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/metrics"
	"github.com/aekmcb/Lunar-Stations/internal/station"
)

// Config controls how calculations are performed.
type Config struct {
	ChunkSize time.Duration   // span of one scan chunk
	MaxRange  time.Duration   // longest accepted request range; 0 means unlimited
	Frame     ephemeris.Frame // topocentric or geocentric positions
	Refine    bool            // bisect crossings to one second
	Workers   int             // providers sampling each chunk concurrently; below 2 is sequential
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize: 24 * time.Hour,
		MaxRange:  365 * 24 * time.Hour,
		Frame:     ephemeris.Topocentric,
		Workers:   1,
	}
}

// Result is the output of a calculation.
type Result struct {
	Events []TransitionEvent `json:"events"`
	Report *Report           `json:"report"`
}

// Engine computes station transitions. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	catalog *station.Catalog
	source  ephemeris.Source
	cfg     Config
	logger  *slog.Logger
}

// NewEngine creates an Engine. Zero config values fall back to DefaultConfig.
func NewEngine(catalog *station.Catalog, source ephemeris.Source, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	return &Engine{
		catalog: catalog,
		source:  source,
		cfg:     cfg,
		logger:  logger,
	}
}

// Catalog returns the engine's station catalog.
func (e *Engine) Catalog() *station.Catalog { return e.catalog }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute runs a full calculation for req.
//
// Invalid requests fail with ErrInvalidRequest before any sampling. An
// unresolvable instant fails with ErrEphemerisUnavailable and no events. A
// sequence with gaps, duplicates or misordered instants returns the result
// together with a *ValidationError.
func (e *Engine) Compute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.compute(ctx, req)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRequest):
		outcome = "invalid"
	case errors.Is(err, ErrEphemerisUnavailable):
		outcome = "unavailable"
	case errors.Is(err, ErrSequenceValidation):
		outcome = "validation_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	metrics.ObserveCalculation(outcome, time.Since(start))
	return res, err
}

func (e *Engine) compute(ctx context.Context, req Request) (*Result, error) {
	req, err := req.Normalize(e.cfg.MaxRange)
	if err != nil {
		return nil, err
	}

	// Providers are not safe for concurrent use, so each worker opens its own.
	site := req.Observer.Site()
	samplers := make([]ephemeris.PositionSampler, 0, max(1, e.cfg.Workers))
	for i := 0; i < max(1, e.cfg.Workers); i++ {
		provider, err := e.source.Open()
		if err != nil {
			return nil, fmt.Errorf("opening ephemeris: %w", err)
		}
		defer provider.Close()
		samplers = append(samplers, ephemeris.NewSampler(provider, e.cfg.Frame, site))
	}

	sampler := samplers[0]
	var refiner ephemeris.PositionSampler
	if e.cfg.Refine {
		refiner = sampler
	}
	detector := NewDetector(e.catalog, refiner)
	scanner := NewScanner(sampler, detector, e.cfg.ChunkSize, e.logger)
	if len(samplers) > 1 {
		scanner.WithWorkers(samplers...)
	}

	started := time.Now()
	events, warnings, err := scanner.Scan(ctx, req.Start, req.End, req.Resolution)
	if err != nil {
		e.logger.Warn("calculation failed",
			"start", req.Start,
			"end", req.End,
			"error", err,
		)
		return nil, err
	}

	for i := range events {
		events[i].StartLocal = events[i].Start.In(req.Observer.Location)
	}

	report := Validate(events, e.catalog, warnings)
	metrics.AddTransitions(len(events))
	metrics.AddAmbiguities(len(warnings))

	e.logger.Info("transitions computed",
		"start", req.Start,
		"end", req.End,
		"frame", e.cfg.Frame.String(),
		"events", len(events),
		"warnings", len(warnings),
		"gaps", len(report.Gaps),
		"duplicates", len(report.Duplicates),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	result := &Result{Events: events, Report: report}
	if !report.OK() {
		return result, &ValidationError{Report: report}
	}
	return result, nil
}

// Table assembles a result for formatting according to req's fields and timezone.
func (e *Engine) Table(res *Result, req Request) Table {
	return Assemble(res.Events, e.catalog, req.Fields, req.Observer.Location)
}
