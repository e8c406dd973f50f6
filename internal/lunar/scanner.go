package lunar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/metrics"
)

// Scanner samples a time range in fixed-size chunks and feeds each chunk to a
// Detector. Peak sample memory is one chunk regardless of range length.
type Scanner struct {
	sampler   ephemeris.PositionSampler
	workers   []ephemeris.PositionSampler // fill each chunk concurrently when more than one
	detector  *Detector
	chunkSize time.Duration
	logger    *slog.Logger
}

// NewScanner creates a Scanner. chunkSize is rounded down to a whole number of
// samples, with a minimum of one.
func NewScanner(sampler ephemeris.PositionSampler, detector *Detector, chunkSize time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		sampler:   sampler,
		detector:  detector,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// WithWorkers makes the scanner fill each chunk using all of samplers
// concurrently, one contiguous run of the chunk per sampler. Samplers must not
// be shared with each other or with other goroutines.
func (s *Scanner) WithWorkers(samplers ...ephemeris.PositionSampler) *Scanner {
	s.workers = samplers
	return s
}

// Scan samples t_k = start + k·res for every t_k ≤ end and returns all
// transitions in time order. The last event is marked PartialEnd.
// Cancellation is checked between chunks; a cancelled scan returns no events.
func (s *Scanner) Scan(ctx context.Context, start, end time.Time, res time.Duration) ([]TransitionEvent, []Warning, error) {
	perChunk := int(s.chunkSize / res)
	if perChunk < 1 {
		perChunk = 1
	}
	total := int(end.Sub(start)/res) + 1

	seed, err := s.sampler.PositionAt(start.Add(-res))
	if err != nil {
		return nil, nil, fmt.Errorf("seeding scan: %w", err)
	}
	state := s.detector.Seed(seed)

	var (
		events   []TransitionEvent
		warnings []Warning
		buf      = make([]ephemeris.Sample, 0, perChunk)
	)

	for k := 0; k < total; k += perChunk {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("scan cancelled at %s: %w", start.Add(time.Duration(k)*res).Format(time.RFC3339), err)
		}

		chunkStart := time.Now()
		n := min(perChunk, total-k)
		buf = buf[:n]
		if err := s.fill(buf, start, res, k); err != nil {
			return nil, nil, err
		}

		var ev []TransitionEvent
		var w []Warning
		state, ev, w, err = s.detector.Detect(state, buf)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev...)
		warnings = append(warnings, w...)

		elapsed := time.Since(chunkStart)
		metrics.ObserveChunk(n, elapsed)
		s.logger.Debug("chunk scanned",
			"chunk_start", buf[0].Instant,
			"chunk_samples", n,
			"transitions", len(ev),
			"station", state.Station,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if len(events) > 0 {
		events[len(events)-1].PartialEnd = true
	}
	return events, warnings, nil
}

// fill samples grid points k, k+1, ... into buf.
func (s *Scanner) fill(buf []ephemeris.Sample, start time.Time, res time.Duration, k int) error {
	if len(s.workers) < 2 || len(buf) < 2*len(s.workers) {
		for i := range buf {
			sample, err := s.sampler.PositionAt(start.Add(time.Duration(k+i) * res))
			if err != nil {
				return err
			}
			buf[i] = sample
		}
		return nil
	}

	per := (len(buf) + len(s.workers) - 1) / len(s.workers)
	errs := make([]error, len(s.workers))

	var wg sync.WaitGroup
	for w, sampler := range s.workers {
		lo := w * per
		if lo >= len(buf) {
			break
		}
		hi := min(lo+per, len(buf))

		wg.Add(1)
		go func(w, lo, hi int, sampler ephemeris.PositionSampler) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				sample, err := sampler.PositionAt(start.Add(time.Duration(k+i) * res))
				if err != nil {
					errs[w] = err
					return
				}
				buf[i] = sample
			}
		}(w, lo, hi, sampler)
	}
	wg.Wait()

	// Report the earliest failing run so errors do not depend on scheduling.
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
