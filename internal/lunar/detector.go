package lunar

import (
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/station"
	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

// refineStep is the precision of bisection refinement.
const refineStep = time.Second

// Detector finds station boundary crossings in a sample sequence.
type Detector struct {
	catalog *station.Catalog
	sampler ephemeris.PositionSampler // nil disables refinement
}

// NewDetector returns a Detector. When sampler is non-nil, crossing instants
// are refined by bisection to one second; otherwise they are sample-aligned.
func NewDetector(catalog *station.Catalog, sampler ephemeris.PositionSampler) *Detector {
	return &Detector{catalog: catalog, sampler: sampler}
}

// Seed returns the initial state for a scan whose first sample follows seed.
func (d *Detector) Seed(seed ephemeris.Sample) ScanState {
	return ScanState{Last: seed, Station: d.catalog.StationContaining(seed.Longitude)}
}

// Detect scans samples, which must directly follow state.Last on the sample
// grid, and returns the updated state with the transitions and warnings found.
func (d *Detector) Detect(state ScanState, samples []ephemeris.Sample) (ScanState, []TransitionEvent, []Warning, error) {
	var (
		events   []TransitionEvent
		warnings []Warning
	)

	for _, s := range samples {
		cur := d.catalog.StationContaining(s.Longitude)

		if !state.opened {
			state.opened = true
			if cur == state.Station {
				events = append(events, TransitionEvent{
					Station:      cur,
					Start:        s.Instant,
					Longitude:    s.Longitude,
					Latitude:     s.Latitude,
					PartialStart: true,
				})
				state.Last = s
				continue
			}
			// The crossing happened between the seed and range start. It is
			// reported at range start without refinement. Stations passed
			// entirely before range start are dropped, leaving a partial
			// event for the station occupied at range start.
			ev, w := d.crossing(state.Last, s, state.Station, cur)
			if len(ev) > 1 {
				ev = ev[len(ev)-1:]
				ev[0].PartialStart = true
			}
			events = append(events, ev...)
			warnings = append(warnings, w...)
			state.Last, state.Station = s, cur
			continue
		}

		if cur != state.Station {
			ev, w := d.crossing(state.Last, s, state.Station, cur)
			if d.sampler != nil {
				if err := d.refine(state.Last, s, state.Station, ev); err != nil {
					return state, nil, nil, err
				}
			}
			events = append(events, ev...)
			warnings = append(warnings, w...)
		}
		state.Last, state.Station = s, cur
	}

	return state, events, warnings, nil
}

// crossing builds the events for a change from station prev (at sample a) to
// station cur (at sample b).
func (d *Detector) crossing(a, b ephemeris.Sample, prev, cur int) ([]TransitionEvent, []Warning) {
	last := TransitionEvent{Station: cur, Start: b.Instant, Longitude: b.Longitude, Latitude: b.Latitude}

	// Apparent backward motion: report the station entered and let the
	// validator classify it.
	if transform.SignedDelta(a.Longitude, b.Longitude) < 0 {
		return []TransitionEvent{last}, nil
	}

	steps := d.catalog.Steps(prev, cur)
	if steps <= 1 {
		return []TransitionEvent{last}, nil
	}

	// More than one boundary between two samples. Intermediate stations get
	// instants apportioned by longitude, strictly inside (a, b).
	span := transform.ForwardDelta(a.Longitude, b.Longitude)
	interval := b.Instant.Sub(a.Instant)
	events := make([]TransitionEvent, 0, steps)
	stations := make([]int, 0, steps)
	floor := a.Instant

	for j := 1; j < steps; j++ {
		k := d.catalog.Next(prev + j - 1)
		boundary := d.catalog.BoundaryFor(k)
		f := transform.ForwardDelta(a.Longitude, boundary) / span
		at := a.Instant.Add(time.Duration(f * float64(interval)))
		at = within(at, floor, b.Instant)
		floor = at

		events = append(events, TransitionEvent{
			Station:   k,
			Start:     at,
			Longitude: boundary,
			Latitude:  a.Latitude + f*(b.Latitude-a.Latitude),
			Ambiguous: true,
		})
		stations = append(stations, k)
	}
	last.Ambiguous = true
	events = append(events, last)
	stations = append(stations, cur)

	w := Warning{
		Kind:     WarningCoarseSampling,
		Previous: a.Instant,
		Instant:  b.Instant,
		From:     prev,
		To:       cur,
		Stations: stations,
	}
	return events, []Warning{w}
}

// refine replaces the instants of forward crossing events with the first whole
// second at which the Moon is found in each station. Events are updated in place.
func (d *Detector) refine(a, b ephemeris.Sample, prev int, events []TransitionEvent) error {
	if transform.SignedDelta(a.Longitude, b.Longitude) < 0 {
		return nil
	}
	floor := a.Instant
	for i := range events {
		ev := &events[i]
		need := d.catalog.Steps(prev, ev.Station)

		lo, hi := a.Instant, b.Instant
		hiSample := ephemeris.Sample{Instant: b.Instant, Longitude: b.Longitude, Latitude: b.Latitude}
		for hi.Sub(lo) > refineStep {
			mid := lo.Add((hi.Sub(lo) / 2).Truncate(refineStep))
			if !mid.After(lo) {
				mid = lo.Add(refineStep)
			}
			s, err := d.sampler.PositionAt(mid)
			if err != nil {
				return err
			}
			at := d.catalog.StationContaining(s.Longitude)
			if transform.SignedDelta(a.Longitude, s.Longitude) >= 0 && d.catalog.Steps(prev, at) >= need {
				hi, hiSample = mid, s
			} else {
				lo = mid
			}
		}

		start := within(hi, floor, b.Instant.Add(1))
		floor = start
		ev.Start = start
		ev.Longitude = hiSample.Longitude
		ev.Latitude = hiSample.Latitude
	}
	return nil
}

// within clamps t into the open interval (after, before). The interval must
// contain at least one nanosecond.
func within(t, after, before time.Time) time.Time {
	if !t.After(after) {
		t = after.Add(1)
	}
	if !t.Before(before) {
		t = before.Add(-1)
	}
	return t
}
