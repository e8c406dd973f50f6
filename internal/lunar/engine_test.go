package lunar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/station"
)

func newTestEngine(source ephemeris.Source, cfg Config) *Engine {
	return NewEngine(station.Traditional(), source, cfg, testLogger())
}

func nycRequest(t *testing.T, days int) Request {
	t.Helper()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	start := time.Date(2025, 2, 4, 0, 0, 0, 0, ny)
	return Request{
		Observer: Observer{Latitude: 40, Longitude: -74, Location: ny},
		Start:    start,
		End:      start.AddDate(0, 0, days),
	}
}

func assertContiguous(t *testing.T, catalog *station.Catalog, events []TransitionEvent) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		if !events[i].Start.After(events[i-1].Start) {
			t.Errorf("event %d at %v does not follow %v", i, events[i].Start, events[i-1].Start)
		}
		if want := catalog.Next(events[i-1].Station); events[i].Station != want {
			t.Errorf("event %d station = %d, want %d", i, events[i].Station, want)
		}
	}
}

// Scenario: one day at 40°N 74°W in America/New_York.
func TestCompute_NewYorkDay(t *testing.T) {
	req := nycRequest(t, 1)
	e := newTestEngine(ephemeris.Meeus{}, DefaultConfig())

	res, err := e.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if len(res.Events) == 0 {
		t.Fatal("no events")
	}

	// The station active at range start comes first, flagged partial.
	p, _ := ephemeris.Meeus{}.Open()
	defer p.Close()
	s, err := ephemeris.NewSampler(p, ephemeris.Topocentric, req.Observer.Site()).PositionAt(req.Start)
	if err != nil {
		t.Fatal(err)
	}
	first := res.Events[0]
	if want := e.Catalog().StationContaining(s.Longitude); first.Station != want {
		t.Errorf("first station = %d, want %d", first.Station, want)
	}
	if !first.PartialStart || !first.Start.Equal(req.Start) {
		t.Errorf("first event = %+v, want partial at range start", first)
	}
	if first.StartLocal.Location() != req.Observer.Location {
		t.Errorf("StartLocal location = %v, want America/New_York", first.StartLocal.Location())
	}
	if len(res.Report.Partial) == 0 || res.Report.Partial[0].Edge != "start" {
		t.Errorf("report partial = %+v, want start edge", res.Report.Partial)
	}
	if last := res.Events[len(res.Events)-1]; !last.PartialEnd {
		t.Errorf("last event not flagged PartialEnd: %+v", last)
	}
	assertContiguous(t, e.Catalog(), res.Events)
}

func TestCompute_ChunkInvariance(t *testing.T) {
	req := nycRequest(t, 14)

	var reference []TransitionEvent
	for i, chunk := range []time.Duration{24 * time.Hour, 7 * 24 * time.Hour, 15 * 24 * time.Hour} {
		cfg := DefaultConfig()
		cfg.ChunkSize = chunk
		res, err := newTestEngine(ephemeris.Meeus{}, cfg).Compute(context.Background(), req)
		if err != nil {
			t.Fatalf("chunk %v: Compute() error: %v", chunk, err)
		}
		if i == 0 {
			reference = res.Events
			continue
		}
		if len(res.Events) != len(reference) {
			t.Fatalf("chunk %v: %d events, want %d", chunk, len(res.Events), len(reference))
		}
		for j := range reference {
			if res.Events[j] != reference[j] {
				t.Errorf("chunk %v: event %d = %+v, want %+v", chunk, j, res.Events[j], reference[j])
			}
		}
	}
}

func TestCompute_CyclicCompleteness(t *testing.T) {
	req := nycRequest(t, 30)
	e := newTestEngine(ephemeris.Meeus{}, DefaultConfig())

	res, err := e.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !res.Report.OK() {
		t.Fatalf("report not OK: %+v", res.Report)
	}

	seen := make(map[int]bool)
	for _, ev := range res.Events {
		seen[ev.Station] = true
	}
	if len(seen) != e.Catalog().Len() {
		t.Errorf("visited %d stations in 30 days, want %d", len(seen), e.Catalog().Len())
	}
	assertContiguous(t, e.Catalog(), res.Events)
}

// A full year at one-minute resolution validates and is reproducible.
func TestCompute_FullYear(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full-year scan in short mode")
	}
	req := nycRequest(t, 0)
	req.End = req.Start.Add(365 * 24 * time.Hour)
	e := newTestEngine(ephemeris.Meeus{}, DefaultConfig())

	first, err := e.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if !first.Report.OK() {
		t.Fatalf("report not OK: %+v", first.Report)
	}
	if n := len(first.Events); n < 360 || n > 380 {
		t.Errorf("got %d events in a year, want about 365", n)
	}

	second, err := e.Compute(context.Background(), req)
	if err != nil {
		t.Fatalf("second Compute() error: %v", err)
	}
	if len(second.Events) != len(first.Events) {
		t.Fatalf("re-run produced %d events, want %d", len(second.Events), len(first.Events))
	}
	for i := range first.Events {
		if !second.Events[i].Start.Equal(first.Events[i].Start) {
			t.Errorf("event %d instant %v differs from %v", i, second.Events[i].Start, first.Events[i].Start)
		}
	}
}

// A synthetic sampler that jumps two stations in one minute yields two
// ambiguous events.
func TestCompute_TwoStationJump(t *testing.T) {
	jump := epoch.Add(10 * time.Minute)
	p := funcProvider(func(t time.Time) float64 {
		if t.Before(jump) {
			return 30
		}
		return 52
	})
	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	e := newTestEngine(sourceOf(p), cfg)

	res, err := e.Compute(context.Background(), Request{Start: epoch, End: epoch.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}

	var ambiguous int
	for _, ev := range res.Events {
		if ev.Ambiguous {
			ambiguous++
		}
	}
	if ambiguous != 2 {
		t.Errorf("got %d ambiguous events, want 2: %+v", ambiguous, res.Events)
	}
	if len(res.Report.Warnings) != 1 || res.Report.Warnings[0].Kind != WarningCoarseSampling {
		t.Errorf("warnings = %+v, want one coarse sampling ambiguity", res.Report.Warnings)
	}
	assertContiguous(t, e.Catalog(), res.Events)
}

func TestCompute_SyntheticChunkInvariance(t *testing.T) {
	req := Request{Start: epoch, End: epoch.Add(6 * time.Hour)}

	var reference []TransitionEvent
	for i, chunk := range []time.Duration{time.Minute, 7 * time.Minute, 24 * time.Hour} {
		cfg := DefaultConfig()
		cfg.Frame = ephemeris.Geocentric
		cfg.ChunkSize = chunk
		// Fast enough to cross several narrow stations per sample.
		e := newTestEngine(sourceOf(&linearProvider{lon0: 10, rate: 438}), cfg)

		res, err := e.Compute(context.Background(), req)
		if err != nil {
			t.Fatalf("chunk %v: Compute() error: %v", chunk, err)
		}
		if i == 0 {
			reference = res.Events
			continue
		}
		if len(res.Events) != len(reference) {
			t.Fatalf("chunk %v: %d events, want %d", chunk, len(res.Events), len(reference))
		}
		for j := range reference {
			if res.Events[j] != reference[j] {
				t.Errorf("chunk %v: event %d = %+v, want %+v", chunk, j, res.Events[j], reference[j])
			}
		}
	}
}

func TestCompute_Refine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	cfg.Refine = true
	e := newTestEngine(sourceOf(&linearProvider{lon0: 37.0, rate: 0.5}), cfg)

	res, err := e.Compute(context.Background(), Request{Start: epoch, End: epoch.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	want := epoch.Add(54 * time.Minute)
	if diff := res.Events[1].Start.Sub(want); diff < 0 || diff > time.Second {
		t.Errorf("refined instant = %v, want within 1s after %v", res.Events[1].Start, want)
	}
}

func TestCompute_EphemerisUnavailable(t *testing.T) {
	p := &linearProvider{lon0: 10, rate: 0.55, failAfter: epoch.Add(3 * 24 * time.Hour)}
	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	e := newTestEngine(sourceOf(p), cfg)

	res, err := e.Compute(context.Background(), Request{Start: epoch, End: epoch.Add(5 * 24 * time.Hour)})
	if !errors.Is(err, ErrEphemerisUnavailable) {
		t.Fatalf("Compute() error = %v, want ErrEphemerisUnavailable", err)
	}
	var ue *ephemeris.UnavailableError
	if !errors.As(err, &ue) || !ue.Instant.Equal(p.failAfter) {
		t.Errorf("error does not carry the failing instant: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if !p.closed {
		t.Error("provider not closed")
	}
}

func TestCompute_ValidationFailure(t *testing.T) {
	back := epoch.Add(30 * time.Minute)
	p := funcProvider(func(t time.Time) float64 {
		if t.Before(back) {
			return 38
		}
		return 37
	})
	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	e := newTestEngine(sourceOf(p), cfg)

	res, err := e.Compute(context.Background(), Request{Start: epoch, End: epoch.Add(time.Hour)})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Compute() error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, ErrSequenceValidation) {
		t.Error("error does not match ErrSequenceValidation")
	}
	if res == nil || len(res.Events) != 2 {
		t.Fatalf("result = %+v, want both events alongside the error", res)
	}
	if len(verr.Report.Gaps) != 1 || verr.Report.Gaps[0].From != 1 || verr.Report.Gaps[0].To != 0 {
		t.Errorf("gaps = %+v, want one from station 1 to 0", verr.Report.Gaps)
	}
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	e := newTestEngine(sourceOf(&linearProvider{rate: 0.55}), cfg)

	res, err := e.Compute(ctx, Request{Start: epoch, End: epoch.Add(24 * time.Hour)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Compute() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestCompute_InvalidRequestDoesNotSample(t *testing.T) {
	opened := false
	source := ephemeris.SourceFunc(func() (ephemeris.Provider, error) {
		opened = true
		return &linearProvider{}, nil
	})
	e := newTestEngine(source, DefaultConfig())

	_, err := e.Compute(context.Background(), Request{
		Observer: Observer{Latitude: 100},
		Start:    epoch,
		End:      epoch.Add(time.Hour),
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Compute() error = %v, want ErrInvalidRequest", err)
	}
	if opened {
		t.Error("ephemeris opened for an invalid request")
	}
}

func TestAssemble(t *testing.T) {
	catalog := station.Traditional()
	tokyo := time.FixedZone("JST", 9*3600)
	events := []TransitionEvent{
		{Station: 0, Start: epoch, Longitude: 25.5, Latitude: -1.2, PartialStart: true},
		{Station: 1, Start: epoch.Add(26 * time.Hour), Longitude: 37.46, Latitude: -0.8},
	}

	table := Assemble(events, catalog, Fields{Longitude: true, Description: true}, tokyo)
	if len(table.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(table.Records))
	}
	r := table.Records[0]
	if r.Name != "1#LS" || !r.StartUTC.Equal(epoch) || r.StartLocal.Hour() != 9 {
		t.Errorf("record 0 = %+v", r)
	}
	if r.Longitude != 25.5 || r.Latitude != 0 || r.Description == "" || !r.PartialStart {
		t.Errorf("record 0 optional fields = %+v", r)
	}
}

func BenchmarkScanDay(b *testing.B) {
	e := NewEngine(station.Traditional(), ephemeris.Meeus{}, DefaultConfig(), testLogger())
	req := Request{
		Observer: Observer{Latitude: 40, Longitude: -74},
		Start:    epoch,
		End:      epoch.Add(24 * time.Hour),
	}
	for i := 0; i < b.N; i++ {
		if _, err := e.Compute(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func TestCompute_WorkerInvariance(t *testing.T) {
	req := nycRequest(t, 5)

	var want []TransitionEvent
	for _, workers := range []int{1, 3, 8} {
		cfg := DefaultConfig()
		cfg.ChunkSize = 6 * time.Hour
		cfg.Workers = workers
		res, err := newTestEngine(ephemeris.Meeus{}, cfg).Compute(context.Background(), req)
		if err != nil {
			t.Fatalf("workers=%d: Compute() error: %v", workers, err)
		}
		if want == nil {
			want = res.Events
			continue
		}
		if len(res.Events) != len(want) {
			t.Fatalf("workers=%d: %d events, want %d", workers, len(res.Events), len(want))
		}
		for i := range want {
			if !res.Events[i].Start.Equal(want[i].Start) || res.Events[i].Station != want[i].Station {
				t.Errorf("workers=%d: event %d = %d@%v, want %d@%v", workers, i,
					res.Events[i].Station, res.Events[i].Start, want[i].Station, want[i].Start)
			}
		}
	}
}

func TestCompute_WorkersOpenOwnProviders(t *testing.T) {
	cutoff := epoch.Add(3 * time.Hour)
	var (
		mu        sync.Mutex
		providers []*linearProvider
	)
	source := ephemeris.SourceFunc(func() (ephemeris.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		p := &linearProvider{lon0: 20, rate: 0.55, failAfter: cutoff}
		providers = append(providers, p)
		return p, nil
	})

	cfg := DefaultConfig()
	cfg.Frame = ephemeris.Geocentric
	cfg.Workers = 4
	res, err := newTestEngine(source, cfg).Compute(context.Background(), Request{Start: epoch, End: epoch.Add(6 * time.Hour)})
	if !errors.Is(err, ErrEphemerisUnavailable) {
		t.Fatalf("Compute() error = %v, want ErrEphemerisUnavailable", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}

	var uae *ephemeris.UnavailableError
	if !errors.As(err, &uae) || !uae.Instant.Equal(cutoff) {
		t.Errorf("failing instant = %v, want the earliest unavailable sample %v", uae, cutoff)
	}

	if len(providers) != 4 {
		t.Fatalf("opened %d providers, want 4", len(providers))
	}
	for i, p := range providers {
		if !p.closed {
			t.Errorf("provider %d not closed", i)
		}
	}
}
