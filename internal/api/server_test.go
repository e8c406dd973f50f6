package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/auth"
	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/station"
	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

var epoch = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)

// stepProvider reports lon until cut, then after.
type stepProvider struct {
	lon, after float64
	cut        time.Time
	fail       bool
}

func (p *stepProvider) MoonPosition(t time.Time, _ *transform.Site) (float64, float64, error) {
	if p.fail {
		return 0, 0, &ephemeris.UnavailableError{Instant: t, Reason: "test"}
	}
	if !p.cut.IsZero() && !t.Before(p.cut) {
		return p.after, 0, nil
	}
	return p.lon, 0, nil
}

func (p *stepProvider) Close() error { return nil }

// countingSource opens providers from newProvider and counts the opens.
type countingSource struct {
	mu          sync.Mutex
	opens       int
	newProvider func() ephemeris.Provider
}

func (s *countingSource) Open() (ephemeris.Provider, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()
	return s.newProvider(), nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

type memStore struct {
	mu   sync.Mutex
	data map[string]*lunar.Result
}

func newMemStore() *memStore { return &memStore{data: make(map[string]*lunar.Result)} }

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Get(_ context.Context, key string) (*lunar.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memStore) Put(_ context.Context, key string, res *lunar.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = res
	return nil
}

func (m *memStore) Close() error { return nil }

func newTestHandlers(src ephemeris.Source, results *memStore) *handlers {
	engine := lunar.NewEngine(station.Traditional(), src, lunar.DefaultConfig(), testLogger())
	h := &handlers{
		engine:  engine,
		limiter: newLimiter(2),
		logger:  testLogger(),
	}
	if results != nil {
		h.results = results
	}
	return h
}

func newTestMux(h *handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("GET /api/v1/catalog/{index}", h.station)
	mux.HandleFunc("GET /api/v1/transitions", h.transitions)
	return mux
}

const nycDay = "/api/v1/transitions?lat=40.7128&lon=-74.006&tz=America/New_York&start=2025-02-04&end=2025-02-05"

func TestCatalog(t *testing.T) {
	mux := newTestMux(newTestHandlers(ephemeris.Meeus{}, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Stations []station.Station `json:"stations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Stations) != 28 {
		t.Errorf("stations = %d, want 28", len(resp.Stations))
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/catalog/3", http.StatusOK},
		{"/api/v1/catalog/0", http.StatusOK},
		{"/api/v1/catalog/28", http.StatusNotFound},
		{"/api/v1/catalog/-1", http.StatusNotFound},
		{"/api/v1/catalog/abc", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/3", nil))
	var st station.Station
	json.NewDecoder(w.Body).Decode(&st)
	if st.Index != 3 || st.Name != "4#LS" {
		t.Errorf("station 3 = %+v, want index 3 named 4#LS", st)
	}
}

func TestTransitionsBadRequest(t *testing.T) {
	src := &countingSource{newProvider: func() ephemeris.Provider { return &stepProvider{lon: 30} }}
	mux := newTestMux(newTestHandlers(src, nil))

	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "?lon=0&start=2025-02-04"},
		{"missing start", "?lat=0&lon=0"},
		{"bad lat", "?lat=north&lon=0&start=2025-02-04"},
		{"lat out of range", "?lat=91&lon=0&start=2025-02-04"},
		{"unknown timezone", "?lat=0&lon=0&tz=Nowhere/City&start=2025-02-04"},
		{"bad start", "?lat=0&lon=0&start=yesterday"},
		{"end before start", "?lat=0&lon=0&start=2025-02-04&end=2025-02-03"},
		{"range too long", "?lat=0&lon=0&start=2025-01-01&end=2026-06-01"},
		{"bad resolution", "?lat=0&lon=0&start=2025-02-04&resolution=0"},
		{"resolution too coarse", "?lat=0&lon=0&start=2025-02-04&resolution=7200"},
		{"bad format", "?lat=0&lon=0&start=2025-02-04&format=xml"},
		{"bad fields", "?lat=0&lon=0&start=2025-02-04&fields=azimuth"},
		{"bad alerts", "?lat=0&lon=0&start=2025-02-04&alerts=maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transitions"+tt.query, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			var resp map[string]any
			json.NewDecoder(w.Body).Decode(&resp)
			if _, ok := resp["error"]; !ok {
				t.Error("response missing 'error' field")
			}
		})
	}
	if n := src.count(); n != 0 {
		t.Errorf("ephemeris opened %d times for invalid requests, want 0", n)
	}
}

func TestTransitionsJSON(t *testing.T) {
	mux := newTestMux(newTestHandlers(ephemeris.Meeus{}, nil))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, nycDay+"&fields=all", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := w.Header().Get("X-Cache"); got != "miss" {
		t.Errorf("X-Cache = %q, want miss", got)
	}

	var doc struct {
		Timezone string         `json:"timezone"`
		Records  []lunar.Record `json:"records"`
		Report   *lunar.Report  `json:"report"`
	}
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Timezone != "America/New_York" {
		t.Errorf("timezone = %q, want America/New_York", doc.Timezone)
	}
	if len(doc.Records) < 1 || len(doc.Records) > 3 {
		t.Errorf("records = %d, want 1 to 3 for one day", len(doc.Records))
	}
	if doc.Report == nil || doc.Report.Events != len(doc.Records) {
		t.Errorf("report = %+v, want one covering %d events", doc.Report, len(doc.Records))
	}
	if len(doc.Records) > 0 && !doc.Records[0].PartialStart {
		t.Error("first record should be marked as a partial start")
	}
}

func TestTransitionsAttachments(t *testing.T) {
	mux := newTestMux(newTestHandlers(ephemeris.Meeus{}, nil))

	tests := []struct {
		format      string
		contentType string
		filename    string
		body        string
	}{
		{"csv", "text/csv; charset=utf-8", "lunar_stations_20250204_20250205.csv", "Station,Start (UTC),Start (Local)"},
		{"ics", "text/calendar; charset=utf-8", "lunar_stations_20250204_20250205.ics", "BEGIN:VCALENDAR"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, nycDay+"&format="+tt.format, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.contentType)
			}
			if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, tt.filename) {
				t.Errorf("Content-Disposition = %q, want filename %s", cd, tt.filename)
			}
			if !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("body does not contain %q", tt.body)
			}
		})
	}
}

func TestTransitionsErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider func() ephemeris.Provider
		want     int
		field    string
	}{
		{
			name:     "ephemeris unavailable",
			provider: func() ephemeris.Provider { return &stepProvider{fail: true} },
			want:     http.StatusUnprocessableEntity,
			field:    "error",
		},
		{
			name: "sequence regression",
			provider: func() ephemeris.Provider {
				return &stepProvider{lon: 38, after: 37, cut: epoch.Add(time.Hour)}
			},
			want:  http.StatusInternalServerError,
			field: "report",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := newMemStore()
			mux := newTestMux(newTestHandlers(&countingSource{newProvider: tt.provider}, results))

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
				"/api/v1/transitions?lat=0&lon=0&start=2025-02-04T00:00:00Z&end=2025-02-04T02:00:00Z", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			var resp map[string]any
			json.NewDecoder(w.Body).Decode(&resp)
			if _, ok := resp[tt.field]; !ok {
				t.Errorf("response missing %q field", tt.field)
			}
			if len(results.data) != 0 {
				t.Error("failed calculations must not be stored")
			}
		})
	}
}

func TestTransitionsCancelled(t *testing.T) {
	mux := newTestMux(newTestHandlers(ephemeris.Meeus{}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, nycDay, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestTransitionsStoreHit(t *testing.T) {
	src := &countingSource{newProvider: func() ephemeris.Provider {
		return &stepProvider{lon: 30, after: 40, cut: epoch.Add(time.Hour)}
	}}
	results := newMemStore()
	mux := newTestMux(newTestHandlers(src, results))

	const q = "/api/v1/transitions?lat=0&lon=0&start=2025-02-04T00:00:00Z&end=2025-02-04T02:00:00Z"
	var bodies [2]string
	for i, want := range []string{"miss", "hit"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, q, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d: %s", i, w.Code, w.Body.String())
		}
		if got := w.Header().Get("X-Cache"); got != want {
			t.Errorf("request %d X-Cache = %q, want %q", i, got, want)
		}
		bodies[i] = w.Body.String()
	}
	if n := src.count(); n != 1 {
		t.Errorf("ephemeris opened %d times, want 1", n)
	}
	if bodies[0] != bodies[1] {
		t.Error("cached response differs from computed response")
	}
}

func TestTransitionsConcurrencyLimit(t *testing.T) {
	h := newTestHandlers(ephemeris.Meeus{}, nil)
	h.limiter = newLimiter(1)
	mux := newTestMux(h)

	// httptest.NewRequest uses 192.0.2.1 as the remote address.
	h.limiter.acquire("192.0.2.1")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, nycDay, nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	h.limiter.release("192.0.2.1")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, nycDay, nil))
	if w.Code != http.StatusOK {
		t.Errorf("status after release = %d, want 200", w.Code)
	}
}

func TestServerAuth(t *testing.T) {
	engine := lunar.NewEngine(station.Traditional(), ephemeris.Meeus{}, lunar.DefaultConfig(), testLogger())
	srv := NewServer(":0", testLogger(), engine, nil, Options{
		Auth:               auth.Config{Enabled: true, Token: "s3cret"},
		MaxConcurrentPerIP: 2,
	})

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"healthz public", "/healthz", "", http.StatusOK},
		{"readyz public", "/readyz", "", http.StatusOK},
		{"catalog public", "/api/v1/catalog", "", http.StatusOK},
		{"transitions need token", nycDay, "", http.StatusUnauthorized},
		{"transitions with token", nycDay, "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestServerStaticForm(t *testing.T) {
	engine := lunar.NewEngine(station.Traditional(), ephemeris.Meeus{}, lunar.DefaultConfig(), testLogger())
	srv := NewServer(":0", testLogger(), engine, nil, Options{
		Static: fstest.MapFS{"index.html": {Data: []byte("<form></form>")}},
	})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<form>") {
		t.Errorf("body = %q, want the form", w.Body.String())
	}
}
