package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aekmcb/Lunar-Stations/internal/export"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/metrics"
	"github.com/aekmcb/Lunar-Stations/internal/station"
	"github.com/aekmcb/Lunar-Stations/internal/store"
)

type handlers struct {
	engine     *lunar.Engine
	results    store.Store
	limiter    *limiter
	trustProxy bool
	logger     *slog.Logger
}

// catalog serves GET /api/v1/catalog.
func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]station.Station{
		"stations": h.engine.Catalog().Stations(),
	})
}

// station serves GET /api/v1/catalog/{index}.
func (h *handlers) station(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Catalog()
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || idx < 0 || idx >= c.Len() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("station %q not found", r.PathValue("index")))
		return
	}
	writeJSON(w, http.StatusOK, c.Station(idx))
}

// transitions serves GET /api/v1/transitions.
func (h *handlers) transitions(w http.ResponseWriter, r *http.Request) {
	tq, err := parseTransitionQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := tq.req.Normalize(h.engine.Config().MaxRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := clientIP(r, h.trustProxy)
	if !h.limiter.acquire(ip) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "too many concurrent calculations")
		return
	}
	defer h.limiter.release(ip)

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	ctx := r.Context()
	key := store.Key(req, h.engine.Config(), h.engine.Catalog())

	res, hit := h.lookup(ctx, key)
	if !hit {
		res, err = h.engine.Compute(ctx, req)
		if err != nil {
			h.writeComputeError(w, err)
			return
		}
		h.save(ctx, key, res)
	}

	var buf bytes.Buffer
	table := h.engine.Table(res, req)
	if err := export.Write(&buf, tq.format, table, export.Options{Alerts: req.Alerts, Report: res.Report}); err != nil {
		h.logger.Error("rendering transitions failed", "format", tq.format.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", tq.format.ContentType())
	if tq.format != export.FormatJSON {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentName(req, tq.format)))
	}
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *handlers) lookup(ctx context.Context, key string) (*lunar.Result, bool) {
	if h.results == nil {
		return nil, false
	}
	res, ok, err := h.results.Get(ctx, key)
	if err != nil {
		h.logger.Warn("result lookup failed", "key", key, "error", err)
		return nil, false
	}
	return res, ok
}

// save stores validated results only; Compute never returns a failed
// report without an error.
func (h *handlers) save(ctx context.Context, key string, res *lunar.Result) {
	if h.results == nil || !res.Report.OK() {
		return
	}
	if err := h.results.Put(ctx, key, res); err != nil {
		h.logger.Warn("result store failed", "key", key, "error", err)
	}
}

func (h *handlers) writeComputeError(w http.ResponseWriter, err error) {
	var verr *lunar.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.Error("transition sequence failed validation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": verr.Report,
		})
	case errors.Is(err, lunar.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lunar.ErrEphemerisUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "calculation cancelled")
	default:
		h.logger.Error("calculation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
