// Command lunarcalc computes lunar station transitions for one observer and
// writes them as CSV, iCalendar or JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/config"
	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/export"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/station"
	"github.com/aekmcb/Lunar-Stations/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	lat, lon, elev float64
	tz             string
	start, end     string
	resolution     int
	format         string
	out            string
	fields         string
	alerts         bool
	catalog        string
	db             string
	frame          string
	refine         bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := config.LoadDotEnv(os.Getenv("LUNAR_ENV_FILE")); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	level := slog.LevelWarn
	if os.Getenv("LUNAR_LOG_LEVEL") != "" {
		level = config.LogLevel()
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	engineCfg := config.LoadEngine(logger)

	var o options
	fs := flag.NewFlagSet("lunarcalc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Float64Var(&o.lat, "lat", 0, "observer latitude in degrees, north positive")
	fs.Float64Var(&o.lon, "lon", 0, "observer longitude in degrees, east positive")
	fs.Float64Var(&o.elev, "elev", 0, "observer elevation in meters")
	fs.StringVar(&o.tz, "tz", "UTC", "IANA timezone for local times and offset-less dates")
	fs.StringVar(&o.start, "start", "", "range start, e.g. 2025-02-04 or 2025-02-04T06:00 (required)")
	fs.StringVar(&o.end, "end", "", "range end (default: one day after start)")
	fs.IntVar(&o.resolution, "res", int(lunar.DefaultResolution/time.Second), "sampling resolution in seconds")
	fs.StringVar(&o.format, "format", "csv", "output format: csv, ics or json")
	fs.StringVar(&o.out, "out", "", "output file (default: stdout)")
	fs.StringVar(&o.fields, "fields", "", "optional columns: longitude,latitude,description or all")
	fs.BoolVar(&o.alerts, "alerts", false, "add a calendar alarm at each transition (ics)")
	fs.StringVar(&o.catalog, "catalog", "", "station catalog CSV (default: the traditional 28 stations)")
	fs.StringVar(&o.db, "db", "", "SQLite file for reusing results across runs")
	fs.StringVar(&o.frame, "frame", engineCfg.Frame.String(), "reference frame: topocentric or geocentric")
	fs.BoolVar(&o.refine, "refine", engineCfg.Refine, "refine crossings to the second")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := calculate(ctx, o, engineCfg, stdout, stderr, logger); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func calculate(ctx context.Context, o options, cfg lunar.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	if o.start == "" {
		return errors.New("-start is required")
	}
	frame, err := ephemeris.ParseFrame(o.frame)
	if err != nil {
		return err
	}
	cfg.Frame = frame
	cfg.Refine = o.refine

	format, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}
	fields, err := lunar.ParseFields(o.fields)
	if err != nil {
		return err
	}
	loc, err := lunar.LoadLocation(o.tz)
	if err != nil {
		return err
	}
	start, err := lunar.ParseInstant(o.start, loc)
	if err != nil {
		return err
	}
	end := start.Add(24 * time.Hour)
	if o.end != "" {
		if end, err = lunar.ParseInstant(o.end, loc); err != nil {
			return err
		}
	}

	req, err := lunar.Request{
		Observer:   lunar.Observer{Latitude: o.lat, Longitude: o.lon, Elevation: o.elev, Location: loc},
		Start:      start,
		End:        end,
		Resolution: time.Duration(o.resolution) * time.Second,
		Fields:     fields,
		Alerts:     o.alerts,
	}.Normalize(cfg.MaxRange)
	if err != nil {
		return err
	}

	catalog, err := station.LoadFile(o.catalog, logger)
	if err != nil {
		return err
	}
	engine := lunar.NewEngine(catalog, ephemeris.Meeus{}, cfg, logger)

	var db *store.SQLite
	key := store.Key(req, cfg, catalog)
	if o.db != "" {
		if db, err = store.OpenSQLite(ctx, o.db, logger); err != nil {
			return err
		}
		defer db.Close()
	}

	res, cached, err := lookup(ctx, db, key)
	if err != nil {
		return err
	}
	if !cached {
		res, err = engine.Compute(ctx, req)
		if err != nil {
			var verr *lunar.ValidationError
			if errors.As(err, &verr) {
				summarize(stderr, verr.Report, false)
			}
			return err
		}
		if db != nil {
			if err := db.Put(ctx, key, res); err != nil {
				logger.Warn("storing result failed", "error", err)
			}
		}
	}

	w := stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		w = f
	}

	table := engine.Table(res, req)
	if err := export.Write(w, format, table, export.Options{Alerts: req.Alerts, Report: res.Report}); err != nil {
		return err
	}
	summarize(stderr, res.Report, cached)
	return nil
}

func lookup(ctx context.Context, db *store.SQLite, key string) (*lunar.Result, bool, error) {
	if db == nil {
		return nil, false, nil
	}
	return db.Get(ctx, key)
}

// summarize prints the validation report in a few lines.
func summarize(w io.Writer, r *lunar.Report, cached bool) {
	src := "computed"
	if cached {
		src = "cached"
	}
	fmt.Fprintf(w, "%d transitions (%s)\n", r.Events, src)
	for _, p := range r.Partial {
		fmt.Fprintf(w, "  partial %s: station %d at %s\n", p.Edge, p.Station, p.Instant.Format(time.RFC3339))
	}
	if n := len(r.Warnings); n > 0 {
		fmt.Fprintf(w, "  %d coarse sampling ambiguities, consider a finer -res\n", n)
	}
	for _, g := range r.Gaps {
		fmt.Fprintf(w, "  gap: station %d to %d at %s, missing %v\n", g.From, g.To, g.Instant.Format(time.RFC3339), g.Missing)
	}
	for _, d := range r.Duplicates {
		fmt.Fprintf(w, "  duplicate: station %d at %s and %s\n", d.Station, d.First.Format(time.RFC3339), d.Second.Format(time.RFC3339))
	}
	for _, o := range r.OutOfOrder {
		fmt.Fprintf(w, "  out of order: station %d at %s after %s\n", o.Station, o.Instant.Format(time.RFC3339), o.Previous.Format(time.RFC3339))
	}
}
