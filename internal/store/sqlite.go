package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

// schemaSQL is applied on every open; all statements are idempotent.
//
//go:embed schema.sql
var schemaSQL string

const (
	flagAmbiguous = 1 << iota
	flagPartialStart
	flagPartialEnd
)

// SQLite stores results in a SQLite database.
type SQLite struct {
	conn    *sql.DB
	writeMu sync.Mutex // serializes write transactions
	logger  *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema. Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// exists only on the connection that created it.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			logger.Warn("failed to set pragma", "pragma", pragma, "error", err)
		}
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite store opened", "path", path)
	return &SQLite{conn: conn, logger: logger}, nil
}

// Name returns "sqlite".
func (s *SQLite) Name() string { return "sqlite" }

// Get loads the result stored under key.
func (s *SQLite) Get(ctx context.Context, key string) (*lunar.Result, bool, error) {
	var reportJSON string
	err := s.conn.QueryRowContext(ctx,
		`SELECT report FROM calculations WHERE key = ?`, key,
	).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying calculation %s: %w", key, err)
	}

	var report lunar.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, false, fmt.Errorf("decoding report for %s: %w", key, err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT station, start_utc, start_local, longitude, latitude, flags
		 FROM transitions WHERE calculation_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, false, fmt.Errorf("querying transitions for %s: %w", key, err)
	}
	defer rows.Close()

	events := make([]lunar.TransitionEvent, 0, report.Events)
	for rows.Next() {
		var (
			ev                 lunar.TransitionEvent
			startUTC, startLoc string
			flags              int
		)
		if err := rows.Scan(&ev.Station, &startUTC, &startLoc, &ev.Longitude, &ev.Latitude, &flags); err != nil {
			return nil, false, fmt.Errorf("scanning transition: %w", err)
		}
		if ev.Start, err = time.Parse(time.RFC3339Nano, startUTC); err != nil {
			return nil, false, fmt.Errorf("parsing start_utc %q: %w", startUTC, err)
		}
		if ev.StartLocal, err = time.Parse(time.RFC3339Nano, startLoc); err != nil {
			return nil, false, fmt.Errorf("parsing start_local %q: %w", startLoc, err)
		}
		ev.Start = ev.Start.UTC()
		ev.Ambiguous = flags&flagAmbiguous != 0
		ev.PartialStart = flags&flagPartialStart != 0
		ev.PartialEnd = flags&flagPartialEnd != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterating transitions: %w", err)
	}

	return &lunar.Result{Events: events, Report: &report}, true, nil
}

// Put replaces the result stored under key.
func (s *SQLite) Put(ctx context.Context, key string, res *lunar.Result) error {
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transitions WHERE calculation_key = ?`, key); err != nil {
		return fmt.Errorf("clearing transitions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calculations WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clearing calculation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calculations (key, created_at, event_count, report) VALUES (?, ?, ?, ?)`,
		key, time.Now().UTC().Format(time.RFC3339), len(res.Events), string(reportJSON),
	); err != nil {
		return fmt.Errorf("inserting calculation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transitions (calculation_key, seq, station, start_utc, start_local, longitude, latitude, flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range res.Events {
		flags := 0
		if ev.Ambiguous {
			flags |= flagAmbiguous
		}
		if ev.PartialStart {
			flags |= flagPartialStart
		}
		if ev.PartialEnd {
			flags |= flagPartialEnd
		}
		if _, err := stmt.ExecContext(ctx, key, i, ev.Station,
			ev.Start.UTC().Format(time.RFC3339Nano),
			ev.StartLocal.Format(time.RFC3339Nano),
			ev.Longitude, ev.Latitude, flags,
		); err != nil {
			return fmt.Errorf("inserting transition %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Prune deletes calculations created before cutoff and returns how many were removed.
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM calculations WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning calculations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned stored calculations", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Ping checks the database is usable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
