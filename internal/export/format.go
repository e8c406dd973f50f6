// Package export renders transition tables as CSV, iCalendar or JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

// Format is an output encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatCSV
	FormatICS
)

// ParseFormat parses a format name, case-insensitively. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "ics", "ical", "calendar":
		return FormatICS, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatICS:
		return "ics"
	default:
		return "unknown"
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatICS:
		return "text/calendar; charset=utf-8"
	default:
		return "application/json"
	}
}

// Extension returns the file extension of the format, without the dot.
func (f Format) Extension() string { return f.String() }

// Options control rendering.
type Options struct {
	Alerts bool          // ICS: add a display alarm at each event start
	Report *lunar.Report // JSON: included alongside the records
}

// Write renders table to w in format f.
func Write(w io.Writer, f Format, table lunar.Table, opts Options) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, table)
	case FormatICS:
		return WriteICS(w, table, opts.Alerts)
	case FormatJSON:
		return WriteJSON(w, table, opts.Report)
	default:
		return fmt.Errorf("unsupported format %v", f)
	}
}

type jsonDocument struct {
	Timezone string         `json:"timezone"`
	Fields   lunar.Fields   `json:"fields"`
	Records  []lunar.Record `json:"records"`
	Report   *lunar.Report  `json:"report,omitempty"`
}

// WriteJSON renders the table and optional report as an indented JSON document.
func WriteJSON(w io.Writer, table lunar.Table, report *lunar.Report) error {
	doc := jsonDocument{
		Timezone: table.Location.String(),
		Fields:   table.Fields,
		Records:  table.Records,
		Report:   report,
	}
	if doc.Records == nil {
		doc.Records = []lunar.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}
