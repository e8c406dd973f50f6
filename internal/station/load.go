package station

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Load reads a station table from r in CSV form, one station per row:
//
//	longitude,name[,description]
//
// Rows are taken in cyclic order. Lines starting with '#' are comments, and a
// header row or any malformed row is skipped with a warning log.
func Load(r io.Reader, logger *slog.Logger) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var defs []Definition
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("skipping malformed station row", "line", perr.Line, "error", err)
				continue
			}
			return nil, fmt.Errorf("reading station table: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if len(rec) < 2 {
			logger.Warn("skipping station row with too few fields", "line", line, "fields", len(rec))
			continue
		}
		lonStr := strings.TrimSpace(rec[0])
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			logger.Warn("skipping station row with invalid longitude", "line", line, "longitude", lonStr)
			continue
		}
		name := strings.TrimSpace(rec[1])
		if name == "" {
			logger.Warn("skipping station row without name", "line", line)
			continue
		}
		def := Definition{Boundary: lon, Name: name}
		if len(rec) > 2 {
			def.Description = strings.TrimSpace(rec[2])
		}
		defs = append(defs, def)
	}

	return New(defs)
}

// LoadFile loads a station table from path, or returns the traditional catalog
// when path is empty.
func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	if path == "" {
		return Traditional(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening station table: %w", err)
	}
	defer f.Close()

	c, err := Load(f, logger)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	logger.Info("station table loaded", "path", path, "stations", c.Len())
	return c, nil
}
