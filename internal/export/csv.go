package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

// CSV column headers.
const (
	colStation     = "Station"
	colStartUTC    = "Start (UTC)"
	colStartLocal  = "Start (Local)"
	colLongitude   = "Ecliptic Longitude"
	colLatitude    = "Ecliptic Latitude"
	colDescription = "Description"
)

// localLayout is used for the local time column.
const localLayout = "2006-01-02 15:04:05 MST"

// Row is a transition read back from an export.
type Row struct {
	Station string
	Start   time.Time // UTC
}

// WriteCSV writes a header row naming the included columns, then one row per record.
func WriteCSV(w io.Writer, table lunar.Table) error {
	cw := csv.NewWriter(w)

	header := []string{colStation, colStartUTC, colStartLocal}
	if table.Fields.Longitude {
		header = append(header, colLongitude)
	}
	if table.Fields.Latitude {
		header = append(header, colLatitude)
	}
	if table.Fields.Description {
		header = append(header, colDescription)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, rec := range table.Records {
		row := []string{
			rec.Name,
			rec.StartUTC.UTC().Format(time.RFC3339Nano),
			rec.StartLocal.Format(localLayout),
		}
		if table.Fields.Longitude {
			row = append(row, strconv.FormatFloat(rec.Longitude, 'f', 4, 64))
		}
		if table.Fields.Latitude {
			row = append(row, strconv.FormatFloat(rec.Latitude, 'f', 4, 64))
		}
		if table.Fields.Description {
			row = append(row, rec.Description)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// ReadCSV parses a CSV export back into station names and UTC instants.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	nameCol, startCol := -1, -1
	for i, h := range header {
		switch h {
		case colStation:
			nameCol = i
		case colStartUTC:
			startCol = i
		}
	}
	if nameCol < 0 || startCol < 0 {
		return nil, fmt.Errorf("csv header missing %q or %q", colStation, colStartUTC)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(rec) <= max(nameCol, startCol) {
			return nil, fmt.Errorf("csv row has %d fields, want at least %d", len(rec), max(nameCol, startCol)+1)
		}
		start, err := time.Parse(time.RFC3339Nano, rec[startCol])
		if err != nil {
			return nil, fmt.Errorf("parsing start %q: %w", rec[startCol], err)
		}
		rows = append(rows, Row{Station: rec[nameCol], Start: start.UTC()})
	}
	return rows, nil
}
