package lunar

import (
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/station"
)

// Record is one transition ready for formatting. Optional values are only
// meaningful when the matching Table field is enabled.
type Record struct {
	Station      int       `json:"station"`
	Name         string    `json:"name"`
	StartUTC     time.Time `json:"start_utc"`
	StartLocal   time.Time `json:"start_local"`
	Longitude    float64   `json:"longitude,omitempty"`
	Latitude     float64   `json:"latitude,omitempty"`
	Description  string    `json:"description,omitempty"`
	Ambiguous    bool      `json:"ambiguous,omitempty"`
	PartialStart bool      `json:"partial_start,omitempty"`
	PartialEnd   bool      `json:"partial_end,omitempty"`
}

// Table is a neutral tabular view of a calculation's transitions.
type Table struct {
	Fields   Fields
	Location *time.Location
	Records  []Record
}

// Assemble packages events with their station metadata and local times.
func Assemble(events []TransitionEvent, catalog *station.Catalog, fields Fields, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	t := Table{Fields: fields, Location: loc, Records: make([]Record, len(events))}
	for i, ev := range events {
		st := catalog.Station(ev.Station)
		rec := Record{
			Station:      ev.Station,
			Name:         st.Name,
			StartUTC:     ev.Start.UTC(),
			StartLocal:   ev.Start.In(loc),
			Ambiguous:    ev.Ambiguous,
			PartialStart: ev.PartialStart,
			PartialEnd:   ev.PartialEnd,
		}
		if fields.Longitude {
			rec.Longitude = ev.Longitude
		}
		if fields.Latitude {
			rec.Latitude = ev.Latitude
		}
		if fields.Description {
			rec.Description = st.Description
		}
		t.Records[i] = rec
	}
	return t
}
