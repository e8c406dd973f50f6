package lunar

import (
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/metrics"
	"github.com/aekmcb/Lunar-Stations/internal/station"
)

// Gap is a skipped run of stations between two consecutive events.
type Gap struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	Missing  []int     `json:"missing"`
	Previous time.Time `json:"previous"`
	Instant  time.Time `json:"instant"`
}

// Duplicate is a station entered twice with no advance in between.
type Duplicate struct {
	Station int       `json:"station"`
	First   time.Time `json:"first"`
	Second  time.Time `json:"second"`
}

// OutOfOrder is an event whose instant does not follow its predecessor's.
type OutOfOrder struct {
	Station  int       `json:"station"`
	Previous time.Time `json:"previous"`
	Instant  time.Time `json:"instant"`
}

// Partial notes a station clipped by an edge of the requested range.
type Partial struct {
	Edge    string    `json:"edge"` // "start" or "end"
	Station int       `json:"station"`
	Instant time.Time `json:"instant"`
}

// Report is the outcome of sequence validation.
type Report struct {
	Events     int          `json:"events"`
	Gaps       []Gap        `json:"gaps,omitempty"`
	Duplicates []Duplicate  `json:"duplicates,omitempty"`
	OutOfOrder []OutOfOrder `json:"out_of_order,omitempty"`
	Partial    []Partial    `json:"partial,omitempty"`
	Warnings   []Warning    `json:"warnings,omitempty"`
}

// OK reports whether the sequence is a contiguous, ordered traversal.
func (r *Report) OK() bool {
	return len(r.Gaps) == 0 && len(r.Duplicates) == 0 && len(r.OutOfOrder) == 0
}

// Validate checks that events visit the catalog's stations in strictly
// increasing cyclic order at strictly increasing instants. Events are not
// modified.
func Validate(events []TransitionEvent, catalog *station.Catalog, warnings []Warning) *Report {
	r := &Report{Events: len(events), Warnings: warnings}

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]

		if !cur.Start.After(prev.Start) {
			r.OutOfOrder = append(r.OutOfOrder, OutOfOrder{
				Station:  cur.Station,
				Previous: prev.Start,
				Instant:  cur.Start,
			})
		}

		switch steps := catalog.Steps(prev.Station, cur.Station); {
		case steps == 0:
			r.Duplicates = append(r.Duplicates, Duplicate{
				Station: cur.Station,
				First:   prev.Start,
				Second:  cur.Start,
			})
		case steps > 1:
			missing := make([]int, 0, steps-1)
			for k := 1; k < steps; k++ {
				missing = append(missing, catalog.Next(prev.Station+k-1))
			}
			r.Gaps = append(r.Gaps, Gap{
				From:     prev.Station,
				To:       cur.Station,
				Missing:  missing,
				Previous: prev.Start,
				Instant:  cur.Start,
			})
		}
	}

	if len(events) > 0 {
		if first := events[0]; first.PartialStart {
			r.Partial = append(r.Partial, Partial{Edge: "start", Station: first.Station, Instant: first.Start})
		}
		if last := events[len(events)-1]; last.PartialEnd {
			r.Partial = append(r.Partial, Partial{Edge: "end", Station: last.Station, Instant: last.Start})
		}
	}

	metrics.AddValidationFailures("gap", len(r.Gaps))
	metrics.AddValidationFailures("duplicate", len(r.Duplicates))
	metrics.AddValidationFailures("out_of_order", len(r.OutOfOrder))
	return r
}
