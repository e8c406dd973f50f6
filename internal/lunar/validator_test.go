package lunar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/station"
)

func ev(stationIdx int, minutes int) TransitionEvent {
	return TransitionEvent{Station: stationIdx, Start: epoch.Add(time.Duration(minutes) * time.Minute)}
}

func TestValidate_Contiguous(t *testing.T) {
	catalog := station.Traditional()
	events := []TransitionEvent{ev(26, 0), ev(27, 10), ev(0, 20), ev(1, 30)}
	events[0].PartialStart = true
	events[3].PartialEnd = true

	r := Validate(events, catalog, nil)
	if !r.OK() {
		t.Fatalf("report not OK: %+v", r)
	}
	if r.Events != 4 {
		t.Errorf("Events = %d, want 4", r.Events)
	}
	if len(r.Partial) != 2 || r.Partial[0].Edge != "start" || r.Partial[1].Edge != "end" {
		t.Errorf("Partial = %+v, want start and end", r.Partial)
	}
}

func TestValidate_Violations(t *testing.T) {
	catalog := station.Traditional()
	tests := []struct {
		name       string
		events     []TransitionEvent
		gaps       int
		duplicates int
		outOfOrder int
		missing    []int
	}{
		{
			name:    "gap",
			events:  []TransitionEvent{ev(3, 0), ev(4, 10), ev(7, 20)},
			gaps:    1,
			missing: []int{5, 6},
		},
		{
			name:    "gap across wrap",
			events:  []TransitionEvent{ev(26, 0), ev(1, 10)},
			gaps:    1,
			missing: []int{27, 0},
		},
		{
			name:       "duplicate",
			events:     []TransitionEvent{ev(3, 0), ev(3, 10)},
			duplicates: 1,
		},
		{
			name:       "out of order",
			events:     []TransitionEvent{ev(3, 10), ev(4, 10)},
			outOfOrder: 1,
		},
		{
			name:       "backwards in time",
			events:     []TransitionEvent{ev(3, 10), ev(4, 5), ev(5, 20)},
			outOfOrder: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(tt.events, catalog, nil)
			if r.OK() {
				t.Fatal("report OK, want failure")
			}
			if len(r.Gaps) != tt.gaps || len(r.Duplicates) != tt.duplicates || len(r.OutOfOrder) != tt.outOfOrder {
				t.Errorf("gaps=%d duplicates=%d out_of_order=%d, want %d/%d/%d",
					len(r.Gaps), len(r.Duplicates), len(r.OutOfOrder), tt.gaps, tt.duplicates, tt.outOfOrder)
			}
			if tt.missing != nil {
				got := r.Gaps[0].Missing
				if len(got) != len(tt.missing) {
					t.Fatalf("Missing = %v, want %v", got, tt.missing)
				}
				for i := range got {
					if got[i] != tt.missing[i] {
						t.Errorf("Missing = %v, want %v", got, tt.missing)
						break
					}
				}
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	events := []TransitionEvent{ev(3, 0), ev(3, 10)}
	before := append([]TransitionEvent(nil), events...)
	Validate(events, station.Traditional(), nil)
	for i := range events {
		if events[i] != before[i] {
			t.Errorf("event %d mutated: %+v -> %+v", i, before[i], events[i])
		}
	}
}

func TestValidationError(t *testing.T) {
	r := Validate([]TransitionEvent{ev(3, 0), ev(5, 10), ev(5, 20)}, station.Traditional(), nil)
	var err error = &ValidationError{Report: r}

	if !errors.Is(err, ErrSequenceValidation) {
		t.Error("ValidationError does not match ErrSequenceValidation")
	}
	msg := err.Error()
	for _, want := range []string{"1 gap(s)", "missing [4]", "1 duplicate(s)", "station 5"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}
