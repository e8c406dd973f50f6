package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

const (
	productID = "-//Lunar Stations//Transitions//EN"

	// propStartUTC carries the exact UTC start, which DTSTART rounds to seconds.
	propStartUTC = ics.ComponentProperty("X-LUNAR-START-UTC")

	icsLocalLayout = "20060102T150405"
	icsUTCLayout   = "20060102T150405Z"
)

// uidNamespace scopes event UIDs so the same transition always gets the same UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/aekmcb/Lunar-Stations/events"))

// now is the DTSTAMP clock.
var now = time.Now

// WriteICS writes one VEVENT per record. DTSTART is the local start with TZID,
// DTEND the next record's start (omitted on the last), and alerts adds a
// display alarm at the start of each event. A non-UTC table also gets the
// VTIMEZONE its TZID refers to.
func WriteICS(w io.Writer, table lunar.Table, alerts bool) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	stamp := now().UTC().Truncate(time.Second)
	tz := table.Location.String()
	if tz != "UTC" && len(table.Records) > 0 {
		cal.SetXWRTimezone(tz)
		first := table.Records[0].StartUTC
		last := table.Records[len(table.Records)-1].StartUTC
		addTimezone(cal, table.Location, first, last)
	}

	for i, rec := range table.Records {
		ev := cal.AddEvent(eventUID(rec))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(rec.Name)
		setTime(ev, ics.ComponentPropertyDtStart, rec.StartLocal, tz)
		if i+1 < len(table.Records) {
			setTime(ev, ics.ComponentPropertyDtEnd, table.Records[i+1].StartLocal, tz)
		}
		ev.SetProperty(propStartUTC, rec.StartUTC.UTC().Format(time.RFC3339Nano))

		if desc := description(rec, table.Fields); desc != "" {
			ev.SetDescription(desc)
		}

		if alerts {
			alarm := ev.AddAlarm()
			alarm.SetAction(ics.ActionDisplay)
			alarm.SetTrigger("PT0M")
			alarm.SetProperty(ics.ComponentPropertyDescription, "Lunar Station "+rec.Name)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("writing calendar: %w", err)
	}
	return nil
}

// ReadICS parses a calendar export back into station names and UTC instants.
func ReadICS(r io.Reader) ([]Row, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var rows []Row
	for _, ev := range cal.Events() {
		summary := ev.GetProperty(ics.ComponentPropertySummary)
		if summary == nil {
			return nil, fmt.Errorf("event %s has no SUMMARY", ev.Id())
		}
		start, err := eventStart(ev)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Id(), err)
		}
		rows = append(rows, Row{Station: summary.Value, Start: start})
	}
	return rows, nil
}

func eventStart(ev *ics.VEvent) (time.Time, error) {
	if p := ev.GetProperty(propStartUTC); p != nil {
		t, err := time.Parse(time.RFC3339Nano, p.Value)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing %s: %w", propStartUTC, err)
		}
		return t.UTC(), nil
	}

	p := ev.GetProperty(ics.ComponentPropertyDtStart)
	if p == nil {
		return time.Time{}, fmt.Errorf("no DTSTART")
	}
	if strings.HasSuffix(p.Value, "Z") {
		return time.Parse(icsUTCLayout, p.Value)
	}
	loc := time.UTC
	if tzid := p.ICalParameters[string(ics.ParameterTzid)]; len(tzid) > 0 {
		l, err := time.LoadLocation(tzid[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("loading TZID %q: %w", tzid[0], err)
		}
		loc = l
	}
	t, err := time.ParseInLocation(icsLocalLayout, p.Value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing DTSTART %q: %w", p.Value, err)
	}
	return t.UTC(), nil
}

func setTime(ev *ics.VEvent, prop ics.ComponentProperty, t time.Time, tz string) {
	if tz == "UTC" || tz == "" {
		ev.SetProperty(prop, t.UTC().Format(icsUTCLayout))
		return
	}
	ev.SetProperty(prop, t.Format(icsLocalLayout), &ics.KeyValues{
		Key:   string(ics.ParameterTzid),
		Value: []string{tz},
	})
}

// addTimezone defines loc over [from, to]: one observance for the offset in
// effect at from, then one per offset change up to to.
func addTimezone(cal *ics.Calendar, loc *time.Location, from, to time.Time) {
	vtz := cal.AddTimezone(loc.String())

	start := from.In(loc)
	name, off := start.Zone()
	addObservance(vtz, start.IsDST(), start, off, off, name)

	for day := from; day.Before(to); {
		next := day.Add(24 * time.Hour)
		if next.After(to) {
			next = to
		}
		_, before := day.In(loc).Zone()
		if _, after := next.In(loc).Zone(); after != before {
			at := offsetChange(loc, day, next).In(loc)
			name, off := at.Zone()
			// The onset is wall-clock time under the previous offset.
			addObservance(vtz, at.IsDST(), at.In(time.FixedZone("", before)), before, off, name)
		}
		day = next
	}
}

// offsetChange returns the first whole second in (lo, hi] whose UTC offset
// differs from lo's.
func offsetChange(loc *time.Location, lo, hi time.Time) time.Time {
	lo, hi = lo.Truncate(time.Second), hi.Truncate(time.Second)
	_, before := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if _, off := mid.In(loc).Zone(); off == before {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

func addObservance(vtz *ics.VTimezone, dst bool, onset time.Time, from, to int, name string) {
	var base ics.ComponentBase
	base.SetProperty(ics.ComponentPropertyDtStart, onset.Format(icsLocalLayout))
	base.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetfrom), formatOffset(from))
	base.SetProperty(ics.ComponentProperty(ics.PropertyTzoffsetto), formatOffset(to))
	base.SetProperty(ics.ComponentProperty(ics.PropertyTzname), name)
	if dst {
		vtz.Components = append(vtz.Components, &ics.Daylight{ComponentBase: base})
	} else {
		vtz.Components = append(vtz.Components, &ics.Standard{ComponentBase: base})
	}
}

// formatOffset renders seconds east of UTC as ±HHMM, or ±HHMMSS when needed.
func formatOffset(sec int) string {
	sign := "+"
	if sec < 0 {
		sign, sec = "-", -sec
	}
	out := fmt.Sprintf("%s%02d%02d", sign, sec/3600, sec/60%60)
	if sec%60 != 0 {
		out += fmt.Sprintf("%02d", sec%60)
	}
	return out
}

func description(rec lunar.Record, f lunar.Fields) string {
	var lines []string
	if f.Description && rec.Description != "" {
		lines = append(lines, rec.Description)
	}
	if f.Longitude {
		lines = append(lines, "Ecliptic longitude "+strconv.FormatFloat(rec.Longitude, 'f', 4, 64))
	}
	if f.Latitude {
		lines = append(lines, "Ecliptic latitude "+strconv.FormatFloat(rec.Latitude, 'f', 4, 64))
	}
	if rec.Ambiguous {
		lines = append(lines, "Boundary crossed between samples")
	}
	return strings.Join(lines, ". ")
}

func eventUID(rec lunar.Record) string {
	key := strconv.Itoa(rec.Station) + "|" + rec.StartUTC.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + "@lunar-stations"
}
