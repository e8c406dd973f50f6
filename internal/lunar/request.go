package lunar

import (
	"math"
	"strings"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/transform"
)

// Sampling resolution limits.
const (
	DefaultResolution = time.Minute
	MinResolution     = time.Second
	MaxResolution     = time.Hour
)

// Observer is the ground location transitions are computed for.
type Observer struct {
	Latitude  float64        `json:"latitude"`  // degrees [-90, 90]
	Longitude float64        `json:"longitude"` // degrees [-180, 180], east positive
	Elevation float64        `json:"elevation"` // meters above the ellipsoid
	Location  *time.Location `json:"-"`         // timezone for local times; nil means UTC
}

// Site returns the observer's geodetic site.
func (o Observer) Site() transform.Site {
	return transform.NewSite(o.Latitude, o.Longitude, o.Elevation)
}

// Fields selects the optional per-transition columns of an export.
type Fields struct {
	Longitude   bool `json:"longitude"`
	Latitude    bool `json:"latitude"`
	Description bool `json:"description"`
}

// Request describes one transition calculation over [Start, End].
type Request struct {
	Observer   Observer
	Start      time.Time
	End        time.Time
	Resolution time.Duration
	Fields     Fields
	Alerts     bool // add a calendar alarm to each exported event
}

// Normalize validates r against maxRange and returns a copy with defaults
// applied. Errors wrap ErrInvalidRequest.
func (r Request) Normalize(maxRange time.Duration) (Request, error) {
	o := r.Observer
	if math.IsNaN(o.Latitude) || o.Latitude < -90 || o.Latitude > 90 {
		return r, invalidf("latitude %v outside [-90, 90]", o.Latitude)
	}
	if math.IsNaN(o.Longitude) || o.Longitude < -180 || o.Longitude > 180 {
		return r, invalidf("longitude %v outside [-180, 180]", o.Longitude)
	}
	if math.IsNaN(o.Elevation) || math.IsInf(o.Elevation, 0) || o.Elevation < -500 || o.Elevation > 10000 {
		return r, invalidf("elevation %v m outside [-500, 10000]", o.Elevation)
	}
	if o.Location == nil {
		r.Observer.Location = time.UTC
	}

	if r.Resolution == 0 {
		r.Resolution = DefaultResolution
	}
	if r.Resolution < MinResolution || r.Resolution > MaxResolution {
		return r, invalidf("resolution %v outside [%v, %v]", r.Resolution, MinResolution, MaxResolution)
	}
	if r.Resolution%time.Second != 0 {
		return r, invalidf("resolution %v is not a whole number of seconds", r.Resolution)
	}

	if r.Start.IsZero() || r.End.IsZero() {
		return r, invalidf("start and end are required")
	}
	if !r.End.After(r.Start) {
		return r, invalidf("end %s is not after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	if maxRange > 0 && r.End.Sub(r.Start) > maxRange {
		return r, invalidf("range %v exceeds maximum %v", r.End.Sub(r.Start), maxRange)
	}

	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	return r, nil
}

// instantLayouts are accepted by ParseInstant, most specific first. Layouts
// without a zone are read in the caller's location.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseInstant parses a date-time. Values carrying an offset keep it; all
// others are interpreted in loc. Errors wrap ErrInvalidRequest.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidf("unrecognized date-time %q", s)
}

// ParseFields parses a comma separated list of optional columns. "all"
// selects every column and an empty string selects none.
func ParseFields(s string) (Fields, error) {
	var f Fields
	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
		case "all":
			f = Fields{Longitude: true, Latitude: true, Description: true}
		case "longitude", "lon":
			f.Longitude = true
		case "latitude", "lat":
			f.Latitude = true
		case "description", "desc":
			f.Description = true
		default:
			return Fields{}, invalidf("unknown field %q", name)
		}
	}
	return f, nil
}

// LoadLocation resolves an IANA timezone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidf("unknown timezone %q", name)
	}
	return loc, nil
}
