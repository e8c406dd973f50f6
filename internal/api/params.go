package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/export"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
)

// defaultSpan is the range used when end is omitted.
const defaultSpan = 24 * time.Hour

// transitionQuery is a parsed /api/v1/transitions request.
type transitionQuery struct {
	req    lunar.Request
	format export.Format
}

// parseTransitionQuery reads the query string of a transitions request.
// Range and coordinate limits are left to lunar.Request.Normalize.
func parseTransitionQuery(q url.Values) (transitionQuery, error) {
	var tq transitionQuery

	lat, err := requiredFloat(q, "lat")
	if err != nil {
		return tq, err
	}
	lon, err := requiredFloat(q, "lon")
	if err != nil {
		return tq, err
	}
	elev := 0.0
	if v := q.Get("elev"); v != "" {
		if elev, err = strconv.ParseFloat(v, 64); err != nil {
			return tq, fmt.Errorf("invalid elev parameter %q", v)
		}
	}

	loc, err := lunar.LoadLocation(q.Get("tz"))
	if err != nil {
		return tq, err
	}

	if q.Get("start") == "" {
		return tq, fmt.Errorf("start parameter is required")
	}
	start, err := lunar.ParseInstant(q.Get("start"), loc)
	if err != nil {
		return tq, err
	}
	end := start.Add(defaultSpan)
	if v := q.Get("end"); v != "" {
		if end, err = lunar.ParseInstant(v, loc); err != nil {
			return tq, err
		}
	}

	var res time.Duration
	if v := q.Get("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return tq, fmt.Errorf("invalid resolution parameter %q, must be a positive number of seconds", v)
		}
		res = time.Duration(n) * time.Second
	}

	fields, err := lunar.ParseFields(q.Get("fields"))
	if err != nil {
		return tq, err
	}

	alerts := false
	if v := q.Get("alerts"); v != "" {
		if alerts, err = strconv.ParseBool(v); err != nil {
			return tq, fmt.Errorf("invalid alerts parameter %q", v)
		}
	}

	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		return tq, err
	}

	tq.req = lunar.Request{
		Observer: lunar.Observer{
			Latitude:  lat,
			Longitude: lon,
			Elevation: elev,
			Location:  loc,
		},
		Start:      start,
		End:        end,
		Resolution: res,
		Fields:     fields,
		Alerts:     alerts,
	}
	tq.format = format
	return tq, nil
}

func requiredFloat(q url.Values, key string) (float64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, fmt.Errorf("%s parameter is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", key, v)
	}
	return f, nil
}

// attachmentName is the download filename for a non-JSON export.
func attachmentName(req lunar.Request, f export.Format) string {
	return fmt.Sprintf("lunar_stations_%s_%s.%s",
		req.Start.In(req.Observer.Location).Format("20060102"),
		req.End.In(req.Observer.Location).Format("20060102"),
		f.Extension(),
	)
}
