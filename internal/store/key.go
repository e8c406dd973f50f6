package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/station"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/aekmcb/Lunar-Stations/results"))

// Key returns a deterministic identifier for the result of req under cfg and
// catalog. req should already be normalized. Output fields and alerts do not
// affect the key.
func Key(req lunar.Request, cfg lunar.Config, catalog *station.Catalog) string {
	loc := "UTC"
	if req.Observer.Location != nil {
		loc = req.Observer.Location.String()
	}
	canonical := fmt.Sprintf("v1|lat=%.6f|lon=%.6f|elev=%.1f|tz=%s|start=%s|end=%s|res=%d|frame=%s|refine=%t|catalog=%s",
		req.Observer.Latitude,
		req.Observer.Longitude,
		req.Observer.Elevation,
		loc,
		req.Start.UTC().Format(time.RFC3339Nano),
		req.End.UTC().Format(time.RFC3339Nano),
		int64(req.Resolution/time.Second),
		cfg.Frame,
		cfg.Refine,
		Fingerprint(catalog),
	)
	return uuid.NewSHA1(keyNamespace, []byte(canonical)).String()
}

// Fingerprint identifies a catalog's boundaries and names.
func Fingerprint(catalog *station.Catalog) string {
	var b strings.Builder
	for _, s := range catalog.Stations() {
		fmt.Fprintf(&b, "%.6f:%s;", s.Boundary, s.Name)
	}
	return uuid.NewSHA1(keyNamespace, []byte(b.String())).String()
}
