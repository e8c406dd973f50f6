package lunar

import (
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
)

// TransitionEvent marks the Moon entering a station.
type TransitionEvent struct {
	Station      int       `json:"station"`
	Start        time.Time `json:"start"`       // UTC
	StartLocal   time.Time `json:"start_local"` // Start in the observer's timezone
	Longitude    float64   `json:"longitude"`   // ecliptic longitude at Start, degrees
	Latitude     float64   `json:"latitude"`    // ecliptic latitude at Start, degrees
	Ambiguous    bool      `json:"ambiguous,omitempty"`
	PartialStart bool      `json:"partial_start,omitempty"` // already in progress at range start
	PartialEnd   bool      `json:"partial_end,omitempty"`   // still in progress at range end
}

// WarningCoarseSampling is the kind of a Warning raised when one sample pair
// crosses more than one station boundary.
const WarningCoarseSampling = "coarse_sampling_ambiguity"

// Warning is a non-fatal condition found while scanning.
type Warning struct {
	Kind     string    `json:"kind"`
	Previous time.Time `json:"previous"` // earlier sample of the pair
	Instant  time.Time `json:"instant"`  // later sample of the pair
	From     int       `json:"from"`
	To       int       `json:"to"`
	Stations []int     `json:"stations"` // stations entered between the samples, in order
}

// ScanState is carried between chunks so crossings at chunk seams are detected
// exactly once.
type ScanState struct {
	Last    ephemeris.Sample
	Station int
	opened  bool
}
