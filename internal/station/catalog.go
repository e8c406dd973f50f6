// Package station defines the cyclic table of lunar stations and the mapping
// from ecliptic longitude to station.
package station

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Station is one division of the ecliptic, starting at Boundary and running
// east to the next station's boundary.
type Station struct {
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	Boundary    float64 `json:"boundary"` // ecliptic longitude, degrees [0, 360)
	Description string  `json:"description"`
}

// Definition is the input form of a station before it is placed in a Catalog.
type Definition struct {
	Boundary    float64
	Name        string
	Description string
}

// ErrInvalidCatalog is returned when a station table cannot form a cycle.
var ErrInvalidCatalog = errors.New("invalid station catalog")

// Catalog is an immutable, cyclically ordered station table.
// It is safe for concurrent use.
type Catalog struct {
	stations []Station
	sorted   []float64 // boundaries in ascending order
	order    []int     // order[i] is the station index whose boundary is sorted[i]
}

// traditional holds the 28 boundaries in station order, beginning with 1#LS.
var traditional = []float64{
	24.1167, 37.45, 50.7833, 64.1167, 77.45, 90.7833, 104.1167,
	117.45, 130.7833, 144.1167, 157.45, 170.7833, 184.1167, 197.45,
	210.7833, 224.1167, 237.45, 250.7833, 264.1167, 277.45, 290.7833,
	300.6167, 305.6167, 317.45, 330.7833, 344.1166, 357.45, 10.7833,
}

// Traditional returns the built-in 28-station catalog.
func Traditional() *Catalog {
	defs := make([]Definition, len(traditional))
	for i, b := range traditional {
		defs[i] = Definition{Boundary: b, Name: fmt.Sprintf("%d#LS", i+1)}
	}
	c, err := New(defs)
	if err != nil {
		panic(fmt.Sprintf("station: built-in catalog: %v", err))
	}
	return c
}

// New builds a Catalog from definitions given in cyclic order. Boundaries must
// lie in [0, 360), be distinct, and increase around the cycle with exactly one
// wrap through 0°. Empty descriptions are filled with the station's span.
func New(defs []Definition) (*Catalog, error) {
	n := len(defs)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 stations, got %d", ErrInvalidCatalog, n)
	}

	seen := make(map[float64]int, n)
	for i, d := range defs {
		if math.IsNaN(d.Boundary) || d.Boundary < 0 || d.Boundary >= 360 {
			return nil, fmt.Errorf("%w: station %d boundary %v outside [0, 360)", ErrInvalidCatalog, i, d.Boundary)
		}
		if j, ok := seen[d.Boundary]; ok {
			return nil, fmt.Errorf("%w: stations %d and %d share boundary %v", ErrInvalidCatalog, j, i, d.Boundary)
		}
		seen[d.Boundary] = i
		if d.Name == "" {
			return nil, fmt.Errorf("%w: station %d has no name", ErrInvalidCatalog, i)
		}
	}

	descents := 0
	for i := range defs {
		if defs[(i+1)%n].Boundary < defs[i].Boundary {
			descents++
		}
	}
	if descents != 1 {
		return nil, fmt.Errorf("%w: boundaries are not in cyclic order (%d wraps)", ErrInvalidCatalog, descents)
	}

	c := &Catalog{
		stations: make([]Station, n),
		sorted:   make([]float64, n),
		order:    make([]int, n),
	}
	for i, d := range defs {
		c.stations[i] = Station{Index: i, Name: d.Name, Boundary: d.Boundary, Description: d.Description}
		c.order[i] = i
	}
	for i := range c.stations {
		if c.stations[i].Description == "" {
			from, to := c.Span(i)
			c.stations[i].Description = fmt.Sprintf("%.4f° to %.4f°", from, to)
		}
	}

	sort.Slice(c.order, func(a, b int) bool {
		return c.stations[c.order[a]].Boundary < c.stations[c.order[b]].Boundary
	})
	for i, idx := range c.order {
		c.sorted[i] = c.stations[idx].Boundary
	}

	return c, nil
}

// Len returns the number of stations.
func (c *Catalog) Len() int { return len(c.stations) }

// Station returns the station at index k, taken modulo Len.
func (c *Catalog) Station(k int) Station {
	return c.stations[c.wrap(k)]
}

// Name returns the name of station k.
func (c *Catalog) Name(k int) string { return c.Station(k).Name }

// BoundaryFor returns the lower boundary longitude of station k.
func (c *Catalog) BoundaryFor(k int) float64 { return c.Station(k).Boundary }

// Span returns the lower and upper boundaries of station k. The upper bound may
// be numerically smaller when the station straddles 0°.
func (c *Catalog) Span(k int) (from, to float64) {
	return c.BoundaryFor(k), c.BoundaryFor(k + 1)
}

// Next returns the index of the station following k.
func (c *Catalog) Next(k int) int { return c.wrap(k + 1) }

// Steps returns how many stations forward one must advance from station from to
// reach station to, in [0, Len).
func (c *Catalog) Steps(from, to int) int {
	n := len(c.stations)
	return ((to-from)%n + n) % n
}

// StationContaining returns the station whose span contains lon. The station is
// the one with the greatest boundary ≤ lon, wrapping past 360° to the largest
// boundary when lon precedes every boundary. Lower edges are inclusive.
func (c *Catalog) StationContaining(lon float64) int {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	// First boundary strictly greater than lon; the one before it contains lon.
	i := sort.Search(len(c.sorted), func(i int) bool { return c.sorted[i] > lon })
	if i == 0 {
		return c.order[len(c.order)-1]
	}
	return c.order[i-1]
}

// Stations returns a copy of the table in station order.
func (c *Catalog) Stations() []Station {
	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

func (c *Catalog) wrap(k int) int {
	n := len(c.stations)
	return ((k % n) + n) % n
}
