package exposure

import (
	"fmt"
	"sort"
	"time"
)

const (
	// BinSeconds is the width of one exposure bin.
	BinSeconds = 10
	// BinsPerDay is the number of bins in a UTC day.
	BinsPerDay = 86400 / BinSeconds
)

// Grid is a [beam, bin] table of observed flags for one UTC day. Rows are
// ordered by ascending beam id.
type Grid struct {
	Beams    []int
	Bins     int
	Observed []bool // row-major, len(Beams)*Bins

	index map[int]int
}

// NewGrid returns an all-false grid for the given beams.
func NewGrid(beams []int) *Grid {
	sorted := append([]int(nil), beams...)
	sort.Ints(sorted)
	g := &Grid{
		Beams:    sorted,
		Bins:     BinsPerDay,
		Observed: make([]bool, len(sorted)*BinsPerDay),
	}
	g.buildIndex()
	return g
}

func (g *Grid) buildIndex() {
	g.index = make(map[int]int, len(g.Beams))
	for i, b := range g.Beams {
		g.index[b] = i
	}
}

// BinOf returns the bin of the UTC day that t falls in.
func BinOf(t time.Time) int {
	t = t.UTC()
	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return secs / BinSeconds
}

// Row returns the row index of a beam, or -1 if it is not part of the grid.
func (g *Grid) Row(beam int) int {
	if i, ok := g.index[beam]; ok {
		return i
	}
	return -1
}

// Mark flags every known beam as observed in the bin containing t.
// Beams outside the grid are ignored.
func (g *Grid) Mark(beams []int, t time.Time) {
	bin := BinOf(t)
	for _, b := range beams {
		if r := g.Row(b); r >= 0 {
			g.Observed[r*g.Bins+bin] = true
		}
	}
}

// IsObserved reports whether beam was observed in bin.
func (g *Grid) IsObserved(beam, bin int) bool {
	r := g.Row(beam)
	if r < 0 || bin < 0 || bin >= g.Bins {
		return false
	}
	return g.Observed[r*g.Bins+bin]
}

// Reset clears every flag.
func (g *Grid) Reset() {
	for i := range g.Observed {
		g.Observed[i] = false
	}
}

// CoverageFraction returns the fraction of the day's bins in which beam
// was observed.
func (g *Grid) CoverageFraction(beam int) float64 {
	r := g.Row(beam)
	if r < 0 || g.Bins == 0 {
		return 0
	}
	n := 0
	for _, v := range g.Observed[r*g.Bins : (r+1)*g.Bins] {
		if v {
			n++
		}
	}
	return float64(n) / float64(g.Bins)
}

// ObservedCount returns the total number of set flags.
func (g *Grid) ObservedCount() int {
	n := 0
	for _, v := range g.Observed {
		if v {
			n++
		}
	}
	return n
}

// SameShape reports whether g and o cover the same beams and bins.
func (g *Grid) SameShape(o *Grid) bool {
	if g.Bins != o.Bins || len(g.Beams) != len(o.Beams) {
		return false
	}
	for i := range g.Beams {
		if g.Beams[i] != o.Beams[i] {
			return false
		}
	}
	return true
}

// Equal reports whether two grids have the same shape and flags.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if !g.SameShape(o) || len(g.Observed) != len(o.Observed) {
		return false
	}
	for i := range g.Observed {
		if g.Observed[i] != o.Observed[i] {
			return false
		}
	}
	return true
}

func (g *Grid) validate() error {
	if g.Bins <= 0 {
		return fmt.Errorf("grid has %d bins", g.Bins)
	}
	if len(g.Observed) != len(g.Beams)*g.Bins {
		return fmt.Errorf("grid has %d flags, want %d", len(g.Observed), len(g.Beams)*g.Bins)
	}
	return nil
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	c := &Grid{
		Beams:    append([]int(nil), g.Beams...),
		Bins:     g.Bins,
		Observed: append([]bool(nil), g.Observed...),
	}
	c.buildIndex()
	return c
}
