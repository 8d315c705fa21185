package frb

import (
	"fmt"
	"sort"
)

// Default beam-grid layout: four east-west columns of 256 north-south
// beams, encoded as ew*1000 + ns.
const (
	DefaultBeamGridStride   = 1000
	DefaultNumEWBeams       = 4
	DefaultNumNSBeams       = 256
	DefaultInjectionBeamMin = 10000
)

// BeamGrid decodes beam ids into grid coordinates.
type BeamGrid struct {
	Stride           int // beam_id = ew*Stride + ns
	NumEW            int
	NumNS            int
	InjectionBeamMin int // ids at or above this are injection beams; 0 disables
}

// DefaultBeamGrid returns the production beam layout.
func DefaultBeamGrid() BeamGrid {
	return BeamGrid{
		Stride:           DefaultBeamGridStride,
		NumEW:            DefaultNumEWBeams,
		NumNS:            DefaultNumNSBeams,
		InjectionBeamMin: DefaultInjectionBeamMin,
	}
}

// Validate checks the grid can decode beam ids.
func (g BeamGrid) Validate() error {
	if g.Stride <= 0 {
		return fmt.Errorf("%w: beam grid stride must be positive, got %d", ErrInvalidConfig, g.Stride)
	}
	if g.NumEW < 0 || g.NumNS < 0 {
		return fmt.Errorf("%w: negative beam grid size %dx%d", ErrInvalidConfig, g.NumEW, g.NumNS)
	}
	if g.NumNS > g.Stride {
		return fmt.Errorf("%w: %d north-south beams do not fit stride %d", ErrInvalidConfig, g.NumNS, g.Stride)
	}
	return nil
}

// EW returns the east-west grid index of a beam.
func (g BeamGrid) EW(beamID int) int { return beamID / g.Stride }

// NS returns the north-south grid index of a beam.
func (g BeamGrid) NS(beamID int) int { return beamID % g.Stride }

// BeamID encodes grid coordinates.
func (g BeamGrid) BeamID(ew, ns int) int { return ew*g.Stride + ns }

// IsInjection reports whether the beam id belongs to the injection range.
func (g BeamGrid) IsInjection(beamID int) bool {
	return g.InjectionBeamMin > 0 && beamID >= g.InjectionBeamMin
}

// Universe returns every beam id of the grid in ascending order.
func (g BeamGrid) Universe() []int {
	ids := make([]int, 0, g.NumEW*g.NumNS)
	for ew := 0; ew < g.NumEW; ew++ {
		for ns := 0; ns < g.NumNS; ns++ {
			ids = append(ids, g.BeamID(ew, ns))
		}
	}
	return ids
}

// SortedBeams returns the members of a beam set in ascending order.
func SortedBeams(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}
