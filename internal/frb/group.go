package frb

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// LookbackLength is the number of frames kept in the activity histories.
const LookbackLength = 10

// FrameStats summarises RFI-relevant activity of the frame a group came
// from. Every group of a frame carries an identical copy.
type FrameStats struct {
	BeamActivity         int                 `json:"beam_activity"`
	CohDMActivity        int                 `json:"coh_dm_activity"`
	IncohDMActivity      int                 `json:"incoh_dm_activity"`
	AvgL1Grade           float64             `json:"avg_l1_grade"`
	DMStd                float64             `json:"dm_std"`
	DMActivityLookback   [LookbackLength]int `json:"dm_activity_lookback"`   // oldest first
	BeamActivityLookback [LookbackLength]int `json:"beam_activity_lookback"` // oldest first
}

// Group is a set of detections judged to come from one physical event.
type Group struct {
	ID           uuid.UUID
	Detections   []BeamDetection
	MissingBeams []int
	Stats        FrameStats
}

// NewGroup builds a group with a fresh random ID.
func NewGroup(detections []BeamDetection, missing []int, stats FrameStats) Group {
	return Group{
		ID:           uuid.New(),
		Detections:   detections,
		MissingBeams: missing,
		Stats:        stats,
	}
}

// Peak returns the index of the highest-SNR detection, or -1 when empty.
func (g *Group) Peak() int {
	best := -1
	for i := range g.Detections {
		if best < 0 || g.Detections[i].SNR > g.Detections[best].SNR {
			best = i
		}
	}
	return best
}

// Beams returns the distinct beam ids of the group in ascending order.
func (g *Group) Beams() []int {
	set := make(map[int]struct{}, len(g.Detections))
	for i := range g.Detections {
		set[g.Detections[i].BeamID] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// TotalSNR returns the quadrature sum of the per-beam peak SNRs.
func (g *Group) TotalSNR() float64 {
	best := make(map[int]float64, len(g.Detections))
	for i := range g.Detections {
		d := &g.Detections[i]
		if s, ok := best[d.BeamID]; !ok || d.SNR > s {
			best[d.BeamID] = d.SNR
		}
	}
	var sum float64
	for _, s := range best {
		sum += s * s
	}
	return math.Sqrt(sum)
}
