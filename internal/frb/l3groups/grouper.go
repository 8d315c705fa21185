package l3groups

import (
	"fmt"
	"math"
	"time"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/monitoring"
)

// Default grouping thresholds.
const (
	DefaultTimeThresholdMs = 10.0
	DefaultDMThreshold     = 10.0
	DefaultEWThreshold     = 1.0
	DefaultNSThreshold     = 2.0
)

// GrouperConfig contains configuration for the EventGrouper.
type GrouperConfig struct {
	TimeThresholdMs float64        // max |Δt| between linked detections
	DMThreshold     float64        // max |ΔDM|
	EWThreshold     float64        // max east-west beam-grid separation
	NSThreshold     float64        // max north-south beam-grid separation
	Grid            frb.BeamGrid   // decodes beam ids, flags injection beams
	Corrector       *TimeCorrector // optional UTC correction before grouping
}

// DefaultGrouperConfig returns the production thresholds.
func DefaultGrouperConfig() GrouperConfig {
	return GrouperConfig{
		TimeThresholdMs: DefaultTimeThresholdMs,
		DMThreshold:     DefaultDMThreshold,
		EWThreshold:     DefaultEWThreshold,
		NSThreshold:     DefaultNSThreshold,
		Grid:            frb.DefaultBeamGrid(),
	}
}

// Validate checks every threshold is positive and the grid decodes ids.
func (c GrouperConfig) Validate() error {
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"t_thr", c.TimeThresholdMs},
		{"dm_thr", c.DMThreshold},
		{"ew_thr", c.EWThreshold},
		{"ns_thr", c.NSThreshold},
	} {
		if !(th.v > 0) || math.IsInf(th.v, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %v", frb.ErrInvalidConfig, th.name, th.v)
		}
	}
	return c.Grid.Validate()
}

// EventGrouper turns one frame at a time into groups of detections that
// share an origin. It keeps short activity histories across frames and is
// not safe for concurrent use.
type EventGrouper struct {
	cfg GrouperConfig

	dmLookback   [frb.LookbackLength]int
	beamLookback [frb.LookbackLength]int
	frames       uint64
}

// NewEventGrouper creates a grouper with empty (all-zero) histories.
func NewEventGrouper(cfg GrouperConfig) (*EventGrouper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EventGrouper{cfg: cfg}, nil
}

// Config returns the grouper configuration.
func (g *EventGrouper) Config() GrouperConfig { return g.cfg }

// Group clusters the detections of frame. Coherent detections linked by
// a chain of pairs within every threshold form one group; incoherent
// detections join the first group whose peak they match in time and DM,
// or stand alone. An empty frame yields nil.
func (g *EventGrouper) Group(frame *frb.Frame) []frb.Group {
	if frame.Len() == 0 {
		return nil
	}
	g.frames++
	if g.cfg.Corrector != nil {
		g.cfg.Corrector.Correct(frame.Detections)
	}

	coh, incoh := splitCoherent(frame.Detections)

	var members [][]frb.BeamDetection
	for _, comp := range g.cluster(coh) {
		dets := make([]frb.BeamDetection, 0, len(comp))
		for _, i := range comp {
			dets = append(dets, coh[i])
		}
		members = append(members, dets)
	}
	members = g.mergeIncoherent(members, incoh)

	stats := g.frameStats(coh, incoh)
	groups := make([]frb.Group, 0, len(members))
	for _, dets := range members {
		missing := append([]int{}, frame.MissingBeams...)
		groups = append(groups, frb.NewGroup(dets, missing, stats))
	}
	monitoring.Diagf("[EventGrouper] Frame %d: %d coherent, %d incoherent detections -> %d groups",
		g.frames, len(coh), len(incoh), len(groups))
	return groups
}

// splitCoherent partitions detections by beam-forming mode. Of the
// incoherent detections only those of the lowest incoherent beam id are
// kept, dropping duplicates from parallel injection streams.
func splitCoherent(dets []frb.BeamDetection) (coh, incoh []frb.BeamDetection) {
	lowest := -1
	for i := range dets {
		if dets[i].IsIncoherent && (lowest < 0 || dets[i].BeamID < lowest) {
			lowest = dets[i].BeamID
		}
	}
	for i := range dets {
		switch {
		case !dets[i].IsIncoherent:
			coh = append(coh, dets[i])
		case dets[i].BeamID == lowest:
			incoh = append(incoh, dets[i])
		}
	}
	return coh, incoh
}

// cluster returns the connected components of the coherent neighbour
// graph as index lists.
func (g *EventGrouper) cluster(coh []frb.BeamDetection) [][]int {
	if len(coh) == 0 {
		return nil
	}
	t0 := coh[0].UTCTime
	for i := range coh {
		if coh[i].UTCTime.Before(t0) {
			t0 = coh[i].UTCTime
		}
	}
	points := make([]point, len(coh))
	for i := range coh {
		d := &coh[i]
		points[i] = point{
			t:  d.MillisSince(t0) / g.cfg.TimeThresholdMs,
			dm: d.DM / g.cfg.DMThreshold,
			ew: float64(g.cfg.Grid.EW(d.BeamID)) / g.cfg.EWThreshold,
			ns: float64(g.cfg.Grid.NS(d.BeamID)) / g.cfg.NSThreshold,
		}
	}
	return newSpatialIndex(points).components(points)
}

// mergeIncoherent appends each incoherent detection to the first group
// whose peak lies within the time and DM thresholds. Unmatched detections
// become singleton groups after the coherent ones.
func (g *EventGrouper) mergeIncoherent(groups [][]frb.BeamDetection, incoh []frb.BeamDetection) [][]frb.BeamDetection {
	consumed := make([]bool, len(incoh))
	for gi, dets := range groups {
		peak := dets[peakIndex(dets)]
		for i := range incoh {
			if consumed[i] {
				continue
			}
			dt := millis(incoh[i].UTCTime.Sub(peak.UTCTime))
			if math.Abs(dt) <= g.cfg.TimeThresholdMs && math.Abs(incoh[i].DM-peak.DM) <= g.cfg.DMThreshold {
				groups[gi] = append(groups[gi], incoh[i])
				consumed[i] = true
			}
		}
	}
	for i := range incoh {
		if !consumed[i] {
			groups = append(groups, []frb.BeamDetection{incoh[i]})
		}
	}
	return groups
}

func peakIndex(dets []frb.BeamDetection) int {
	best := 0
	for i := range dets {
		if dets[i].SNR > dets[best].SNR {
			best = i
		}
	}
	return best
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1e3
}
