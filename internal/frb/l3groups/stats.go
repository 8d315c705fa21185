package l3groups

import (
	"gonum.org/v1/gonum/stat"

	"github.com/chord-frb/sifter/internal/frb"
)

// frameStats computes the activity record shared by every group of a
// frame and pushes the new values into the lookback histories. Injection
// beams are excluded so that synthetic pulses do not look like RFI.
func (g *EventGrouper) frameStats(coh, incoh []frb.BeamDetection) frb.FrameStats {
	beams := map[int]struct{}{}
	cohDMs := map[float64]struct{}{}
	incohDMs := map[float64]struct{}{}
	var dms, grades []float64

	for i := range coh {
		d := &coh[i]
		if g.cfg.Grid.IsInjection(d.BeamID) {
			continue
		}
		beams[d.BeamID] = struct{}{}
		cohDMs[d.DM] = struct{}{}
		dms = append(dms, d.DM)
		grades = append(grades, float64(d.RFIGradeL1))
	}
	for i := range incoh {
		if g.cfg.Grid.IsInjection(incoh[i].BeamID) {
			continue
		}
		incohDMs[incoh[i].DM] = struct{}{}
	}

	s := frb.FrameStats{
		BeamActivity:    len(beams),
		CohDMActivity:   len(cohDMs),
		IncohDMActivity: len(incohDMs),
	}
	if len(grades) > 0 {
		s.AvgL1Grade = stat.Mean(grades, nil)
		_, s.DMStd = stat.PopMeanStdDev(dms, nil)
	}

	push(&g.dmLookback, s.CohDMActivity)
	push(&g.beamLookback, s.BeamActivity)
	s.DMActivityLookback = g.dmLookback
	s.BeamActivityLookback = g.beamLookback
	return s
}

// push appends v to a fixed-length history, evicting the oldest entry.
func push(h *[frb.LookbackLength]int, v int) {
	copy(h[:], h[1:])
	h[len(h)-1] = v
}

// Lookbacks returns the current DM and beam activity histories, oldest
// first.
func (g *EventGrouper) Lookbacks() (dm, beam [frb.LookbackLength]int) {
	return g.dmLookback, g.beamLookback
}
