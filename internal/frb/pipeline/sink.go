package pipeline

import (
	"context"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/monitoring"
)

// GroupSink receives the groups of one frame. Implementations take
// ownership of the slice.
type GroupSink interface {
	WriteGroups(ctx context.Context, groups []frb.Group) error
}

// SinkFunc adapts a function to GroupSink.
type SinkFunc func(ctx context.Context, groups []frb.Group) error

// WriteGroups calls f.
func (f SinkFunc) WriteGroups(ctx context.Context, groups []frb.Group) error {
	return f(ctx, groups)
}

// LogSink writes a one-line summary of every group to the ops log.
type LogSink struct{}

// WriteGroups logs each group.
func (LogSink) WriteGroups(_ context.Context, groups []frb.Group) error {
	for i := range groups {
		g := &groups[i]
		p := g.Peak()
		if p < 0 {
			continue
		}
		peak := g.Detections[p]
		monitoring.Logf("[Group] %s: %d detections in beams %v, peak beam %d snr %.1f dm %.2f",
			g.ID, len(g.Detections), g.Beams(), peak.BeamID, peak.SNR, peak.DM)
	}
	return nil
}
