package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/l2frames"
	"github.com/chord-frb/sifter/internal/frb/l3groups"
	"github.com/chord-frb/sifter/internal/monitoring"
)

// DefaultQueueDepth is used when Config.QueueDepth is not positive.
const DefaultQueueDepth = 64

var (
	// ErrStopped is returned by Submit once the runtime has shut down.
	ErrStopped = errors.New("pipeline stopped")
	// ErrAlreadyRun is returned by every call to Run after the first.
	ErrAlreadyRun = errors.New("pipeline already run")
)

// Report is one beam's detections for one chunk.
type Report struct {
	BeamID      int
	ChunkMarker uint64
	Detections  []frb.BeamDetection
}

// Runtime owns the assembler and grouper and the queue between them.
// Submit may be called from any goroutine; the workers run inside Run.
type Runtime struct {
	assembler *l2frames.FrameAssembler
	grouper   *l3groups.EventGrouper
	sinks     []GroupSink

	reports chan Report
	frames  chan *frb.Frame
	done    chan struct{}
	started atomic.Bool

	mu           sync.Mutex
	groups       uint64
	lastStats    frb.FrameStats
	dmLookback   [frb.LookbackLength]int
	beamLookback [frb.LookbackLength]int
}

// NewRuntime builds the assembler and grouper described by cfg.
func NewRuntime(cfg Config, sinks ...GroupSink) (*Runtime, error) {
	asm, err := l2frames.NewFrameAssembler(cfg.Assembler)
	if err != nil {
		return nil, fmt.Errorf("frame assembler: %w", err)
	}
	grp, err := l3groups.NewEventGrouper(cfg.Grouper)
	if err != nil {
		return nil, fmt.Errorf("event grouper: %w", err)
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Runtime{
		assembler: asm,
		grouper:   grp,
		sinks:     sinks,
		reports:   make(chan Report, depth),
		frames:    make(chan *frb.Frame, depth),
		done:      make(chan struct{}),
	}, nil
}

// Submit queues a report for the assembler. It blocks while the queue is
// full and returns ctx.Err() or ErrStopped if the report cannot be queued.
func (r *Runtime) Submit(ctx context.Context, rep Report) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.reports <- rep:
		queueDepth.WithLabelValues("reports").Set(float64(len(r.reports)))
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes reports until ctx is cancelled, then lets the grouper
// finish the frames already queued and persists the exposure grid. A
// Runtime runs once; later calls return ErrAlreadyRun.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.groupLoop()
	}()

	monitoring.Logf("[pipeline] Running")
	for {
		select {
		case <-ctx.Done():
			close(r.done)
			close(r.frames)
			wg.Wait()
			if n := len(r.reports); n > 0 {
				monitoring.Logf("[pipeline] Dropping %d queued reports at shutdown", n)
			}
			r.assembler.Close()
			monitoring.Logf("[pipeline] Stopped")
			return nil
		case rep := <-r.reports:
			r.ingest(rep)
		}
	}
}

func (r *Runtime) ingest(rep Report) {
	queueDepth.WithLabelValues("reports").Set(float64(len(r.reports)))
	frame, err := r.assembler.Ingest(rep.BeamID, rep.ChunkMarker, rep.Detections)
	if err != nil {
		reportsTotal.WithLabelValues("malformed").Inc()
		monitoring.Logf("[pipeline] Rejected report from beam %d: %v", rep.BeamID, err)
		return
	}
	reportsTotal.WithLabelValues("accepted").Inc()
	if frame == nil {
		return
	}
	if frame.Forced {
		framesTotal.WithLabelValues("forced").Inc()
		lostBeamsTotal.Add(float64(len(frame.MissingBeams)))
	} else {
		framesTotal.WithLabelValues("complete").Inc()
	}
	r.frames <- frame
	queueDepth.WithLabelValues("frames").Set(float64(len(r.frames)))
}

func (r *Runtime) groupLoop() {
	for frame := range r.frames {
		queueDepth.WithLabelValues("frames").Set(float64(len(r.frames)))
		groups := r.grouper.Group(frame)
		if len(groups) == 0 {
			continue
		}
		groupsTotal.Add(float64(len(groups)))

		dm, beam := r.grouper.Lookbacks()
		r.mu.Lock()
		r.groups += uint64(len(groups))
		r.lastStats = groups[0].Stats
		r.dmLookback, r.beamLookback = dm, beam
		r.mu.Unlock()

		for _, s := range r.sinks {
			if err := s.WriteGroups(context.Background(), groups); err != nil {
				sinkErrorsTotal.Inc()
				monitoring.Logf("[pipeline] Sink failed for %d groups: %v", len(groups), err)
			}
		}
	}
}

// Snapshot is the runtime state shown on the debug pages.
type Snapshot struct {
	Assembler            l2frames.AssemblerStats `json:"assembler"`
	Liveness             l2frames.Liveness       `json:"liveness"`
	Groups               uint64                  `json:"groups"`
	LastStats            frb.FrameStats          `json:"last_stats"`
	DMActivityLookback   [frb.LookbackLength]int `json:"dm_activity_lookback"`
	BeamActivityLookback [frb.LookbackLength]int `json:"beam_activity_lookback"`
}

// Snapshot returns a consistent copy of the runtime counters.
func (r *Runtime) Snapshot() Snapshot {
	s := Snapshot{
		Assembler: r.assembler.Stats(),
		Liveness:  r.assembler.Liveness(),
	}
	r.mu.Lock()
	s.Groups = r.groups
	s.LastStats = r.lastStats
	s.DMActivityLookback = r.dmLookback
	s.BeamActivityLookback = r.beamLookback
	r.mu.Unlock()
	return s
}

// Exposure returns a copy of today's exposure grid and its date.
func (r *Runtime) Exposure() (*exposure.Grid, string) {
	return r.assembler.ExposureSnapshot()
}
