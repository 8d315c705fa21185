package l2frames

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/monitoring"
	"github.com/chord-frb/sifter/internal/timeutil"
)

// DefaultCountsPerChunk is the number of FPGA samples in one L1 chunk.
const DefaultCountsPerChunk = 4096 * 384

// AssemblerConfig contains configuration for the FrameAssembler.
type AssemblerConfig struct {
	CountsPerChunk uint64          // FPGA samples per chunk (required)
	Beams          []int           // universe of expected beams (required)
	Clock          timeutil.Clock  // arrival clock (default: RealClock)
	Store          *exposure.Store // exposure persistence; nil disables it
}

type beamSet map[int]struct{}

func (s beamSet) has(b int) bool {
	_, ok := s[b]
	return ok
}

func (s beamSet) add(b int) { s[b] = struct{}{} }

// covers reports whether every member of o is in s.
func (s beamSet) covers(o beamSet) bool {
	for b := range o {
		if !s.has(b) {
			return false
		}
	}
	return true
}

// minus returns the members of s absent from o, ascending.
func (s beamSet) minus(o beamSet) []int {
	out := []int{}
	for b := range s {
		if !o.has(b) {
			out = append(out, b)
		}
	}
	sort.Ints(out)
	return out
}

// FrameAssembler aligns asynchronous per-beam reports into frames using
// an escalating quorum. A beam that reports once more than the current
// cycle can absorb is a straggler; on its fourth repeat the beams still
// unreported are declared lost and the frame is forced out.
type FrameAssembler struct {
	mu             sync.Mutex
	countsPerChunk uint64
	clock          timeutil.Clock

	hopingFor      beamSet // static universe
	waitingFor     beamSet // expected this cycle
	reported       beamSet
	reportedTwice  beamSet
	reportedThrice beamSet

	buffer     []frb.BeamDetection // keyed only by FPGATime
	pipelineID uint64

	exposure *exposure.Tracker
	stats    AssemblerStats
}

// AssemblerStats counts assembler activity since construction.
type AssemblerStats struct {
	Reports            uint64 `json:"reports"`
	UnknownBeamReports uint64 `json:"unknown_beam_reports"`
	MalformedReports   uint64 `json:"malformed_reports"`
	Frames             uint64 `json:"frames"`
	EmptyDumps         uint64 `json:"empty_dumps"`
	ForcedDumps        uint64 `json:"forced_dumps"`
	LostBeams          uint64 `json:"lost_beams"`
	Buffered           int    `json:"buffered"`
}

// Liveness is a snapshot of the quorum sets, ascending.
type Liveness struct {
	HopingFor      []int `json:"hoping_for"`
	WaitingFor     []int `json:"waiting_for"`
	Reported       []int `json:"reported"`
	ReportedTwice  []int `json:"reported_twice"`
	ReportedThrice []int `json:"reported_thrice"`
}

// NewFrameAssembler creates an assembler expecting reports from cfg.Beams.
func NewFrameAssembler(cfg AssemblerConfig) (*FrameAssembler, error) {
	if cfg.CountsPerChunk == 0 {
		return nil, fmt.Errorf("%w: counts_per_chunk must be positive", frb.ErrInvalidConfig)
	}
	if len(cfg.Beams) == 0 {
		return nil, fmt.Errorf("%w: empty beam universe", frb.ErrInvalidConfig)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	hoping := make(beamSet, len(cfg.Beams))
	for _, b := range cfg.Beams {
		if b < 0 {
			return nil, fmt.Errorf("%w: negative beam id %d in universe", frb.ErrInvalidConfig, b)
		}
		hoping.add(b)
	}

	a := &FrameAssembler{
		countsPerChunk: cfg.CountsPerChunk,
		clock:          clock,
		hopingFor:      hoping,
		waitingFor:     beamSet{},
		reported:       beamSet{},
		reportedTwice:  beamSet{},
		reportedThrice: beamSet{},
		exposure:       exposure.NewTracker(frb.SortedBeams(hoping), cfg.Store, clock.Now()),
	}
	monitoring.Logf("[FrameAssembler] Expecting %d beams, %d FPGA counts per chunk", len(hoping), cfg.CountsPerChunk)
	return a, nil
}

// normalizeMarker turns a chunk index into an FPGA count. Markers below
// one chunk length are indices.
func (a *FrameAssembler) normalizeMarker(marker uint64) uint64 {
	if marker < a.countsPerChunk {
		return marker * a.countsPerChunk
	}
	return marker
}

// Ingest accepts one report from beamID for the chunk at chunkMarker and
// returns a Frame when the report completes the current cycle or forces
// out a frame with lost beams. Detections are buffered on every call.
// Reports from beams outside the universe, such as injection beams, add
// their detections but take no part in the quorum. A malformed report
// returns ErrMalformedReport and leaves the assembler unchanged.
func (a *FrameAssembler) Ingest(beamID int, chunkMarker uint64, detections []frb.BeamDetection) (*frb.Frame, error) {
	if err := validateReport(beamID, detections); err != nil {
		a.mu.Lock()
		a.stats.MalformedReports++
		a.mu.Unlock()
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Reports++
	a.bufferDetections(detections)
	if !a.hopingFor.has(beamID) {
		a.stats.UnknownBeamReports++
		monitoring.Diagf("[FrameAssembler] Buffered %d detections from unknown beam %d", len(detections), beamID)
		return nil, nil
	}

	marker := a.normalizeMarker(chunkMarker)

	switch {
	case !a.waitingFor.has(beamID):
		a.waitingFor.add(beamID)
		monitoring.Diagf("[FrameAssembler] Beam %d joined cycle (%d waiting)", beamID, len(a.waitingFor))
		return nil, nil

	case !a.reported.has(beamID):
		a.reported.add(beamID)
		if a.reported.covers(a.waitingFor) {
			return a.dump(marker+a.countsPerChunk, false), nil
		}
		return nil, nil

	case !a.reportedTwice.has(beamID):
		a.reportedTwice.add(beamID)
		return nil, nil

	case !a.reportedThrice.has(beamID):
		a.reportedThrice.add(beamID)
		return nil, nil
	}

	lost := a.waitingFor.minus(a.reported)
	a.stats.LostBeams += uint64(len(lost))
	monitoring.Logf("[FrameAssembler] Beam %d reported four times at marker %d; declaring %d beams lost: %v",
		beamID, marker, len(lost), lost)
	// The forced cutoff is the marker itself, one chunk earlier than a
	// complete cycle would use.
	frame := a.dump(marker, true)
	a.reported.add(beamID)
	return frame, nil
}

func validateReport(beamID int, detections []frb.BeamDetection) error {
	if beamID < 0 {
		return fmt.Errorf("%w: negative beam id %d", frb.ErrMalformedReport, beamID)
	}
	for i := range detections {
		if err := detections[i].Validate(); err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
	}
	return nil
}

// bufferDetections tags detections with their arrival and appends them
// to the buffer. The slice elements are copied into the buffer; callers
// hand over ownership and must not reuse them.
func (a *FrameAssembler) bufferDetections(detections []frb.BeamDetection) {
	if len(detections) == 0 {
		return
	}
	now := a.clock.Now()
	for i := range detections {
		d := detections[i]
		d.PipelineTimestamp = now
		d.PipelineID = a.pipelineID
		a.pipelineID++
		a.buffer = append(a.buffer, d)
	}
}

// dump closes the current cycle. Detections before cutoff are emitted,
// the rest stay buffered for the next frame. It returns nil when nothing
// falls before the cutoff.
func (a *FrameAssembler) dump(cutoff uint64, forced bool) *frb.Frame {
	missing := a.hopingFor.minus(a.reported)
	a.exposure.Mark(frb.SortedBeams(a.reported), a.clock.Now())

	a.waitingFor = a.reported
	a.reported = beamSet{}
	a.reportedTwice = beamSet{}
	a.reportedThrice = beamSet{}

	var emit, retain []frb.BeamDetection
	for _, d := range a.buffer {
		if d.FPGATime < cutoff {
			emit = append(emit, d)
		} else {
			retain = append(retain, d)
		}
	}
	a.buffer = retain

	if forced {
		a.stats.ForcedDumps++
	}
	if len(emit) == 0 {
		a.stats.EmptyDumps++
		monitoring.Diagf("[FrameAssembler] Dump at cutoff %d emitted nothing (%d retained)", cutoff, len(retain))
		return nil
	}
	a.stats.Frames++
	monitoring.Diagf("[FrameAssembler] Frame at cutoff %d: %d detections, %d missing beams, %d retained",
		cutoff, len(emit), len(missing), len(retain))
	return &frb.Frame{
		Cutoff:       cutoff,
		MissingBeams: missing,
		Detections:   emit,
		Forced:       forced,
	}
}

// Close persists the exposure grid of the current UTC date.
func (a *FrameAssembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exposure.Flush()
	monitoring.Logf("[FrameAssembler] Closed with %d buffered detections", len(a.buffer))
}

// Stats returns the activity counters.
func (a *FrameAssembler) Stats() AssemblerStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Buffered = len(a.buffer)
	return s
}

// Liveness returns a snapshot of the quorum sets.
func (a *FrameAssembler) Liveness() Liveness {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Liveness{
		HopingFor:      frb.SortedBeams(a.hopingFor),
		WaitingFor:     frb.SortedBeams(a.waitingFor),
		Reported:       frb.SortedBeams(a.reported),
		ReportedTwice:  frb.SortedBeams(a.reportedTwice),
		ReportedThrice: frb.SortedBeams(a.reportedThrice),
	}
}

// ExposureSnapshot returns a copy of the live exposure grid and its date.
func (a *FrameAssembler) ExposureSnapshot() (*exposure.Grid, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exposure.Grid().Clone(), a.exposure.Day().Format("2006-01-02")
}
