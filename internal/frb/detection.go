package frb

import (
	"fmt"
	"math"
	"time"
)

// AuxFields carries L1 measurements that the sifter passes through to
// downstream consumers without interpreting them.
type AuxFields struct {
	SpectralIndex      uint8
	ScatteringMeasure  uint8
	Level1NHits        uint16
	RFIMaskFraction    float32
	RFIClipFraction    float32
	SNRvsDM            []float32
	SNRvsTreeIndex     []float32
	SNRvsSpectralIndex []float32
}

// BeamDetection is one candidate pulse measured in one beam during one
// FPGA chunk. FPGATime is authoritative; UTCTime may be rewritten from a
// frame-zero epoch before grouping.
type BeamDetection struct {
	BeamID       int
	UTCTime      time.Time // microsecond precision
	FPGATime     uint64
	ChunkFPGA    uint64
	DM           float64
	DMError      float64
	SNR          float64
	SNRScale     float64
	RFIGradeL1   uint8 // 0 = interference, 10 = astrophysical
	TreeIndex    uint8
	IsIncoherent bool
	RFIProb      float64
	Aux          *AuxFields

	// Set by the frame assembler on ingest.
	PipelineTimestamp time.Time
	PipelineID        uint64
}

// Validate reports whether the detection can be buffered.
func (d *BeamDetection) Validate() error {
	if d.BeamID < 0 {
		return fmt.Errorf("%w: negative beam id %d", ErrMalformedReport, d.BeamID)
	}
	if math.IsNaN(d.DM) || math.IsInf(d.DM, 0) {
		return fmt.Errorf("%w: beam %d has non-finite dm", ErrMalformedReport, d.BeamID)
	}
	if math.IsNaN(d.SNR) || math.IsInf(d.SNR, 0) {
		return fmt.Errorf("%w: beam %d has non-finite snr", ErrMalformedReport, d.BeamID)
	}
	return nil
}

// MillisSince returns the UTC offset of d from ref in milliseconds.
func (d *BeamDetection) MillisSince(ref time.Time) float64 {
	return float64(d.UTCTime.Sub(ref).Microseconds()) / 1e3
}
