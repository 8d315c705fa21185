package rpc

import (
	"time"

	"github.com/chord-frb/sifter/internal/frb"
)

// ConfigMessage carries a search node's configuration as YAML.
type ConfigMessage struct {
	YAML string `json:"yaml"`
}

// Reply is the answer to every FrbSifter call.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// FrbEvent is one L1 detection as sent by a search node.
type FrbEvent struct {
	BeamID        int     `json:"beam_id"`
	FPGATimestamp uint64  `json:"fpga_timestamp"`
	TimestampUTC  int64   `json:"timestamp_utc_us,omitempty"` // Unix µs
	DM            float64 `json:"dm"`
	DMError       float64 `json:"dm_error"`
	SNR           float64 `json:"snr"`
	SNRScale      float64 `json:"snr_scale,omitempty"`
	RFIGrade      uint8   `json:"rfi_grade_level1,omitempty"`
	RFIProb       float64 `json:"rfi_prob"`
	TreeIndex     uint8   `json:"tree_index,omitempty"`
	IsIncoherent  bool    `json:"is_incoherent,omitempty"`

	SpectralIndex     uint8     `json:"spectral_index,omitempty"`
	ScatteringMeasure uint8     `json:"scattering_measure,omitempty"`
	Level1NHits       uint16    `json:"level1_nhits,omitempty"`
	RFIMaskFraction   float32   `json:"rfi_mask_fraction,omitempty"`
	RFIClipFraction   float32   `json:"rfi_clip_fraction,omitempty"`
	SNRvsDM           []float32 `json:"snr_vs_dm,omitempty"`
	SNRvsTreeIndex    []float32 `json:"snr_vs_tree_index,omitempty"`
	SNRvsSpectralIdx  []float32 `json:"snr_vs_spectral_index,omitempty"`
}

// FrbEventsMessage is one search node's batch for one chunk. Beams lists
// every beam the node searched, including beams with no events; when empty
// it is taken from the events themselves.
type FrbEventsMessage struct {
	HasInjections  bool       `json:"has_injections"`
	BeamSetID      int        `json:"beam_set_id"`
	ChunkFPGACount uint64     `json:"chunk_fpga_count"`
	Beams          []int      `json:"beams,omitempty"`
	Events         []FrbEvent `json:"events"`
}

func (e *FrbEvent) hasAux() bool {
	return e.SpectralIndex != 0 || e.ScatteringMeasure != 0 || e.Level1NHits != 0 ||
		e.RFIMaskFraction != 0 || e.RFIClipFraction != 0 ||
		len(e.SNRvsDM) > 0 || len(e.SNRvsTreeIndex) > 0 || len(e.SNRvsSpectralIdx) > 0
}

// Detection converts the wire event into a BeamDetection for the chunk.
func (e *FrbEvent) Detection(chunkFPGA uint64) frb.BeamDetection {
	d := frb.BeamDetection{
		BeamID:       e.BeamID,
		FPGATime:     e.FPGATimestamp,
		ChunkFPGA:    chunkFPGA,
		DM:           e.DM,
		DMError:      e.DMError,
		SNR:          e.SNR,
		SNRScale:     e.SNRScale,
		RFIGradeL1:   e.RFIGrade,
		TreeIndex:    e.TreeIndex,
		IsIncoherent: e.IsIncoherent,
		RFIProb:      e.RFIProb,
	}
	if e.TimestampUTC != 0 {
		d.UTCTime = time.UnixMicro(e.TimestampUTC).UTC()
	}
	if e.hasAux() {
		d.Aux = &frb.AuxFields{
			SpectralIndex:      e.SpectralIndex,
			ScatteringMeasure:  e.ScatteringMeasure,
			Level1NHits:        e.Level1NHits,
			RFIMaskFraction:    e.RFIMaskFraction,
			RFIClipFraction:    e.RFIClipFraction,
			SNRvsDM:            e.SNRvsDM,
			SNRvsTreeIndex:     e.SNRvsTreeIndex,
			SNRvsSpectralIndex: e.SNRvsSpectralIdx,
		}
	}
	return d
}
