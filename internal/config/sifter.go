package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chord-frb/sifter/internal/frb"
)

// Default values for the sifter configuration.
const (
	DefaultCountsPerChunk      = 4096 * 384
	DefaultTimeThresholdMs     = 10.0
	DefaultDMThreshold         = 10.0
	DefaultEWThreshold         = 1.0
	DefaultNSThreshold         = 2.0
	DefaultFPGASecondsPerCount = 2.56e-6
	DefaultQueueDepth          = 64
)

// SifterConfig is the root configuration of the sifter daemon. Fields are
// pointers so that partial JSON files only override what they name; the
// Get* accessors supply defaults for everything else.
type SifterConfig struct {
	// Frame assembly
	CountsPerChunk *uint64 `json:"counts_per_chunk,omitempty"`
	ExposureDir    *string `json:"exposure_dir,omitempty"` // empty disables persistence

	// Beam grid
	BeamGridStride   *int `json:"beam_grid_stride,omitempty"`
	NumEWBeams       *int `json:"num_ew_beams,omitempty"`
	NumNSBeams       *int `json:"num_ns_beams,omitempty"`
	InjectionBeamMin *int `json:"injection_beam_min,omitempty"`

	// Grouping thresholds
	TimeThresholdMs *float64 `json:"t_thr_ms,omitempty"`
	DMThreshold     *float64 `json:"dm_thr,omitempty"`
	EWThreshold     *float64 `json:"ew_thr,omitempty"`
	NSThreshold     *float64 `json:"ns_thr,omitempty"`

	// Time correction
	Frame0CtimeUs       *int64   `json:"frame0_ctime_us,omitempty"`
	FPGASecondsPerCount *float64 `json:"fpga_seconds_per_count,omitempty"`

	// Service
	Injections *bool   `json:"injections,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	QueueDepth *int    `json:"queue_depth,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// DefaultSifterConfig returns a config with every field set to its default.
func DefaultSifterConfig() *SifterConfig {
	return &SifterConfig{
		CountsPerChunk:      ptrUint64(DefaultCountsPerChunk),
		ExposureDir:         ptrString(""),
		BeamGridStride:      ptrInt(1000),
		NumEWBeams:          ptrInt(4),
		NumNSBeams:          ptrInt(256),
		InjectionBeamMin:    ptrInt(10000),
		TimeThresholdMs:     ptrFloat64(DefaultTimeThresholdMs),
		DMThreshold:         ptrFloat64(DefaultDMThreshold),
		EWThreshold:         ptrFloat64(DefaultEWThreshold),
		NSThreshold:         ptrFloat64(DefaultNSThreshold),
		FPGASecondsPerCount: ptrFloat64(DefaultFPGASecondsPerCount),
		Injections:          ptrBool(false),
		DBPath:              ptrString(""),
		QueueDepth:          ptrInt(DefaultQueueDepth),
	}
}

// LoadSifterConfig loads a SifterConfig from a JSON file.
// Fields omitted from the file fall back to their defaults.
func LoadSifterConfig(path string) (*SifterConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SifterConfig{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable. Unset fields are
// not checked; their defaults are always valid.
func (c *SifterConfig) Validate() error {
	if c.CountsPerChunk != nil && *c.CountsPerChunk == 0 {
		return fmt.Errorf("counts_per_chunk must be positive")
	}

	for name, v := range map[string]*float64{
		"t_thr_ms": c.TimeThresholdMs,
		"dm_thr":   c.DMThreshold,
		"ew_thr":   c.EWThreshold,
		"ns_thr":   c.NSThreshold,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}

	if c.BeamGridStride != nil && *c.BeamGridStride <= 0 {
		return fmt.Errorf("beam_grid_stride must be positive, got %d", *c.BeamGridStride)
	}
	if c.NumEWBeams != nil && *c.NumEWBeams <= 0 {
		return fmt.Errorf("num_ew_beams must be positive, got %d", *c.NumEWBeams)
	}
	if c.NumNSBeams != nil && *c.NumNSBeams <= 0 {
		return fmt.Errorf("num_ns_beams must be positive, got %d", *c.NumNSBeams)
	}
	if c.GetNumNSBeams() > c.GetBeamGridStride() {
		return fmt.Errorf("num_ns_beams %d exceeds beam_grid_stride %d", c.GetNumNSBeams(), c.GetBeamGridStride())
	}
	if c.InjectionBeamMin != nil && *c.InjectionBeamMin < 0 {
		return fmt.Errorf("injection_beam_min must be non-negative, got %d", *c.InjectionBeamMin)
	}
	if c.FPGASecondsPerCount != nil && *c.FPGASecondsPerCount <= 0 {
		return fmt.Errorf("fpga_seconds_per_count must be positive, got %g", *c.FPGASecondsPerCount)
	}
	if c.QueueDepth != nil && *c.QueueDepth < 0 {
		return fmt.Errorf("queue_depth must be non-negative, got %d", *c.QueueDepth)
	}
	return nil
}

// GetCountsPerChunk returns the counts_per_chunk value or the default.
func (c *SifterConfig) GetCountsPerChunk() uint64 {
	if c.CountsPerChunk == nil {
		return DefaultCountsPerChunk
	}
	return *c.CountsPerChunk
}

// GetExposureDir returns the exposure directory; empty means disabled.
func (c *SifterConfig) GetExposureDir() string {
	if c.ExposureDir == nil {
		return ""
	}
	return *c.ExposureDir
}

// GetBeamGridStride returns the beam_grid_stride value or the default.
func (c *SifterConfig) GetBeamGridStride() int {
	if c.BeamGridStride == nil {
		return 1000
	}
	return *c.BeamGridStride
}

// GetNumEWBeams returns the num_ew_beams value or the default.
func (c *SifterConfig) GetNumEWBeams() int {
	if c.NumEWBeams == nil {
		return 4
	}
	return *c.NumEWBeams
}

// GetNumNSBeams returns the num_ns_beams value or the default.
func (c *SifterConfig) GetNumNSBeams() int {
	if c.NumNSBeams == nil {
		return 256
	}
	return *c.NumNSBeams
}

// GetInjectionBeamMin returns the injection_beam_min value or the default.
func (c *SifterConfig) GetInjectionBeamMin() int {
	if c.InjectionBeamMin == nil {
		return 10000
	}
	return *c.InjectionBeamMin
}

// GetTimeThresholdMs returns the t_thr_ms value or the default.
func (c *SifterConfig) GetTimeThresholdMs() float64 {
	if c.TimeThresholdMs == nil {
		return DefaultTimeThresholdMs
	}
	return *c.TimeThresholdMs
}

// GetDMThreshold returns the dm_thr value or the default.
func (c *SifterConfig) GetDMThreshold() float64 {
	if c.DMThreshold == nil {
		return DefaultDMThreshold
	}
	return *c.DMThreshold
}

// GetEWThreshold returns the ew_thr value or the default.
func (c *SifterConfig) GetEWThreshold() float64 {
	if c.EWThreshold == nil {
		return DefaultEWThreshold
	}
	return *c.EWThreshold
}

// GetNSThreshold returns the ns_thr value or the default.
func (c *SifterConfig) GetNSThreshold() float64 {
	if c.NSThreshold == nil {
		return DefaultNSThreshold
	}
	return *c.NSThreshold
}

// GetFrame0CtimeUs returns the frame-zero epoch and whether one is configured.
func (c *SifterConfig) GetFrame0CtimeUs() (int64, bool) {
	if c.Frame0CtimeUs == nil {
		return 0, false
	}
	return *c.Frame0CtimeUs, true
}

// GetFPGASecondsPerCount returns the fpga_seconds_per_count value or the default.
func (c *SifterConfig) GetFPGASecondsPerCount() float64 {
	if c.FPGASecondsPerCount == nil {
		return DefaultFPGASecondsPerCount
	}
	return *c.FPGASecondsPerCount
}

// GetInjections returns whether the service accepts injection batches.
func (c *SifterConfig) GetInjections() bool {
	if c.Injections == nil {
		return false
	}
	return *c.Injections
}

// GetDBPath returns the event database path; empty disables the store.
func (c *SifterConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetQueueDepth returns the queue_depth value or the default.
func (c *SifterConfig) GetQueueDepth() int {
	if c.QueueDepth == nil {
		return DefaultQueueDepth
	}
	return *c.QueueDepth
}

// BeamGrid returns the configured beam-grid layout.
func (c *SifterConfig) BeamGrid() frb.BeamGrid {
	return frb.BeamGrid{
		Stride:           c.GetBeamGridStride(),
		NumEW:            c.GetNumEWBeams(),
		NumNS:            c.GetNumNSBeams(),
		InjectionBeamMin: c.GetInjectionBeamMin(),
	}
}
