package pipeline

import (
	"github.com/chord-frb/sifter/internal/config"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/l2frames"
	"github.com/chord-frb/sifter/internal/frb/l3groups"
	"github.com/chord-frb/sifter/internal/fsutil"
	"github.com/chord-frb/sifter/internal/monitoring"
	"github.com/chord-frb/sifter/internal/timeutil"
)

// Config contains configuration for the Runtime.
type Config struct {
	Assembler  l2frames.AssemblerConfig
	Grouper    l3groups.GrouperConfig
	QueueDepth int // reports and frames buffered between workers
}

// AssemblerConfig derives the frame assembler settings from c. The beam
// universe is the configured grid; an empty exposure_dir disables
// exposure persistence.
func AssemblerConfig(c *config.SifterConfig, clock timeutil.Clock, fsys fsutil.FileSystem) l2frames.AssemblerConfig {
	var store *exposure.Store
	if dir := c.GetExposureDir(); dir != "" {
		store = exposure.NewStore(dir, fsys)
	}
	return l2frames.AssemblerConfig{
		CountsPerChunk: c.GetCountsPerChunk(),
		Beams:          c.BeamGrid().Universe(),
		Clock:          clock,
		Store:          store,
	}
}

// GrouperConfig derives the event grouper settings from c, including a
// time corrector when a frame-zero epoch is configured.
func GrouperConfig(c *config.SifterConfig) l3groups.GrouperConfig {
	cfg := l3groups.GrouperConfig{
		TimeThresholdMs: c.GetTimeThresholdMs(),
		DMThreshold:     c.GetDMThreshold(),
		EWThreshold:     c.GetEWThreshold(),
		NSThreshold:     c.GetNSThreshold(),
		Grid:            c.BeamGrid(),
	}
	if us, ok := c.GetFrame0CtimeUs(); ok {
		cfg.Corrector = l3groups.NewTimeCorrector(c.GetFPGASecondsPerCount())
		cfg.Corrector.SetFrame0(us)
	}
	return cfg
}

// ConfigFromSifter builds the runtime configuration from a loaded
// SifterConfig using the real clock and filesystem. When path is set and a
// time corrector is configured, a counter rollback re-reads the epoch from
// path.
func ConfigFromSifter(c *config.SifterConfig, path string) Config {
	cfg := Config{
		Assembler:  AssemblerConfig(c, timeutil.RealClock{}, fsutil.OSFileSystem{}),
		Grouper:    GrouperConfig(c),
		QueueDepth: c.GetQueueDepth(),
	}
	if path != "" && cfg.Grouper.Corrector != nil {
		cfg.Grouper.Corrector.OnRollback = Frame0Reloader(path)
	}
	return cfg
}

// Frame0Reloader returns a rollback hook that loads frame0_ctime_us from
// the config file at path. A new epoch replaces the old one. When the file
// still holds the old epoch, or none, correction stops so that UTC stamps
// from the nodes pass through rather than being rewritten from a stale
// epoch. A file that fails to load leaves the corrector unchanged.
func Frame0Reloader(path string) func(*l3groups.TimeCorrector) {
	return func(tc *l3groups.TimeCorrector) {
		c, err := config.LoadSifterConfig(path)
		if err != nil {
			monitoring.Logf("[pipeline] Keeping frame0 epoch, reload of %s failed: %v", path, err)
			return
		}
		old, hadOld := tc.Frame0()
		us, ok := c.GetFrame0CtimeUs()
		if !ok || (hadOld && old.UnixMicro() == us) {
			tc.ClearFrame0()
			monitoring.Logf("[pipeline] No new frame0 epoch in %s; UTC correction disabled", path)
			return
		}
		tc.SetFrame0(us)
		monitoring.Logf("[pipeline] Reloaded frame0 epoch %d from %s", us, path)
	}
}
