package l3groups

import (
	"math"
	"time"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/monitoring"
)

// DefaultFPGASecondsPerCount is the FPGA sample period.
const DefaultFPGASecondsPerCount = 2.56e-6

// rollbackWindow is how far the FPGA counter may step backwards before it
// is treated as an F-engine restart.
const rollbackWindow = 10 * time.Minute

// TimeCorrector rewrites detection UTC stamps from the FPGA counter and a
// frame-zero epoch, and notices counter rollbacks.
type TimeCorrector struct {
	frame0    time.Time
	hasFrame0 bool
	period    float64 // seconds per FPGA count
	prevMax   uint64
	rollbacks int

	// OnRollback is called after a rollback is detected, before the
	// frame is corrected. It may call SetFrame0 with a fresh epoch.
	// Without a hook the old epoch stays in use.
	OnRollback func(c *TimeCorrector)
}

// NewTimeCorrector creates a corrector with the given sample period. A
// non-positive period uses DefaultFPGASecondsPerCount. Until SetFrame0 is
// called, UTC stamps are left untouched.
func NewTimeCorrector(secondsPerCount float64) *TimeCorrector {
	if secondsPerCount <= 0 {
		secondsPerCount = DefaultFPGASecondsPerCount
	}
	return &TimeCorrector{period: secondsPerCount}
}

// SetFrame0 sets the UTC instant of FPGA count zero, in microseconds
// since the Unix epoch.
func (c *TimeCorrector) SetFrame0(ctimeUs int64) {
	c.frame0 = time.UnixMicro(ctimeUs).UTC()
	c.hasFrame0 = true
}

// ClearFrame0 stops UTC correction.
func (c *TimeCorrector) ClearFrame0() {
	c.hasFrame0 = false
}

// Frame0 returns the epoch and whether one is set.
func (c *TimeCorrector) Frame0() (time.Time, bool) {
	return c.frame0, c.hasFrame0
}

// Rollbacks returns the number of counter rollbacks seen.
func (c *TimeCorrector) Rollbacks() int { return c.rollbacks }

// UTC returns the instant of an FPGA count. The epoch must be set.
func (c *TimeCorrector) UTC(fpga uint64) time.Time {
	us := int64(math.Round(float64(fpga) * c.period * 1e6))
	return c.frame0.Add(time.Duration(us) * time.Microsecond)
}

// Correct rewrites UTCTime of every detection in place when an epoch is
// set. It reports whether the FPGA counter rolled back since the last call.
func (c *TimeCorrector) Correct(dets []frb.BeamDetection) bool {
	if len(dets) == 0 {
		return false
	}
	var maxFPGA uint64
	for i := range dets {
		if dets[i].FPGATime > maxFPGA {
			maxFPGA = dets[i].FPGATime
		}
	}

	window := uint64(rollbackWindow.Seconds() / c.period)
	rolledBack := c.prevMax > maxFPGA && c.prevMax-maxFPGA > window
	if rolledBack {
		c.rollbacks++
		monitoring.Logf("[TimeCorrector] FPGA counter rolled back from %d to %d", c.prevMax, maxFPGA)
		if c.OnRollback != nil {
			c.OnRollback(c)
		}
	}
	c.prevMax = maxFPGA

	if c.hasFrame0 {
		for i := range dets {
			dets[i].UTCTime = c.UTC(dets[i].FPGATime)
		}
	}
	return rolledBack
}
