package exposure

import (
	"time"

	"github.com/chord-frb/sifter/internal/monitoring"
)

// Tracker owns the live grid of the current UTC day and handles day
// rollover. Persistence failures are logged and never returned.
type Tracker struct {
	beams []int
	store *Store // nil disables persistence
	grid  *Grid
	day   time.Time // UTC midnight of the day grid belongs to
}

// NewTracker starts tracking at now, loading that day's grid from store
// when one exists and matches the beam universe.
func NewTracker(beams []int, store *Store, now time.Time) *Tracker {
	t := &Tracker{
		beams: beams,
		store: store,
		day:   utcDay(now),
	}
	t.grid = t.load(t.day)
	return t
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (t *Tracker) load(day time.Time) *Grid {
	fresh := NewGrid(t.beams)
	if t.store == nil {
		return fresh
	}
	g, err := t.store.Load(day)
	if err != nil {
		if t.store.fs.Exists(t.store.Path(day)) {
			monitoring.Logf("[Exposure] Failed to load %s, starting empty: %v", t.store.Path(day), err)
		}
		return fresh
	}
	if !g.SameShape(fresh) {
		monitoring.Logf("[Exposure] Stored grid %s has a different beam layout, starting empty", t.store.Path(day))
		return fresh
	}
	return g
}

// Mark records beams as observed at now, first saving and resetting the
// grid if the UTC date has advanced since the last mark.
func (t *Tracker) Mark(beams []int, now time.Time) {
	if day := utcDay(now); day.After(t.day) {
		t.save(t.day)
		t.grid.Reset()
		t.day = day
	}
	t.grid.Mark(beams, now)
}

// Flush persists the current day's grid.
func (t *Tracker) Flush() {
	t.save(t.day)
}

func (t *Tracker) save(day time.Time) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(day, t.grid); err != nil {
		monitoring.Logf("[Exposure] Failed to save grid for %s: %v", day.Format("2006-01-02"), err)
		return
	}
	monitoring.Diagf("[Exposure] Saved grid for %s: %d flags set", day.Format("2006-01-02"), t.grid.ObservedCount())
}

// Grid returns the live grid. Callers must not mutate it.
func (t *Tracker) Grid() *Grid { return t.grid }

// Day returns the UTC date the live grid belongs to.
func (t *Tracker) Day() time.Time { return t.day }
