package exposure

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chord-frb/sifter/internal/fsutil"
	"github.com/chord-frb/sifter/internal/monitoring"
)

var testBeams = []int{1002, 0, 1, 2, 1000, 1001}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBinOf(t *testing.T) {
	tests := []struct {
		t    time.Time
		want int
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2025, 1, 1, 0, 0, 9, 999, time.UTC), 0},
		{time.Date(2025, 1, 1, 0, 0, 10, 0, time.UTC), 1},
		{time.Date(2025, 1, 1, 23, 59, 59, 0, time.UTC), BinsPerDay - 1},
		// Non-UTC input is converted first.
		{time.Date(2025, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600)), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BinOf(tt.t), "BinOf(%v)", tt.t)
	}
}

func TestGrid_MarkAndQuery(t *testing.T) {
	g := NewGrid(testBeams)
	assert.Equal(t, []int{0, 1, 2, 1000, 1001, 1002}, g.Beams, "rows sorted by beam id")
	assert.Len(t, g.Observed, 6*BinsPerDay)

	at := time.Date(2025, 6, 1, 0, 1, 5, 0, time.UTC) // bin 6
	g.Mark([]int{1, 1001, 424242}, at)

	assert.True(t, g.IsObserved(1, 6))
	assert.True(t, g.IsObserved(1001, 6))
	assert.False(t, g.IsObserved(0, 6))
	assert.False(t, g.IsObserved(424242, 6), "unknown beams are ignored")
	assert.False(t, g.IsObserved(1, BinsPerDay), "out-of-range bin")
	assert.Equal(t, 2, g.ObservedCount())
	assert.InDelta(t, 1.0/BinsPerDay, g.CoverageFraction(1), 1e-12)
	assert.Zero(t, g.CoverageFraction(7))

	c := g.Clone()
	g.Reset()
	assert.Zero(t, g.ObservedCount())
	assert.Equal(t, 2, c.ObservedCount(), "clone is independent")
}

func TestStore_RoundTrip(t *testing.T) {
	g := NewGrid(testBeams)
	g.Mark([]int{0, 2}, time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC))
	g.Mark([]int{1002}, time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC))

	stores := map[string]*Store{
		"memory": NewStore("/exposure", fsutil.NewMemoryFileSystem()),
		"os":     NewStore(filepath.Join(t.TempDir(), "exposure"), nil),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			date := day(2025, 6, 1)
			require.NoError(t, s.Save(date, g))

			loaded, err := s.Load(date)
			require.NoError(t, err)
			assert.True(t, g.Equal(loaded), "load(save(x)) == x")
			assert.True(t, loaded.IsObserved(1002, BinsPerDay-1))

			dates, err := s.Dates()
			require.NoError(t, err)
			require.Len(t, dates, 1)
			assert.True(t, dates[0].Equal(date))
		})
	}
}

func TestStore_RoundTripEmptyGrid(t *testing.T) {
	s := NewStore("/x", fsutil.NewMemoryFileSystem())
	g := NewGrid(nil)
	require.NoError(t, s.Save(day(2025, 1, 2), g))
	loaded, err := s.Load(day(2025, 1, 2))
	require.NoError(t, err)
	assert.True(t, g.Equal(loaded))
}

func TestStore_LoadErrors(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	s := NewStore("/x", mfs)

	_, err := s.Load(day(2025, 1, 1))
	assert.Error(t, err, "missing file")

	require.NoError(t, mfs.WriteFile(s.Path(day(2025, 1, 1)), []byte("not gzip"), 0644))
	_, err = s.Load(day(2025, 1, 1))
	assert.Error(t, err, "corrupt file")
}

func TestStore_Path(t *testing.T) {
	s := NewStore("/data", nil)
	assert.Equal(t, "/data/exposure-20250301.gob.gz", s.Path(time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)))
	assert.Equal(t, "/data", s.Dir())
}

func TestTracker_DayRollover(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	s := NewStore("/exp", mfs)

	start := time.Date(2025, 6, 1, 23, 59, 55, 0, time.UTC)
	tr := NewTracker(testBeams, s, start)
	tr.Mark([]int{0, 1}, start)
	assert.Equal(t, 2, tr.Grid().ObservedCount())

	// Crossing midnight saves the old day and resets before marking.
	next := start.Add(10 * time.Second)
	tr.Mark([]int{2}, next)
	assert.True(t, tr.Day().Equal(day(2025, 6, 2)))
	assert.Equal(t, 1, tr.Grid().ObservedCount())
	assert.True(t, tr.Grid().IsObserved(2, 0))

	prev, err := s.Load(day(2025, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, prev.ObservedCount())
	assert.True(t, prev.IsObserved(0, BinsPerDay-1))

	// Flush persists the current day; a new tracker resumes from it.
	tr.Flush()
	resumed := NewTracker(testBeams, s, next.Add(time.Hour))
	assert.True(t, resumed.Grid().Equal(tr.Grid()))
}

func TestTracker_LayoutMismatchStartsEmpty(t *testing.T) {
	s := NewStore("/exp", fsutil.NewMemoryFileSystem())
	other := NewGrid([]int{5, 6})
	other.Mark([]int{5}, day(2025, 6, 1))
	require.NoError(t, s.Save(day(2025, 6, 1), other))

	tr := NewTracker(testBeams, s, day(2025, 6, 1).Add(time.Hour))
	assert.Zero(t, tr.Grid().ObservedCount())
	assert.Len(t, tr.Grid().Beams, len(testBeams))
}

func TestTracker_PersistenceFailureIsLogged(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logged = append(logged, format) })
	defer monitoring.SetLogger(nil)

	mfs := fsutil.NewMemoryFileSystem()
	mfs.FailWrites = true
	tr := NewTracker(testBeams, NewStore("/exp", mfs), day(2025, 6, 1))
	tr.Mark([]int{0}, day(2025, 6, 1))

	assert.NotPanics(t, tr.Flush)
	assert.NotEmpty(t, logged)
	assert.Equal(t, 1, tr.Grid().ObservedCount(), "grid survives a failed save")
}

func TestTracker_NilStore(t *testing.T) {
	tr := NewTracker(testBeams, nil, day(2025, 6, 1))
	tr.Mark([]int{0}, day(2025, 6, 2))
	tr.Flush()
	assert.Equal(t, 1, tr.Grid().ObservedCount())
}

func TestWritePNG(t *testing.T) {
	g := NewGrid(testBeams)
	g.Mark([]int{0, 1000}, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, g, "exposure 2025-06-01"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	path := filepath.Join(t.TempDir(), "exposure.png")
	require.NoError(t, SavePNG(g, "exposure", path))
	assert.True(t, fsutil.OSFileSystem{}.Exists(path))

	assert.Error(t, WritePNG(&buf, NewGrid(nil), "empty"))
}
