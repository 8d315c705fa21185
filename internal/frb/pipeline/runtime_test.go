package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/l2frames"
	"github.com/chord-frb/sifter/internal/frb/l3groups"
	"github.com/chord-frb/sifter/internal/fsutil"
	"github.com/chord-frb/sifter/internal/monitoring"
	"github.com/chord-frb/sifter/internal/timeutil"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	monitoring.SetLogger(nil)
}

// collectSink records every batch it receives.
type collectSink struct {
	mu      sync.Mutex
	batches [][]frb.Group
	got     chan struct{}
}

func newCollectSink() *collectSink {
	return &collectSink{got: make(chan struct{}, 100)}
}

func (s *collectSink) WriteGroups(_ context.Context, groups []frb.Group) error {
	s.mu.Lock()
	s.batches = append(s.batches, groups)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func (s *collectSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for groups")
	}
}

func testConfig(mfs fsutil.FileSystem) Config {
	grid := frb.BeamGrid{Stride: 1000, NumEW: 1, NumNS: 3}
	return Config{
		Assembler: l2frames.AssemblerConfig{
			CountsPerChunk: 100,
			Beams:          grid.Universe(),
			Clock:          timeutil.NewMockClock(testStart),
			Store:          exposure.NewStore("/exposure", mfs),
		},
		Grouper: l3groups.GrouperConfig{
			TimeThresholdMs: 10,
			DMThreshold:     5,
			EWThreshold:     1,
			NSThreshold:     1,
			Grid:            grid,
		},
		QueueDepth: 4,
	}
}

func det(beam int, fpga uint64, dm float64) frb.BeamDetection {
	return frb.BeamDetection{BeamID: beam, FPGATime: fpga, DM: dm, SNR: 10, UTCTime: testStart}
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	cfg := testConfig(fsutil.NewMemoryFileSystem())
	cfg.Assembler.CountsPerChunk = 0
	_, err := NewRuntime(cfg)
	assert.True(t, errors.Is(err, frb.ErrInvalidConfig))

	cfg = testConfig(fsutil.NewMemoryFileSystem())
	cfg.Grouper.DMThreshold = 0
	_, err = NewRuntime(cfg)
	assert.True(t, errors.Is(err, frb.ErrInvalidConfig))
}

func TestRuntime_EndToEnd(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	sink := newCollectSink()
	rt, err := NewRuntime(testConfig(mfs), sink, LogSink{})
	require.NoError(t, err)

	complete := testutil.ToFloat64(framesTotal.WithLabelValues("complete"))
	accepted := testutil.ToFloat64(reportsTotal.WithLabelValues("accepted"))
	malformed := testutil.ToFloat64(reportsTotal.WithLabelValues("malformed"))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()

	beams := []int{0, 1, 2}
	for _, b := range beams {
		require.NoError(t, rt.Submit(ctx, Report{BeamID: b, ChunkMarker: 0}))
	}
	// One event seen in two adjacent beams, another far off in DM.
	require.NoError(t, rt.Submit(ctx, Report{BeamID: 0, ChunkMarker: 1, Detections: []frb.BeamDetection{det(0, 120, 50)}}))
	require.NoError(t, rt.Submit(ctx, Report{BeamID: 1, ChunkMarker: 1, Detections: []frb.BeamDetection{det(1, 121, 51), det(1, 130, 400)}}))
	require.NoError(t, rt.Submit(ctx, Report{BeamID: 2, ChunkMarker: 1}))
	// Malformed reports are counted and skipped.
	require.NoError(t, rt.Submit(ctx, Report{BeamID: -4, ChunkMarker: 1}))

	sink.wait(t)

	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	sink.mu.Unlock()
	require.Len(t, batch, 2)
	assert.Equal(t, []int{0, 1}, batch[0].Beams())
	assert.Equal(t, []int{1}, batch[1].Beams())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(reportsTotal.WithLabelValues("malformed")) == malformed+1
	}, 5*time.Second, 10*time.Millisecond)

	snap := rt.Snapshot()
	assert.Equal(t, uint64(2), snap.Groups)
	assert.Equal(t, 2, snap.LastStats.BeamActivity)
	assert.Equal(t, 3, snap.DMActivityLookback[frb.LookbackLength-1])
	assert.Equal(t, []int{0, 1, 2}, snap.Liveness.WaitingFor)
	assert.Equal(t, float64(1), testutil.ToFloat64(framesTotal.WithLabelValues("complete"))-complete)
	assert.Equal(t, float64(6), testutil.ToFloat64(reportsTotal.WithLabelValues("accepted"))-accepted)

	grid, date := rt.Exposure()
	assert.Equal(t, "2025-06-01", date)
	assert.Equal(t, 3, grid.ObservedCount())

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.ErrorIs(t, rt.Submit(context.Background(), Report{BeamID: 0}), ErrStopped)
	assert.NotEmpty(t, mfs.Files("/exposure"), "exposure saved on shutdown")
}

func TestRuntime_SinkErrorDoesNotStopProcessing(t *testing.T) {
	var calls int
	var mu sync.Mutex
	failing := SinkFunc(func(context.Context, []frb.Group) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("disk full")
	})
	sink := newCollectSink()
	rt, err := NewRuntime(testConfig(fsutil.NewMemoryFileSystem()), failing, sink)
	require.NoError(t, err)

	before := testutil.ToFloat64(sinkErrorsTotal)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	for _, b := range []int{0, 1, 2} {
		require.NoError(t, rt.Submit(ctx, Report{BeamID: b, ChunkMarker: 0}))
	}
	for chunk := uint64(1); chunk <= 2; chunk++ {
		for _, b := range []int{0, 1, 2} {
			dets := []frb.BeamDetection{det(b, chunk*100+1, 10)}
			require.NoError(t, rt.Submit(ctx, Report{BeamID: b, ChunkMarker: chunk, Detections: dets}))
		}
	}
	sink.wait(t)
	sink.wait(t)

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
	assert.Equal(t, float64(2), testutil.ToFloat64(sinkErrorsTotal)-before)
}

func TestRuntime_SubmitHonoursContext(t *testing.T) {
	cfg := testConfig(fsutil.NewMemoryFileSystem())
	cfg.QueueDepth = 1
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)

	// Run is not started, so the queue fills.
	require.NoError(t, rt.Submit(context.Background(), Report{BeamID: 0}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rt.Submit(ctx, Report{BeamID: 1}), context.DeadlineExceeded)
}

func TestRuntime_MalformedReportDoesNotStopProcessing(t *testing.T) {
	sink := newCollectSink()
	rt, err := NewRuntime(testConfig(fsutil.NewMemoryFileSystem()), sink)
	require.NoError(t, err)

	malformed := testutil.ToFloat64(reportsTotal.WithLabelValues("malformed"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rt.Run(ctx)

	for _, b := range []int{0, 1, 2} {
		require.NoError(t, rt.Submit(ctx, Report{BeamID: b, ChunkMarker: 0}))
	}
	bad := det(0, 110, math.NaN())
	require.NoError(t, rt.Submit(ctx, Report{BeamID: 0, ChunkMarker: 1, Detections: []frb.BeamDetection{bad}}))
	require.NoError(t, rt.Submit(ctx, Report{BeamID: -1, ChunkMarker: 1}))
	for _, b := range []int{0, 1, 2} {
		dets := []frb.BeamDetection{det(b, 120, 50)}
		require.NoError(t, rt.Submit(ctx, Report{BeamID: b, ChunkMarker: 1, Detections: dets}))
	}
	sink.wait(t)

	sink.mu.Lock()
	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	sink.mu.Unlock()
	require.Len(t, batch, 1)
	assert.Equal(t, []int{0, 1, 2}, batch[0].Beams())
	for _, d := range batch[0].Detections {
		assert.Equal(t, 50.0, d.DM, "rejected detection must not reach a group")
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(reportsTotal.WithLabelValues("malformed"))-malformed)
}

func TestRuntime_RunOnlyOnce(t *testing.T) {
	rt, err := NewRuntime(testConfig(fsutil.NewMemoryFileSystem()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- rt.Run(ctx) }()
	require.Eventually(t, rt.started.Load, 5*time.Second, time.Millisecond)

	assert.ErrorIs(t, rt.Run(ctx), ErrAlreadyRun)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, rt.Run(context.Background()), ErrAlreadyRun)
}
