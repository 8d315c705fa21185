package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/chord-frb/sifter/internal/db"
	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/pipeline"
	"github.com/chord-frb/sifter/internal/monitoring"
	"github.com/chord-frb/sifter/internal/rpc"
)

func init() {
	monitoring.SetLogger(nil)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	out, err := run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "exposure")
}

func TestRootRejectsUnknownFlags(t *testing.T) {
	_, err := run(t, "--no-such-flag")
	assert.Error(t, err)
}

func writeExposure(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	g := exposure.NewGrid([]int{0, 1, 2})
	g.Mark([]int{0, 2}, day.Add(time.Hour))
	g.Mark([]int{2}, day.Add(2*time.Hour))
	require.NoError(t, exposure.NewStore(dir, nil).Save(day, g))
	return dir
}

func TestExposureListAndShow(t *testing.T) {
	dir := writeExposure(t)

	out, err := run(t, "exposure", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, "20260301\n", out)

	out, err = run(t, "exposure", "show", "20260301", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "3 beams")
	assert.Contains(t, out, "3 observed cells")
	assert.Contains(t, out, "beam     2")
	assert.NotContains(t, out, "beam     1")

	out, err = run(t, "exposure", "show", "20260301", "--dir", dir, "--beam", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "beam 1: 0.0000 observed")

	_, err = run(t, "exposure", "show", "20260301", "--dir", dir, "--beam", "7")
	assert.Error(t, err)

	_, err = run(t, "exposure", "show", "2026-03-01", "--dir", dir)
	assert.Error(t, err)

	_, err = run(t, "exposure", "show", "20260302", "--dir", dir)
	assert.Error(t, err)
}

func TestExposurePlot(t *testing.T) {
	dir := writeExposure(t)
	outPath := filepath.Join(t.TempDir(), "day.png")

	out, err := run(t, "exposure", "plot", "20260301", "--dir", dir, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, outPath)
	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestDBMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	out, err := run(t, "db", "migrate", "version", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	out, err = run(t, "db", "migrate", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = run(t, "db", "migrate", "down", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	_, err = run(t, "db", "migrate", "sideways", "--db", path)
	assert.Error(t, err)
}

func TestEventsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	store, err := db.NewDB(path)
	require.NoError(t, err)
	g := frb.NewGroup([]frb.BeamDetection{
		{BeamID: 1001, SNR: 12, DM: 300, UTCTime: time.Date(2026, 3, 1, 1, 2, 3, 0, time.UTC)},
		{BeamID: 1002, SNR: 9, DM: 301, UTCTime: time.Date(2026, 3, 1, 1, 2, 3, 0, time.UTC)},
	}, []int{5}, frb.FrameStats{})
	_, err = store.InsertGroup(context.Background(), &g)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := run(t, "events", "list", "--db", path, "--beams")
	require.NoError(t, err)
	assert.Contains(t, out, "BEST BEAM")
	assert.Contains(t, out, "2026-03-01T01:02:03.000000Z")
	assert.Contains(t, out, "beam 1002")

	out, err = run(t, "events", "list", "--db", path, "-o", "jsonl")
	require.NoError(t, err)
	var row db.EventRow
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &row))
	assert.Equal(t, g.ID.String(), row.UUID)
	assert.Equal(t, 1001, row.BestBeam)
}

type recordingSubmitter struct {
	mu      sync.Mutex
	reports []pipeline.Report
}

func (r *recordingSubmitter) Submit(_ context.Context, rep pipeline.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

func startSifter(t *testing.T, sub rpc.Submitter) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	gs := grpc.NewServer()
	rpc.RegisterFrbSifterServer(gs, rpc.NewServer(nil, sub, frb.DefaultBeamGrid(), false))
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)
	return lis.Addr().String()
}

func TestSend(t *testing.T) {
	sub := &recordingSubmitter{}
	addr := startSifter(t, sub)

	out, err := run(t, "send", "--addr", addr, "--beams", "4,5", "--per-beam", "2", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "sent 4 events in 2 beams")

	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.Len(t, sub.reports, 2)
	assert.Equal(t, 4, sub.reports[0].BeamID)
	assert.Len(t, sub.reports[0].Detections, 2)

	_, err = run(t, "send", "--addr", addr, "--injections")
	assert.Error(t, err)
}

func TestCheckConfig(t *testing.T) {
	addr := startSifter(t, &recordingSubmitter{})
	dir := t.TempDir()
	first := filepath.Join(dir, "a.yaml")
	second := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(first, []byte("config_item: 42\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("config_item: 43\n"), 0o644))

	out, err := run(t, "check-config", first, "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration accepted")

	_, err = run(t, "check-config", second, "--addr", addr)
	assert.Error(t, err)
}

func TestSyntheticBatch(t *testing.T) {
	msg := syntheticBatch(sendOptions{chunk: 1000, beams: []int{1, 2, 3}, perBeam: 3, dm: 50, snr: 8, seed: 7})
	require.Len(t, msg.Events, 9)
	for _, ev := range msg.Events {
		assert.GreaterOrEqual(t, ev.FPGATimestamp, uint64(1000))
		assert.Less(t, ev.FPGATimestamp, uint64(1000+fpgaCountsPerSecond/1000))
		assert.InDelta(t, 50, ev.DM, 6)
	}
	assert.Equal(t, []int{1, 2, 3}, msg.Beams)
}
