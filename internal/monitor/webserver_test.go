package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chord-frb/sifter/internal/db"
	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/exposure"
	"github.com/chord-frb/sifter/internal/frb/l2frames"
	"github.com/chord-frb/sifter/internal/frb/pipeline"
)

type fakeSource struct {
	snap pipeline.Snapshot
	grid *exposure.Grid
}

func (f *fakeSource) Snapshot() pipeline.Snapshot       { return f.snap }
func (f *fakeSource) Exposure() (*exposure.Grid, string) { return f.grid, "20260301" }

func newFakeSource() *fakeSource {
	grid := exposure.NewGrid([]int{0, 1, 2})
	grid.Mark([]int{0, 2}, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC))
	return &fakeSource{
		snap: pipeline.Snapshot{
			Assembler:            l2frames.AssemblerStats{Reports: 12, Frames: 3},
			Liveness:             l2frames.Liveness{HopingFor: []int{0, 1, 2}, WaitingFor: []int{0, 2}},
			Groups:               4,
			DMActivityLookback:   [frb.LookbackLength]int{0, 0, 0, 0, 0, 0, 0, 1, 3, 2},
			BeamActivityLookback: [frb.LookbackLength]int{0, 0, 0, 0, 0, 0, 0, 2, 2, 1},
		},
		grid: grid,
	}
}

func newTestServer(t *testing.T, src StatusSource, store *db.DB) *WebServer {
	t.Helper()
	ws, err := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", Source: src, DB: store})
	require.NoError(t, err)
	return ws
}

func TestHealth(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service": "sifter"`)
}

func TestStatusJSON(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, uint64(4), snap.Groups)
	assert.Equal(t, uint64(12), snap.Assembler.Reports)
	assert.Equal(t, 3, snap.DMActivityLookback[8])
}

func TestMetricsEndpoint(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestDebugRoutesRegistered(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	for _, endpoint := range []string{"/debug/liveness", "/debug/activity", "/debug/exposure.png"} {
		t.Run(endpoint, func(t *testing.T) {
			w := httptest.NewRecorder()
			ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, endpoint, nil))
			assert.NotEqual(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestLiveness(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.handleLiveness(w, httptest.NewRequest(http.MethodGet, "/debug/liveness", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var live l2frames.Liveness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Equal(t, []int{0, 1, 2}, live.HopingFor)
	assert.Equal(t, []int{0, 2}, live.WaitingFor)
}

func TestActivityChart(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.handleActivityChart(w, httptest.NewRequest(http.MethodGet, "/debug/activity", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	body := w.Body.String()
	assert.Contains(t, body, "Frame Activity")
	assert.Contains(t, body, "beam activity")
}

func TestExposurePNG(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	w := httptest.NewRecorder()
	ws.handleExposurePNG(w, httptest.NewRequest(http.MethodGet, "/debug/exposure.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)

	empty := newFakeSource()
	empty.grid = nil
	ws = newTestServer(t, empty, nil)
	w = httptest.NewRecorder()
	ws.handleExposurePNG(w, httptest.NewRequest(http.MethodGet, "/debug/exposure.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	store, err := db.NewDB(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer store.Close()

	g := frb.NewGroup([]frb.BeamDetection{{BeamID: 7, SNR: 11, DM: 250, UTCTime: time.Now().UTC()}}, nil, frb.FrameStats{})
	_, err = store.InsertGroup(context.Background(), &g)
	require.NoError(t, err)

	ws := newTestServer(t, newFakeSource(), store)

	w := httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var events []db.EventRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, g.ID.String(), events[0].UUID)

	w = httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The store's admin routes share the debug index.
	w = httptest.NewRecorder()
	ws.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/db-stats", nil))
	assert.NotEqual(t, http.StatusNotFound, w.Code)
}

func TestStartStops(t *testing.T) {
	ws := newTestServer(t, newFakeSource(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
