package rpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chord-frb/sifter/internal/config"
	"github.com/chord-frb/sifter/internal/frb"
	"github.com/chord-frb/sifter/internal/frb/pipeline"
	"github.com/chord-frb/sifter/internal/monitoring"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sifter_rpc_requests_total",
		Help: "FrbSifter calls, by method and result.",
	},
	[]string{"method", "result"},
)

// Submitter accepts beam reports; *pipeline.Runtime implements it.
type Submitter interface {
	Submit(ctx context.Context, rep pipeline.Report) error
}

// Server implements FrbSifterServer on top of a pipeline.
type Server struct {
	checker    *config.NodeConfigChecker
	submitter  Submitter
	grid       frb.BeamGrid
	injections bool
}

var _ FrbSifterServer = (*Server)(nil)

// NewServer creates a server feeding sub. injections states whether the
// sifter expects batches that carry injected events.
func NewServer(checker *config.NodeConfigChecker, sub Submitter, grid frb.BeamGrid, injections bool) *Server {
	if checker == nil {
		checker = config.NewNodeConfigChecker()
	}
	return &Server{checker: checker, submitter: sub, grid: grid, injections: injections}
}

// CheckConfiguration compares a node's configuration with the reference.
func (s *Server) CheckConfiguration(ctx context.Context, in *ConfigMessage) (*Reply, error) {
	if err := s.checker.Check(in.YAML); err != nil {
		monitoring.Logf("[gRPC] Config check failed: %v", err)
		requestsTotal.WithLabelValues("CheckConfiguration", "rejected").Inc()
		return &Reply{OK: false, Message: err.Error()}, nil
	}
	requestsTotal.WithLabelValues("CheckConfiguration", "ok").Inc()
	return &Reply{OK: true}, nil
}

// FrbEvents turns a batch into one report per beam and queues them.
func (s *Server) FrbEvents(ctx context.Context, in *FrbEventsMessage) (*Reply, error) {
	if in.HasInjections != s.injections {
		requestsTotal.WithLabelValues("FrbEvents", "rejected").Inc()
		msg := fmt.Sprintf("batch has_injections=%v but sifter expects %v", in.HasInjections, s.injections)
		monitoring.Logf("[gRPC] Beam set %d: %s", in.BeamSetID, msg)
		return &Reply{OK: false, Message: msg}, nil
	}

	reports := s.reports(in)
	for _, rep := range reports {
		if err := s.submitter.Submit(ctx, rep); err != nil {
			requestsTotal.WithLabelValues("FrbEvents", "unavailable").Inc()
			return nil, status.Errorf(codes.Unavailable, "beam %d not queued: %v", rep.BeamID, err)
		}
	}
	requestsTotal.WithLabelValues("FrbEvents", "ok").Inc()
	return &Reply{OK: true, Message: fmt.Sprintf("%d events in %d beams", len(in.Events), len(reports))}, nil
}

// reports splits a batch by beam. Injection beams come first so their
// detections are buffered before a real beam can complete the cycle. Listed
// beams follow in their listed order, then beams seen only in events in
// ascending order.
func (s *Server) reports(in *FrbEventsMessage) []pipeline.Report {
	index := make(map[int]int)
	var reports []pipeline.Report
	add := func(beam int) {
		if _, ok := index[beam]; ok {
			return
		}
		index[beam] = len(reports)
		reports = append(reports, pipeline.Report{BeamID: beam, ChunkMarker: in.ChunkFPGACount})
	}

	var injected, extra []int
	listed := make(map[int]bool, len(in.Beams))
	for _, b := range in.Beams {
		listed[b] = true
	}
	seen := make(map[int]bool)
	for i := range in.Events {
		b := in.Events[i].BeamID
		if seen[b] {
			continue
		}
		seen[b] = true
		switch {
		case s.grid.IsInjection(b):
			injected = append(injected, b)
		case !listed[b]:
			extra = append(extra, b)
		}
	}
	sort.Ints(injected)
	sort.Ints(extra)

	for _, b := range injected {
		add(b)
	}
	for _, b := range in.Beams {
		if !s.grid.IsInjection(b) {
			add(b)
		}
	}
	for _, b := range extra {
		add(b)
	}

	for i := range in.Events {
		ev := &in.Events[i]
		slot := index[ev.BeamID]
		reports[slot].Detections = append(reports[slot].Detections, ev.Detection(in.ChunkFPGACount))
	}
	return reports
}
