package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sifter_reports_total",
			Help: "Beam reports handed to the frame assembler, by outcome.",
		},
		[]string{"outcome"},
	)
	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sifter_frames_total",
			Help: "Frames emitted by the frame assembler, by kind.",
		},
		[]string{"kind"},
	)
	lostBeamsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sifter_lost_beams_total",
			Help: "Beams declared lost by forced frame dumps.",
		},
	)
	groupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sifter_groups_total",
			Help: "Groups produced by the event grouper.",
		},
	)
	sinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sifter_sink_errors_total",
			Help: "Group batches a sink failed to accept.",
		},
	)
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sifter_queue_depth",
			Help: "Items waiting in the pipeline queues.",
		},
		[]string{"queue"},
	)
)
