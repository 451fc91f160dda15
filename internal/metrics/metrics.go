package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_events_started_total",
		Help: "Total number of events entered into the trigger manager, labelled by kind.",
	}, []string{"kind"})

	EventsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_events_finished_total",
		Help: "Total number of events that left the stack, labelled by kind and final state.",
	}, []string{"kind", "state"})

	EventsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardflow_events_suspended_total",
		Help: "Total number of times an event suspended awaiting external input.",
	})

	TriggersInvoked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_triggers_invoked_total",
		Help: "Total number of trigger invocations, labelled by phase.",
	}, []string{"phase"})

	FlowNodesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_flow_nodes_executed_total",
		Help: "Total number of graph nodes run by flows, labelled by node kind.",
	}, []string{"kind"})

	FlowsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_flows_finished_total",
		Help: "Total number of flows that completed or failed, labelled by status.",
	}, []string{"status"})

	FlowsSuspended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardflow_flows_suspended_total",
		Help: "Total number of times a flow suspended awaiting input or an event.",
	})

	ChangesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardflow_changes_recorded_total",
		Help: "Total number of changes added to a ledger, labelled by change kind.",
	}, []string{"kind"})

	ChangesReverted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardflow_changes_reverted_total",
		Help: "Total number of changes reverted.",
	})

	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardflow_simulation_duration_ms",
		Help:    "Wall time of one simulated session in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	SimulationQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardflow_simulation_queue_utilization_ratio",
		Help: "Current simulation job queue utilization (0–1).",
	})

	SimulationsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardflow_simulations_running",
		Help: "Simulated sessions currently being played.",
	})
)
