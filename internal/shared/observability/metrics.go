package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "abigate_stage_seconds",
		Help:    "Time spent in a gate stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	StageResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abigate_stage_results_total",
		Help: "Total number of gate stage outcomes by status.",
	}, []string{"stage", "status"})

	RequiredSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abigate_required_symbols",
		Help: "Number of distinct symbols required by vendor modules in the last run.",
	})

	RequiredModules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abigate_required_modules",
		Help: "Number of distinct modules that require symbols in the last run.",
	})

	ApprovedSymbols = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "abigate_approved_symbols",
		Help: "Number of approved-missing symbols in the last run by source.",
	}, []string{"source"})

	MissingSymbols = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abigate_missing_symbols",
		Help: "Number of required symbols left uncovered by the approval set in the last run.",
	})

	VersionMismatches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "abigate_version_mismatches",
		Help: "Number of modversion mismatch records in the last run by baseline.",
	}, []string{"baseline"})

	ToolInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abigate_tool_invocations_total",
		Help: "Total number of external tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "abigate_runs_total",
		Help: "Total number of gate runs by final status.",
	}, []string{"status"})
)

// ObserveTool records the outcome of one external tool invocation.
func ObserveTool(tool string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ToolInvocationsTotal.WithLabelValues(tool, outcome).Inc()
}
