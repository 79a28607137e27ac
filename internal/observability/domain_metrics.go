package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_turns_total",
			Help: "Total number of conversation turns by category and outcome.",
		},
		[]string{"category", "outcome"},
	)
	oracleCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_oracle_calls_total",
			Help: "Total number of completion oracle calls by result.",
		},
		[]string{"result"},
	)
	oracleLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabletalk_oracle_latency_ms",
			Help:    "Completion oracle call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
		},
	)
	repairRulesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_repair_rules_applied_total",
			Help: "Total number of statement repair rules that changed a statement.",
		},
		[]string{"rule"},
	)
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_guard_rejections_total",
			Help: "Total number of statements rejected by the guard by reason.",
		},
		[]string{"reason"},
	)
	executionLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_execution_latency_ms",
			Help:    "Statement execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"result"},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_truncated_results_total",
			Help: "Total number of result sets cut at the row cap.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		oracleCallsTotal,
		oracleLatencyMs,
		repairRulesTotal,
		guardRejectionsTotal,
		executionLatencyMs,
		truncatedResultsTotal,
	)
}

func ObserveTurn(category, outcome string) {
	turnsTotal.WithLabelValues(category, outcome).Inc()
}

func ObserveOracleCall(result string, elapsed time.Duration) {
	oracleCallsTotal.WithLabelValues(result).Inc()
	oracleLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveRepairRules(rules []string) {
	for _, rule := range rules {
		repairRulesTotal.WithLabelValues(rule).Inc()
	}
}

func ObserveGuardRejection(reason string) {
	guardRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveExecution(result string, elapsed time.Duration, truncated bool) {
	executionLatencyMs.WithLabelValues(result).Observe(float64(elapsed.Milliseconds()))
	if truncated {
		truncatedResultsTotal.Inc()
	}
}
