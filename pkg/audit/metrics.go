package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// methodsScanned counts method bodies walked by the code module.
	methodsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "callaudit",
		Subsystem: "walker",
		Name:      "methods_scanned_total",
		Help:      "Method bodies scanned for rule matches",
	})

	// decodeErrors counts methods skipped because their body could not be decoded.
	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "callaudit",
		Subsystem: "walker",
		Name:      "decode_errors_total",
		Help:      "Methods skipped because of malformed instruction streams",
	})

	// issuesFound counts emitted issues.
	// Labels: category (Code, ProjectSetting, Asset, custom)
	issuesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callaudit",
		Name:      "issues_total",
		Help:      "Issues emitted by category",
	}, []string{"category"})

	// scanDuration measures one walker scan.
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "callaudit",
		Subsystem: "walker",
		Name:      "scan_duration_seconds",
		Help:      "Duration of a code scan",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	// moduleRuns counts module runs by module and final status.
	// Labels: module (code, settings, assets), status (completed, cancelled, failed)
	moduleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callaudit",
		Subsystem: "auditor",
		Name:      "module_runs_total",
		Help:      "Module runs by final status",
	}, []string{"module", "status"})
)
