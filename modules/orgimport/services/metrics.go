package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

var (
	importRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org_import",
		Name:      "runs_total",
		Help:      "Total number of import runs broken down by result.",
	}, []string{"result"})

	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org_import",
		Name:      "rows_total",
		Help:      "Total number of extracted rows broken down by sheet.",
	}, []string{"sheet"})

	importIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org_import",
		Name:      "issues_total",
		Help:      "Total number of validation findings broken down by type and severity.",
	}, []string{"type", "severity"})

	importWaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org_import",
		Name:      "wave_duration_seconds",
		Help:      "Time spent persisting one dependency wave.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"entity"})
)

func recordRun(result string) {
	if result == "" {
		result = "unknown"
	}
	importRuns.WithLabelValues(result).Inc()
}

func recordRows(departments, positions int) {
	importRows.WithLabelValues(issue.SheetDepartments).Add(float64(departments))
	importRows.WithLabelValues(issue.SheetPositions).Add(float64(positions))
}

func recordIssues(list issue.List) {
	for _, e := range list {
		importIssues.WithLabelValues(string(e.Type), string(e.Severity)).Inc()
	}
}
