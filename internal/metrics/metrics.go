// Package metrics definiert die Prometheus-Metriken der Anwendung
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysisRuns zählt Aufrufe des Erkennungsdienstes nach Ergebnis
	// ("ok" oder "error")
	AnalysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claimsight_analysis_runs_total",
		Help: "Total number of damage detection runs by outcome",
	}, []string{"outcome"})

	// AnalysisDuration misst die Dauer der Erkennungsläufe
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "claimsight_analysis_duration_seconds",
		Help:    "Duration of damage detection runs",
		Buckets: prometheus.DefBuckets,
	})

	// AnnotationsSaved zählt gespeicherte Annotationen
	AnnotationsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimsight_annotations_saved_total",
		Help: "Total number of annotations persisted",
	})

	// ClaimsSubmitted zählt eingereichte Schadenfälle
	ClaimsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claimsight_claims_submitted_total",
		Help: "Total number of submitted claim requests",
	})
)
