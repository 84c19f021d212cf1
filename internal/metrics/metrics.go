// Package metrics registers the Prometheus instruments exposed on
// /metrics by the serve command.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChecksTotal counts Tier-1 verdicts by source and outcome.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "checks_total",
		Help:      "Tier-1 stock check verdicts.",
	}, []string{"source", "result"})

	// ActionsTotal counts Tier-2 applied actions.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "ai_actions_total",
		Help:      "Tier-2 corrective actions applied, after reconciliation.",
	}, []string{"action"})

	// ClassifierErrors counts verification attempts that failed in the
	// classifier after retries.
	ClassifierErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "classifier_errors_total",
		Help:      "Classifier calls that failed after retries.",
	})

	// SkippedFetches counts Tier-2 items skipped because the page fetch failed.
	SkippedFetches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "verify_skipped_fetches_total",
		Help:      "Verification candidates skipped due to fetch failure.",
	})

	// ClassifierLatency observes wall-clock time per classifier call,
	// including retries.
	ClassifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stockwatch",
		Name:      "classifier_latency_seconds",
		Help:      "Latency of one classification, retries included.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// RunDuration observes wall-clock duration of pipeline runs.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stockwatch",
		Name:      "run_duration_seconds",
		Help:      "Pipeline run duration by kind.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	// TokensTotal counts classifier token consumption.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "anthropic_tokens_total",
		Help:      "Anthropic token usage by model and direction.",
	}, []string{"model", "direction"})

	// LearningNotes counts notes persisted by the self-review loop.
	LearningNotes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockwatch",
		Name:      "learning_notes_total",
		Help:      "Learning notes persisted by self-review.",
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTokens attributes one classifier response's token usage.
func RecordTokens(model string, input, output int64) {
	TokensTotal.WithLabelValues(model, "input").Add(float64(input))
	TokensTotal.WithLabelValues(model, "output").Add(float64(output))
}
