package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the Prometheus instruments the jobs runner, cache,
// and rate limiter record against.
type Metrics struct {
	// CacheLookups counts cache probes by outcome (hit|miss).
	CacheLookups *prometheus.CounterVec

	// BucketWaitSeconds measures time spent blocked on a token bucket.
	// Labels: model, bucket (requests|tokens)
	BucketWaitSeconds *prometheus.HistogramVec

	// InterviewOutcomes counts completed interviews by final outcome.
	// Labels: model, outcome (succeeded|failed|cancelled)
	InterviewOutcomes *prometheus.CounterVec

	// QuestionOutcomes counts per-question results within interviews.
	// Labels: question, outcome (succeeded|failed|skipped)
	QuestionOutcomes *prometheus.CounterVec

	// LLMCallDuration measures adapter call latency in seconds.
	// Labels: provider, model
	LLMCallDuration *prometheus.HistogramVec

	// LLMCallCounter counts adapter calls by outcome.
	// Labels: provider, model, status (success|transient_error|permanent_error)
	LLMCallCounter *prometheus.CounterVec

	// LLMTokensEstimated tracks the estimated prompt token volume sent
	// to each model, used to cross-check bucket accounting.
	// Labels: provider, model
	LLMTokensEstimated *prometheus.CounterVec

	// RunInFlight tracks interviews currently being conducted.
	RunInFlight prometheus.Gauge
}

// NewMetrics creates and registers every instrument against Prometheus's
// default registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edsl_cache_lookups_total",
				Help: "Total cache probes by outcome",
			},
			[]string{"outcome"},
		),
		BucketWaitSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edsl_bucket_wait_seconds",
				Help:    "Time spent blocked acquiring a rate-limit bucket",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"model", "bucket"},
		),
		InterviewOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edsl_interview_outcomes_total",
				Help: "Completed interviews by final outcome",
			},
			[]string{"model", "outcome"},
		),
		QuestionOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edsl_question_outcomes_total",
				Help: "Per-question results within interviews",
			},
			[]string{"question", "outcome"},
		),
		LLMCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edsl_llm_call_duration_seconds",
				Help:    "LM adapter call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edsl_llm_calls_total",
				Help: "LM adapter calls by outcome",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensEstimated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edsl_llm_tokens_estimated_total",
				Help: "Estimated prompt token volume sent per model",
			},
			[]string{"provider", "model"},
		),
		RunInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "edsl_run_interviews_in_flight",
				Help: "Interviews currently being conducted",
			},
		),
	}
}
