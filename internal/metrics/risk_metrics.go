package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"stealthcompany.com/glycorisk/internal/risk"
)

var (
	riskAssessmentsTotal *prometheus.CounterVec
	riskFlagsTotal       *prometheus.CounterVec
	riskFailuresTotal    *prometheus.CounterVec
	riskBatchDuration    prometheus.Histogram
	riskBatchSize        prometheus.Histogram

	riskMetricsOnce sync.Once
)

func initializeRiskMetrics() {
	riskMetricsOnce.Do(func() {
		riskAssessmentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "risk_assessments_total",
				Help: "Patient assessments produced, by risk level",
			},
			[]string{"level"},
		)

		riskFlagsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "risk_flags_total",
				Help: "Flags generated, by kind and severity",
			},
			[]string{"kind", "severity"},
		)

		riskFailuresTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "risk_evaluation_failures_total",
				Help: "Patient evaluations aborted, by reason",
			},
			[]string{"reason"}, // "invalid_input", "cancelled", "other"
		)

		riskBatchDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "risk_batch_duration_seconds",
				Help:    "Time spent evaluating and ranking one patient batch",
				Buckets: prometheus.DefBuckets,
			},
		)

		riskBatchSize = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "risk_batch_patients",
				Help:    "Number of patients per evaluated batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		)

		GetInstance().registry.MustRegister(
			riskAssessmentsTotal,
			riskFlagsTotal,
			riskFailuresTotal,
			riskBatchDuration,
			riskBatchSize,
		)
	})
}

// FailureReason buckets an evaluation error into a metric label.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// RecordAssessment counts one assessment and its flags.
func RecordAssessment(a risk.Assessment) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeRiskMetrics()

	riskAssessmentsTotal.WithLabelValues(a.RiskLevel.String()).Inc()
	for _, f := range a.Flags {
		riskFlagsTotal.WithLabelValues(string(f.Kind), f.Severity.String()).Inc()
	}
}

// RecordEvaluationFailure counts one aborted patient evaluation.
func RecordEvaluationFailure(err error) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeRiskMetrics()
	riskFailuresTotal.WithLabelValues(FailureReason(err)).Inc()
}

// RecordBatch records a whole EvaluateAll run.
func RecordBatch(result risk.BatchResult, startTime time.Time) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeRiskMetrics()

	riskBatchDuration.Observe(time.Since(startTime).Seconds())
	riskBatchSize.Observe(float64(len(result.Ranked) + len(result.Failures)))
	for _, a := range result.Ranked {
		RecordAssessment(a)
	}
	for _, f := range result.Failures {
		RecordEvaluationFailure(f.Err)
	}
}
