package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fhirIngestionDuration   *prometheus.HistogramVec
	fhirIngestionTotal      *prometheus.CounterVec
	fhirPatientsStored      prometheus.Counter
	fhirPatientsFailed      *prometheus.CounterVec
	fhirResourcesFetched    *prometheus.CounterVec
	fhirHTTPRequestsTotal   *prometheus.CounterVec
	fhirHTTPRequestDuration *prometheus.HistogramVec

	fhirMetricsOnce sync.Once
)

// initializeFHIRMetrics registers the ingestion metrics once
func initializeFHIRMetrics() {
	fhirMetricsOnce.Do(func() {
		fhirIngestionDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhir_ingestion_duration_seconds",
				Help:    "Time spent on one FHIR ingestion run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		)

		fhirIngestionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_ingestion_total",
				Help: "Total number of FHIR ingestion runs",
			},
			[]string{"status"},
		)

		fhirResourcesFetched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_resources_fetched_total",
				Help: "Total number of FHIR resources fetched",
			},
			[]string{"resource_type"},
		)

		fhirPatientsStored = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fhir_patients_stored_total",
				Help: "Total number of patient records stored after mapping",
			},
		)

		fhirPatientsFailed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_patients_failed_total",
				Help: "Total number of patient records that failed to store",
			},
			[]string{"error_type"},
		)

		fhirHTTPRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_http_requests_total",
				Help: "Total number of HTTP requests to the FHIR server",
			},
			[]string{"resource_type", "status_code"},
		)

		fhirHTTPRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhir_http_request_duration_seconds",
				Help:    "Time spent making HTTP requests to the FHIR server",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type"},
		)

		GetInstance().registry.MustRegister(
			fhirIngestionDuration,
			fhirIngestionTotal,
			fhirResourcesFetched,
			fhirPatientsStored,
			fhirPatientsFailed,
			fhirHTTPRequestsTotal,
			fhirHTTPRequestDuration,
		)
	})
}

// RecordIngestionMetrics records the outcome of one ingestion run
func RecordIngestionMetrics(startTime time.Time, status string, storedCount, failedCount int) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeFHIRMetrics()

	fhirIngestionDuration.WithLabelValues(status).Observe(time.Since(startTime).Seconds())
	fhirIngestionTotal.WithLabelValues(status).Inc()
	fhirPatientsStored.Add(float64(storedCount))
	if failedCount > 0 {
		fhirPatientsFailed.WithLabelValues("storage_error").Add(float64(failedCount))
	}
}

// RecordResourcesFetched counts resources received for one resource type
func RecordResourcesFetched(resourceType string, count int) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeFHIRMetrics()
	fhirResourcesFetched.WithLabelValues(resourceType).Add(float64(count))
}

// RecordHTTPMetrics records metrics for requests to the FHIR server
func RecordHTTPMetrics(resourceType string, startTime time.Time, statusCode int) {
	if !BusinessMetricsEnabled() {
		return
	}
	initializeFHIRMetrics()

	fhirHTTPRequestsTotal.WithLabelValues(resourceType, strconv.Itoa(statusCode)).Inc()
	fhirHTTPRequestDuration.WithLabelValues(resourceType).Observe(time.Since(startTime).Seconds())
}
