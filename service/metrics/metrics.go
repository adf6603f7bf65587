package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Submission pipeline metrics
	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	submissionAttempts *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	pollsPerSubmission *prometheus.HistogramVec

	// Ledger RPC metrics
	ledgerCallsTotal   *prometheus.CounterVec
	ledgerCallDuration *prometheus.HistogramVec

	// History metrics
	historyEntries *prometheus.GaugeVec

	// Workflow metrics
	workflowDuration        *prometheus.HistogramVec
	workflowExecutionsTotal *prometheus.CounterVec
	activityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Submission pipeline metrics
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aleotx_submissions_total",
				Help: "Total number of pipeline runs by operation kind and final state",
			},
			[]string{"kind", "state"},
		),
		submissionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_submission_duration_seconds",
				Help:    "Duration of pipeline runs from build to final state in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"kind", "state"},
		),
		submissionAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_submission_attempts",
				Help:    "Number of signer attempts per pipeline run",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"kind"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aleotx_retries_total",
				Help: "Total number of submission retries by operation kind and error kind",
			},
			[]string{"kind", "error_kind"},
		),
		pollsPerSubmission: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_confirmation_polls",
				Help:    "Number of status queries made per confirmation",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"state"},
		),

		// Ledger RPC metrics
		ledgerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aleotx_ledger_calls_total",
				Help: "Total number of ledger RPC calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		ledgerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_ledger_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),

		// History metrics
		historyEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aleotx_history_entries",
				Help: "Number of entries currently held in the transaction history",
			},
			[]string{"source"},
		),

		// Workflow metrics
		workflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_workflow_duration_seconds",
				Help:    "Duration of operation workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind", "status"},
		),
		workflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aleotx_workflow_executions_total",
				Help: "Total number of operation workflow executions",
			},
			[]string{"kind", "status"},
		),
		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aleotx_activity_duration_seconds",
				Help:    "Duration of operation workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Submission pipeline metric helpers

// RecordSubmission records a finished pipeline run.
func (m *Metrics) RecordSubmission(kind, state string, attempts int, duration time.Duration) {
	m.submissionsTotal.WithLabelValues(kind, state).Inc()
	m.submissionDuration.WithLabelValues(kind, state).Observe(duration.Seconds())
	if attempts > 0 {
		m.submissionAttempts.WithLabelValues(kind).Observe(float64(attempts))
	}
}

// RecordRetry records a submission retry.
func (m *Metrics) RecordRetry(kind, errorKind string) {
	m.retriesTotal.WithLabelValues(kind, errorKind).Inc()
}

// RecordPolls records how many status queries a confirmation took.
func (m *Metrics) RecordPolls(state string, polls int) {
	m.pollsPerSubmission.WithLabelValues(state).Observe(float64(polls))
}

// Ledger metric helpers

// RecordLedgerCall records a ledger RPC call with duration.
func (m *Metrics) RecordLedgerCall(endpoint string, duration time.Duration, err error) {
	m.ledgerCallsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()
	m.ledgerCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// History metric helpers

// RecordHistorySize records the current number of history entries.
func (m *Metrics) RecordHistorySize(source string, n int) {
	m.historyEntries.WithLabelValues(source).Set(float64(n))
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(kind, status string, duration float64) {
	m.workflowDuration.WithLabelValues(kind, status).Observe(duration)
	m.workflowExecutionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64, err error) {
	m.activityDuration.WithLabelValues(activity, statusLabel(err)).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
