// Package metrics holds the Prometheus collectors shared by the connectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fte_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	SessionReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fte_whatsapp_session_ready",
			Help: "1 when the WhatsApp session is ready, 0 otherwise",
		},
	)

	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_whatsapp_session_events_total",
			Help: "Lifecycle events reported by the WhatsApp client",
		},
		[]string{"event"}, // qr, authenticated, ready, auth_failure, disconnected
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_whatsapp_messages_received_total",
			Help: "Incoming WhatsApp messages by keyword match",
		},
		[]string{"matched"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_whatsapp_messages_sent_total",
			Help: "Outgoing WhatsApp messages by result",
		},
		[]string{"result"},
	)

	// Action records
	ActionRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_action_records_written_total",
			Help: "Action files written to the vault",
		},
		[]string{"result"},
	)

	ActionRecordsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fte_action_records_pending",
			Help: "Action files waiting in the needs-action directory",
		},
	)

	// Background tasks
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fte_task_runs_total",
			Help: "Background task executions",
		},
		[]string{"task", "result"},
	)
)
