package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the payment and task pipelines.
type Metrics struct {
	WebhookProcessingTime *prometheus.HistogramVec
	WebhookErrors         *prometheus.CounterVec
	BestEffortFailures    *prometheus.CounterVec
	TaskDuration          *prometheus.HistogramVec
	TaskErrors            *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookProcessingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_webhook_processing_seconds",
			Help:    "Time spent handling a payment gateway webhook.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway_type"}),
		WebhookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhook_errors_total",
			Help: "Payment webhooks that ended with an internal error.",
		}, []string{"gateway_type"}),
		BestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "best_effort_failures_total",
			Help: "Side operations that failed without failing the caller.",
		}, []string{"operation"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Time spent running a queued task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		TaskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_errors_total",
			Help: "Queued task runs that returned an error.",
		}, []string{"task"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.WebhookProcessingTime,
			m.WebhookErrors,
			m.BestEffortFailures,
			m.TaskDuration,
			m.TaskErrors,
		)
	}
	return m
}
