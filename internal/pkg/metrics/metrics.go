// Package metrics exposes the Prometheus collectors of the order pipeline.
package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "numerofox"

var (
	orderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order state transitions by source and target state.",
	}, []string{"from", "to"})

	pipelineFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_failures_total",
		Help:      "Orders moved to FAILED_TERMINAL, by failing stage.",
	}, []string{"stage"})

	interpretationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "interpretation_duration_seconds",
		Help:      "Wall time of interpretation calls including in-call retries.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120, 180},
	}, []string{"report_type", "outcome"})

	paymentWebhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhooks_total",
		Help:      "Inbound payment notifications by handling result.",
	}, []string{"result"})

	jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Background jobs by type and final status.",
	}, []string{"type", "status"})
)

func ObserveTransition(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

func ObservePipelineFailure(stage string) {
	pipelineFailures.WithLabelValues(stage).Inc()
}

func ObserveInterpretation(reportType, outcome string, d time.Duration) {
	interpretationDuration.WithLabelValues(reportType, outcome).Observe(d.Seconds())
}

func ObservePaymentWebhook(result string) {
	paymentWebhooks.WithLabelValues(result).Inc()
}

func ObserveJob(jobType, status string) {
	jobs.WithLabelValues(jobType, status).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
