package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/soko/core"
	"github.com/trezcool/soko/core/billing"
)

const namespace = "soko"

// Collector records the app metrics in its own registry.
type Collector struct {
	registry *prometheus.Registry

	paymentsTotal      prometheus.Counter
	paymentsRejected   *prometheus.CounterVec
	bonusesSpent       prometheus.Counter
	enrollmentsTotal   *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

var _ billing.Metrics = (*Collector)(nil)

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		paymentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Total number of successful course payments",
		}),
		paymentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Total number of rejected course payments",
		}, []string{"reason"}),
		bonusesSpent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bonuses_spent_total",
			Help:      "Total amount of bonuses spent on courses",
		}),
		enrollmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Total number of students enrolled after a payment",
		}, []string{"grouped"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) PaymentProcessed(amount core.Money) {
	c.paymentsTotal.Inc()
	c.bonusesSpent.Add(amount.Float())
}

func (c *Collector) PaymentRejected(reason string) {
	c.paymentsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) StudentEnrolled(grouped bool) {
	c.enrollmentsTotal.WithLabelValues(strconv.FormatBool(grouped)).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpRequestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
