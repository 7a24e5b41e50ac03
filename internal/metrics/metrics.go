// Package metrics provides Prometheus instrumentation for dexguard.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dexguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AssessmentsTotal counts completed risk assessments by level.
	AssessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexguard",
			Name:      "assessments_total",
			Help:      "Total risk assessments completed by risk level.",
		},
		[]string{"level"},
	)

	// AssessmentDuration observes end-to-end assessment latency.
	AssessmentDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexguard",
		Name:      "assessment_duration_seconds",
		Help:      "Risk assessment duration in seconds.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// RiskScores observes the distribution of composite risk scores.
	RiskScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexguard",
		Name:      "risk_score",
		Help:      "Distribution of composite risk scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	// AnomalyScores observes the distribution of anomaly model scores.
	AnomalyScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dexguard",
		Name:      "anomaly_score",
		Help:      "Distribution of anomaly model scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	// FindingsTotal counts detector findings by kind.
	FindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexguard",
			Name:      "findings_total",
			Help:      "Total detector findings by kind.",
		},
		[]string{"kind"},
	)

	// AlertDispatchesTotal counts alert dispatch outcomes by result.
	AlertDispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexguard",
			Name:      "alert_dispatches_total",
			Help:      "Total alert dispatch outcomes (sent, failed, deduped, dropped).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AssessmentsTotal,
		AssessmentDuration,
		RiskScores,
		AnomalyScores,
		FindingsTotal,
		AlertDispatchesTotal,
	)
}

// PromRecorder implements risk.Recorder on top of the package metrics.
type PromRecorder struct{}

func (PromRecorder) ObserveAssessment(level string, score float64, latency time.Duration) {
	AssessmentsTotal.WithLabelValues(level).Inc()
	AssessmentDuration.Observe(latency.Seconds())
	RiskScores.Observe(score)
}

func (PromRecorder) IncFinding(kind string) {
	FindingsTotal.WithLabelValues(kind).Inc()
}

func (PromRecorder) ObserveAnomalyScore(score float64) {
	AnomalyScores.Observe(score)
}

func (PromRecorder) IncDispatch(result string) {
	AlertDispatchesTotal.WithLabelValues(result).Inc()
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
