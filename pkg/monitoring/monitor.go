package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_submissions_total",
			Help: "Submissions accepted or rejected at intake",
		},
		[]string{"result"},
	)

	GradingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_status_transitions_total",
			Help: "Submission status transitions",
		},
		[]string{"from", "to"},
	)

	ScoringErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_errors_total",
			Help: "Answers left pending because the scoring engine failed",
		},
	)

	AIJobCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_jobs_total",
			Help: "AI background jobs by kind and final status",
		},
		[]string{"kind", "status"},
	)

	AIJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_job_duration_seconds",
			Help:    "Duration of AI background jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SubmissionCounter,
			GradingTransitions,
			ScoringErrors,
			AIJobCounter,
			AIJobDuration,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
