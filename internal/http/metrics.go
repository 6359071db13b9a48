package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collectors are package-level so multiple Server instances (tests) share
// one registration in the default registry.
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wortschatz_http_requests_total",
			Help: "Total HTTP requests labeled by method, endpoint, and status code.",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wortschatz_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, labeled by method and endpoint.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "endpoint"},
	)

	tutorOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wortschatz_tutor_operations_total",
			Help: "Remote tutor operations labeled by operation (lookup, check, chat) and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

// Metrics records request and tutor-operation metrics.
type Metrics struct {
	logger *zap.Logger
}

// NewMetrics creates a Metrics instance.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{logger: logger}
}

// Middleware returns an Echo middleware that records HTTP metrics. The
// route template (c.Path) is used as the endpoint label so path
// parameters don't explode cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			endpoint := c.Path()
			if endpoint == "" {
				endpoint = "/"
			}
			method := c.Request().Method
			status := strconv.Itoa(c.Response().Status)

			requestsTotal.WithLabelValues(method, endpoint, status).Inc()
			requestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// ObserveLookup records the outcome of a word lookup.
func (m *Metrics) ObserveLookup(ok bool) { observeTutorOp("lookup", ok) }

// ObserveCheck records the outcome of a sentence check.
func (m *Metrics) ObserveCheck(ok bool) { observeTutorOp("check", ok) }

// ObserveChat records the outcome of a chat turn.
func (m *Metrics) ObserveChat(ok bool) { observeTutorOp("chat", ok) }

func observeTutorOp(operation string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	tutorOperations.WithLabelValues(operation, outcome).Inc()
}
