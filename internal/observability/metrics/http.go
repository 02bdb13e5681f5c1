package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics captures low-cardinality HTTP server metrics.
type HTTPMetrics struct {
	requestDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
}

// NewHTTPMetrics creates and registers HTTP metrics instruments.
func NewHTTPMetrics() (*HTTPMetrics, error) {
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mizan",
		Name:      "http_server_duration_ms",
		Help:      "HTTP request duration in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"endpoint", "method", "status_code"})

	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mizan",
		Name:      "http_server_in_flight",
		Help:      "In-flight HTTP requests.",
	}, []string{"endpoint"})

	if err := prometheus.Register(requestDuration); err != nil {
		return nil, err
	}
	if err := prometheus.Register(inFlight); err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requestDuration: requestDuration,
		inFlight:        inFlight,
	}, nil
}

// GinMiddleware records request duration and in-flight metrics.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		endpoint := normalizeEndpoint(c.FullPath())
		m.inFlight.WithLabelValues(endpoint).Inc()
		start := time.Now()
		c.Next()
		m.inFlight.WithLabelValues(endpoint).Dec()

		m.requestDuration.WithLabelValues(
			endpoint,
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "unknown"
	}
	return endpoint
}
