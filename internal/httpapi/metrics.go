package httpapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/skillgate/internal/httpapi"

// Metrics holds the HTTP request instruments.
type Metrics struct {
	logger        *zap.Logger
	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram
}

// NewMetrics creates the HTTP metrics on the global meter provider.
// Instrument creation failures are logged and leave the instrument
// nil; recording skips nil instruments.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{logger: logger}
	meter := otel.Meter(instrumentationName)

	var err error
	m.requestsTotal, err = meter.Int64Counter(
		"skillgate.http.requests_total",
		metric.WithDescription("Total HTTP requests by method, path, and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = meter.Float64Histogram(
		"skillgate.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds by method, path, and status code"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	return m
}

// Middleware records one data point per request.
func (m *Metrics) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request().Method),
			attribute.String("path", c.Path()),
			attribute.String("status", strconv.Itoa(c.Response().Status)),
		)
		ctx := c.Request().Context()
		if m.requestsTotal != nil {
			m.requestsTotal.Add(ctx, 1, attrs)
		}
		if m.requestDur != nil {
			m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		return err
	}
}
