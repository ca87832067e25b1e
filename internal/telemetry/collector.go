package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/skillgate/internal/telemetry"

// ExecutionRecord is one guarded skill invocation outcome.
type ExecutionRecord struct {
	Skill   string
	Model   string
	Success bool
	Latency time.Duration

	// Tokens and CostUSD are taken from the skill output when present;
	// zero otherwise.
	Tokens  int
	CostUSD float64

	// Fallback names the fallback skill that served the request, empty
	// when the primary skill answered.
	Fallback string

	// ErrorCode is the classified code on failure, empty on success.
	ErrorCode string
}

// Collector records execution outcomes as OTEL metrics. It is
// append-only and safe for concurrent writers.
type Collector struct {
	logger *zap.Logger

	executions metric.Int64Counter
	latency    metric.Float64Histogram
	tokens     metric.Int64Counter
	cost       metric.Float64Counter
}

// NewCollector creates a collector on the given meter. Instrument
// creation failures are logged and leave that instrument nil; recording
// skips nil instruments.
func NewCollector(meter metric.Meter, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger}

	var err error
	c.executions, err = meter.Int64Counter("skillgate.executions",
		metric.WithDescription("Guarded skill executions by outcome"),
	)
	if err != nil {
		logger.Warn("failed to create executions counter", zap.Error(err))
	}
	c.latency, err = meter.Float64Histogram("skillgate.execution.latency",
		metric.WithDescription("Guarded skill execution latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		logger.Warn("failed to create latency histogram", zap.Error(err))
	}
	c.tokens, err = meter.Int64Counter("skillgate.execution.tokens",
		metric.WithDescription("Tokens consumed by skill executions"),
	)
	if err != nil {
		logger.Warn("failed to create tokens counter", zap.Error(err))
	}
	c.cost, err = meter.Float64Counter("skillgate.execution.cost",
		metric.WithDescription("Cost of skill executions"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		logger.Warn("failed to create cost counter", zap.Error(err))
	}

	return c
}

// RecordExecution records one terminal execution outcome.
func (c *Collector) RecordExecution(ctx context.Context, rec ExecutionRecord) {
	attrs := []attribute.KeyValue{
		attribute.String("skill", rec.Skill),
		attribute.Bool("success", rec.Success),
	}
	if rec.Model != "" {
		attrs = append(attrs, attribute.String("model", rec.Model))
	}
	if rec.Fallback != "" {
		attrs = append(attrs, attribute.String("fallback", rec.Fallback))
	}
	if rec.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", rec.ErrorCode))
	}
	set := metric.WithAttributes(attrs...)

	if c.executions != nil {
		c.executions.Add(ctx, 1, set)
	}
	if c.latency != nil {
		c.latency.Record(ctx, float64(rec.Latency.Milliseconds()), set)
	}
	if c.tokens != nil && rec.Tokens > 0 {
		c.tokens.Add(ctx, int64(rec.Tokens), set)
	}
	if c.cost != nil && rec.CostUSD > 0 {
		c.cost.Add(ctx, rec.CostUSD, set)
	}

	c.logger.Debug("execution recorded",
		zap.String("skill", rec.Skill),
		zap.Bool("success", rec.Success),
		zap.Duration("latency", rec.Latency),
		zap.String("fallback", rec.Fallback),
		zap.String("error_code", rec.ErrorCode),
	)
}
