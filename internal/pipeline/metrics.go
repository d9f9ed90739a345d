package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	runs       metric.Int64Counter
	duration   metric.Float64Histogram
	finalCount metric.Int64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("tripd.pipeline")

	runs, _ := meter.Int64Counter("tripd.pipeline.runs",
		metric.WithDescription("Completed pipeline runs"),
	)
	duration, _ := meter.Float64Histogram("tripd.pipeline.run.duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("s"),
	)
	finalCount, _ := meter.Int64Histogram("tripd.pipeline.run.final_count",
		metric.WithDescription("Places returned per run"),
	)

	return &metrics{runs: runs, duration: duration, finalCount: finalCount}
}

func (m *metrics) recordRun(ctx context.Context, elapsed time.Duration, finalCount int, shortCircuited bool) {
	attrs := metric.WithAttributes(attribute.Bool("short_circuited", shortCircuited))
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.finalCount.Record(ctx, int64(finalCount), attrs)
}
