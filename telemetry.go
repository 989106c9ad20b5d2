package cabintwin

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/cabintwin")
var meter = otel.Meter("github.com/go-digitaltwin/cabintwin")

const (
	// publishOutcome labels publish records with "ok" or "failed", so that
	// publishDuration can be examined for both outcomes.
	publishOutcome = "outcome"
)

var (
	// publishDuration measures the duration of publishing an entire batch of
	// readings, end-of-stream marker included.
	publishDuration metric.Float64Histogram
	// publishedReadings counts the readings handed to a topic.
	publishedReadings metric.Int64Counter
)

func init() {
	var err error
	publishDuration, err = meter.Float64Histogram(
		"readings.publish.duration",
		metric.WithDescription("The duration of publishing a batch of readings, including the end-of-stream marker."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("cabintwin: failed to init 'readings.publish.duration' instrument")
	}

	publishedReadings, err = meter.Int64Counter(
		"readings.published",
		metric.WithDescription("The number of readings published to a topic."),
	)
	if err != nil {
		panic("cabintwin: failed to init 'readings.published' instrument")
	}
}

// measurePublish records the duration of a publish and, when it succeeded, the
// number of readings it published.
func measurePublish(ctx context.Context, n int, succeeded bool, d time.Duration) {
	outcome := "ok"
	if !succeeded {
		outcome = "failed"
	}
	attrs := attribute.NewSet(attribute.String(publishOutcome, outcome))
	// floating-point division keeps sub-millisecond precision
	publishDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
	if succeeded {
		publishedReadings.Add(ctx, int64(n))
	}
}
