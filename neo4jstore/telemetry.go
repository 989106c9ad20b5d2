package neo4jstore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/cabintwin/neo4jstore")
var meter = otel.Meter("github.com/go-digitaltwin/cabintwin/neo4jstore")

var (
	// writeDuration measures write transactions, labelled by operation and
	// outcome.
	writeDuration metric.Float64Histogram
)

func init() {
	var err error
	writeDuration, err = meter.Float64Histogram(
		"neo4j.write.duration",
		metric.WithDescription("The duration of a write transaction against the asset graph."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("neo4jstore: failed to init 'neo4j.write.duration' instrument: %v", err))
	}
}

func measureWrite(ctx context.Context, operation string, succeeded bool, d time.Duration) {
	outcome := "ok"
	if !succeeded {
		outcome = "failed"
	}
	attrs := attribute.NewSet(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	writeDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
}
