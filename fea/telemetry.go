package fea

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/cabintwin/fea")
var meter = otel.Meter("github.com/go-digitaltwin/cabintwin/fea")

var (
	// solveDuration measures Solver.Run, artificial delay included.
	solveDuration metric.Float64Histogram
)

func init() {
	var err error
	solveDuration, err = meter.Float64Histogram(
		"fea.solve.duration",
		metric.WithDescription("The duration of solving a load case."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("fea: failed to init 'fea.solve.duration' instrument")
	}
}

func measureSolve(ctx context.Context, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(attribute.Bool("succeeded", succeeded))
	solveDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attrs))
}
