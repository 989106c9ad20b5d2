package twin

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-digitaltwin/cabintwin/anomaly"
)

var tracer = otel.Tracer("github.com/go-digitaltwin/cabintwin/twin")
var meter = otel.Meter("github.com/go-digitaltwin/cabintwin/twin")

const (
	// anomalyChannel labels anomaly records with the channel that raised them.
	anomalyChannel = "channel"
	// anomalyKind labels anomaly records with the detector that raised them.
	anomalyKind = "kind"
)

var (
	// observationDuration measures the time a twin takes to digest a single
	// reading.
	observationDuration metric.Float64Histogram
	// observedReadings counts the readings digested by every twin.
	observedReadings metric.Int64Counter
	// raisedAnomalies counts anomalies, labelled by channel and kind.
	raisedAnomalies metric.Int64Counter
	// lifeUsed reports the life used by the component after the latest reading.
	lifeUsed metric.Float64Gauge
)

func init() {
	var err error
	observationDuration, err = meter.Float64Histogram(
		"twin.observation.duration",
		metric.WithDescription("The duration of digesting a single reading."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("twin: failed to init 'twin.observation.duration' instrument")
	}

	observedReadings, err = meter.Int64Counter(
		"twin.readings",
		metric.WithDescription("The number of readings digested."),
	)
	if err != nil {
		panic("twin: failed to init 'twin.readings' instrument")
	}

	raisedAnomalies, err = meter.Int64Counter(
		"twin.anomalies",
		metric.WithDescription("The number of anomalies raised while digesting readings."),
	)
	if err != nil {
		panic("twin: failed to init 'twin.anomalies' instrument")
	}

	lifeUsed, err = meter.Float64Gauge(
		"twin.life.used",
		metric.WithDescription("The fatigue life used by the component."),
		metric.WithUnit("%"),
	)
	if err != nil {
		panic("twin: failed to init 'twin.life.used' instrument")
	}
}

func measureObservation(ctx context.Context, used float64, events []anomaly.Event, d time.Duration) {
	// floating-point division keeps sub-millisecond precision
	observationDuration.Record(ctx, float64(d)/float64(time.Millisecond))
	observedReadings.Add(ctx, 1)
	lifeUsed.Record(ctx, used)
	for _, e := range events {
		attrs := attribute.NewSet(
			attribute.String(anomalyChannel, string(e.Channel)),
			attribute.String(anomalyKind, string(e.Kind)),
		)
		raisedAnomalies.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
