// Package twin runs the digital twin of the monitored component: it digests
// readings one at a time, keeping the component's life estimate and its recent
// anomalies up to date.
package twin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// DefaultRecentAnomalies is how many anomalies a Twin remembers by default.
const DefaultRecentAnomalies = 50

// Options configures a Twin.
type Options struct {
	Life lifemodel.Params
	// K and Warmup configure the streaming anomaly detector; zero values take
	// anomaly.DefaultK and anomaly.DefaultWarmup.
	K      float64
	Warmup int
	// RecentAnomalies bounds the anomalies kept in a Snapshot; zero means
	// DefaultRecentAnomalies.
	RecentAnomalies int
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Life:            lifemodel.DefaultParams(),
		K:               anomaly.DefaultK,
		Warmup:          anomaly.DefaultWarmup,
		RecentAnomalies: DefaultRecentAnomalies,
	}
}

// A Twin is the live state of the component. It is safe for concurrent use.
type Twin struct {
	acc *lifemodel.Accumulator

	mu        sync.Mutex
	detector  *anomaly.Rolling
	latest    cabintwin.Reading
	anomalies []anomaly.Event // ring buffer, oldest at next once full
	next      int
	total     int
}

// New returns a Twin that has observed nothing.
func New(opts Options) (*Twin, error) {
	if err := opts.Life.Validate(); err != nil {
		return nil, fmt.Errorf("life parameters: %w", err)
	}
	if opts.K == 0 {
		opts.K = anomaly.DefaultK
	}
	if opts.Warmup == 0 {
		opts.Warmup = anomaly.DefaultWarmup
	}
	if opts.RecentAnomalies <= 0 {
		opts.RecentAnomalies = DefaultRecentAnomalies
	}
	return &Twin{
		acc:       lifemodel.NewAccumulator(opts.Life),
		detector:  anomaly.NewRolling(opts.K, opts.Warmup),
		anomalies: make([]anomaly.Event, 0, opts.RecentAnomalies),
	}, nil
}

// Observe digests a reading and returns the anomalies it raised.
func (t *Twin) Observe(ctx context.Context, r cabintwin.Reading) []anomaly.Event {
	ctx, span := tracer.Start(ctx, "Twin.Observe", trace.WithAttributes(
		attribute.String("reading.timestamp", r.Timestamp.Format(time.RFC3339)),
	))
	defer span.End()
	start := time.Now()

	t.mu.Lock()
	events := t.detector.Observe(r)
	point := t.acc.Add(r)
	// transports may reorder readings; latest is the newest by timestamp
	if !r.Timestamp.Before(t.latest.Timestamp) {
		t.latest = r
	}
	for _, e := range events {
		t.remember(e)
	}
	t.mu.Unlock()

	measureObservation(ctx, point.LifeUsedPercent, events, time.Since(start))

	if len(events) > 0 {
		span.SetAttributes(attribute.Int("anomalies.count", len(events)))
		logger := component.Logger(ctx)
		for _, e := range events {
			logger.Info("Anomaly detected",
				slog.String("channel", string(e.Channel)),
				slog.Float64("value", e.Value),
				slog.Float64("score", e.Score),
				slog.Time("at", e.Timestamp),
			)
		}
	}
	return events
}

// remember appends e to the ring of recent anomalies. t.mu must be held.
func (t *Twin) remember(e anomaly.Event) {
	t.total++
	if len(t.anomalies) < cap(t.anomalies) {
		t.anomalies = append(t.anomalies, e)
		return
	}
	t.anomalies[t.next] = e
	t.next = (t.next + 1) % len(t.anomalies)
}

// An AnomalyHook receives the anomalies raised by a single reading, for
// example to persist them. An error stops the stream feeding the twin.
type AnomalyHook func(ctx context.Context, events []anomaly.Event) error

// Handler adapts Observe to a cabintwin.EventHandler, for use with an
// EventSource streaming readings. The hook, if not nil, is called whenever a
// reading raises anomalies.
func (t *Twin) Handler(hook AnomalyHook) cabintwin.EventHandler {
	return func(ctx context.Context, msg any) error {
		r, ok := msg.(cabintwin.Reading)
		if !ok {
			return fmt.Errorf("unexpected event %T", msg)
		}
		events := t.Observe(ctx, r)
		if hook == nil || len(events) == 0 {
			return nil
		}
		if err := hook(ctx, events); err != nil {
			return fmt.Errorf("anomaly hook: %w", err)
		}
		return nil
	}
}

// A Snapshot is a consistent copy of a Twin's state.
type Snapshot struct {
	// Readings is the number of readings observed.
	Readings int
	// Latest is the observed reading with the newest timestamp.
	Latest cabintwin.Reading
	Life     lifemodel.Point
	// Anomalies holds the most recent anomalies, oldest first.
	Anomalies []anomaly.Event
	// TotalAnomalies counts every anomaly raised, including those no longer in
	// Anomalies.
	TotalAnomalies int
}

// Snapshot returns a copy of the twin's current state.
func (t *Twin) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	recent := make([]anomaly.Event, 0, len(t.anomalies))
	recent = append(recent, t.anomalies[t.next:]...)
	recent = append(recent, t.anomalies[:t.next]...)
	return Snapshot{
		Readings:       t.acc.Count(),
		Latest:         t.latest,
		Life:           t.acc.Last(),
		Anomalies:      recent,
		TotalAnomalies: t.total,
	}
}
