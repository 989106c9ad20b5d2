package twin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielorbach/go-component"
	"gocloud.dev/pubsub/mempubsub"
	"golang.org/x/sync/errgroup"

	"github.com/go-digitaltwin/cabintwin"
)

// Replay streams readings through the twin over an in-memory pubsub topic: a
// producer publishes them while a consumer feeds them to Observe, the way a
// deployed twin receives readings from its sensors. It returns once every
// reading has been digested, or at the first failure of either side.
//
// The hook, if not nil, receives the anomalies raised along the way.
func (t *Twin) Replay(ctx context.Context, readings []cabintwin.Reading, hook AnomalyHook) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Twin.Replay")
	defer span.End()

	logger := component.Logger(ctx)
	logger.Info("Replaying readings...", slog.Int("count", len(readings)))
	start := time.Now()

	topic := mempubsub.NewTopic()
	defer topic.Shutdown(context.Background())
	// the subscription must exist before the first message is sent, otherwise
	// the topic drops it
	sub := mempubsub.NewSubscription(topic, time.Minute)
	defer sub.Shutdown(context.Background())

	src := cabintwin.NewReadingSource(sub)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Consume(gctx, t.Handler(hook))
	})
	g.Go(func() error {
		return cabintwin.PublishReadings(gctx, topic, readings)
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("replay: %w", err)
	}
	// the consumer stops quietly on cancellation, which leaves the replay
	// incomplete
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("replay: %w", err)
	}

	snap := t.Snapshot()
	logger.Info("Replay finished",
		slog.Int("readings", snap.Readings),
		slog.Int("anomalies", snap.TotalAnomalies),
		slog.Float64("lifeUsedPercent", snap.Life.LifeUsedPercent),
		slog.Duration("elapsed", time.Since(start)),
	)
	return snap, nil
}
