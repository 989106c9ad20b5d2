package twin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
	"github.com/go-digitaltwin/cabintwin/synth"
)

var t0 = time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

func newTwin(t *testing.T, opts Options) *Twin {
	t.Helper()
	tw, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tw
}

// steady returns n readings whose vibration alternates around 1g.
func steady(n int) []cabintwin.Reading {
	out := make([]cabintwin.Reading, n)
	for i := range out {
		out[i] = cabintwin.Reading{
			Timestamp:         t0.Add(time.Duration(i) * 10 * time.Second),
			TemperatureC:      25,
			VibrationG:        1 + 0.1*float64(i%2*2-1),
			DeformationMicros: 40,
		}
	}
	return out
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	tw := newTwin(t, Options{Life: lifemodel.DefaultParams(), Warmup: 10})

	readings := steady(20)
	for _, r := range readings {
		if events := tw.Observe(ctx, r); len(events) != 0 {
			t.Fatalf("Observe(%v) = %v, want no anomalies", r.Timestamp, events)
		}
	}
	spike := cabintwin.Reading{Timestamp: t0.Add(time.Hour), TemperatureC: 25, VibrationG: 12, DeformationMicros: 40}
	events := tw.Observe(ctx, spike)
	want := []anomaly.Event{{Timestamp: spike.Timestamp, Channel: cabintwin.Vibration, Value: 12, Kind: anomaly.KindRolling}}
	if diff := cmp.Diff(want, events, cmpopts.IgnoreFields(anomaly.Event{}, "Score")); diff != "" {
		t.Fatalf("Observe(spike) mismatch (-want +got):\n%s", diff)
	}

	snap := tw.Snapshot()
	all := append(readings, spike)
	wantLife := lifemodel.Estimate(all)[len(all)-1]
	if diff := cmp.Diff(wantLife, snap.Life); diff != "" {
		t.Errorf("Snapshot().Life mismatch (-want +got):\n%s", diff)
	}
	if snap.Readings != len(all) {
		t.Errorf("Snapshot().Readings = %d, want %d", snap.Readings, len(all))
	}
	if diff := cmp.Diff(spike, snap.Latest); diff != "" {
		t.Errorf("Snapshot().Latest mismatch (-want +got):\n%s", diff)
	}
	if snap.TotalAnomalies != 1 || len(snap.Anomalies) != 1 {
		t.Errorf("Snapshot() anomalies = %d/%d, want 1/1", len(snap.Anomalies), snap.TotalAnomalies)
	}
}

func TestObserveOutOfOrder(t *testing.T) {
	ctx := context.Background()
	tw := newTwin(t, DefaultOptions())

	newer := cabintwin.Reading{Timestamp: t0.Add(time.Minute), TemperatureC: 30}
	older := cabintwin.Reading{Timestamp: t0, TemperatureC: 10}
	tw.Observe(ctx, newer)
	tw.Observe(ctx, older)
	if diff := cmp.Diff(newer, tw.Snapshot().Latest); diff != "" {
		t.Errorf("Snapshot().Latest mismatch (-want +got):\n%s", diff)
	}
}

func TestRememberRing(t *testing.T) {
	tw := newTwin(t, Options{Life: lifemodel.DefaultParams(), RecentAnomalies: 3})
	for i := range 5 {
		tw.mu.Lock()
		tw.remember(anomaly.Event{Value: float64(i)})
		tw.mu.Unlock()
	}
	snap := tw.Snapshot()
	want := []anomaly.Event{{Value: 2}, {Value: 3}, {Value: 4}}
	if diff := cmp.Diff(want, snap.Anomalies); diff != "" {
		t.Errorf("Snapshot().Anomalies mismatch (-want +got):\n%s", diff)
	}
	if snap.TotalAnomalies != 5 {
		t.Errorf("Snapshot().TotalAnomalies = %d, want 5", snap.TotalAnomalies)
	}
}

func TestNewRejectsInvalidLife(t *testing.T) {
	opts := DefaultOptions()
	opts.Life.TotalLifeUnits = 0
	if _, err := New(opts); err == nil {
		t.Error("New() with zero total life succeeded, want error")
	}
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	tw := newTwin(t, Options{Life: lifemodel.DefaultParams(), Warmup: 10})

	var hooked []anomaly.Event
	h := tw.Handler(func(_ context.Context, events []anomaly.Event) error {
		hooked = append(hooked, events...)
		return nil
	})
	for _, r := range steady(20) {
		if err := h(ctx, r); err != nil {
			t.Fatalf("handler error = %v", err)
		}
	}
	if err := h(ctx, cabintwin.Reading{Timestamp: t0.Add(time.Hour), VibrationG: 12, TemperatureC: 25, DeformationMicros: 40}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(hooked) != 1 {
		t.Errorf("hook received %v, want one anomaly", hooked)
	}

	if err := h(ctx, "not a reading"); err == nil {
		t.Error("handler accepted a non-reading event, want error")
	}
}

func TestHandlerHookError(t *testing.T) {
	ctx := context.Background()
	tw := newTwin(t, Options{Life: lifemodel.DefaultParams(), Warmup: 2})
	boom := errors.New("boom")
	h := tw.Handler(func(context.Context, []anomaly.Event) error { return boom })

	var err error
	for _, r := range append(steady(10), cabintwin.Reading{Timestamp: t0.Add(time.Hour), VibrationG: 50}) {
		if err = h(ctx, r); err != nil {
			break
		}
	}
	if !errors.Is(err, boom) {
		t.Errorf("handler error = %v, want %v", err, boom)
	}
}

func TestReplay(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Samples = 3000
	readings := synth.Generate(cfg)

	tw := newTwin(t, DefaultOptions())
	var mu sync.Mutex
	var hooked int
	snap, err := tw.Replay(context.Background(), readings, func(_ context.Context, events []anomaly.Event) error {
		mu.Lock()
		defer mu.Unlock()
		hooked += len(events)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if snap.Readings != len(readings) {
		t.Errorf("Snapshot.Readings = %d, want %d", snap.Readings, len(readings))
	}
	want := lifemodel.Estimate(readings)[len(readings)-1]
	opt := cmpopts.EquateApprox(1e-9, 0)
	if diff := cmp.Diff(want.DamageCumulative, snap.Life.DamageCumulative, opt); diff != "" {
		t.Errorf("Snapshot.Life.DamageCumulative mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(readings[len(readings)-1], snap.Latest); diff != "" {
		t.Errorf("Snapshot.Latest mismatch (-want +got):\n%s", diff)
	}
	if hooked != snap.TotalAnomalies {
		t.Errorf("hook received %d anomalies, twin raised %d", hooked, snap.TotalAnomalies)
	}

	// the impact at 20% of the timeline is far beyond anything before it
	impact := readings[synth.Injections(cfg.Samples)[0].From].Timestamp
	var found bool
	for _, e := range snap.Anomalies {
		found = found || (e.Channel == cabintwin.Vibration && e.Timestamp.Equal(impact))
	}
	if !found && snap.TotalAnomalies <= len(snap.Anomalies) {
		t.Errorf("Replay() did not flag the impact at %v; anomalies: %v", impact, snap.Anomalies)
	}
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tw := newTwin(t, DefaultOptions())
	if _, err := tw.Replay(ctx, steady(10), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Replay() error = %v, want %v", err, context.Canceled)
	}
}

func TestReplayHookError(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Samples = 3000
	tw := newTwin(t, DefaultOptions())

	boom := errors.New("boom")
	_, err := tw.Replay(context.Background(), synth.Generate(cfg), func(context.Context, []anomaly.Event) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Replay() error = %v, want %v", err, boom)
	}
}

func TestComponentDescriptor(t *testing.T) {
	if diff := cmp.Diff([]string{ReadingsInterest}, Component.Interests); diff != "" {
		t.Errorf("Component.Interests mismatch (-want +got):\n%s", diff)
	}
	if Component.Bootstrap == nil {
		t.Error("Component has no bootstrap function")
	}
}
