package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/fea"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	h, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestFEARuns(t *testing.T) {
	ctx := context.Background()
	h := openMemory(t)

	t0 := time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)
	clock := t0
	h.now = func() time.Time { return clock }

	var want []FEARun
	for i, in := range []fea.Input{
		{AvgTempC: 20, MaxVibrationG: 0},
		{AvgTempC: 30, MaxVibrationG: 1},
		{AvgTempC: 40, MaxVibrationG: 2},
	} {
		out := fea.Solve(in, t0.Add(time.Duration(i)*time.Minute))
		id, err := h.RecordFEARun(ctx, in, out)
		if err != nil {
			t.Fatalf("RecordFEARun() error = %v", err)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("RecordFEARun() id %q is not a uuid: %v", id, err)
		}
		want = append([]FEARun{{ID: id, RecordedAt: clock, Input: in, Output: out}}, want...)
		clock = clock.Add(time.Hour)
	}

	got, err := h.ListFEARuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListFEARuns() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListFEARuns() mismatch (-want +got):\n%s", diff)
	}

	got, err = h.ListFEARuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListFEARuns(2) error = %v", err)
	}
	if diff := cmp.Diff(want[:2], got); diff != "" {
		t.Errorf("ListFEARuns(2) mismatch (-want +got):\n%s", diff)
	}
}

// Sub-second timestamps must still sort in time order.
func TestFEARunsOrderWithinSecond(t *testing.T) {
	ctx := context.Background()
	h := openMemory(t)

	t0 := time.Date(2025, 8, 20, 8, 0, 5, 0, time.UTC)
	for _, at := range []time.Time{t0, t0.Add(500 * time.Millisecond)} {
		h.now = func() time.Time { return at }
		if _, err := h.RecordFEARun(ctx, fea.DefaultInput(), fea.Solve(fea.DefaultInput(), at)); err != nil {
			t.Fatalf("RecordFEARun() error = %v", err)
		}
	}
	runs, err := h.ListFEARuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListFEARuns() error = %v", err)
	}
	if len(runs) != 1 || !runs[0].RecordedAt.Equal(t0.Add(500*time.Millisecond)) {
		t.Errorf("ListFEARuns(1) = %+v, want the run recorded at %v", runs, t0.Add(500*time.Millisecond))
	}
}

func TestAnomalies(t *testing.T) {
	ctx := context.Background()
	h := openMemory(t)

	t0 := time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)
	events := []anomaly.Event{
		{Timestamp: t0, Channel: cabintwin.Vibration, Value: 6.1, Score: 7.2, Kind: anomaly.KindThreeSigma},
		{Timestamp: t0.Add(time.Second), Channel: cabintwin.Vibration, Value: 6.3, Score: 7.4, Kind: anomaly.KindThreeSigma},
		{Timestamp: t0, Channel: cabintwin.Temperature, Value: 60, Score: 4.1, Kind: anomaly.KindRolling},
	}
	// the second batch repeats the first
	for range 2 {
		if err := h.RecordAnomalies(ctx, events); err != nil {
			t.Fatalf("RecordAnomalies() error = %v", err)
		}
	}
	if err := h.RecordAnomalies(ctx, nil); err != nil {
		t.Fatalf("RecordAnomalies(nil) error = %v", err)
	}

	got, err := h.CountAnomalies(ctx)
	if err != nil {
		t.Fatalf("CountAnomalies() error = %v", err)
	}
	want := map[cabintwin.Channel]int{cabintwin.Vibration: 2, cabintwin.Temperature: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountAnomalies() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	h, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := h.RecordFEARun(ctx, fea.DefaultInput(), fea.Solve(fea.DefaultInput(), time.Now())); err != nil {
		t.Fatalf("RecordFEARun() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// reopening keeps the rows and the schema version
	h, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() again error = %v", err)
	}
	defer h.Close()
	runs, err := h.ListFEARuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListFEARuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListFEARuns() returned %d runs after reopening, want 1", len(runs))
	}
}
