package anomaly

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/stat"

	"github.com/go-digitaltwin/cabintwin"
)

func TestRollingFlagsSpike(t *testing.T) {
	samples := append(wobble(1, 50), 25)
	readings := series(cabintwin.Vibration, samples...)

	d := NewRolling(3, 10)
	var got []Event
	for _, r := range readings {
		got = append(got, d.Observe(r)...)
	}
	want := []Event{{
		Timestamp: readings[50].Timestamp,
		Channel:   cabintwin.Vibration,
		Value:     25,
		Kind:      KindRolling,
	}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Event{}, "Score")); diff != "" {
		t.Errorf("Observe() events mismatch (-want +got):\n%s", diff)
	}
}

func TestRollingWarmup(t *testing.T) {
	readings := series(cabintwin.Vibration, 1, 2, 1, 2, 40)

	d := NewRolling(3, 10)
	for _, r := range readings {
		if got := d.Observe(r); len(got) != 0 {
			t.Errorf("Observe() during warmup = %v, want none", got)
		}
	}
	if got := d.Seen(cabintwin.Vibration); got != len(readings) {
		t.Errorf("Seen() = %d, want %d", got, len(readings))
	}
}

func TestRollingMatchesBatchStatistics(t *testing.T) {
	samples := []float64{3.1, 4.7, 0.2, 9.9, 5.5, 5.5, 1.25, 7.0}
	var w welford
	for _, x := range samples {
		w.add(x)
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if math.Abs(w.mean-mean) > 1e-9 || math.Abs(w.std()-std) > 1e-9 {
		t.Errorf("welford = (%v, %v), want (%v, %v)", w.mean, w.std(), mean, std)
	}
}

func TestRollingZeroValue(t *testing.T) {
	var d Rolling
	if got := d.Observe(cabintwin.Reading{}); len(got) != 0 {
		t.Errorf("Observe() on a zero Rolling = %v, want none", got)
	}
}
