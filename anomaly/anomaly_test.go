package anomaly

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/synth"
)

var t0 = time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

// series builds readings whose channel c follows the given samples, ten
// seconds apart.
func series(c cabintwin.Channel, samples ...float64) []cabintwin.Reading {
	out := make([]cabintwin.Reading, len(samples))
	for i, x := range samples {
		out[i].Timestamp = t0.Add(time.Duration(i) * 10 * time.Second)
		out[i].Set(c, x)
	}
	return out
}

// wobble returns n samples alternating around base.
func wobble(base float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = base - 1
		} else {
			out[i] = base + 1
		}
	}
	return out
}

func TestThreeSigma(t *testing.T) {
	samples := wobble(20, 30)
	samples[17] = 60
	readings := series(cabintwin.Temperature, samples...)

	got := ThreeSigma(readings, cabintwin.Temperature, 3)
	if len(got) != 1 {
		t.Fatalf("ThreeSigma() = %v, want exactly one event", got)
	}
	want := Event{
		Timestamp: readings[17].Timestamp,
		Channel:   cabintwin.Temperature,
		Value:     60,
		Kind:      KindThreeSigma,
	}
	if diff := cmp.Diff(want, got[0], cmpopts.IgnoreFields(Event{}, "Score")); diff != "" {
		t.Errorf("ThreeSigma() mismatch (-want +got):\n%s", diff)
	}
	if got[0].Score <= 3 {
		t.Errorf("Score = %v, want above 3", got[0].Score)
	}
}

func TestThreeSigmaNegativeDeviation(t *testing.T) {
	samples := wobble(20, 30)
	samples[3] = -20
	got := ThreeSigma(series(cabintwin.Temperature, samples...), cabintwin.Temperature, 0)
	if len(got) != 1 || got[0].Score >= -3 {
		t.Errorf("ThreeSigma() = %v, want one event with a score below -3", got)
	}
}

func TestThreeSigmaDegenerate(t *testing.T) {
	tests := []struct {
		name     string
		readings []cabintwin.Reading
	}{
		{name: "Empty"},
		{name: "Single", readings: series(cabintwin.Vibration, 5)},
		{name: "Constant", readings: series(cabintwin.Vibration, 1, 1, 1, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThreeSigma(tt.readings, cabintwin.Vibration, 3); got != nil {
				t.Errorf("ThreeSigma() = %v, want nil", got)
			}
		})
	}
}

func TestFlatline(t *testing.T) {
	readings := series(cabintwin.Vibration, 1.2, 0, 0, 0, 0, 0.4, 0.7, 0.7, 0.7)
	tests := []struct {
		name   string
		minRun int
		want   []Event
	}{
		{
			name:   "LongRuns",
			minRun: 3,
			want: []Event{
				{Timestamp: readings[1].Timestamp, Channel: cabintwin.Vibration, Value: 0, Score: 4, Kind: KindFlatline},
				{Timestamp: readings[6].Timestamp, Channel: cabintwin.Vibration, Value: 0.7, Score: 3, Kind: KindFlatline},
			},
		},
		{
			name:   "OnlyTheLongest",
			minRun: 4,
			want: []Event{
				{Timestamp: readings[1].Timestamp, Channel: cabintwin.Vibration, Value: 0, Score: 4, Kind: KindFlatline},
			},
		},
		{name: "NoneLongEnough", minRun: 5},
		{name: "Disabled", minRun: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatline(readings, cabintwin.Vibration, tt.minRun)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Flatline() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectSynthetic(t *testing.T) {
	cfg := synth.DefaultConfig()
	readings := synth.Generate(cfg)
	events := Detect(readings, Options{})

	inj := synth.Injections(cfg.Samples)
	impact, stuck := inj[0], inj[2]

	var impactFlagged, stuckFlagged bool
	for _, e := range events {
		switch {
		case e.Kind == KindThreeSigma && e.Channel == cabintwin.Vibration &&
			e.Timestamp.Equal(readings[impact.From].Timestamp):
			impactFlagged = true
		case e.Kind == KindFlatline && e.Channel == cabintwin.Vibration &&
			!e.Timestamp.After(readings[stuck.From].Timestamp) &&
			e.Score >= float64(stuck.To-stuck.From):
			stuckFlagged = true
		}
		if e.Channel == cabintwin.Speed && e.Kind == KindFlatline {
			t.Errorf("Detect() flagged a parked truck as a flatline: %+v", e)
		}
	}
	if !impactFlagged {
		t.Error("Detect() did not flag the impact")
	}
	if !stuckFlagged {
		t.Error("Detect() did not flag the stuck vibration sensor")
	}
}

func TestDetectOrder(t *testing.T) {
	readings := series(cabintwin.Vibration, append(wobble(1, 40), 30)...)
	for i := range readings {
		readings[i].DeformationMicros = float64(i % 3)
	}
	readings[40].DeformationMicros = 400

	events := Detect(readings, Options{MinRun: -1})
	want := []Event{
		{Timestamp: readings[40].Timestamp, Channel: cabintwin.Vibration, Value: 30, Kind: KindThreeSigma},
		{Timestamp: readings[40].Timestamp, Channel: cabintwin.Deformation, Value: 400, Kind: KindThreeSigma},
	}
	if diff := cmp.Diff(want, events, cmpopts.IgnoreFields(Event{}, "Score")); diff != "" {
		t.Errorf("Detect() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortEvents(t *testing.T) {
	events := []Event{
		{Timestamp: t0.Add(time.Second), Channel: cabintwin.Temperature, Kind: KindThreeSigma},
		{Timestamp: t0, Channel: cabintwin.Deformation, Kind: KindThreeSigma},
		{Timestamp: t0, Channel: cabintwin.Vibration, Kind: KindThreeSigma},
		{Timestamp: t0, Channel: cabintwin.Vibration, Kind: KindFlatline},
	}
	SortEvents(events)
	want := []Event{
		{Timestamp: t0, Channel: cabintwin.Vibration, Kind: KindThreeSigma},
		{Timestamp: t0, Channel: cabintwin.Vibration, Kind: KindFlatline},
		{Timestamp: t0, Channel: cabintwin.Deformation, Kind: KindThreeSigma},
		{Timestamp: t0.Add(time.Second), Channel: cabintwin.Temperature, Kind: KindThreeSigma},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("SortEvents() mismatch (-want +got):\n%s", diff)
	}
}

func TestCountByChannel(t *testing.T) {
	events := []Event{
		{Channel: cabintwin.Vibration},
		{Channel: cabintwin.Vibration},
		{Channel: cabintwin.Deformation},
	}
	want := map[cabintwin.Channel]int{cabintwin.Vibration: 2, cabintwin.Deformation: 1}
	if diff := cmp.Diff(want, CountByChannel(events)); diff != "" {
		t.Errorf("CountByChannel() mismatch (-want +got):\n%s", diff)
	}
}
