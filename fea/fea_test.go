package fea

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-digitaltwin/cabintwin"
)

var fixed = time.Date(2025, 8, 20, 14, 30, 0, 0, time.UTC)

func TestSolve(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Output
	}{
		{
			name: "AtRest",
			in:   DefaultInput(),
			want: Output{MaxStressVonMisesMPa: 50, SafetyFactor: 5, Timestamp: fixed},
		},
		{
			name: "VibrationAndHeat",
			in:   Input{AvgTempC: 30, MaxVibrationG: 2},
			// 50 + 30 + 5
			want: Output{MaxStressVonMisesMPa: 85, SafetyFactor: 2.94, Timestamp: fixed},
		},
		{
			name: "ColdIgnored",
			in:   Input{AvgTempC: -10, MaxVibrationG: 1},
			want: Output{MaxStressVonMisesMPa: 65, SafetyFactor: 3.85, Timestamp: fixed},
		},
		{
			name: "Unstressed",
			in:   Input{AvgTempC: 20, MaxVibrationG: -50.0 / 15},
			want: Output{MaxStressVonMisesMPa: 0, SafetyFactor: 999, Timestamp: fixed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Solve(tt.in, fixed)); diff != "" {
				t.Errorf("Solve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInputDefaults(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Input
	}{
		{name: "Empty", data: `{}`, want: Input{AvgTempC: 20, MaxVibrationG: 0}},
		{name: "TempOnly", data: `{"avg_temp_C": 31.5}`, want: Input{AvgTempC: 31.5}},
		{name: "VibrationOnly", data: `{"max_vibration_g": 2.25}`, want: Input{AvgTempC: 20, MaxVibrationG: 2.25}},
		{name: "Both", data: `{"avg_temp_C": 10, "max_vibration_g": 1}`, want: Input{AvgTempC: 10, MaxVibrationG: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Input
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOutputJSON(t *testing.T) {
	out := Output{MaxStressVonMisesMPa: 85, SafetyFactor: 2.94, Timestamp: fixed}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	const want = `{"max_stress_von_mises_MPa":85,"safety_factor":2.94,"timestamp":"2025-08-20 14:30:00"}`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("Marshal() mismatch (-want +got):\n%s", diff)
	}

	var back Output
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(out, back); diff != "" {
		t.Errorf("Unmarshal() mismatch (-want +got):\n%s", diff)
	}
}

func TestSolverRun(t *testing.T) {
	s := Solver{Delay: time.Millisecond, Clock: func() time.Time { return fixed }}
	got, err := s.Run(context.Background(), Input{AvgTempC: 30, MaxVibrationG: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := Output{MaxStressVonMisesMPa: 85, SafetyFactor: 2.94, Timestamp: fixed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}
}

func TestSolverRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := Solver{Delay: time.Hour}
	if _, err := s.Run(ctx, DefaultInput()); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want %v", err, context.Canceled)
	}
}

func TestLoadCaseFrom(t *testing.T) {
	readings := []cabintwin.Reading{
		{TemperatureC: 20, VibrationG: 0.5},
		{TemperatureC: 25, VibrationG: 3.25},
		{TemperatureC: 31, VibrationG: 1},
	}
	want := Input{AvgTempC: 25.33, MaxVibrationG: 3.25}
	if diff := cmp.Diff(want, LoadCaseFrom(readings)); diff != "" {
		t.Errorf("LoadCaseFrom() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultInput(), LoadCaseFrom(nil)); diff != "" {
		t.Errorf("LoadCaseFrom(nil) mismatch (-want +got):\n%s", diff)
	}
}

// mapStore keeps JSON documents in memory.
type mapStore map[string][]byte

func (m mapStore) ReadJSON(_ context.Context, key string, v any) error {
	data, ok := m[key]
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(data, v)
}

func (m mapStore) WriteJSON(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m[key] = data
	return nil
}

func TestRunFiles(t *testing.T) {
	store := mapStore{InputKey: []byte(`{"avg_temp_C": 30, "max_vibration_g": 2}`)}
	s := Solver{Clock: func() time.Time { return fixed }}

	in, got, err := s.RunFiles(context.Background(), store)
	if err != nil {
		t.Fatalf("RunFiles() error = %v", err)
	}
	if want := (Input{AvgTempC: 30, MaxVibrationG: 2}); in != want {
		t.Errorf("RunFiles() solved %+v, want %+v", in, want)
	}
	if diff := cmp.Diff(Solve(in, fixed), got); diff != "" {
		t.Errorf("RunFiles() output mismatch (-want +got):\n%s", diff)
	}
	var stored Output
	if err := store.ReadJSON(context.Background(), OutputKey, &stored); err != nil {
		t.Fatalf("output not stored: %v", err)
	}
	if diff := cmp.Diff(got, stored); diff != "" {
		t.Errorf("stored output mismatch (-returned +stored):\n%s", diff)
	}
}

func TestRunFilesMissingInput(t *testing.T) {
	if _, _, err := (Solver{}).RunFiles(context.Background(), mapStore{}); err == nil {
		t.Error("RunFiles() without a load case succeeded, want error")
	}
}
