package lifemodel

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/synth"
)

var t0 = time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

func TestIncrement(t *testing.T) {
	tests := []struct {
		name string
		r    cabintwin.Reading
		want float64
	}{
		{
			name: "AllContributions",
			r:    cabintwin.Reading{TemperatureC: 30, VibrationG: 2, DeformationMicros: 10},
			want: 1.5*4 + 10 + 0.8*10,
		},
		{
			name: "ColdDoesNoDamage",
			r:    cabintwin.Reading{TemperatureC: -5, VibrationG: 1, DeformationMicros: 3},
			want: 1.5 + 3,
		},
		{
			name: "AtBaseline",
			r:    cabintwin.Reading{TemperatureC: 20},
			want: 0,
		},
		{
			name: "RadiationAndSpeedIgnored",
			r:    cabintwin.Reading{RadiationWm2: 900, SpeedKmh: 90},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultParams().Increment(tt.r)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Increment() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	p := DefaultParams()
	p.TotalLifeUnits = 100

	readings := []cabintwin.Reading{
		{Timestamp: t0, DeformationMicros: 30},
		{Timestamp: t0.Add(time.Second), DeformationMicros: 50},
		{Timestamp: t0.Add(2 * time.Second), DeformationMicros: 40},
	}
	want := []Point{
		{Timestamp: t0, DamageIncrement: 30, DamageCumulative: 30, LifeUsedPercent: 30, LifeRemainingPercent: 70},
		{Timestamp: t0.Add(time.Second), DamageIncrement: 50, DamageCumulative: 80, LifeUsedPercent: 80, LifeRemainingPercent: 20},
		// the percentage saturates, the damage does not
		{Timestamp: t0.Add(2 * time.Second), DamageIncrement: 40, DamageCumulative: 120, LifeUsedPercent: 100, LifeRemainingPercent: 0},
	}
	got := p.Estimate(readings)
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Estimate() mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimateInvariants(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Samples = 2000
	readings := synth.Generate(cfg)
	points := Estimate(readings)

	if len(points) != len(readings) {
		t.Fatalf("len(Estimate()) = %d, want %d", len(points), len(readings))
	}
	var prev float64
	for i, p := range points {
		if !p.Timestamp.Equal(readings[i].Timestamp) {
			t.Fatalf("points[%d].Timestamp = %v, want %v", i, p.Timestamp, readings[i].Timestamp)
		}
		if p.DamageIncrement < 0 {
			t.Fatalf("points[%d].DamageIncrement = %v, want non-negative", i, p.DamageIncrement)
		}
		if p.DamageCumulative < prev {
			t.Fatalf("points[%d].DamageCumulative = %v decreased from %v", i, p.DamageCumulative, prev)
		}
		prev = p.DamageCumulative
		if p.LifeUsedPercent > 100 {
			t.Fatalf("points[%d].LifeUsedPercent = %v, want at most 100", i, p.LifeUsedPercent)
		}
		if got := p.LifeUsedPercent + p.LifeRemainingPercent; math.Abs(got-100) > 1e-9 {
			t.Fatalf("points[%d] used + remaining = %v, want 100", i, got)
		}
	}
}

func TestEstimateEmpty(t *testing.T) {
	if got := Estimate(nil); len(got) != 0 {
		t.Errorf("Estimate(nil) = %v, want empty", got)
	}
}

func TestAccumulatorMatchesEstimate(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Samples = 500
	readings := synth.Generate(cfg)

	acc := NewAccumulator(DefaultParams())
	got := make([]Point, 0, len(readings))
	for _, r := range readings {
		got = append(got, acc.Add(r))
	}
	if diff := cmp.Diff(Estimate(readings), got); diff != "" {
		t.Errorf("Accumulator points mismatch Estimate (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got[len(got)-1], acc.Last()); diff != "" {
		t.Errorf("Last() mismatch (-want +got):\n%s", diff)
	}
	if acc.Count() != len(readings) {
		t.Errorf("Count() = %d, want %d", acc.Count(), len(readings))
	}
}

func TestAccumulatorConcurrent(t *testing.T) {
	acc := NewAccumulator(DefaultParams())
	const workers, each = 8, 100

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				acc.Add(cabintwin.Reading{DeformationMicros: 1})
			}
		}()
	}
	wg.Wait()

	if got := acc.Last().DamageCumulative; got != workers*each {
		t.Errorf("DamageCumulative = %v, want %v", got, workers*each)
	}
}

func TestAccumulatorZero(t *testing.T) {
	acc := NewAccumulator(DefaultParams())
	want := Point{LifeRemainingPercent: 100}
	if diff := cmp.Diff(want, acc.Last()); diff != "" {
		t.Errorf("Last() before any reading mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{name: "Default", mutate: func(*Params) {}},
		{name: "ZeroWeights", mutate: func(p *Params) { p.WVibration, p.WDeformation, p.WTemperature = 0, 0, 0 }},
		{name: "ZeroLife", mutate: func(p *Params) { p.TotalLifeUnits = 0 }, wantErr: true},
		{name: "NegativeLife", mutate: func(p *Params) { p.TotalLifeUnits = -1 }, wantErr: true},
		{name: "NegativeWeight", mutate: func(p *Params) { p.WTemperature = -0.1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func ExampleParams_Estimate() {
	readings := []cabintwin.Reading{
		{Timestamp: t0, TemperatureC: 30, VibrationG: 2, DeformationMicros: 10},
		{Timestamp: t0.Add(10 * time.Second), TemperatureC: 15, VibrationG: 1, DeformationMicros: 4.5},
	}
	for _, p := range DefaultParams().Estimate(readings) {
		fmt.Printf("%.1f %.1f %.4f%%\n", p.DamageIncrement, p.DamageCumulative, p.LifeUsedPercent)
	}
	// Output:
	// 24.0 24.0 0.0024%
	// 6.0 30.0 0.0030%
}
