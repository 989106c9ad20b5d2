// Package fea imitates a finite-element solver for the monitored component.
//
// No mesh is involved: the maximum von Mises stress is a base stress plus
// contributions from vibration and thermal expansion, and the safety factor
// compares it with the yield strength of the material. Solver adds an
// artificial delay so that callers experience the latency of a real solver.
package fea

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-digitaltwin/cabintwin"
)

const (
	// BaseStressMPa is the stress of the part at rest.
	BaseStressMPa = 50
	// VibrationStressMPa is the stress added by every g of vibration.
	VibrationStressMPa = 15
	// ThermalStressMPa is the stress added by every degree above
	// ReferenceTempC.
	ThermalStressMPa = 0.5
	// ReferenceTempC is the temperature at which the part is stress free.
	ReferenceTempC = 20
	// YieldStrengthMPa is the yield strength of the material.
	YieldStrengthMPa = 250
	// UnboundedSafety is the safety factor reported for an unstressed part.
	UnboundedSafety = 999
)

// TimestampLayout formats Output.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Input is a load case. Keys missing from its JSON form take the values of
// DefaultInput.
type Input struct {
	AvgTempC      float64 `json:"avg_temp_C"`
	MaxVibrationG float64 `json:"max_vibration_g"`
}

// DefaultInput returns the load case of a part at rest at the reference
// temperature.
func DefaultInput() Input {
	return Input{AvgTempC: ReferenceTempC, MaxVibrationG: 0}
}

// UnmarshalJSON decodes a load case, defaulting missing keys.
func (in *Input) UnmarshalJSON(data []byte) error {
	type plain Input
	v := plain(DefaultInput())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*in = Input(v)
	return nil
}

// Output is the result of solving a load case.
type Output struct {
	MaxStressVonMisesMPa float64
	SafetyFactor         float64
	Timestamp            time.Time
}

type outputJSON struct {
	MaxStressVonMisesMPa float64 `json:"max_stress_von_mises_MPa"`
	SafetyFactor         float64 `json:"safety_factor"`
	Timestamp            string  `json:"timestamp"`
}

// MarshalJSON encodes the output with its timestamp formatted by
// TimestampLayout, in the timestamp's own location.
func (out Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{
		MaxStressVonMisesMPa: out.MaxStressVonMisesMPa,
		SafetyFactor:         out.SafetyFactor,
		Timestamp:            out.Timestamp.Format(TimestampLayout),
	})
}

// UnmarshalJSON decodes an output written by MarshalJSON. The timestamp is
// read as UTC.
func (out *Output) UnmarshalJSON(data []byte) error {
	var v outputJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, v.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	*out = Output{
		MaxStressVonMisesMPa: v.MaxStressVonMisesMPa,
		SafetyFactor:         v.SafetyFactor,
		Timestamp:            ts,
	}
	return nil
}

// Solve computes the stress and safety factor of a load case, both rounded to
// two decimal places, stamped with the given time.
func Solve(in Input, now time.Time) Output {
	stress := BaseStressMPa + in.MaxVibrationG*VibrationStressMPa
	if in.AvgTempC > ReferenceTempC {
		stress += (in.AvgTempC - ReferenceTempC) * ThermalStressMPa
	}
	safety := float64(UnboundedSafety)
	if stress > 0 {
		safety = YieldStrengthMPa / stress
	}
	return Output{
		MaxStressVonMisesMPa: round2(stress),
		SafetyFactor:         round2(safety),
		Timestamp:            now,
	}
}

func round2(x float64) float64 { return math.RoundToEven(x*100) / 100 }

// DefaultDelay is how long a Solver pretends to compute by default.
const DefaultDelay = 2 * time.Second

// A Solver runs load cases with an artificial delay. The zero value solves
// immediately using the wall clock.
type Solver struct {
	Delay time.Duration
	// Clock stamps outputs; nil means time.Now.
	Clock func() time.Time
}

// Run waits for s.Delay and solves the load case. It returns early with the
// context's error if the context is done first.
func (s Solver) Run(ctx context.Context, in Input) (out Output, err error) {
	ctx, span := tracer.Start(ctx, "Solver.Run", trace.WithAttributes(
		attribute.Float64("fea.avg_temp_c", in.AvgTempC),
		attribute.Float64("fea.max_vibration_g", in.MaxVibrationG),
	))
	defer span.End()
	defer func(start time.Time) {
		measureSolve(ctx, err == nil, time.Since(start))
	}(time.Now())

	logger := component.Logger(ctx)
	logger.Info("Solving load case...",
		slog.Float64("avgTempC", in.AvgTempC),
		slog.Float64("maxVibrationG", in.MaxVibrationG),
	)

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, ctx.Err().Error())
			return Output{}, fmt.Errorf("solve: %w", ctx.Err())
		case <-timer.C:
		}
	}

	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	out = Solve(in, now())
	span.SetAttributes(attribute.Float64("fea.max_stress_mpa", out.MaxStressVonMisesMPa))
	logger.Info("Load case solved",
		slog.Float64("maxStressMPa", out.MaxStressVonMisesMPa),
		slog.Float64("safetyFactor", out.SafetyFactor),
	)
	return out, nil
}

// LoadCaseFrom derives a load case from sensor readings: the mean temperature,
// rounded to two decimal places, and the maximum vibration. No readings yield
// DefaultInput.
func LoadCaseFrom(readings []cabintwin.Reading) Input {
	if len(readings) == 0 {
		return DefaultInput()
	}
	var sum, peak float64
	for i, r := range readings {
		sum += r.TemperatureC
		if i == 0 || r.VibrationG > peak {
			peak = r.VibrationG
		}
	}
	return Input{
		AvgTempC:      round2(sum / float64(len(readings))),
		MaxVibrationG: peak,
	}
}

// Object keys of the solver's files.
const (
	InputKey  = "fea/input_fea.json"
	OutputKey = "fea/output_fea.json"
)

// JSONStore reads and writes JSON documents by key.
type JSONStore interface {
	ReadJSON(ctx context.Context, key string, v any) error
	WriteJSON(ctx context.Context, key string, v any) error
}

// RunFiles reads the load case stored at InputKey, solves it and stores the
// result at OutputKey. It returns the load case it solved along with the
// result.
func (s Solver) RunFiles(ctx context.Context, store JSONStore) (Input, Output, error) {
	var in Input
	if err := store.ReadJSON(ctx, InputKey, &in); err != nil {
		return Input{}, Output{}, fmt.Errorf("read load case: %w", err)
	}
	out, err := s.Run(ctx, in)
	if err != nil {
		return Input{}, Output{}, err
	}
	if err := store.WriteJSON(ctx, OutputKey, out); err != nil {
		return Input{}, Output{}, fmt.Errorf("write result: %w", err)
	}
	return in, out, nil
}
