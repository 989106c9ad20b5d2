// Package lifemodel estimates the fatigue life consumed by the monitored
// component, using a simplified Miner's rule: every reading contributes an
// increment of damage, and the component fails once the accumulated damage
// reaches its total life.
//
// The weights are empirical; a real deployment calibrates them (and the total
// life) against bench tests or field data.
package lifemodel

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-digitaltwin/cabintwin"
)

// Params configures the damage model.
type Params struct {
	// TotalLifeUnits is the amount of damage the component withstands before
	// failure.
	TotalLifeUnits float64
	// WVibration weighs the square of the vibration amplitude.
	WVibration float64
	// WDeformation weighs the deformation, linearly.
	WDeformation float64
	// WTemperature weighs the temperature excess above TempBaselineC.
	WTemperature float64
	// TempBaselineC is the temperature under which heat does no damage.
	TempBaselineC float64
}

// DefaultParams returns the reference calibration.
func DefaultParams() Params {
	return Params{
		TotalLifeUnits: 1_000_000,
		WVibration:     1.5,
		WDeformation:   1.0,
		WTemperature:   0.8,
		TempBaselineC:  20,
	}
}

// Validate reports parameters that make the model meaningless.
func (p Params) Validate() error {
	var errs []error
	if !(p.TotalLifeUnits > 0) {
		errs = append(errs, fmt.Errorf("total life must be positive, got %v", p.TotalLifeUnits))
	}
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"vibration", p.WVibration},
		{"deformation", p.WDeformation},
		{"temperature", p.WTemperature},
	} {
		if w.value < 0 || math.IsNaN(w.value) {
			errs = append(errs, fmt.Errorf("%s weight must not be negative, got %v", w.name, w.value))
		}
	}
	return errors.Join(errs...)
}

// Increment returns the damage a single reading contributes.
func (p Params) Increment(r cabintwin.Reading) float64 {
	excess := math.Max(r.TemperatureC-p.TempBaselineC, 0)
	return p.WVibration*r.VibrationG*r.VibrationG +
		p.WDeformation*r.DeformationMicros +
		p.WTemperature*excess
}

// Point is the state of the component's life after one reading.
type Point struct {
	Timestamp            time.Time
	DamageIncrement      float64
	DamageCumulative     float64
	LifeUsedPercent      float64
	LifeRemainingPercent float64
}

// point derives the life percentages of a cumulative damage. Only the
// percentage is capped; the cumulative damage keeps growing past the total life.
func (p Params) point(t time.Time, inc, cum float64) Point {
	used := math.Min(cum/p.TotalLifeUnits*100, 100)
	return Point{
		Timestamp:            t,
		DamageIncrement:      inc,
		DamageCumulative:     cum,
		LifeUsedPercent:      used,
		LifeRemainingPercent: 100 - used,
	}
}

// Estimate returns one Point per reading, in the same order, accumulating
// damage from the first reading onwards.
func (p Params) Estimate(readings []cabintwin.Reading) []Point {
	out := make([]Point, len(readings))
	var cum float64
	for i, r := range readings {
		inc := p.Increment(r)
		cum += inc
		out[i] = p.point(r.Timestamp, inc, cum)
	}
	return out
}

// Estimate is shorthand for DefaultParams().Estimate(readings).
func Estimate(readings []cabintwin.Reading) []Point {
	return DefaultParams().Estimate(readings)
}

// An Accumulator is the streaming form of Params.Estimate: feeding it readings
// one at a time yields the same points Estimate returns for the whole batch.
// It is safe for concurrent use; concurrent calls to Add are serialised in
// an unspecified order.
type Accumulator struct {
	params Params

	mu   sync.Mutex
	cum  float64
	last Point
	n    int
}

// NewAccumulator returns an Accumulator with no damage accumulated.
func NewAccumulator(p Params) *Accumulator {
	return &Accumulator{params: p, last: p.point(time.Time{}, 0, 0)}
}

// Add accounts for the damage of r and returns the resulting Point.
func (a *Accumulator) Add(r cabintwin.Reading) Point {
	inc := a.params.Increment(r)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cum += inc
	a.n++
	a.last = a.params.point(r.Timestamp, inc, a.cum)
	return a.last
}

// Last returns the Point of the most recent reading. Before any reading it
// returns a zero-damage point with a zero timestamp.
func (a *Accumulator) Last() Point {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Count returns the number of readings added so far.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
