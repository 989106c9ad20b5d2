// Package synth generates synthetic sensor readings for the cabin component:
// a daily temperature and radiation cycle, a handful of trips driving speed,
// vibration and deformation, and three injected anomalies (a pothole impact,
// overheating while parked in the sun, and a vibration sensor stuck at zero).
//
// Generation is deterministic for a given Config.Seed.
package synth

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/go-digitaltwin/cabintwin"
)

// Config parameterises Generate. Use DefaultConfig and override what you need.
type Config struct {
	Samples  int
	Interval time.Duration
	Start    time.Time
	Seed     uint64
	// Trips is the number of driving cycles spread across the samples; each
	// trip covers the first 70% of its share of the timeline.
	Trips int
	// Smoothing is the width of the moving average applied to speed.
	Smoothing int
}

// DefaultConfig returns the configuration of the reference dataset: 10,000
// samples, ten seconds apart, starting on 2025-08-20 at 08:00 UTC.
func DefaultConfig() Config {
	return Config{
		Samples:   10_000,
		Interval:  10 * time.Second,
		Start:     time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC),
		Seed:      1,
		Trips:     5,
		Smoothing: 50,
	}
}

// Generate returns cfg.Samples readings in timestamp order.
func Generate(cfg Config) []cabintwin.Reading {
	n := cfg.Samples
	if n <= 0 {
		return nil
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	noise := func(sigma float64) distuv.Normal {
		return distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	}

	daily := linspace(0, 4*math.Pi, n)
	for i := range daily {
		daily[i] = math.Sin(daily[i])
	}

	temperature := make([]float64, n)
	tempNoise := noise(1.5)
	for i := range temperature {
		temperature[i] = 25 + 15*daily[i] + tempNoise.Rand()
	}

	radiation := make([]float64, n)
	radNoise := noise(25)
	for i := range radiation {
		radiation[i] = math.Max(0, 500+450*math.Max(daily[i], 0)+radNoise.Rand())
	}

	speed := make([]float64, n)
	tripSpeed := distuv.Normal{Mu: 80, Sigma: 10, Src: src}
	for k := 0; k < cfg.Trips; k++ {
		start, end := tripWindow(n, cfg.Trips, k)
		for i := start; i < end; i++ {
			speed[i] = tripSpeed.Rand()
		}
	}
	speed = movingAverage(speed, cfg.Smoothing)
	for i := range speed {
		speed[i] = clip(speed[i], 0, 100)
	}

	vibration := make([]float64, n)
	vibNoise := noise(0.2)
	for i := range vibration {
		vibration[i] = speed[i]/80*1.5 + vibNoise.Rand()
	}
	deformation := make([]float64, n)
	defNoise := noise(5)
	for i := range deformation {
		deformation[i] = speed[i]/80*50 + temperature[i]/40*10 + defNoise.Rand()
	}
	for i := 0; i < n; i++ {
		vibration[i] = math.Max(0, vibration[i])
		deformation[i] = math.Max(0, deformation[i])
	}

	injectAnomalies(n, src, temperature, vibration, speed, deformation)

	readings := make([]cabintwin.Reading, n)
	for i := range readings {
		readings[i] = cabintwin.Reading{
			Timestamp:         cfg.Start.Add(time.Duration(i) * cfg.Interval),
			TemperatureC:      round(temperature[i], 2),
			VibrationG:        round(vibration[i], 3),
			RadiationWm2:      round(radiation[i], 1),
			SpeedKmh:          round(speed[i], 1),
			DeformationMicros: round(deformation[i], 2),
		}
	}
	return readings
}

func injectAnomalies(n int, src rand.Source, temperature, vibration, speed, deformation []float64) {
	// pothole impact
	impact, impactEnd := impactWindow(n)
	hit := distuv.Uniform{Min: 8, Max: 12, Src: src}
	for i := impact; i < impactEnd; i++ {
		vibration[i] = hit.Rand()
	}
	bend := distuv.Uniform{Min: 200, Max: 300, Src: src}
	for i := impact; i < impactEnd; i++ {
		deformation[i] = bend.Rand()
	}

	// parked in the sun: the truck stops while the part heats up and dilates
	heatStart, heatEnd := window(n, 0.5, 0.52)
	heat := linspace(0, 25, heatEnd-heatStart)
	dilation := linspace(0, 80, heatEnd-heatStart)
	for i := heatStart; i < heatEnd; i++ {
		speed[i] = 0
		temperature[i] += heat[i-heatStart]
		deformation[i] += dilation[i-heatStart]
	}

	// vibration sensor stuck at zero
	failStart, failEnd := window(n, 0.8, 0.81)
	for i := failStart; i < failEnd; i++ {
		vibration[i] = 0
	}
}

// An Injection describes one of the anomalies Generate injects, as a half-open
// interval of sample indices.
type Injection struct {
	Kind     string
	From, To int
}

// Injections returns the anomalies Generate injects into a dataset of n
// samples, in timeline order. Empty windows are omitted.
func Injections(n int) []Injection {
	var out []Injection
	add := func(kind string, from, to int) {
		if from < to {
			out = append(out, Injection{Kind: kind, From: from, To: to})
		}
	}
	from, to := impactWindow(n)
	add("impact", from, to)
	from, to = window(n, 0.5, 0.52)
	add("overheating", from, to)
	from, to = window(n, 0.8, 0.81)
	add("stuck-sensor", from, to)
	return out
}

func impactWindow(n int) (int, int) {
	start := int(float64(n) * 0.2)
	return start, min(start+3, n)
}

// tripWindow returns the half-open interval of trip k out of trips. Trips
// start on an even share of the timeline and last 70% of it. The bounds are
// scaled before dividing so that whole shares land on whole indices.
func tripWindow(n, trips, k int) (int, int) {
	start := min(int(float64(n*k)/float64(trips)), n)
	end := min(int(float64(n)*(float64(k)+0.7)/float64(trips)), n)
	return start, max(start, end)
}

// window converts the fractions a and b of a timeline of n samples into a
// half-open interval of indices, truncating like an integer conversion does.
func window(n int, a, b float64) (int, int) {
	start := min(int(float64(n)*a), n)
	end := min(int(float64(n)*b), n)
	return start, max(start, end)
}

// linspace returns n evenly spaced values over [lo, hi]. A single value is lo.
func linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// movingAverage convolves x with a uniform kernel of the given width and
// returns a result of the same length, centred on each sample and zero-padded
// at the edges.
func movingAverage(x []float64, width int) []float64 {
	if width <= 1 {
		return x
	}
	out := make([]float64, len(x))
	left := width / 2
	for i := range x {
		var sum float64
		for j := i - left; j < i-left+width; j++ {
			if j >= 0 && j < len(x) {
				sum += x[j]
			}
		}
		out[i] = sum / float64(width)
	}
	return out
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}
