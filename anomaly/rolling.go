package anomaly

import (
	"math"

	"github.com/go-digitaltwin/cabintwin"
)

// Rolling is a streaming z-score detector. It keeps a running mean and
// variance per channel (Welford's algorithm) and scores each new sample
// against the statistics of the samples observed before it.
//
// A Rolling is not safe for concurrent use.
type Rolling struct {
	// K is the threshold in standard deviations; zero means DefaultK.
	K float64
	// Warmup is the number of samples a channel must have seen before it
	// flags anything.
	Warmup int

	stats map[cabintwin.Channel]*welford
}

// DefaultWarmup is the number of samples Rolling waits for by default.
const DefaultWarmup = 100

// NewRolling returns a Rolling detector with the given threshold and warmup.
func NewRolling(k float64, warmup int) *Rolling {
	return &Rolling{K: k, Warmup: warmup}
}

type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	d := x - w.mean
	w.mean += d / float64(w.n)
	w.m2 += d * (x - w.mean)
}

// std returns the sample standard deviation, matching stat.StdDev.
func (w *welford) std() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// Observe scores every channel of r, returns the events it raises, and then
// folds r into the running statistics.
func (d *Rolling) Observe(r cabintwin.Reading) []Event {
	if d.stats == nil {
		d.stats = make(map[cabintwin.Channel]*welford)
	}
	k := d.K
	if k <= 0 {
		k = DefaultK
	}

	var events []Event
	for _, c := range cabintwin.Channels() {
		w, ok := d.stats[c]
		if !ok {
			w = new(welford)
			d.stats[c] = w
		}
		x := r.Value(c)
		if w.n >= max(d.Warmup, 2) {
			if std := w.std(); std > 0 {
				z := (x - w.mean) / std
				if math.Abs(z) > k {
					events = append(events, Event{
						Timestamp: r.Timestamp,
						Channel:   c,
						Value:     x,
						Score:     z,
						Kind:      KindRolling,
					})
				}
			}
		}
		w.add(x)
	}
	return events
}

// Seen returns the number of samples observed on channel c.
func (d *Rolling) Seen(c cabintwin.Channel) int {
	if w, ok := d.stats[c]; ok {
		return w.n
	}
	return 0
}
