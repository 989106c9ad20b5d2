// Package anomaly flags sensor readings that deviate from the component's
// usual behaviour.
//
// Two batch detectors operate on a whole dataset: ThreeSigma flags samples
// further than k standard deviations from their channel's mean, and Flatline
// flags sensors whose output stops changing. Rolling is the streaming
// counterpart of ThreeSigma, scoring every reading against the readings that
// came before it.
package anomaly

import (
	"cmp"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/go-digitaltwin/cabintwin"
)

// Kind names the detector that produced an Event.
type Kind string

const (
	KindThreeSigma Kind = "3sigma"
	KindFlatline   Kind = "flatline"
	KindRolling    Kind = "zscore"
)

// DefaultK is the conventional threshold, in standard deviations.
const DefaultK = 3

// An Event is a single anomalous observation.
type Event struct {
	Timestamp time.Time
	Channel   cabintwin.Channel
	// Value is the offending sample.
	Value float64
	// Score quantifies the anomaly. For deviation detectors it is the signed
	// z-score of Value; for Flatline it is the length of the run.
	Score float64
	Kind  Kind
}

// ThreeSigma flags every reading whose sample on channel c lies more than k
// standard deviations away from the mean of the channel over all readings. A
// non-positive k means DefaultK. A channel that never varies flags nothing.
func ThreeSigma(readings []cabintwin.Reading, c cabintwin.Channel, k float64) []Event {
	if k <= 0 {
		k = DefaultK
	}
	if len(readings) < 2 {
		return nil
	}
	series := cabintwin.Series(readings, c)
	mean, std := stat.MeanStdDev(series, nil)
	if std == 0 || math.IsNaN(std) {
		return nil
	}

	var events []Event
	for i, x := range series {
		z := (x - mean) / std
		if math.Abs(z) > k {
			events = append(events, Event{
				Timestamp: readings[i].Timestamp,
				Channel:   c,
				Value:     x,
				Score:     z,
				Kind:      KindThreeSigma,
			})
		}
	}
	return events
}

// Flatline flags every run of at least minRun consecutive identical samples on
// channel c, which is how a stuck or disconnected sensor shows up. It emits one
// Event per run, stamped with the run's first reading.
func Flatline(readings []cabintwin.Reading, c cabintwin.Channel, minRun int) []Event {
	if minRun < 2 {
		return nil
	}
	var events []Event
	flush := func(start, end int) {
		if n := end - start; n >= minRun {
			events = append(events, Event{
				Timestamp: readings[start].Timestamp,
				Channel:   c,
				Value:     readings[start].Value(c),
				Score:     float64(n),
				Kind:      KindFlatline,
			})
		}
	}

	start := 0
	for i := 1; i < len(readings); i++ {
		if readings[i].Value(c) != readings[start].Value(c) {
			flush(start, i)
			start = i
		}
	}
	if len(readings) > 0 {
		flush(start, len(readings))
	}
	return events
}

// Options configures Detect.
type Options struct {
	// K is the threshold of the 3-sigma detector; zero means DefaultK.
	K float64
	// MinRun is the shortest run Flatline reports; zero means DefaultMinRun and
	// a negative value disables flatline detection.
	MinRun int
	// FlatlineChannels lists the channels expected to vary all the time; nil
	// means every channel except Speed, which legitimately rests at zero while
	// the truck is parked.
	FlatlineChannels []cabintwin.Channel
}

// DefaultMinRun is five minutes of identical samples at the reference
// sampling interval.
const DefaultMinRun = 30

// DefaultOptions returns the options Detect uses for zero fields.
func DefaultOptions() Options {
	var flat []cabintwin.Channel
	for _, c := range cabintwin.Channels() {
		if c != cabintwin.Speed {
			flat = append(flat, c)
		}
	}
	return Options{K: DefaultK, MinRun: DefaultMinRun, FlatlineChannels: flat}
}

// Detect runs the 3-sigma detector on every channel, and the flatline detector
// on opts.FlatlineChannels, returning all events ordered by timestamp, then by
// channel (in column order), then by kind.
func Detect(readings []cabintwin.Reading, opts Options) []Event {
	def := DefaultOptions()
	if opts.K == 0 {
		opts.K = def.K
	}
	if opts.MinRun == 0 {
		opts.MinRun = def.MinRun
	}
	if opts.FlatlineChannels == nil {
		opts.FlatlineChannels = def.FlatlineChannels
	}

	var events []Event
	for _, c := range cabintwin.Channels() {
		events = append(events, ThreeSigma(readings, c, opts.K)...)
	}
	if opts.MinRun > 0 {
		for _, c := range opts.FlatlineChannels {
			events = append(events, Flatline(readings, c, opts.MinRun)...)
		}
	}
	SortEvents(events)
	return events
}

// SortEvents orders events by timestamp, then by channel in column order, then
// by kind.
func SortEvents(events []Event) {
	order := make(map[cabintwin.Channel]int)
	for i, c := range cabintwin.Channels() {
		order[c] = i
	}
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if c := cmp.Compare(order[a.Channel], order[b.Channel]); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
}

// CountByChannel tallies events per channel.
func CountByChannel(events []Event) map[cabintwin.Channel]int {
	counts := make(map[cabintwin.Channel]int)
	for _, e := range events {
		counts[e.Channel]++
	}
	return counts
}
