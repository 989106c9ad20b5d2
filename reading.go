package cabintwin

import (
	"encoding/gob"
	"errors"
	"fmt"
	"time"
)

// A Channel names one measured quantity of the monitored component. Its string
// form doubles as the column header in dataset files and as the value of the
// dashboard's sensor selector.
type Channel string

const (
	Temperature Channel = "temperature_C"
	Vibration   Channel = "vibration_g"
	Radiation   Channel = "radiation_Wm2"
	Speed       Channel = "speed_kmh"
	Deformation Channel = "deformation_micros"
)

// ErrUnknownChannel is returned by ParseChannel for names that do not match any
// known Channel.
var ErrUnknownChannel = errors.New("unknown channel")

var channels = []Channel{Temperature, Vibration, Radiation, Speed, Deformation}

// Channels returns every known channel in column order. The returned slice is a
// copy and may be modified by the caller.
func Channels() []Channel {
	out := make([]Channel, len(channels))
	copy(out, channels)
	return out
}

// ParseChannel validates the given name and returns the matching Channel.
func ParseChannel(name string) (Channel, error) {
	for _, c := range channels {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// Unit returns the physical unit the channel is measured in.
func (c Channel) Unit() string {
	switch c {
	case Temperature:
		return "°C"
	case Vibration:
		return "g"
	case Radiation:
		return "W/m²"
	case Speed:
		return "km/h"
	case Deformation:
		return "µε"
	default:
		return ""
	}
}

func init() {
	gob.Register(Reading{})
}

// Reading is a single sample of every channel, taken at the same instant.
// Readings form the event stream that drives a twin.
type Reading struct {
	Timestamp         time.Time
	TemperatureC      float64
	VibrationG        float64
	RadiationWm2      float64
	SpeedKmh          float64
	DeformationMicros float64
}

// Value returns the reading's sample for the given channel. Unknown channels
// read as zero.
func (r Reading) Value(c Channel) float64 {
	switch c {
	case Temperature:
		return r.TemperatureC
	case Vibration:
		return r.VibrationG
	case Radiation:
		return r.RadiationWm2
	case Speed:
		return r.SpeedKmh
	case Deformation:
		return r.DeformationMicros
	default:
		return 0
	}
}

// Set stores v as the reading's sample for the given channel. It reports false
// if the channel is unknown.
func (r *Reading) Set(c Channel, v float64) bool {
	switch c {
	case Temperature:
		r.TemperatureC = v
	case Vibration:
		r.VibrationG = v
	case Radiation:
		r.RadiationWm2 = v
	case Speed:
		r.SpeedKmh = v
	case Deformation:
		r.DeformationMicros = v
	default:
		return false
	}
	return true
}

// Series extracts the samples of one channel from the given readings, in order.
func Series(readings []Reading, c Channel) []float64 {
	out := make([]float64, len(readings))
	for i := range readings {
		out[i] = readings[i].Value(c)
	}
	return out
}
