package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// TimestampLayout formats the timestamp column of every dataset file.
const TimestampLayout = "2006-01-02 15:04:05"

const timestampColumn = "timestamp"

// LifeColumns is the header of the life estimate file.
var LifeColumns = []string{
	timestampColumn,
	"damage_increment",
	"damage_cumulative",
	"life_used_percent",
	"life_remaining_percent",
}

// ReadingColumns returns the header of the sensor file: the timestamp followed
// by every channel in column order.
func ReadingColumns() []string {
	cols := []string{timestampColumn}
	for _, c := range cabintwin.Channels() {
		cols = append(cols, string(c))
	}
	return cols
}

func formatFloat(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

// WriteReadings encodes readings as CSV with a ReadingColumns header.
func WriteReadings(w io.Writer, readings []cabintwin.Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ReadingColumns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	channels := cabintwin.Channels()
	record := make([]string, 1+len(channels))
	for _, r := range readings {
		record[0] = r.Timestamp.Format(TimestampLayout)
		for i, c := range channels {
			record[1+i] = formatFloat(r.Value(c))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadReadings decodes a sensor CSV. Columns are matched by header name, so
// their order is irrelevant and unknown columns are ignored, but every channel
// must be present. Timestamps are read as UTC.
func ReadReadings(r io.Reader) ([]cabintwin.Reading, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read header: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header, ReadingColumns())
	if err != nil {
		return nil, err
	}

	var readings []cabintwin.Reading
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return readings, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		var reading cabintwin.Reading
		reading.Timestamp, err = time.Parse(TimestampLayout, record[index[timestampColumn]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse timestamp: %w", line, err)
		}
		for _, c := range cabintwin.Channels() {
			v, err := strconv.ParseFloat(record[index[string(c)]], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %s: %w", line, c, err)
			}
			reading.Set(c, v)
		}
		readings = append(readings, reading)
	}
}

// WriteLife encodes life points as CSV with a LifeColumns header.
func WriteLife(w io.Writer, points []lifemodel.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LifeColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range points {
		record := []string{
			p.Timestamp.Format(TimestampLayout),
			formatFloat(p.DamageIncrement),
			formatFloat(p.DamageCumulative),
			formatFloat(p.LifeUsedPercent),
			formatFloat(p.LifeRemainingPercent),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLife decodes a life estimate CSV written by WriteLife.
func ReadLife(r io.Reader) ([]lifemodel.Point, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read header: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header, LifeColumns)
	if err != nil {
		return nil, err
	}

	var points []lifemodel.Point
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		var p lifemodel.Point
		p.Timestamp, err = time.Parse(TimestampLayout, record[index[timestampColumn]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse timestamp: %w", line, err)
		}
		for col, dst := range map[string]*float64{
			"damage_increment":       &p.DamageIncrement,
			"damage_cumulative":      &p.DamageCumulative,
			"life_used_percent":      &p.LifeUsedPercent,
			"life_remaining_percent": &p.LifeRemainingPercent,
		} {
			if *dst, err = strconv.ParseFloat(record[index[col]], 64); err != nil {
				return nil, fmt.Errorf("line %d: parse %s: %w", line, col, err)
			}
		}
		points = append(points, p)
	}
}

// columnIndex maps every wanted column to its position in header.
func columnIndex(header, want []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	var missing []string
	for _, name := range want {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %q", missing)
	}
	return index, nil
}
