// Package dataset stores the files the twin produces and consumes: the sensor
// readings, the life estimate, and the load cases and results of the FEA
// solver. Files live in a gocloud.dev blob bucket, which is a local directory
// in production and memory in tests.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// Keys of the files in a Store.
const (
	ReadingsKey = "sunvisor_simulated_data.csv"
	LifeKey     = "life_estimate.csv"
)

// ErrNotFound is returned when a file has not been produced yet.
var ErrNotFound = errors.New("dataset: file not found")

// producers tells the operator which command produces a missing file.
var producers = map[string]string{
	ReadingsKey:  "cabintwin generate",
	LifeKey:      "cabintwin life",
	fea.InputKey: "cabintwin fea",
}

// Store reads and writes dataset files in a blob bucket.
type Store struct {
	bucket *blob.Bucket
}

var _ fea.JSONStore = (*Store)(nil)

// NewStore returns a Store over the given bucket. Closing the Store closes the
// bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// OpenDir returns a Store backed by a local directory, creating the directory
// if needed.
func OpenDir(dir string) (*Store, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	return NewStore(bucket), nil
}

// OpenURL returns a Store backed by the bucket at the given gocloud URL, for
// example "file:///var/lib/cabintwin" or "mem://".
func OpenURL(ctx context.Context, url string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return NewStore(bucket), nil
}

// OpenMemory returns a Store that keeps its files in memory.
func OpenMemory() *Store {
	return NewStore(memblob.OpenBucket(nil))
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		if cmd, ok := producers[key]; ok {
			return nil, fmt.Errorf("%w: %s (run %q first)", ErrNotFound, key, cmd)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, key, contentType string, data []byte) error {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	component.Logger(ctx).Debug("File written", slog.String("key", key), slog.Int("bytes", len(data)))
	return nil
}

// Exists reports whether the file at key has been produced.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

// SaveReadings stores readings as the sensor file.
func (s *Store) SaveReadings(ctx context.Context, readings []cabintwin.Reading) error {
	var b bytes.Buffer
	if err := WriteReadings(&b, readings); err != nil {
		return fmt.Errorf("encode readings: %w", err)
	}
	return s.write(ctx, ReadingsKey, "text/csv", b.Bytes())
}

// LoadReadings returns the readings of the sensor file.
func (s *Store) LoadReadings(ctx context.Context) ([]cabintwin.Reading, error) {
	data, err := s.read(ctx, ReadingsKey)
	if err != nil {
		return nil, err
	}
	readings, err := ReadReadings(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ReadingsKey, err)
	}
	return readings, nil
}

// SaveLife stores points as the life estimate file.
func (s *Store) SaveLife(ctx context.Context, points []lifemodel.Point) error {
	var b bytes.Buffer
	if err := WriteLife(&b, points); err != nil {
		return fmt.Errorf("encode life estimate: %w", err)
	}
	return s.write(ctx, LifeKey, "text/csv", b.Bytes())
}

// LoadLife returns the points of the life estimate file.
func (s *Store) LoadLife(ctx context.Context) ([]lifemodel.Point, error) {
	data, err := s.read(ctx, LifeKey)
	if err != nil {
		return nil, err
	}
	points, err := ReadLife(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", LifeKey, err)
	}
	return points, nil
}

// WriteJSON stores v as an indented JSON document.
func (s *Store) WriteJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.write(ctx, key, "application/json", data)
}

// ReadJSON decodes the JSON document at key into v.
func (s *Store) ReadJSON(ctx context.Context, key string, v any) error {
	data, err := s.read(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
