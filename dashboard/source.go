package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danielorbach/go-component"

	"github.com/go-digitaltwin/cabintwin"
	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/dataset"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
)

// Data is everything the dashboard renders from the dataset.
type Data struct {
	Readings  []cabintwin.Reading
	Life      []lifemodel.Point
	Anomalies []anomaly.Event
	LoadedAt  time.Time
}

// LastLife returns the most recent life point, or a pristine one when the
// dataset is empty.
func (d Data) LastLife() lifemodel.Point {
	if len(d.Life) == 0 {
		return lifemodel.Point{LifeRemainingPercent: 100}
	}
	return d.Life[len(d.Life)-1]
}

// Source holds the dataset currently shown. It is safe for concurrent use.
type Source struct {
	store  *dataset.Store
	params lifemodel.Params
	detect anomaly.Options

	mu   sync.RWMutex
	data Data
}

// NewSource returns an empty Source over the store. Call Load before serving.
func NewSource(store *dataset.Store, params lifemodel.Params, detect anomaly.Options) *Source {
	return &Source{store: store, params: params, detect: detect}
}

// Load reads the dataset again. The life estimate comes from its file when one
// was produced, otherwise it is computed from the readings. A failed load keeps
// the previous data.
func (s *Source) Load(ctx context.Context) error {
	readings, err := s.store.LoadReadings(ctx)
	if err != nil {
		return fmt.Errorf("load readings: %w", err)
	}
	life, err := s.store.LoadLife(ctx)
	if errors.Is(err, dataset.ErrNotFound) || (err == nil && len(life) != len(readings)) {
		// a stale life file belongs to another dataset
		life = s.params.Estimate(readings)
	} else if err != nil {
		return fmt.Errorf("load life: %w", err)
	}

	d := Data{
		Readings:  readings,
		Life:      life,
		Anomalies: anomaly.Detect(readings, s.detect),
		LoadedAt:  time.Now(),
	}
	s.mu.Lock()
	s.data = d
	s.mu.Unlock()

	component.Logger(ctx).Info("Dataset loaded", "readings", len(readings), "anomalies", len(d.Anomalies))
	return nil
}

// Current returns the data last loaded. Callers must not modify it.
func (s *Source) Current() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}
