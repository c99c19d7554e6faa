package dataset

import (
	"errors"
	"sync"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

var (
	// ErrNoDataset is returned when nothing has been loaded yet.
	ErrNoDataset = errors.New("no dataset loaded")
)

// MemoryStore is a concurrency-safe holder for the current dataset.
// A load replaces the previous dataset as a whole.
type MemoryStore struct {
	mu sync.RWMutex

	observations []weather.Observation
	summary      weather.DatasetSummary
	loaded       bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Replace installs obs as the current dataset and returns its summary.
func (s *MemoryStore) Replace(source string, obs []weather.Observation) weather.DatasetSummary {
	owned := append([]weather.Observation(nil), obs...)
	summary := weather.Summarize(source, owned)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations = owned
	s.summary = summary
	s.loaded = true
	return summary
}

// Observations returns a copy of the current dataset.
func (s *MemoryStore) Observations() ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return nil, ErrNoDataset
	}
	return append([]weather.Observation(nil), s.observations...), nil
}

// Summary returns the summary computed when the dataset was loaded.
func (s *MemoryStore) Summary() (weather.DatasetSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return weather.DatasetSummary{}, ErrNoDataset
	}
	return s.summary, nil
}

// Loaded reports whether a dataset is present.
func (s *MemoryStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
