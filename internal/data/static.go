package data

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource is an in-memory Source used by tests and local development.
// Versions are registered explicitly; deltas exist only where added.
//
// Thread-safe: all operations are protected by a read-write mutex.
type StaticSource struct {
	mu       sync.RWMutex
	datasets []*Dataset
	current  map[string]string
	full     map[string][]Envelope // dataset@version
	deltas   map[string][]Envelope // dataset@from@to
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		current: make(map[string]string),
		full:    make(map[string][]Envelope),
		deltas:  make(map[string][]Envelope),
	}
}

// AddDataset registers a dataset and its current catalog version.
func (s *StaticSource) AddDataset(ds *Dataset, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = append(s.datasets, ds)
	s.current[ds.Name] = version
}

// SetVersion moves the current catalog version of a dataset.
func (s *StaticSource) SetVersion(dataset, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[dataset] = version
}

// AddEntities registers the full entity stream for a dataset version.
func (s *StaticSource) AddEntities(dataset, version string, envelopes []Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full[dataset+"@"+version] = envelopes
}

// AddDelta registers a delta stream between two versions.
func (s *StaticSource) AddDelta(dataset, from, to string, envelopes []Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas[dataset+"@"+from+"@"+to] = envelopes
}

func (s *StaticSource) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dataset, len(s.datasets))
	copy(out, s.datasets)
	return out, nil
}

func (s *StaticSource) CurrentVersion(ctx context.Context, dataset *Dataset) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.current[dataset.Name]
	if !ok {
		return "", fmt.Errorf("no catalog version for dataset %s", dataset.Name)
	}
	return version, nil
}

func (s *StaticSource) Entities(ctx context.Context, dataset *Dataset, version string) Stream {
	s.mu.RLock()
	envelopes, ok := s.full[dataset.Name+"@"+version]
	s.mu.RUnlock()
	return func(yield func(Envelope, error) bool) {
		if !ok {
			yield(Envelope{}, fmt.Errorf("no entities for %s@%s", dataset.Name, version))
			return
		}
		for _, env := range envelopes {
			if err := ctx.Err(); err != nil {
				yield(Envelope{}, err)
				return
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

func (s *StaticSource) Delta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) Stream {
	s.mu.RLock()
	envelopes, ok := s.deltas[dataset.Name+"@"+fromVersion+"@"+toVersion]
	s.mu.RUnlock()
	return func(yield func(Envelope, error) bool) {
		if !ok {
			yield(Envelope{}, fmt.Errorf("no delta for %s from %s to %s", dataset.Name, fromVersion, toVersion))
			return
		}
		for _, env := range envelopes {
			if err := ctx.Err(); err != nil {
				yield(Envelope{}, err)
				return
			}
			if !yield(env, nil) {
				return
			}
		}
	}
}

func (s *StaticSource) HasDelta(ctx context.Context, dataset *Dataset, fromVersion, toVersion string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deltas[dataset.Name+"@"+fromVersion+"@"+toVersion]
	return ok, nil
}

var _ Source = (*StaticSource)(nil)
