// Package store holds settings key-value stores.
package store

import (
	"context"
	"sync"
)

// InMemory is a map-backed settings store for tests and local runs.
type InMemory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewInMemory(initial map[string]string) *InMemory {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &InMemory{values: values}
}

// GetParam returns the stored value or def when the key is absent.
func (s *InMemory) GetParam(_ context.Context, key, def string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (s *InMemory) SetParam(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
