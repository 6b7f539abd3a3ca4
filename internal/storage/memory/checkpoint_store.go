// Package memory keeps checkpoints in process memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/docprobe/internal/checkpoint"
)

// Store holds deep copies of saved checkpoints keyed by run key.
type Store struct {
	mu    sync.RWMutex
	data  map[string]*checkpoint.Checkpoint
	saves int
}

// NewStore creates an empty in-memory checkpoint store.
func NewStore() *Store {
	return &Store{data: make(map[string]*checkpoint.Checkpoint)}
}

// Load returns a copy of the saved checkpoint or checkpoint.ErrNotFound.
func (s *Store) Load(_ context.Context, runKey string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.data[runKey]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return cp.Clone(), nil
}

// Save stores a copy of cp.
func (s *Store) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil || cp.RunKey == "" {
		return fmt.Errorf("checkpoint with run key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cp.RunKey] = cp.Clone()
	s.saves++
	return nil
}

// Delete removes the checkpoint for runKey.
func (s *Store) Delete(_ context.Context, runKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runKey)
	return nil
}

// Saves reports how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
