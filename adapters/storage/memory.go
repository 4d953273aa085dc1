package storage

import (
	"context"
	"encoding/json"
	"sync"

	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// MemoryStore is an in-memory backend (for tests and the server's demo mode)
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[types.Shape]types.Template
	variables map[types.Shape][]types.VariableDefinition
	prices    []types.PriceListEntry
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[types.Shape]types.Template),
		variables: make(map[types.Shape][]types.VariableDefinition),
	}
}

func (s *MemoryStore) LoadTemplate(_ context.Context, shape types.Shape) (*types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[shape]
	if !ok {
		return nil, errors.NotFound("template", string(shape))
	}
	return cloneTemplate(t)
}

// SaveTemplate stores a copy of t, filling IDs and bumping t.Version
func (s *MemoryStore) SaveTemplate(_ context.Context, t *types.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if t != nil {
		if prev, ok := s.templates[t.Shape]; ok {
			version = prev.Version + 1
		}
	}
	if err := prepareTemplate(t, version); err != nil {
		return err
	}
	stored, err := cloneTemplate(*t)
	if err != nil {
		return err
	}
	s.templates[t.Shape] = *stored
	return nil
}

func (s *MemoryStore) LoadVariables(_ context.Context, shape types.Shape) ([]types.VariableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	defs, ok := s.variables[shape]
	if !ok {
		return nil, errors.NotFound("variables", string(shape))
	}
	return append([]types.VariableDefinition(nil), defs...), nil
}

func (s *MemoryStore) SaveVariables(_ context.Context, shape types.Shape, defs []types.VariableDefinition) error {
	prepared, err := prepareVariables(shape, defs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[shape] = prepared
	return nil
}

func (s *MemoryStore) LoadPriceList(context.Context) ([]types.PriceListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.prices == nil {
		return nil, errors.NotFound("price list", "default")
	}
	return append([]types.PriceListEntry(nil), s.prices...), nil
}

func (s *MemoryStore) SavePriceList(_ context.Context, entries []types.PriceListEntry) error {
	prepared, err := preparePrices(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = prepared
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cloneTemplate deep-copies t so callers never share line slices with the store
func cloneTemplate(t types.Template) (*types.Template, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Internal("copy template", err)
	}
	var out types.Template
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Internal("copy template", err)
	}
	return &out, nil
}
