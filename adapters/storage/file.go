package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"pool-boq/core/types"
	"pool-boq/internal/errors"
)

// FileStore is a file-based backend: one JSON document per template and
// variable set, plus one for the price list.
//
//	<base>/templates/<shape>.json
//	<base>/variables/<shape>.json
//	<base>/price_list.json
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a file store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	for _, dir := range []string{"templates", "variables"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0o755); err != nil {
			return nil, errors.Storage("create storage directory", err)
		}
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) LoadTemplate(_ context.Context, shape types.Shape) (*types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t types.Template
	if err := s.read(s.templatePath(shape), &t); err != nil {
		return nil, notFoundAs(err, "template", string(shape))
	}
	return &t, nil
}

// SaveTemplate writes t, filling IDs and bumping t.Version
func (s *FileStore) SaveTemplate(_ context.Context, t *types.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := 1
	if t != nil {
		var prev types.Template
		if err := s.read(s.templatePath(t.Shape), &prev); err == nil {
			version = prev.Version + 1
		}
	}
	if err := prepareTemplate(t, version); err != nil {
		return err
	}
	return s.write(s.templatePath(t.Shape), t)
}

func (s *FileStore) LoadVariables(_ context.Context, shape types.Shape) ([]types.VariableDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var defs []types.VariableDefinition
	if err := s.read(s.variablesPath(shape), &defs); err != nil {
		return nil, notFoundAs(err, "variables", string(shape))
	}
	return defs, nil
}

func (s *FileStore) SaveVariables(_ context.Context, shape types.Shape, defs []types.VariableDefinition) error {
	prepared, err := prepareVariables(shape, defs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.variablesPath(shape), prepared)
}

func (s *FileStore) LoadPriceList(context.Context) ([]types.PriceListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []types.PriceListEntry
	if err := s.read(s.pricesPath(), &entries); err != nil {
		return nil, notFoundAs(err, "price list", "default")
	}
	return entries, nil
}

func (s *FileStore) SavePriceList(_ context.Context, entries []types.PriceListEntry) error {
	prepared, err := preparePrices(entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.pricesPath(), prepared)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) templatePath(shape types.Shape) string {
	return filepath.Join(s.basePath, "templates", string(shape)+".json")
}

func (s *FileStore) variablesPath(shape types.Shape) string {
	return filepath.Join(s.basePath, "variables", string(shape)+".json")
}

func (s *FileStore) pricesPath() string {
	return filepath.Join(s.basePath, "price_list.json")
}

func (s *FileStore) read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(errors.TypeStorage, err, "decode %s", path)
	}
	return nil
}

// write replaces path atomically so readers never see a partial document
func (s *FileStore) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Internal("encode document", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Storage("write "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Storage("replace "+path, err)
	}
	return nil
}

func notFoundAs(err error, kind, id string) error {
	if os.IsNotExist(err) {
		return errors.NotFound(kind, id)
	}
	if errors.IsType(err, errors.TypeStorage) {
		return err
	}
	return errors.Storage("read "+kind, err)
}
