// Package storage provides repository backends for templates, variable sets
// and price lists. Supports memory, file, SQLite and PostgreSQL.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pool-boq/core/template"
	"pool-boq/core/types"
	"pool-boq/internal/config"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory   Backend = config.BackendMemory
	BackendFile     Backend = config.BackendFile
	BackendSQLite   Backend = config.BackendSQLite
	BackendPostgres Backend = config.BackendPostgres
)

// Store is a repository that holds resources until closed
type Store interface {
	template.Repository
	io.Closer
}

// StoreFactory opens the backend selected by cfg. Database backends are
// migrated before they are returned.
func StoreFactory(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	logger = logging.OrNop(logger)

	switch Backend(cfg.Backend) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(cfg.Path)
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		if err := MigratePostgres(ctx, cfg.DSN, logger); err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported storage backend: %s", cfg.Backend)
	}
}

// prepareTemplate checks t and fills missing category, subcategory and
// line IDs. version is the version t will be stored under.
func prepareTemplate(t *types.Template, version int) error {
	if t == nil {
		return errors.New(errors.TypeInput, "template is nil")
	}
	if _, err := types.ParseShape(string(t.Shape)); err != nil {
		return errors.Wrap(errors.TypeInput, "invalid template", err)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Version = version

	for i := range t.Categories {
		c := &t.Categories[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		fillLineIDs(c.Lines)
		for j := range c.Subcategories {
			s := &c.Subcategories[j]
			if s.ID == "" {
				s.ID = uuid.New().String()
			}
			fillLineIDs(s.Lines)
		}
	}
	return nil
}

func fillLineIDs(lines []types.Line) {
	for i := range lines {
		if lines[i].ID == "" {
			lines[i].ID = uuid.New().String()
		}
	}
}

// prepareVariables returns a copy of defs with IDs filled. Names must be
// non-blank; everything else is left to the guards.
func prepareVariables(shape types.Shape, defs []types.VariableDefinition) ([]types.VariableDefinition, error) {
	if _, err := types.ParseShape(string(shape)); err != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid variable set", err)
	}
	out := make([]types.VariableDefinition, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, errors.Newf(errors.TypeInput, "variable %d has no name", i+1)
		}
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		out[i] = d
	}
	return out, nil
}

// preparePrices rejects blank or duplicate references (case-insensitive)
func preparePrices(entries []types.PriceListEntry) ([]types.PriceListEntry, error) {
	seen := make(map[string]bool, len(entries))
	out := make([]types.PriceListEntry, 0, len(entries))
	for _, e := range entries {
		e.Reference = strings.TrimSpace(e.Reference)
		if e.Reference == "" {
			return nil, errors.New(errors.TypeInput, "price list entry has no reference")
		}
		key := strings.ToLower(e.Reference)
		if seen[key] {
			return nil, errors.Newf(errors.TypeInput, "duplicate price list reference %q", e.Reference)
		}
		seen[key] = true
		out = append(out, e)
	}
	return out, nil
}
