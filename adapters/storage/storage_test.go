package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-boq/core/catalog"
	"pool-boq/core/template"
	"pool-boq/core/types"
	"pool-boq/internal/config"
	"pool-boq/internal/errors"
)

// testRepository runs the repository contract against a fresh store
func testRepository(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("empty store reports not found", func(t *testing.T) {
		s := newStore(t)

		_, err := s.LoadTemplate(ctx, types.ShapeRectangular)
		assert.ErrorIs(t, err, template.ErrNotFound)
		_, err = s.LoadVariables(ctx, types.ShapeRectangular)
		assert.ErrorIs(t, err, template.ErrNotFound)
		_, err = s.LoadPriceList(ctx)
		assert.ErrorIs(t, err, template.ErrNotFound)
	})

	t.Run("template versions and ids", func(t *testing.T) {
		s := newStore(t)

		tpl := &types.Template{
			Name:  "Custom",
			Shape: types.ShapeLShaped,
			Categories: []types.Category{{
				Name:  "Shell",
				Lines: []types.Line{{Description: "Concrete", Quantity: decimal.NewFromInt(3)}},
				Subcategories: []types.Subcategory{{
					Name:  "Steps",
					Lines: []types.Line{{Description: "Step", UnitCostHT: decimal.RequireFromString("99.95")}},
				}},
			}},
		}
		require.NoError(t, s.SaveTemplate(ctx, tpl))
		assert.Equal(t, 1, tpl.Version)
		assert.NotEmpty(t, tpl.ID)
		assert.NotEmpty(t, tpl.Categories[0].ID)
		assert.NotEmpty(t, tpl.Categories[0].Lines[0].ID)
		assert.NotEmpty(t, tpl.Categories[0].Subcategories[0].ID)
		assert.NotEmpty(t, tpl.Categories[0].Subcategories[0].Lines[0].ID)

		tpl.Name = "Custom v2"
		require.NoError(t, s.SaveTemplate(ctx, tpl))
		assert.Equal(t, 2, tpl.Version)

		got, err := s.LoadTemplate(ctx, types.ShapeLShaped)
		require.NoError(t, err)
		assert.Equal(t, "Custom v2", got.Name)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, tpl.ID, got.ID)
		assert.Equal(t, "99.95", got.Categories[0].Subcategories[0].Lines[0].UnitCostHT.String())

		_, err = s.LoadTemplate(ctx, types.ShapeTShaped)
		assert.ErrorIs(t, err, template.ErrNotFound)
	})

	t.Run("loaded template is a copy", func(t *testing.T) {
		s := newStore(t)
		tpl := catalog.Template(types.ShapeRectangular)
		require.NoError(t, s.SaveTemplate(ctx, &tpl))

		first, err := s.LoadTemplate(ctx, types.ShapeRectangular)
		require.NoError(t, err)
		first.Categories[0].Lines[0].Description = "changed"

		second, err := s.LoadTemplate(ctx, types.ShapeRectangular)
		require.NoError(t, err)
		assert.NotEqual(t, "changed", second.Categories[0].Lines[0].Description)
	})

	t.Run("rejects invalid template", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveTemplate(ctx, &types.Template{Shape: "oval"})
		assert.True(t, errors.IsType(err, errors.TypeInput))
		err = s.SaveTemplate(ctx, nil)
		assert.True(t, errors.IsType(err, errors.TypeInput))
	})

	t.Run("variables keep order and get ids", func(t *testing.T) {
		s := newStore(t)
		defs := []types.VariableDefinition{
			{Name: "volume", Formula: "surface * depth", EvaluationOrder: 2},
			{ID: "keep", Name: "surface", Formula: "length * width", EvaluationOrder: 1, Description: "m2"},
		}
		require.NoError(t, s.SaveVariables(ctx, types.ShapeRectangular, defs))
		assert.Empty(t, defs[0].ID, "input is not mutated")

		got, err := s.LoadVariables(ctx, types.ShapeRectangular)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "volume", got[0].Name)
		assert.NotEmpty(t, got[0].ID)
		assert.Equal(t, "keep", got[1].ID)
		assert.Equal(t, "m2", got[1].Description)

		// replace with an empty set: stored, not missing
		require.NoError(t, s.SaveVariables(ctx, types.ShapeRectangular, nil))
		got, err = s.LoadVariables(ctx, types.ShapeRectangular)
		require.NoError(t, err)
		assert.Empty(t, got)

		err = s.SaveVariables(ctx, types.ShapeRectangular, []types.VariableDefinition{{Name: " "}})
		assert.True(t, errors.IsType(err, errors.TypeInput))
	})

	t.Run("price list replace", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SavePriceList(ctx, catalog.PriceList()))

		got, err := s.LoadPriceList(ctx)
		require.NoError(t, err)
		require.Len(t, got, len(catalog.PriceList()))
		assert.Equal(t, "EXCAVATION_M3", got[0].Reference)
		assert.Equal(t, "1.45", got[6].UnitPriceHT.String())

		require.NoError(t, s.SavePriceList(ctx, []types.PriceListEntry{
			{Reference: " tile ", UnitPriceHT: decimal.RequireFromString("12.5")},
		}))
		got, err = s.LoadPriceList(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "tile", got[0].Reference)

		err = s.SavePriceList(ctx, []types.PriceListEntry{{Reference: "A"}, {Reference: "a"}})
		assert.True(t, errors.IsType(err, errors.TypeInput))
		err = s.SavePriceList(ctx, []types.PriceListEntry{{Reference: ""}})
		assert.True(t, errors.IsType(err, errors.TypeInput))
	})

	t.Run("seeded store prices like the catalog", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, template.Seed(ctx, s))

		for _, shape := range types.Shapes() {
			bundle, err := template.Load(ctx, s, shape)
			require.NoError(t, err)
			assert.Equal(t, catalog.Template(shape).ID, bundle.Template.ID)
			assert.Len(t, bundle.Variables, len(mustVariables(t, shape)))
		}
	})

	t.Run("concurrent saves bump versions", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tpl := catalog.Template(types.ShapeTShaped)
				assert.NoError(t, s.SaveTemplate(ctx, &tpl))
			}()
		}
		wg.Wait()

		got, err := s.LoadTemplate(ctx, types.ShapeTShaped)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Version)
	})
}

func mustVariables(t *testing.T, shape types.Shape) []types.VariableDefinition {
	t.Helper()
	defs, err := catalog.Variables(shape)
	require.NoError(t, err)
	return defs
}

func TestMemoryStore(t *testing.T) {
	testRepository(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestFileStore(t *testing.T) {
	testRepository(t, func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	testRepository(t, func(t *testing.T) Store {
		return openSQLite(t, filepath.Join(t.TempDir(), "boq.db"))
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POOLBOQ_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POOLBOQ_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	testRepository(t, func(t *testing.T) Store {
		require.NoError(t, MigratePostgres(ctx, dsn, nil))
		s, err := NewPostgresStore(ctx, dsn)
		require.NoError(t, err)
		for _, table := range []string{"templates", "variables", "variable_sets", "price_list_entries", "price_lists"} {
			_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func openSQLite(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "boq.db")
	s := openSQLite(t, path)
	require.NoError(t, s.Migrate(ctx))

	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestSQLiteTemplateVersions(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "boq.db"))

	for i := 0; i < 3; i++ {
		tpl := catalog.Template(types.ShapeRectangular)
		require.NoError(t, s.SaveTemplate(ctx, &tpl))
	}
	versions, err := s.TemplateVersions(ctx, types.ShapeRectangular)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, versions)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "price_list.json"), []byte("{"), 0o644))

	_, err = s.LoadPriceList(context.Background())
	assert.True(t, errors.IsType(err, errors.TypeStorage))
	assert.NotErrorIs(t, err, template.ErrNotFound)
}

func TestStoreFactory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    any
		wantErr errors.Type
	}{
		{"memory", config.StorageConfig{Backend: "memory"}, &MemoryStore{}, ""},
		{"file", config.StorageConfig{Backend: "file", Path: filepath.Join(dir, "files")}, &FileStore{}, ""},
		{"sqlite", config.StorageConfig{Backend: "sqlite", Path: filepath.Join(dir, "boq.db")}, &SQLiteStore{}, ""},
		{"unknown", config.StorageConfig{Backend: "s3"}, nil, errors.TypeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := StoreFactory(ctx, tt.cfg, nil)
			if tt.wantErr != "" {
				assert.True(t, errors.IsType(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
