package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-boq/core/types"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
)

// SQLiteStore keeps every saved template version; loads return the latest
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath. Call
// Migrate before use.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New(errors.TypeConfig, "sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, errors.Storage("create database directory", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.Storage("open database", err)
	}
	// SQLite doesn't benefit from multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Storage("ping database", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: logging.OrNop(logger).Named("sqlite"),
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadTemplate(ctx context.Context, shape types.Shape) (*types.Template, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM templates WHERE shape = ? ORDER BY version DESC LIMIT 1`,
		string(shape),
	).Scan(&body)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("template", string(shape))
	}
	if err != nil {
		return nil, errors.Storage("load template", err)
	}

	var t types.Template
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, errors.Storage("decode template", err)
	}
	return &t, nil
}

// SaveTemplate appends a new version of t, filling IDs and setting t.Version
func (s *SQLiteStore) SaveTemplate(ctx context.Context, t *types.Template) error {
	if t == nil {
		return prepareTemplate(nil, 0)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var latest int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM templates WHERE shape = ?`, string(t.Shape),
	).Scan(&latest); err != nil {
		return errors.Storage("read template version", err)
	}
	if err := prepareTemplate(t, latest+1); err != nil {
		return err
	}

	body, err := json.Marshal(t)
	if err != nil {
		return errors.Internal("encode template", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO templates (shape, version, template_id, name, body) VALUES (?, ?, ?, ?, ?)`,
		string(t.Shape), t.Version, t.ID, t.Name, string(body),
	); err != nil {
		return errors.Storage("insert template", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage("commit template", err)
	}
	s.logger.Debug("saved template", zap.String("shape", string(t.Shape)), zap.Int("version", t.Version))
	return nil
}

func (s *SQLiteStore) LoadVariables(ctx context.Context, shape types.Shape) ([]types.VariableDefinition, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM variable_sets WHERE shape = ?`, string(shape),
	).Scan(&exists); err != nil {
		return nil, errors.Storage("load variables", err)
	}
	if exists == 0 {
		return nil, errors.NotFound("variables", string(shape))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, formula, evaluation_order, description
		FROM variables WHERE shape = ? ORDER BY position`, string(shape))
	if err != nil {
		return nil, errors.Storage("load variables", err)
	}
	defer func() { _ = rows.Close() }()

	defs := make([]types.VariableDefinition, 0)
	for rows.Next() {
		var d types.VariableDefinition
		if err := rows.Scan(&d.ID, &d.Name, &d.Formula, &d.EvaluationOrder, &d.Description); err != nil {
			return nil, errors.Storage("scan variable", err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("load variables", err)
	}
	return defs, nil
}

func (s *SQLiteStore) SaveVariables(ctx context.Context, shape types.Shape, defs []types.VariableDefinition) error {
	prepared, err := prepareVariables(shape, defs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO variable_sets (shape) VALUES (?)
		ON CONFLICT(shape) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, string(shape),
	); err != nil {
		return errors.Storage("save variable set", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM variables WHERE shape = ?`, string(shape)); err != nil {
		return errors.Storage("clear variables", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO variables (shape, position, id, name, formula, evaluation_order, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Storage("prepare variable insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, d := range prepared {
		if _, err := stmt.ExecContext(ctx, string(shape), i, d.ID, d.Name, d.Formula, d.EvaluationOrder, d.Description); err != nil {
			return errors.Storage("insert variable "+d.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage("commit variables", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPriceList(ctx context.Context) ([]types.PriceListEntry, error) {
	var saved int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meta WHERE key = 'price_list_updated_at'`,
	).Scan(&saved); err != nil {
		return nil, errors.Storage("load price list", err)
	}
	if saved == 0 {
		return nil, errors.NotFound("price list", "default")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT reference, label, unit, unit_price_ht FROM price_list ORDER BY rowid`)
	if err != nil {
		return nil, errors.Storage("load price list", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]types.PriceListEntry, 0)
	for rows.Next() {
		var (
			e     types.PriceListEntry
			price string
		)
		if err := rows.Scan(&e.Reference, &e.Label, &e.Unit, &price); err != nil {
			return nil, errors.Storage("scan price", err)
		}
		if e.UnitPriceHT, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Storage("decode price "+e.Reference, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Storage("load price list", err)
	}
	return entries, nil
}

func (s *SQLiteStore) SavePriceList(ctx context.Context, entries []types.PriceListEntry) error {
	prepared, err := preparePrices(entries)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Storage("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_list`); err != nil {
		return errors.Storage("clear price list", err)
	}
	for _, e := range prepared {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO price_list (reference, label, unit, unit_price_ht) VALUES (?, ?, ?, ?)`,
			e.Reference, e.Label, e.Unit, e.UnitPriceHT.String(),
		); err != nil {
			return errors.Storage("insert price "+e.Reference, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('price_list_updated_at', CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
	); err != nil {
		return errors.Storage("stamp price list", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.Storage("commit price list", err)
	}
	s.logger.Debug("saved price list", zap.Int("entries", len(prepared)))
	return nil
}

// TemplateVersions lists the stored versions for shape, newest first
func (s *SQLiteStore) TemplateVersions(ctx context.Context, shape types.Shape) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM templates WHERE shape = ? ORDER BY version DESC`, string(shape))
	if err != nil {
		return nil, errors.Storage("list template versions", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Storage("scan template version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
