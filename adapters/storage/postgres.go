package storage

import (
	"context"
	"embed"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // goose opens migrations through database/sql
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-boq/core/types"
	"pool-boq/internal/errors"
	"pool-boq/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultPriceList = "default"

// MigratePostgres applies the embedded goose migrations to dsn
func MigratePostgres(ctx context.Context, dsn string, logger *zap.Logger) error {
	db, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return errors.Storage("open migration connection", err)
	}
	defer func() { _ = db.Close() }()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logging.OrNop(logger).Named("goose").Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Storage("set migration dialect", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Storage("apply migrations", err)
	}
	return nil
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Infof(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf(format, v...)
}

// PostgresStore is the shared backend for multi-instance deployments
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn. Run MigratePostgres first.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Storage("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Storage("ping postgres", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadTemplate(ctx context.Context, shape types.Shape) (*types.Template, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM templates
		WHERE shape = $1
		ORDER BY version DESC
		LIMIT 1
	`, string(shape)).Scan(&body)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("template", string(shape))
	}
	if err != nil {
		return nil, errors.Storage("load template", err)
	}

	var t types.Template
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, errors.Storage("decode template", err)
	}
	return &t, nil
}

// SaveTemplate appends a new version of t, filling IDs and setting t.Version
func (s *PostgresStore) SaveTemplate(ctx context.Context, t *types.Template) error {
	if t == nil {
		return prepareTemplate(nil, 0)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// serialise concurrent saves of the same shape
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, string(t.Shape)); err != nil {
			return errors.Storage("lock template", err)
		}
		var latest int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM templates WHERE shape = $1`, string(t.Shape),
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
		if _, err := tx.Exec(ctx, `
			INSERT INTO templates (shape, version, template_id, name, body)
			VALUES ($1, $2, $3, $4, $5)
		`, string(t.Shape), t.Version, t.ID, t.Name, body); err != nil {
			return errors.Storage("insert template", err)
		}
		return nil
	})
}

func (s *PostgresStore) LoadVariables(ctx context.Context, shape types.Shape) ([]types.VariableDefinition, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM variable_sets WHERE shape = $1)`, string(shape),
	).Scan(&exists); err != nil {
		return nil, errors.Storage("load variables", err)
	}
	if !exists {
		return nil, errors.NotFound("variables", string(shape))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, formula, evaluation_order, description
		FROM variables
		WHERE shape = $1
		ORDER BY position
	`, string(shape))
	if err != nil {
		return nil, errors.Storage("load variables", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) SaveVariables(ctx context.Context, shape types.Shape, defs []types.VariableDefinition) error {
	prepared, err := prepareVariables(shape, defs)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO variable_sets (shape) VALUES ($1)
			ON CONFLICT (shape) DO UPDATE SET updated_at = now()
		`, string(shape)); err != nil {
			return errors.Storage("save variable set", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM variables WHERE shape = $1`, string(shape)); err != nil {
			return errors.Storage("clear variables", err)
		}

		batch := &pgx.Batch{}
		for i, d := range prepared {
			batch.Queue(`
				INSERT INTO variables (shape, position, id, name, formula, evaluation_order, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, string(shape), i, d.ID, d.Name, d.Formula, d.EvaluationOrder, d.Description)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Storage("insert variables", err)
		}
		return nil
	})
}

func (s *PostgresStore) LoadPriceList(ctx context.Context) ([]types.PriceListEntry, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM price_lists WHERE name = $1)`, defaultPriceList,
	).Scan(&exists); err != nil {
		return nil, errors.Storage("load price list", err)
	}
	if !exists {
		return nil, errors.NotFound("price list", defaultPriceList)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT reference, label, unit, unit_price_ht::text
		FROM price_list_entries
		ORDER BY position
	`)
	if err != nil {
		return nil, errors.Storage("load price list", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) SavePriceList(ctx context.Context, entries []types.PriceListEntry) error {
	prepared, err := preparePrices(entries)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM price_list_entries`); err != nil {
			return errors.Storage("clear price list", err)
		}
		batch := &pgx.Batch{}
		for i, e := range prepared {
			batch.Queue(`
				INSERT INTO price_list_entries (position, reference, label, unit, unit_price_ht)
				VALUES ($1, $2, $3, $4, $5::text::numeric)
			`, i, e.Reference, e.Label, e.Unit, e.UnitPriceHT.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Storage("insert price list", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_lists (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET updated_at = now()
		`, defaultPriceList); err != nil {
			return errors.Storage("stamp price list", err)
		}
		return nil
	})
}
