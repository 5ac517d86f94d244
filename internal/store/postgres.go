package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dossier-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS dossier_runs (
	id          TEXT PRIMARY KEY,
	callsign    TEXT NOT NULL,
	state       TEXT NOT NULL,
	strategy    TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	record      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_dossier_runs_callsign ON dossier_runs(callsign, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_dossier_runs_state ON dossier_runs(state);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dossier_runs (id, callsign, state, strategy, confidence, cost_usd, record, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			strategy = EXCLUDED.strategy,
			confidence = EXCLUDED.confidence,
			cost_usd = EXCLUDED.cost_usd,
			record = EXCLUDED.record,
			finished_at = EXCLUDED.finished_at`,
		row.id, row.callsign, row.state, row.strategy, row.confidence, row.costUSD,
		row.record, rec.StartedAt.UTC(), finishedAt(rec),
	)
	return eris.Wrapf(err, "postgres: save run %s", rec.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM dossier_runs WHERE id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return fromRecordJSON(data)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT id, callsign, state, strategy, confidence, cost_usd, started_at FROM dossier_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Callsign != "" {
		query += fmt.Sprintf(` AND callsign = $%d`, argIdx)
		args = append(args, filter.Callsign)
		argIdx++
	}
	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(filter.State))
		argIdx++
	}
	if filter.Strategy != "" {
		query += fmt.Sprintf(` AND strategy = $%d`, argIdx)
		args = append(args, filter.Strategy)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var r model.RunSummary
		var state string
		if err := rows.Scan(&r.ID, &r.Callsign, &state, &r.Strategy, &r.Confidence, &r.CostUSD, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.State = model.RunState(state)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LatestDossier(ctx context.Context, callsign string) (*model.Dossier, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM dossier_runs WHERE callsign = $1 AND state = $2 ORDER BY started_at DESC LIMIT 1`,
		callsign, string(model.RunDone),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest dossier %s", callsign)
	}
	rec, err := fromRecordJSON(data)
	if err != nil {
		return nil, err
	}
	if rec.Dossier == nil {
		return nil, ErrNotFound
	}
	return rec.Dossier, nil
}
