package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dossier-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	callsign    TEXT NOT NULL,
	state       TEXT NOT NULL,
	strategy    TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	cost_usd    REAL NOT NULL DEFAULT 0,
	record      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_callsign ON runs(callsign);
CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec *model.RunRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, callsign, state, strategy, confidence, cost_usd, record, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			strategy = excluded.strategy,
			confidence = excluded.confidence,
			cost_usd = excluded.cost_usd,
			record = excluded.record,
			finished_at = excluded.finished_at`,
		row.id, row.callsign, row.state, row.strategy, row.confidence, row.costUSD,
		string(row.record), rec.StartedAt.UTC(), finishedAt(rec),
	)
	return eris.Wrapf(err, "sqlite: save run %s", rec.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return fromRecordJSON([]byte(data))
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT id, callsign, state, strategy, confidence, cost_usd, started_at FROM runs WHERE 1=1`
	var args []any

	if filter.Callsign != "" {
		query += ` AND callsign = ?`
		args = append(args, filter.Callsign)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, filter.Strategy)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var r model.RunSummary
		var state string
		if err := rows.Scan(&r.ID, &r.Callsign, &state, &r.Strategy, &r.Confidence, &r.CostUSD, &r.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.State = model.RunState(state)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LatestDossier(ctx context.Context, callsign string) (*model.Dossier, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM runs WHERE callsign = ? AND state = ? ORDER BY started_at DESC LIMIT 1`,
		callsign, string(model.RunDone),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest dossier %s", callsign)
	}
	rec, err := fromRecordJSON([]byte(data))
	if err != nil {
		return nil, err
	}
	if rec.Dossier == nil {
		return nil, ErrNotFound
	}
	return rec.Dossier, nil
}

func finishedAt(rec *model.RunRecord) *time.Time {
	if rec.FinishedAt == nil {
		return nil
	}
	t := rec.FinishedAt.UTC()
	return &t
}
