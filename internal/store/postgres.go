package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/recon-engine/internal/recon"
	"github.com/example/recon-engine/pkg/audit"
)

// PostgresStore persists runs in PostgreSQL for shared, multi-host access.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and runs migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	migrationSQL := `
	CREATE TABLE IF NOT EXISTS recon_runs (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT UNIQUE NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		result JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recon_decisions (
		id BIGSERIAL PRIMARY KEY,
		decision_id TEXT UNIQUE NOT NULL,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		engine TEXT NOT NULL,
		rule TEXT NOT NULL,
		input_ids TEXT[] NOT NULL,
		outcome TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		amount_delta BIGINT NOT NULL,
		date_delta_days INTEGER NOT NULL,
		description_score DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		previous_hash TEXT NOT NULL,
		hash TEXT NOT NULL,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_recon_decisions_run_id ON recon_decisions(run_id);
	`
	_, err := pool.Exec(ctx, migrationSQL)
	return err
}

func (s *PostgresStore) SaveRun(ctx context.Context, run Run) error {
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recon_runs (run_id, started_at, completed_at, result) VALUES ($1, $2, $3, $4)`,
		run.ID, run.StartedAt.UTC(), run.CompletedAt.UTC(), result)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) SaveDecisions(ctx context.Context, runID string, records []audit.DecisionRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO recon_decisions
			(decision_id, run_id, seq, engine, rule, input_ids, outcome, confidence,
			 amount_delta, date_delta_days, description_score, recorded_at, previous_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			rec.ID, runID, rec.Seq, rec.Engine, rec.Rule,
			rec.InputIDs, rec.Outcome, rec.Confidence,
			rec.Signals.AmountDelta, rec.Signals.DateDeltaDays, rec.Signals.DescriptionScore,
			rec.Timestamp.UTC(), rec.PreviousHash, rec.Hash)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert decisions of run %s: %w", runID, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var result []byte
	var started, completed time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT run_id, started_at, completed_at, result FROM recon_runs WHERE run_id = $1`,
		runID).Scan(&run.ID, &started, &completed, &result)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	run.StartedAt = started.UTC()
	run.CompletedAt = completed.UTC()
	run.Result = &recon.Result{}
	if err := json.Unmarshal(result, run.Result); err != nil {
		return Run{}, fmt.Errorf("unmarshal result of run %s: %w", runID, err)
	}
	return run, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, runID string) ([]audit.DecisionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT decision_id, run_id, seq, engine, rule, input_ids, outcome, confidence,
		       amount_delta, date_delta_days, description_score, recorded_at, previous_hash, hash
		FROM recon_decisions WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions of run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []audit.DecisionRecord
	for rows.Next() {
		var rec audit.DecisionRecord
		var ts time.Time
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Seq, &rec.Engine, &rec.Rule,
			&rec.InputIDs, &rec.Outcome, &rec.Confidence,
			&rec.Signals.AmountDelta, &rec.Signals.DateDeltaDays, &rec.Signals.DescriptionScore,
			&ts, &rec.PreviousHash, &rec.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.Timestamp = ts.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
