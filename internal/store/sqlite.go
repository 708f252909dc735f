package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/recon-engine/internal/recon"
	"github.com/example/recon-engine/pkg/audit"
)

// SQLiteStore persists runs in a local SQLite file. Suited to single-host CLI
// use; results and decision streams survive process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store at path and runs migrations.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrateSQLite(db *sql.DB) error {
	migrationSQL := `
	BEGIN TRANSACTION;

	CREATE TABLE IF NOT EXISTS recon_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT UNIQUE NOT NULL,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		result TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recon_runs_run_id ON recon_runs(run_id);

	CREATE TABLE IF NOT EXISTS recon_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id TEXT UNIQUE NOT NULL,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		engine TEXT NOT NULL,
		rule TEXT NOT NULL,
		input_ids TEXT NOT NULL,
		outcome TEXT NOT NULL,
		confidence REAL NOT NULL,
		amount_delta INTEGER NOT NULL,
		date_delta_days INTEGER NOT NULL,
		description_score REAL NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		previous_hash TEXT NOT NULL,
		hash TEXT NOT NULL,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_recon_decisions_run_id ON recon_decisions(run_id);

	COMMIT;
	`
	_, err := db.Exec(migrationSQL)
	return err
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recon_runs (run_id, started_at, completed_at, result) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.CompletedAt.UTC(), string(result))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveDecisions(ctx context.Context, runID string, records []audit.DecisionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recon_decisions
		(decision_id, run_id, seq, engine, rule, input_ids, outcome, confidence,
		 amount_delta, date_delta_days, description_score, recorded_at, previous_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.ID, runID, rec.Seq, rec.Engine, rec.Rule,
			strings.Join(rec.InputIDs, ","), rec.Outcome, rec.Confidence,
			rec.Signals.AmountDelta, rec.Signals.DateDeltaDays, rec.Signals.DescriptionScore,
			rec.Timestamp.UTC(), rec.PreviousHash, rec.Hash,
		); err != nil {
			return fmt.Errorf("insert decision %d of run %s: %w", rec.Seq, runID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	var result string
	var started, completed time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, completed_at, result FROM recon_runs WHERE run_id = ?`,
		runID).Scan(&run.ID, &started, &completed, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	run.StartedAt = started.UTC()
	run.CompletedAt = completed.UTC()
	run.Result = &recon.Result{}
	if err := json.Unmarshal([]byte(result), run.Result); err != nil {
		return Run{}, fmt.Errorf("unmarshal result of run %s: %w", runID, err)
	}
	return run, nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string) ([]audit.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT decision_id, run_id, seq, engine, rule, input_ids, outcome, confidence,
		       amount_delta, date_delta_days, description_score, recorded_at, previous_hash, hash
		FROM recon_decisions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions of run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []audit.DecisionRecord
	for rows.Next() {
		var rec audit.DecisionRecord
		var inputIDs string
		var ts time.Time
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.Seq, &rec.Engine, &rec.Rule,
			&inputIDs, &rec.Outcome, &rec.Confidence,
			&rec.Signals.AmountDelta, &rec.Signals.DateDeltaDays, &rec.Signals.DescriptionScore,
			&ts, &rec.PreviousHash, &rec.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if inputIDs != "" {
			rec.InputIDs = strings.Split(inputIDs, ",")
		}
		rec.Timestamp = ts.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
