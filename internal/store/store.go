package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/recon-engine/internal/recon"
	"github.com/example/recon-engine/pkg/audit"
)

// ErrRunNotFound is returned when a run id has no stored result.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted reconciliation run: the full result plus timing.
type Run struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Result      *recon.Result `json:"result"`
}

// Store persists reconciliation runs and their decision streams. Decision
// records are append-only; a run's stream is written once, after the run
// completes, in sequence order.
type Store interface {
	SaveRun(ctx context.Context, run Run) error
	SaveDecisions(ctx context.Context, runID string, records []audit.DecisionRecord) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListDecisions(ctx context.Context, runID string) ([]audit.DecisionRecord, error)
	Close() error
}
