package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/recon-engine/internal/recon"
	"github.com/example/recon-engine/pkg/audit"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() Run {
	started := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	return Run{
		ID:          "run-1",
		StartedAt:   started,
		CompletedAt: started.Add(2 * time.Second),
		Result: &recon.Result{
			RunID: "run-1",
			MatchPairs: []recon.MatchPair{
				{ERPID: "E-001", BankID: "B-001", Tier: recon.TierExact, Confidence: 1.0},
			},
			Exceptions: []recon.Exception{
				{TransactionID: "E-002", Source: recon.SourceERP, Category: recon.CategoryMissingInBank},
			},
			Summary: recon.Summary{
				ERPTotal:     2,
				BankTotal:    1,
				ExactMatches: 1,
				Exceptions:   map[recon.ExceptionCategory]int{recon.CategoryMissingInBank: 1},
				MatchRate:    2.0 / 3.0,
			},
		},
	}
}

func TestSQLiteRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := sampleRun()
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	assert.True(t, run.CompletedAt.Equal(got.CompletedAt))
	assert.Equal(t, run.Result, got.Result)
}

func TestSQLiteRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSQLiteDuplicateRunRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleRun()))
	assert.Error(t, s.SaveRun(ctx, sampleRun()))
}

func TestSQLiteDecisionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := audit.NewChainRecorder("run-1")
	rec.Record(audit.DecisionRecord{
		Engine:   audit.EngineDedupe,
		Rule:     "duplicate_group",
		InputIDs: []string{"E-001", "E-002"},
		Outcome:  "grouped",
	})
	rec.Record(audit.DecisionRecord{
		Engine:     audit.EngineMatch,
		Rule:       "tier1_exact",
		InputIDs:   []string{"E-001", "B-001"},
		Outcome:    "matched",
		Confidence: 1.0,
		Signals:    audit.Signals{DescriptionScore: 1.0},
	})
	records := rec.Records()

	require.NoError(t, s.SaveDecisions(ctx, "run-1", records))

	got, err := s.ListDecisions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i].ID, got[i].ID)
		assert.Equal(t, records[i].Seq, got[i].Seq)
		assert.Equal(t, records[i].Rule, got[i].Rule)
		assert.Equal(t, records[i].InputIDs, got[i].InputIDs)
		assert.Equal(t, records[i].Hash, got[i].Hash)
		assert.True(t, records[i].Timestamp.Equal(got[i].Timestamp))
	}

	// The reloaded stream still forms a valid chain.
	assert.True(t, audit.VerifyChain(got))
}

func TestSQLiteDecisionsScopedToRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	recA := audit.NewChainRecorder("run-a")
	recA.Record(audit.DecisionRecord{Engine: audit.EngineMatch, Rule: "tier1_exact", Outcome: "matched"})
	recB := audit.NewChainRecorder("run-b")
	recB.Record(audit.DecisionRecord{Engine: audit.EngineMatch, Rule: "tier2_rounding", Outcome: "matched"})

	require.NoError(t, s.SaveDecisions(ctx, "run-a", recA.Records()))
	require.NoError(t, s.SaveDecisions(ctx, "run-b", recB.Records()))

	got, err := s.ListDecisions(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tier1_exact", got[0].Rule)
}
