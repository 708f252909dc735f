package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainRecorder(t *testing.T) {
	rec := NewChainRecorder("run-1")

	r1 := rec.Record(DecisionRecord{
		Engine:   EngineDedupe,
		Rule:     "duplicate_group",
		InputIDs: []string{"ERP-0001", "ERP-0002"},
		Outcome:  "grouped",
	})
	r2 := rec.Record(DecisionRecord{
		Engine:     EngineMatch,
		Rule:       "tier1_exact",
		InputIDs:   []string{"ERP-0001", "BANK-0003"},
		Outcome:    "matched",
		Confidence: 1.0,
	})
	r3 := rec.Record(DecisionRecord{
		Engine:   EngineClassify,
		Rule:     "classified_missing_in_bank",
		InputIDs: []string{"ERP-0004"},
		Outcome:  "MISSING_IN_BANK",
	})

	assert.Equal(t, 0, r1.Seq)
	assert.Equal(t, 1, r2.Seq)
	assert.Equal(t, 2, r3.Seq)
	assert.Equal(t, "run-1", r2.RunID)
	assert.NotEmpty(t, r2.ID)
	assert.Equal(t, r1.Hash, r2.PreviousHash)
	assert.Equal(t, r2.Hash, r3.PreviousHash)

	records := rec.Records()
	require.Len(t, records, 3)
	assert.True(t, VerifyChain(records))
}

func TestVerifyChainTamper(t *testing.T) {
	rec := NewChainRecorder("run-2")
	rec.Record(DecisionRecord{Engine: EngineMatch, Rule: "tier1_exact", Outcome: "matched"})
	rec.Record(DecisionRecord{Engine: EngineMatch, Rule: "tier2_rounding", Outcome: "matched"})
	rec.Record(DecisionRecord{Engine: EngineMatch, Rule: "tier3_fuzzy", Outcome: "matched"})

	records := rec.Records()
	require.True(t, VerifyChain(records))

	tampered := rec.Records()
	tampered[1].Outcome = "rejected"
	assert.False(t, VerifyChain(tampered))

	tampered = rec.Records()
	tampered[1].Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, VerifyChain(tampered))

	tampered = rec.Records()
	tampered[2].PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, VerifyChain(tampered))
}

func TestVerifyChainEmpty(t *testing.T) {
	assert.True(t, VerifyChain(nil))
}

func TestChainRecorderDeterministicClock(t *testing.T) {
	fixed := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	rec := NewChainRecorder("run-3")
	rec.now = func() time.Time { return fixed }

	r := rec.Record(DecisionRecord{Engine: EngineDedupe, Rule: "no_duplicate", Outcome: "no_group"})
	assert.Equal(t, fixed, r.Timestamp)
	assert.True(t, VerifyChain(rec.Records()))
}
