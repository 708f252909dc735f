package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/recon-engine/pkg/audit"
)

func TestDedupeIdenticalRows(t *testing.T) {
	// Two identical ERP rows: one group of two, the representative stays in
	// the matching pool.
	r, rec := newTestReconciler(t, DefaultConfig())

	txs := []Transaction{
		erpTx(t, "E-002", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
	}

	groups, residual := r.Dedupe(SourceERP, txs)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"E-001", "E-002"}, groups[0].TransactionIDs)
	assert.Equal(t, "E-001", groups[0].Representative)
	assert.Equal(t, SourceERP, groups[0].Source)

	require.Len(t, residual, 1)
	assert.Equal(t, "E-001", residual[0].ID)

	grouped := recordsByRule(rec.Records(), "duplicate_group")
	require.Len(t, grouped, 1)
	assert.Equal(t, []string{"E-001", "E-002"}, grouped[0].InputIDs)
}

func TestDedupeByReference(t *testing.T) {
	// Dissimilar descriptions still group when references are equal.
	r, _ := newTestReconciler(t, DefaultConfig())

	txs := []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", "INV-77"),
		erpTx(t, "E-002", "2025-01-05", "100.00", "WIRE TRANSFER 0231", "inv-77"),
	}

	groups, residual := r.Dedupe(SourceERP, txs)
	require.Len(t, groups, 1)
	assert.Len(t, residual, 1)
}

func TestDedupeTransitiveGrouping(t *testing.T) {
	// A~B and B~C must put A, B and C into one group even if A and C alone
	// would not qualify.
	cfg := DefaultConfig()
	cfg.DedupeDescriptionSimilarityFloor = 0.5
	cfg.SimilarityAlgorithm = SimilarityToken
	r, _ := newTestReconciler(t, cfg)

	txs := []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME PAYMENT MARCH SERVICES", ""),
		erpTx(t, "E-002", "2025-01-05", "100.00", "ACME PAYMENT MARCH INVOICE", ""),
		erpTx(t, "E-003", "2025-01-05", "100.00", "ACME PAYMENT APRIL INVOICE", ""),
	}
	// E-001 vs E-002 share 3 of 5 tokens; E-002 vs E-003 share 3 of 5;
	// E-001 vs E-003 share only 2 of 6.
	assert.GreaterOrEqual(t, tokenSimilarity(txs[0].Description, txs[1].Description), 0.5)
	assert.GreaterOrEqual(t, tokenSimilarity(txs[1].Description, txs[2].Description), 0.5)
	assert.Less(t, tokenSimilarity(txs[0].Description, txs[2].Description), 0.5)

	groups, residual := r.Dedupe(SourceERP, txs)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"E-001", "E-002", "E-003"}, groups[0].TransactionIDs)
	assert.Len(t, residual, 1)
}

func TestDedupeAmountTolerance(t *testing.T) {
	// Amounts one cent apart still group; beyond the tolerance they do not.
	r, _ := newTestReconciler(t, DefaultConfig())

	groups, _ := r.Dedupe(SourceERP, []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-05", "100.01", "ACME LTD PAYMENT", ""),
	})
	require.Len(t, groups, 1)

	groups, _ = r.Dedupe(SourceERP, []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-05", "100.05", "ACME LTD PAYMENT", ""),
	})
	assert.Empty(t, groups)
}

func TestDedupeNoGroupIsAudited(t *testing.T) {
	// A considered bucket that forms no group still emits a record.
	r, rec := newTestReconciler(t, DefaultConfig())

	_, residual := r.Dedupe(SourceERP, []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-05", "250.00", "OFFICE RENT", ""),
	})
	assert.Len(t, residual, 2)

	none := recordsByRule(rec.Records(), "no_duplicate")
	require.Len(t, none, 1)
	assert.ElementsMatch(t, []string{"E-001", "E-002"}, none[0].InputIDs)
}

func TestDedupeSingletonBucketSilent(t *testing.T) {
	r, rec := newTestReconciler(t, DefaultConfig())

	groups, residual := r.Dedupe(SourceERP, []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-06", "100.00", "ACME LTD PAYMENT", ""),
	})
	assert.Empty(t, groups)
	assert.Len(t, residual, 2)
	assert.Empty(t, recordsByEngine(rec.Records(), audit.EngineDedupe))
}

func TestDedupeIdempotent(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())

	txs := []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-003", "2025-01-06", "42.00", "OFFICE RENT", ""),
	}

	groups, residual := r.Dedupe(SourceERP, txs)
	require.Len(t, groups, 1)

	again, rerun := r.Dedupe(SourceERP, residual)
	assert.Empty(t, again)
	assert.Equal(t, residual, rerun)
}

func TestDedupeOrderIndependent(t *testing.T) {
	r, _ := newTestReconciler(t, DefaultConfig())

	txs := []Transaction{
		erpTx(t, "E-001", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-002", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
		erpTx(t, "E-003", "2025-01-05", "100.00", "ACME LTD PAYMENT", ""),
	}
	reversed := []Transaction{txs[2], txs[1], txs[0]}

	groups1, _ := r.Dedupe(SourceERP, txs)
	groups2, _ := r.Dedupe(SourceERP, reversed)
	require.Len(t, groups1, 1)
	require.Len(t, groups2, 1)
	assert.Equal(t, groups1[0].TransactionIDs, groups2[0].TransactionIDs)
	assert.Equal(t, groups1[0].Representative, groups2[0].Representative)
}
