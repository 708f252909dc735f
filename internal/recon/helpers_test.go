package recon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/recon-engine/pkg/audit"
)

func mustTx(t *testing.T, source Source, id, date, amount, desc, ref string) Transaction {
	t.Helper()
	d, err := ParseDate(date)
	require.NoError(t, err)
	a, err := ParseAmount(amount)
	require.NoError(t, err)
	return Transaction{
		Source:      source,
		ID:          id,
		Date:        d,
		Amount:      a,
		Description: desc,
		Reference:   ref,
	}
}

func erpTx(t *testing.T, id, date, amount, desc, ref string) Transaction {
	t.Helper()
	return mustTx(t, SourceERP, id, date, amount, desc, ref)
}

func bankTx(t *testing.T, id, date, amount, desc, ref string) Transaction {
	t.Helper()
	return mustTx(t, SourceBank, id, date, amount, desc, ref)
}

func newTestReconciler(t *testing.T, cfg Config) (*Reconciler, *audit.ChainRecorder) {
	t.Helper()
	rec := audit.NewChainRecorder("test-run")
	r, err := New("test-run", cfg, rec)
	require.NoError(t, err)
	return r, rec
}

func recordsByEngine(records []audit.DecisionRecord, engine string) []audit.DecisionRecord {
	var out []audit.DecisionRecord
	for _, rec := range records {
		if rec.Engine == engine {
			out = append(out, rec)
		}
	}
	return out
}

func recordsByRule(records []audit.DecisionRecord, rule string) []audit.DecisionRecord {
	var out []audit.DecisionRecord
	for _, rec := range records {
		if rec.Rule == rule {
			out = append(out, rec)
		}
	}
	return out
}
