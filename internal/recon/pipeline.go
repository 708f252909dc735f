package recon

import (
	"context"

	"github.com/example/recon-engine/pkg/audit"
)

// Reconciler runs the dedupe, match and classify stages over two normalized
// transaction pools. It is a pure batch computation: no I/O happens inside
// the stages, and every decision is emitted to the injected recorder. A
// Reconciler holds an isolated configuration snapshot; concurrent runs must
// each use their own Reconciler.
type Reconciler struct {
	cfg   Config
	rec   audit.Recorder
	sim   similarityFunc
	runID string
}

// New validates the configuration and builds a reconciler that emits decision
// records to rec.
func New(runID string, cfg Config, rec audit.Recorder) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		cfg:   cfg,
		rec:   rec,
		sim:   similarityFor(cfg.SimilarityAlgorithm),
		runID: runID,
	}, nil
}

// Run reconciles the ERP pool against the bank pool. Input is validated
// before any stage runs; malformed input rejects the whole run. Stages run
// strictly in sequence. Cancellation is honored between stages: an aborted
// run returns no result, only whatever decision records were already emitted.
//
// Every input transaction ends up in exactly one of a match pair, a duplicate
// group (as non-representative), or an exception.
func (r *Reconciler) Run(ctx context.Context, erp, bank []Transaction) (*Result, error) {
	if err := validatePool(SourceERP, erp); err != nil {
		return nil, err
	}
	if err := validatePool(SourceBank, bank); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	erpGroups, erpPool := r.Dedupe(SourceERP, erp)
	bankGroups, bankPool := r.Dedupe(SourceBank, bank)
	groups := append(erpGroups, bankGroups...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pairs, nearMisses, erpResidual, bankResidual, err := r.Match(ctx, erpPool, bankPool)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exceptions := r.Classify(groups, erpResidual, bankResidual, nearMisses)

	result := &Result{
		RunID:           r.runID,
		DuplicateGroups: groups,
		MatchPairs:      pairs,
		Exceptions:      exceptions,
		Summary:         summarize(len(erp), len(bank), groups, pairs, exceptions),
	}
	return result, nil
}

func summarize(erpTotal, bankTotal int, groups []DuplicateGroup, pairs []MatchPair, exceptions []Exception) Summary {
	s := Summary{
		ERPTotal:        erpTotal,
		BankTotal:       bankTotal,
		DuplicateGroups: len(groups),
		Exceptions:      make(map[ExceptionCategory]int),
	}
	for _, g := range groups {
		s.Duplicates += len(g.TransactionIDs) - 1
	}
	for _, p := range pairs {
		switch p.Tier {
		case TierExact:
			s.ExactMatches++
		case TierRounding:
			s.RoundingMatches++
		case TierFuzzy:
			s.FuzzyMatches++
		}
	}
	for _, ex := range exceptions {
		s.Exceptions[ex.Category]++
	}
	if total := erpTotal + bankTotal; total > 0 {
		s.MatchRate = float64(2*len(pairs)) / float64(total)
	}
	return s
}
