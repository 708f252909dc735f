package recon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/recon-engine/pkg/audit"
)

// Classify assigns exactly one exception category to every transaction not
// covered by a match pair: duplicate group members first, then the unmatched
// residuals of both pools. Categories are tried in priority order and the
// first that applies wins. One decision record is emitted per classified
// transaction naming the category and the evidence used to choose it.
func (r *Reconciler) Classify(groups []DuplicateGroup, erpResidual, bankResidual []Transaction, nearMisses map[string]NearMiss) []Exception {
	var exceptions []Exception

	record := func(ex Exception) {
		exceptions = append(exceptions, ex)
		r.rec.Record(audit.DecisionRecord{
			Engine:     audit.EngineClassify,
			Rule:       "classified_" + strings.ToLower(string(ex.Category)),
			InputIDs:   []string{ex.TransactionID},
			Outcome:    string(ex.Category),
			Confidence: ex.Confidence,
			Signals:    ex.Signals,
		})
	}

	// Non-representative duplicate group members.
	ordered := make([]DuplicateGroup, len(groups))
	copy(ordered, groups)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		return ordered[i].Representative < ordered[j].Representative
	})
	for _, g := range ordered {
		for _, id := range g.TransactionIDs {
			if id == g.Representative {
				continue
			}
			record(Exception{
				TransactionID: id,
				Source:        g.Source,
				Category:      CategoryDuplicate,
				GroupID:       g.ID,
				Evidence:      fmt.Sprintf("duplicate of %s", g.Representative),
			})
		}
	}

	for _, tx := range sortedByID(erpResidual) {
		record(r.classifyResidual(tx, bankResidual, nearMisses, CategoryMissingInBank))
	}
	for _, tx := range sortedByID(bankResidual) {
		record(r.classifyResidual(tx, erpResidual, nearMisses, CategoryMissingInERP))
	}
	return exceptions
}

// classifyResidual labels one unmatched transaction against the other
// source's unmatched residual. A near-miss annotation takes priority; then a
// counterpart inside the fuzzy date window signals an amount mismatch, a
// counterpart at the same amount outside the window signals a date mismatch,
// and with no qualifying counterpart at all the transaction is missing from
// the other ledger.
func (r *Reconciler) classifyResidual(tx Transaction, others []Transaction, nearMisses map[string]NearMiss, missing ExceptionCategory) Exception {
	if nm, ok := nearMisses[tx.ID]; ok {
		return Exception{
			TransactionID: tx.ID,
			Source:        tx.Source,
			Category:      CategoryNearMiss,
			Confidence:    nm.Confidence,
			Signals:       nm.Signals,
			Evidence:      fmt.Sprintf("best candidate %s below review threshold", nm.Counterpart),
		}
	}

	if id, delta, ok := r.sameDateCounterpart(tx, others); ok {
		return Exception{
			TransactionID: tx.ID,
			Source:        tx.Source,
			Category:      CategoryAmountMismatch,
			Signals:       audit.Signals{AmountDelta: delta, DateDeltaDays: 0},
			Evidence:      fmt.Sprintf("counterpart %s within date window, amount off by %s", id, FormatAmount(delta)),
		}
	}

	if id, days, ok := r.sameAmountCounterpart(tx, others); ok {
		return Exception{
			TransactionID: tx.ID,
			Source:        tx.Source,
			Category:      CategoryDateMismatch,
			Signals:       audit.Signals{DateDeltaDays: days},
			Evidence:      fmt.Sprintf("counterpart %s at same amount, dates %d days apart", id, days),
		}
	}

	return Exception{
		TransactionID: tx.ID,
		Source:        tx.Source,
		Category:      missing,
		Evidence:      "no qualifying counterpart",
	}
}

// sameDateCounterpart finds the amount-closest counterpart within the fuzzy
// date window whose amount delta exceeds every matching tolerance. Lowest id
// wins on equal deltas.
func (r *Reconciler) sameDateCounterpart(tx Transaction, others []Transaction) (string, int64, bool) {
	bestID := ""
	var bestDelta int64
	for i := range others {
		if dateDeltaDays(tx.Date, others[i].Date) > r.cfg.FuzzyDateDays {
			continue
		}
		delta := amountDelta(tx.Amount, others[i].Amount)
		if delta <= r.cfg.FuzzyAmountAbs {
			// Within tolerance the pair was already handled by the match
			// engine (matched elsewhere or failed the description floor).
			continue
		}
		if bestID == "" || delta < bestDelta || (delta == bestDelta && others[i].ID < bestID) {
			bestID = others[i].ID
			bestDelta = delta
		}
	}
	return bestID, bestDelta, bestID != ""
}

// sameAmountCounterpart finds the date-closest counterpart whose amount
// agrees within the rounding tolerance but whose date falls outside the
// fuzzy window.
func (r *Reconciler) sameAmountCounterpart(tx Transaction, others []Transaction) (string, int, bool) {
	bestID := ""
	bestDays := 0
	for i := range others {
		if amountDelta(tx.Amount, others[i].Amount) > r.cfg.AmountRoundingTolerance {
			continue
		}
		days := dateDeltaDays(tx.Date, others[i].Date)
		if days <= r.cfg.FuzzyDateDays {
			continue
		}
		if bestID == "" || days < bestDays || (days == bestDays && others[i].ID < bestID) {
			bestID = others[i].ID
			bestDays = days
		}
	}
	return bestID, bestDays, bestID != ""
}
