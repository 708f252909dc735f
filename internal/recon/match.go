package recon

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/recon-engine/pkg/audit"
)

// NearMiss annotates a transaction whose best tier-3 candidate scored below
// the human-review threshold. The pair is not committed; the signals are kept
// as evidence for classification.
type NearMiss struct {
	Counterpart string        `json:"counterpart"`
	Confidence  float64       `json:"confidence"`
	Signals     audit.Signals `json:"signals"`
}

// candidate is one scored bank-side option for an ERP transaction within a tier.
type candidate struct {
	bankIdx    int
	confidence float64
	combined   float64 // tolerance-normalized amount+date delta, for tie-breaks
	signals    audit.Signals
}

// Match pairs ERP transactions with bank transactions across three tiers of
// decreasing strictness. Tiers run strictly in order; a transaction matched in
// an earlier tier is permanently removed from later tiers' candidate pools.
// Both input pools are processed in transaction-id order so results are
// independent of input ordering. Returns the committed pairs, the near-miss
// annotations, and the unmatched residuals of both pools.
func (r *Reconciler) Match(ctx context.Context, erp, bank []Transaction) ([]MatchPair, map[string]NearMiss, []Transaction, []Transaction, error) {
	erp = sortedByID(erp)
	bank = sortedByID(bank)

	matchedERP := make(map[string]bool)
	matchedBank := make(map[string]bool)
	nearMisses := make(map[string]NearMiss)
	var pairs []MatchPair

	commit := func(e *Transaction, tier Tier, c candidate) {
		b := &bank[c.bankIdx]
		pair := MatchPair{
			ERPID:      e.ID,
			BankID:     b.ID,
			Tier:       tier,
			Confidence: c.confidence,
			Signals:    c.signals,
		}
		pairs = append(pairs, pair)
		matchedERP[e.ID] = true
		matchedBank[b.ID] = true
		r.rec.Record(audit.DecisionRecord{
			Engine:     audit.EngineMatch,
			Rule:       tierRule(tier),
			InputIDs:   []string{e.ID, b.ID},
			Outcome:    "matched",
			Confidence: c.confidence,
			Signals:    c.signals,
		})
	}

	for _, tier := range []Tier{TierExact, TierRounding, TierFuzzy} {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, nil, err
		}

		scored := r.scoreTier(ctx, tier, erp, bank, matchedERP, matchedBank)
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, nil, err
		}
		for i := range erp {
			e := &erp[i]
			if matchedERP[e.ID] {
				continue
			}
			avail := available(scored[i], bank, matchedBank)
			if len(avail) == 0 {
				continue
			}
			best := avail[0]
			if len(avail) > 1 && avail[1].confidence == best.confidence {
				r.recordTieBreak(e, bank, avail)
			}
			if tier == TierFuzzy && best.confidence < r.cfg.ConfidenceThresholdHumanReview {
				r.recordNearMiss(e, &bank[best.bankIdx], best, nearMisses)
				continue
			}
			commit(e, tier, best)
		}
	}

	erpResidual := residualOf(erp, matchedERP)
	bankResidual := residualOf(bank, matchedBank)
	return pairs, nearMisses, erpResidual, bankResidual, nil
}

// scoreTier builds the per-ERP candidate lists for one tier against the
// transactions still unmatched when the tier starts. Tier-3 scoring fans out
// across a bounded worker pool; the index is read-only during scoring and
// commits happen afterwards in id order, so parallelism never changes
// outcomes. Entries for already-matched ERP transactions are nil.
func (r *Reconciler) scoreTier(ctx context.Context, tier Tier, erp, bank []Transaction, matchedERP, matchedBank map[string]bool) [][]candidate {
	score := r.tierScorer(tier, bank, matchedBank)
	out := make([][]candidate, len(erp))

	workers := r.cfg.Workers
	if tier != TierFuzzy || workers <= 1 {
		for i := range erp {
			if !matchedERP[erp[i].ID] {
				out[i] = score(&erp[i])
			}
		}
		return out
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = score(&erp[i])
			}
		}()
	}
	for i := range erp {
		if matchedERP[erp[i].ID] {
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return out
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// tierScorer returns the candidate generator for one tier, backed by an index
// over the unmatched bank pool so each ERP transaction only probes candidates
// inside its tolerance window instead of the full cross product.
func (r *Reconciler) tierScorer(tier Tier, bank []Transaction, matchedBank map[string]bool) func(e *Transaction) []candidate {
	switch tier {
	case TierExact:
		index := make(map[exactKey][]int)
		for i := range bank {
			if matchedBank[bank[i].ID] {
				continue
			}
			key := exactKey{amount: bank[i].Amount, date: dateKey(bank[i].Date)}
			index[key] = append(index[key], i)
		}
		return func(e *Transaction) []candidate {
			var cands []candidate
			key := exactKey{amount: e.Amount, date: dateKey(e.Date)}
			for _, i := range index[key] {
				b := &bank[i]
				sim := r.sim(e.Description, b.Description)
				if !referencesEqual(e.Reference, b.Reference) && sim < r.cfg.ExactDescriptionThreshold {
					continue
				}
				cands = append(cands, candidate{
					bankIdx:    i,
					confidence: 1.0,
					signals:    audit.Signals{DescriptionScore: sim},
				})
			}
			return sortCandidates(cands, bank)
		}

	case TierRounding:
		index := make(map[time.Time][]int)
		for i := range bank {
			if matchedBank[bank[i].ID] {
				continue
			}
			key := dateKey(bank[i].Date)
			index[key] = append(index[key], i)
		}
		for _, list := range index {
			sort.Slice(list, func(i, j int) bool {
				if bank[list[i]].Amount != bank[list[j]].Amount {
					return bank[list[i]].Amount < bank[list[j]].Amount
				}
				return bank[list[i]].ID < bank[list[j]].ID
			})
		}
		tol := r.cfg.AmountRoundingTolerance
		return func(e *Transaction) []candidate {
			list := index[dateKey(e.Date)]
			lo := sort.Search(len(list), func(i int) bool { return bank[list[i]].Amount >= e.Amount-tol })
			var cands []candidate
			for _, i := range list[lo:] {
				b := &bank[i]
				if b.Amount > e.Amount+tol {
					break
				}
				delta := amountDelta(e.Amount, b.Amount)
				cands = append(cands, candidate{
					bankIdx:    i,
					confidence: roundingConfidence(delta, tol),
					combined:   normalizedDelta(delta, tol),
					signals: audit.Signals{
						AmountDelta:      delta,
						DescriptionScore: r.sim(e.Description, b.Description),
					},
				})
			}
			return sortCandidates(cands, bank)
		}

	default: // TierFuzzy
		width := r.cfg.FuzzyAmountAbs
		if width <= 0 {
			width = 1
		}
		index := make(map[int64][]int)
		for i := range bank {
			if matchedBank[bank[i].ID] {
				continue
			}
			index[amountBucket(bank[i].Amount, width)] = append(index[amountBucket(bank[i].Amount, width)], i)
		}
		return func(e *Transaction) []candidate {
			center := amountBucket(e.Amount, width)
			var cands []candidate
			for b := center - 1; b <= center+1; b++ {
				for _, i := range index[b] {
					c, ok := r.fuzzyCandidate(e, &bank[i], i)
					if ok {
						cands = append(cands, c)
					}
				}
			}
			return sortCandidates(cands, bank)
		}
	}
}

// fuzzyCandidate scores one tier-3 pairing: a weighted combination of
// normalized amount closeness, date closeness and description similarity.
func (r *Reconciler) fuzzyCandidate(e, b *Transaction, bankIdx int) (candidate, bool) {
	ad := amountDelta(e.Amount, b.Amount)
	if ad > r.cfg.FuzzyAmountAbs {
		return candidate{}, false
	}
	dd := dateDeltaDays(e.Date, b.Date)
	if dd > r.cfg.FuzzyDateDays {
		return candidate{}, false
	}
	sim := r.sim(e.Description, b.Description)
	if sim < r.cfg.Tier3DescriptionFloor {
		return candidate{}, false
	}

	amountScore := 1 - normalizedDelta(ad, r.cfg.FuzzyAmountAbs)
	dateScore := 1 - normalizedDelta(int64(dd), int64(r.cfg.FuzzyDateDays))
	w := r.cfg.Tier3Weights
	conf := w.Amount*amountScore + w.Date*dateScore + w.Description*sim
	if conf >= 1 {
		conf = maxFuzzyConfidence
	}
	return candidate{
		bankIdx:    bankIdx,
		confidence: conf,
		combined:   normalizedDelta(ad, r.cfg.FuzzyAmountAbs) + normalizedDelta(int64(dd), int64(r.cfg.FuzzyDateDays)),
		signals: audit.Signals{
			AmountDelta:      ad,
			DateDeltaDays:    dd,
			DescriptionScore: sim,
		},
	}, true
}

// Tier confidence bounds: tier 2 lives in [0.9, 1.0), tier 3 in [0, 1.0).
const (
	minRoundingConfidence = 0.9
	maxRoundingConfidence = 0.99
	maxFuzzyConfidence    = 0.99
)

func roundingConfidence(delta, tolerance int64) float64 {
	conf := 1 - normalizedDelta(delta, tolerance)
	if conf < minRoundingConfidence {
		return minRoundingConfidence
	}
	if conf > maxRoundingConfidence {
		return maxRoundingConfidence
	}
	return conf
}

// normalizedDelta maps a delta onto [0,1] of its tolerance; a zero tolerance
// admits only zero deltas, which normalize to 0.
func normalizedDelta(delta, tolerance int64) float64 {
	if tolerance <= 0 {
		return 0
	}
	return float64(delta) / float64(tolerance)
}

func amountBucket(amount, width int64) int64 {
	if amount < 0 {
		return (amount - width + 1) / width
	}
	return amount / width
}

type exactKey struct {
	amount int64
	date   time.Time
}

// sortCandidates orders candidates best-first: highest confidence, then
// smallest combined amount+date delta, then lowest bank transaction id. The
// ordering is total, so selection is deterministic and independent of input
// position.
func sortCandidates(cands []candidate, bank []Transaction) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].confidence != cands[j].confidence {
			return cands[i].confidence > cands[j].confidence
		}
		if cands[i].combined != cands[j].combined {
			return cands[i].combined < cands[j].combined
		}
		return bank[cands[i].bankIdx].ID < bank[cands[j].bankIdx].ID
	})
	return cands
}

// available filters a best-first candidate list down to bank transactions not
// yet claimed by an earlier commit in this tier.
func available(cands []candidate, bank []Transaction, matchedBank map[string]bool) []candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if !matchedBank[bank[c.bankIdx].ID] {
			out = append(out, c)
		}
	}
	return out
}

func (r *Reconciler) recordTieBreak(e *Transaction, bank []Transaction, avail []candidate) {
	ids := []string{e.ID}
	for _, c := range avail {
		if c.confidence != avail[0].confidence {
			break
		}
		ids = append(ids, bank[c.bankIdx].ID)
	}
	r.rec.Record(audit.DecisionRecord{
		Engine:     audit.EngineMatch,
		Rule:       "tie_break",
		InputIDs:   ids,
		Outcome:    fmt.Sprintf("ambiguous candidates at confidence %.4f, selected %s", avail[0].confidence, bank[avail[0].bankIdx].ID),
		Confidence: avail[0].confidence,
		Signals:    avail[0].signals,
	})
}

func (r *Reconciler) recordNearMiss(e, b *Transaction, best candidate, nearMisses map[string]NearMiss) {
	for _, id := range []string{e.ID, b.ID} {
		if existing, ok := nearMisses[id]; !ok || best.confidence > existing.Confidence {
			counterpart := b.ID
			if id == b.ID {
				counterpart = e.ID
			}
			nearMisses[id] = NearMiss{Counterpart: counterpart, Confidence: best.confidence, Signals: best.signals}
		}
	}
	r.rec.Record(audit.DecisionRecord{
		Engine:     audit.EngineMatch,
		Rule:       "tier3_near_miss",
		InputIDs:   []string{e.ID, b.ID},
		Outcome:    fmt.Sprintf("best candidate below review threshold %.2f, not committed", r.cfg.ConfidenceThresholdHumanReview),
		Confidence: best.confidence,
		Signals:    best.signals,
	})
}

func sortedByID(txs []Transaction) []Transaction {
	out := make([]Transaction, len(txs))
	copy(out, txs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func residualOf(txs []Transaction, matched map[string]bool) []Transaction {
	var out []Transaction
	for i := range txs {
		if !matched[txs[i].ID] {
			out = append(out, txs[i])
		}
	}
	return out
}
