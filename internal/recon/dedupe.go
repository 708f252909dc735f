package recon

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/recon-engine/pkg/audit"
)

// Dedupe finds duplicate groups within one source pool and returns the groups
// plus the residual pool (one representative kept per group, everything else
// removed). Candidates are bucketed by calendar date; within a bucket, two
// transactions are duplicates when their amounts agree within the rounding
// tolerance and their references are equal or their description similarity
// reaches the configured floor. Grouping is transitive within a bucket
// (connected components over the is-duplicate-of relation), so group
// membership does not depend on input order. The representative is the member
// with the lowest transaction id.
//
// One decision record is emitted per group formed and one per multi-entry
// bucket that formed no group, so "no duplicate found" is itself auditable.
func (r *Reconciler) Dedupe(source Source, txs []Transaction) ([]DuplicateGroup, []Transaction) {
	buckets := make(map[time.Time][]int)
	for i := range txs {
		key := dateKey(txs[i].Date)
		buckets[key] = append(buckets[key], i)
	}

	// Walk buckets in date order so decision records are emitted
	// deterministically regardless of map iteration.
	keys := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	duplicate := make(map[string]bool) // non-representative members
	var groups []DuplicateGroup
	for _, key := range keys {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}

		formed := false
		for _, comp := range r.duplicateComponents(txs, members) {
			if len(comp) < 2 {
				continue
			}
			formed = true
			ids := make([]string, len(comp))
			for i, idx := range comp {
				ids[i] = txs[idx].ID
			}
			sort.Strings(ids)
			group := DuplicateGroup{
				ID:             groupID(source, ids[0]),
				Source:         source,
				TransactionIDs: ids,
				Representative: ids[0],
			}
			groups = append(groups, group)
			for _, id := range ids[1:] {
				duplicate[id] = true
			}
			r.rec.Record(audit.DecisionRecord{
				Engine:   audit.EngineDedupe,
				Rule:     "duplicate_group",
				InputIDs: ids,
				Outcome:  fmt.Sprintf("grouped %d transactions, representative %s", len(ids), ids[0]),
			})
		}
		if !formed {
			ids := make([]string, len(members))
			for i, idx := range members {
				ids[i] = txs[idx].ID
			}
			sort.Strings(ids)
			r.rec.Record(audit.DecisionRecord{
				Engine:   audit.EngineDedupe,
				Rule:     "no_duplicate",
				InputIDs: ids,
				Outcome:  fmt.Sprintf("bucket of %d considered, no group formed", len(ids)),
			})
		}
	}

	residual := make([]Transaction, 0, len(txs))
	for i := range txs {
		if !duplicate[txs[i].ID] {
			residual = append(residual, txs[i])
		}
	}
	return groups, residual
}

// duplicateComponents builds connected components over the is-duplicate-of
// relation inside one date bucket. Members are compared through an
// amount-sorted sliding window so only pairs within the rounding tolerance
// are ever scored.
func (r *Reconciler) duplicateComponents(txs []Transaction, members []int) [][]int {
	ordered := make([]int, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(i, j int) bool {
		if txs[ordered[i]].Amount != txs[ordered[j]].Amount {
			return txs[ordered[i]].Amount < txs[ordered[j]].Amount
		}
		return txs[ordered[i]].ID < txs[ordered[j]].ID
	})

	parent := make([]int, len(ordered))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, b := &txs[ordered[i]], &txs[ordered[j]]
			if amountDelta(a.Amount, b.Amount) > r.cfg.AmountRoundingTolerance {
				break // amounts are sorted, no later member can qualify
			}
			if referencesEqual(a.Reference, b.Reference) ||
				r.sim(a.Description, b.Description) >= r.cfg.DedupeDescriptionSimilarityFloor {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int][]int)
	var roots []int
	for i := range ordered {
		root := find(i)
		if _, seen := byRoot[root]; !seen {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], ordered[i])
	}

	comps := make([][]int, 0, len(roots))
	for _, root := range roots {
		comps = append(comps, byRoot[root])
	}
	return comps
}
