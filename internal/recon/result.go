package recon

import (
	"fmt"

	"github.com/example/recon-engine/pkg/audit"
)

// Tier is one of the three matching strictness levels, applied in order.
type Tier string

const (
	TierExact    Tier = "EXACT"
	TierRounding Tier = "ROUNDING"
	TierFuzzy    Tier = "FUZZY"
)

// MatchPair pairs one ERP transaction with one bank transaction. Matching is
// one-to-one: a transaction id appears in at most one pair per run.
type MatchPair struct {
	ERPID      string        `json:"erp_id"`
	BankID     string        `json:"bank_id"`
	Tier       Tier          `json:"tier"`
	Confidence float64       `json:"confidence"`
	Signals    audit.Signals `json:"signals"`
}

// DuplicateGroup is a set of two or more same-source transactions judged to
// represent one real-world event. The representative is forwarded to
// matching; the other members are classified as duplicates. Groups within a
// source are disjoint.
type DuplicateGroup struct {
	ID             string   `json:"id"`
	Source         Source   `json:"source"`
	TransactionIDs []string `json:"transaction_ids"` // sorted; [0] is the representative
	Representative string   `json:"representative"`
}

// ExceptionCategory labels a transaction that did not end up in a match pair.
type ExceptionCategory string

const (
	CategoryDuplicate      ExceptionCategory = "DUPLICATE"
	CategoryNearMiss       ExceptionCategory = "NEAR_MISS_LOW_CONFIDENCE"
	CategoryAmountMismatch ExceptionCategory = "AMOUNT_MISMATCH"
	CategoryDateMismatch   ExceptionCategory = "DATE_MISMATCH"
	CategoryMissingInBank  ExceptionCategory = "MISSING_IN_BANK"
	CategoryMissingInERP   ExceptionCategory = "MISSING_IN_ERP"
)

// Exception is one unmatched transaction or duplicate with its category and
// the evidence that drove the classification.
type Exception struct {
	TransactionID string            `json:"transaction_id"`
	Source        Source            `json:"source"`
	Category      ExceptionCategory `json:"category"`
	Confidence    float64           `json:"confidence,omitempty"`
	Signals       audit.Signals     `json:"signals,omitempty"`
	GroupID       string            `json:"group_id,omitempty"` // set for DUPLICATE
	Evidence      string            `json:"evidence,omitempty"` // counterpart id or note
}

// Summary carries the run's aggregate counts.
type Summary struct {
	ERPTotal        int                       `json:"erp_total"`
	BankTotal       int                       `json:"bank_total"`
	ExactMatches    int                       `json:"exact_matches"`
	RoundingMatches int                       `json:"rounding_matches"`
	FuzzyMatches    int                       `json:"fuzzy_matches"`
	DuplicateGroups int                       `json:"duplicate_groups"`
	Duplicates      int                       `json:"duplicates"`
	Exceptions      map[ExceptionCategory]int `json:"exceptions"`
	MatchRate       float64                   `json:"match_rate"`
}

// Result is the run's final state: all duplicate groups, match pairs and
// exceptions plus summary counts. It is immutable once the classifier
// finishes; the ordered decision stream lives with the injected recorder.
type Result struct {
	RunID           string           `json:"run_id"`
	DuplicateGroups []DuplicateGroup `json:"duplicate_groups"`
	MatchPairs      []MatchPair      `json:"match_pairs"`
	Exceptions      []Exception      `json:"exceptions"`
	Summary         Summary          `json:"summary"`
}

// groupID derives a stable duplicate-group identifier from the source and the
// group's representative, so re-running on the same input names the same group.
func groupID(source Source, representative string) string {
	return fmt.Sprintf("dup-%s-%s", source, representative)
}

func tierRule(tier Tier) string {
	switch tier {
	case TierExact:
		return "tier1_exact"
	case TierRounding:
		return "tier2_rounding"
	default:
		return "tier3_fuzzy"
	}
}
