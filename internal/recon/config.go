package recon

import (
	"fmt"
	"math"
)

// weightEpsilon is the tolerance used when checking that tier-3 weights sum to 1.
const weightEpsilon = 1e-9

// Tier3Weights controls how amount closeness, date closeness and description
// similarity combine into a tier-3 confidence. The three weights must sum to 1.
type Tier3Weights struct {
	Amount      float64 `json:"amount"`
	Date        float64 `json:"date"`
	Description float64 `json:"description"`
}

// Config is the immutable per-run configuration snapshot. Amount tolerances
// are in minor units. A Config is read-only for the duration of a run;
// concurrent runs must each use their own snapshot.
type Config struct {
	// AmountRoundingTolerance is the maximum amount difference, in minor
	// units, treated as a rounding artifact (tier 2 and dedupe bucketing).
	AmountRoundingTolerance int64 `json:"amount_rounding_tolerance"`

	// FuzzyAmountAbs is the maximum absolute amount difference, in minor
	// units, a tier-3 candidate may have.
	FuzzyAmountAbs int64 `json:"fuzzy_amount_abs"`

	// FuzzyDateDays is the maximum whole-day date distance a tier-3
	// candidate may have.
	FuzzyDateDays int `json:"fuzzy_date_days"`

	// ConfidenceThresholdHumanReview is the minimum tier-3 confidence for a
	// match to be committed; candidates below it become near-misses.
	ConfidenceThresholdHumanReview float64 `json:"confidence_threshold_human_review"`

	// DedupeDescriptionSimilarityFloor is the minimum description similarity
	// for two same-bucket transactions to be grouped as duplicates.
	DedupeDescriptionSimilarityFloor float64 `json:"dedupe_description_similarity_floor"`

	// ExactDescriptionThreshold is the minimum description similarity that,
	// absent an equal reference, qualifies a tier-1 exact match.
	ExactDescriptionThreshold float64 `json:"exact_description_threshold"`

	// Tier3DescriptionFloor is the minimum description similarity a tier-3
	// candidate must reach to be scored at all.
	Tier3DescriptionFloor float64 `json:"tier3_description_floor"`

	// Tier3Weights are the confidence weights for tier-3 scoring.
	Tier3Weights Tier3Weights `json:"tier3_weights"`

	// SimilarityAlgorithm selects the description similarity function:
	// "token" (token-overlap Jaccard), "levenshtein" (edit-distance ratio)
	// or "hybrid" (the larger of the two).
	SimilarityAlgorithm string `json:"similarity_algorithm"`

	// Workers bounds the tier-3 candidate scoring pool. Zero means
	// single-threaded. Parallelism never changes outcomes: scoring runs over
	// a read-only index and commits happen in transaction-id order.
	Workers int `json:"workers"`
}

// DefaultConfig returns the documented default tolerances and weights.
func DefaultConfig() Config {
	return Config{
		AmountRoundingTolerance:          1,   // $0.01
		FuzzyAmountAbs:                   100, // $1.00
		FuzzyDateDays:                    3,
		ConfidenceThresholdHumanReview:   0.6,
		DedupeDescriptionSimilarityFloor: 0.9,
		ExactDescriptionThreshold:        0.85,
		Tier3DescriptionFloor:            0.25,
		Tier3Weights:                     Tier3Weights{Amount: 0.4, Date: 0.3, Description: 0.3},
		SimilarityAlgorithm:              SimilarityHybrid,
	}
}

// ConfigError reports configuration rejected before a run starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Validate rejects out-of-range tolerances, thresholds and weights.
func (c Config) Validate() error {
	if c.AmountRoundingTolerance < 0 {
		return &ConfigError{Field: "amount_rounding_tolerance", Reason: "must not be negative"}
	}
	if c.FuzzyAmountAbs < 0 {
		return &ConfigError{Field: "fuzzy_amount_abs", Reason: "must not be negative"}
	}
	if c.FuzzyDateDays < 0 {
		return &ConfigError{Field: "fuzzy_date_days", Reason: "must not be negative"}
	}
	if c.ConfidenceThresholdHumanReview < 0 || c.ConfidenceThresholdHumanReview > 1 {
		return &ConfigError{Field: "confidence_threshold_human_review", Reason: "must be in [0,1]"}
	}
	for field, v := range map[string]float64{
		"dedupe_description_similarity_floor": c.DedupeDescriptionSimilarityFloor,
		"exact_description_threshold":         c.ExactDescriptionThreshold,
		"tier3_description_floor":             c.Tier3DescriptionFloor,
	} {
		if v < 0 || v > 1 {
			return &ConfigError{Field: field, Reason: "must be in [0,1]"}
		}
	}
	w := c.Tier3Weights
	if w.Amount < 0 || w.Date < 0 || w.Description < 0 {
		return &ConfigError{Field: "tier3_weights", Reason: "weights must not be negative"}
	}
	if sum := w.Amount + w.Date + w.Description; math.Abs(sum-1.0) > weightEpsilon {
		return &ConfigError{Field: "tier3_weights", Reason: fmt.Sprintf("weights must sum to 1.0, got %.6f", sum)}
	}
	switch c.SimilarityAlgorithm {
	case SimilarityToken, SimilarityLevenshtein, SimilarityHybrid:
	default:
		return &ConfigError{Field: "similarity_algorithm", Reason: fmt.Sprintf("unknown algorithm %q", c.SimilarityAlgorithm)}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Reason: "must not be negative"}
	}
	return nil
}
