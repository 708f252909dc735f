package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "negative rounding tolerance",
			mutate: func(c *Config) { c.AmountRoundingTolerance = -1 },
			field:  "amount_rounding_tolerance",
		},
		{
			name:   "negative fuzzy amount",
			mutate: func(c *Config) { c.FuzzyAmountAbs = -100 },
			field:  "fuzzy_amount_abs",
		},
		{
			name:   "negative fuzzy days",
			mutate: func(c *Config) { c.FuzzyDateDays = -3 },
			field:  "fuzzy_date_days",
		},
		{
			name:   "review threshold above one",
			mutate: func(c *Config) { c.ConfidenceThresholdHumanReview = 1.5 },
			field:  "confidence_threshold_human_review",
		},
		{
			name:   "dedupe floor out of range",
			mutate: func(c *Config) { c.DedupeDescriptionSimilarityFloor = -0.1 },
			field:  "dedupe_description_similarity_floor",
		},
		{
			name:   "weights not summing to one",
			mutate: func(c *Config) { c.Tier3Weights = Tier3Weights{Amount: 0.5, Date: 0.5, Description: 0.5} },
			field:  "tier3_weights",
		},
		{
			name:   "negative weight",
			mutate: func(c *Config) { c.Tier3Weights = Tier3Weights{Amount: -0.2, Date: 0.6, Description: 0.6} },
			field:  "tier3_weights",
		},
		{
			name:   "unknown similarity algorithm",
			mutate: func(c *Config) { c.SimilarityAlgorithm = "soundex" },
			field:  "similarity_algorithm",
		},
		{
			name:   "negative workers",
			mutate: func(c *Config) { c.Workers = -4 },
			field:  "workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfigValidateAcceptsZeroTolerances(t *testing.T) {
	// Zero tolerances are legal and simply admit only exact agreement.
	cfg := DefaultConfig()
	cfg.AmountRoundingTolerance = 0
	cfg.FuzzyAmountAbs = 0
	cfg.FuzzyDateDays = 0
	assert.NoError(t, cfg.Validate())
}
