package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/example/recon-engine/internal/recon"
)

// Config holds application configuration.
type Config struct {
	Engine EngineConfig
	Store  StoreConfig
}

// EngineConfig holds the matching tolerances and thresholds. Amount values are
// decimal strings ("0.01") so config files read in currency units; they are
// converted to minor units when building the engine configuration.
type EngineConfig struct {
	AmountRoundingTolerance string  `mapstructure:"amount_rounding_tolerance"`
	FuzzyAmountAbs          string  `mapstructure:"fuzzy_amount_abs"`
	FuzzyDateDays           int     `mapstructure:"fuzzy_date_days"`
	ConfidenceThreshold     float64 `mapstructure:"confidence_threshold_human_review"`
	DedupeSimilarityFloor   float64 `mapstructure:"dedupe_description_similarity_floor"`
	ExactDescriptionMin     float64 `mapstructure:"exact_description_threshold"`
	Tier3DescriptionFloor   float64 `mapstructure:"tier3_description_floor"`
	Tier3WeightAmount       float64 `mapstructure:"tier3_weight_amount"`
	Tier3WeightDate         float64 `mapstructure:"tier3_weight_date"`
	Tier3WeightDescription  float64 `mapstructure:"tier3_weight_description"`
	SimilarityAlgorithm     string  `mapstructure:"similarity_algorithm"`
	Workers                 int     `mapstructure:"workers"`
}

// StoreConfig holds result persistence settings.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres" or "none"
	Path        string `mapstructure:"path"`   // sqlite file path
	DatabaseURL string `mapstructure:"database_url"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// RECON_. An explicit path takes precedence over the search locations; a
// missing config file is not an error, the defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := recon.DefaultConfig()
	v.SetDefault("engine.amount_rounding_tolerance", recon.FormatAmount(defaults.AmountRoundingTolerance))
	v.SetDefault("engine.fuzzy_amount_abs", recon.FormatAmount(defaults.FuzzyAmountAbs))
	v.SetDefault("engine.fuzzy_date_days", defaults.FuzzyDateDays)
	v.SetDefault("engine.confidence_threshold_human_review", defaults.ConfidenceThresholdHumanReview)
	v.SetDefault("engine.dedupe_description_similarity_floor", defaults.DedupeDescriptionSimilarityFloor)
	v.SetDefault("engine.exact_description_threshold", defaults.ExactDescriptionThreshold)
	v.SetDefault("engine.tier3_description_floor", defaults.Tier3DescriptionFloor)
	v.SetDefault("engine.tier3_weight_amount", defaults.Tier3Weights.Amount)
	v.SetDefault("engine.tier3_weight_date", defaults.Tier3Weights.Date)
	v.SetDefault("engine.tier3_weight_description", defaults.Tier3Weights.Description)
	v.SetDefault("engine.similarity_algorithm", defaults.SimilarityAlgorithm)
	v.SetDefault("engine.workers", defaults.Workers)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.path", "recon.db")
	v.SetDefault("store.database_url", "")

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "recon"))
		v.SetConfigName("recon")
	}

	v.SetEnvPrefix("RECON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// EngineConfig converts the file-level settings into a validated engine
// configuration, parsing decimal amounts into minor units.
func (c Config) EngineConfig() (recon.Config, error) {
	rounding, err := recon.ParseAmount(c.Engine.AmountRoundingTolerance)
	if err != nil {
		return recon.Config{}, fmt.Errorf("engine.amount_rounding_tolerance: %w", err)
	}
	fuzzy, err := recon.ParseAmount(c.Engine.FuzzyAmountAbs)
	if err != nil {
		return recon.Config{}, fmt.Errorf("engine.fuzzy_amount_abs: %w", err)
	}

	cfg := recon.Config{
		AmountRoundingTolerance:          rounding,
		FuzzyAmountAbs:                   fuzzy,
		FuzzyDateDays:                    c.Engine.FuzzyDateDays,
		ConfidenceThresholdHumanReview:   c.Engine.ConfidenceThreshold,
		DedupeDescriptionSimilarityFloor: c.Engine.DedupeSimilarityFloor,
		ExactDescriptionThreshold:        c.Engine.ExactDescriptionMin,
		Tier3DescriptionFloor:            c.Engine.Tier3DescriptionFloor,
		Tier3Weights: recon.Tier3Weights{
			Amount:      c.Engine.Tier3WeightAmount,
			Date:        c.Engine.Tier3WeightDate,
			Description: c.Engine.Tier3WeightDescription,
		},
		SimilarityAlgorithm: c.Engine.SimilarityAlgorithm,
		Workers:             c.Engine.Workers,
	}
	if err := cfg.Validate(); err != nil {
		return recon.Config{}, err
	}
	return cfg, nil
}
