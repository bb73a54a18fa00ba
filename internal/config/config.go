// Package config provides configuration for the task-suggestion engine.
// Every tuned constant of the mining, scoring, ranking, and learning
// pipeline is a configuration default here, never a hard-coded value at
// its use site.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Redis       RedisConfig       `yaml:"redis" json:"redis"`
	Mining      MiningConfig      `yaml:"mining" json:"mining"`
	Scoring     ScoringConfig     `yaml:"scoring" json:"scoring"`
	Suggestions SuggestionsConfig `yaml:"suggestions" json:"suggestions"`
	Learning    LearningConfig    `yaml:"learning" json:"learning"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// StorageConfig selects and configures the pattern store backend
type StorageConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "postgres" or "sqlite3"
	DSN    string `yaml:"dsn" json:"dsn"`
}

// RedisConfig configures the optional active-suggestion cache. Leaving
// Addr empty disables the cache.
type RedisConfig struct {
	Addr       string `yaml:"addr" json:"addr"`
	Password   string `yaml:"-" json:"-"` // Never serialize credentials
	DB         int    `yaml:"db" json:"db"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// MiningConfig holds thresholds shared by the pattern miners
type MiningConfig struct {
	MinOccurrences      int     `yaml:"min_occurrences" json:"min_occurrences"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	// Sequential mining
	MinSupport        float64 `yaml:"min_support" json:"min_support"`
	MinRuleConfidence float64 `yaml:"min_rule_confidence" json:"min_rule_confidence"`
	MaxGapHours       float64 `yaml:"max_gap_hours" json:"max_gap_hours"`
	MinSequenceLen    int     `yaml:"min_sequence_len" json:"min_sequence_len"`
	MaxSequenceLen    int     `yaml:"max_sequence_len" json:"max_sequence_len"`

	// Contextual mining confidence blends
	LocationFrequencyWeight   float64 `yaml:"location_frequency_weight" json:"location_frequency_weight"`
	LocationConsistencyWeight float64 `yaml:"location_consistency_weight" json:"location_consistency_weight"`
	LocationRecencyWeight     float64 `yaml:"location_recency_weight" json:"location_recency_weight"`
	ContextFrequencyWeight    float64 `yaml:"context_frequency_weight" json:"context_frequency_weight"`
	ContextConsistencyWeight  float64 `yaml:"context_consistency_weight" json:"context_consistency_weight"`
}

// ScoringConfig holds the confidence model factor weights. The six
// weights are renormalized to sum 1.0 by Validate.
type ScoringConfig struct {
	FrequencyWeight        float64 `yaml:"frequency_weight" json:"frequency_weight"`
	RecencyWeight          float64 `yaml:"recency_weight" json:"recency_weight"`
	ConsistencyWeight      float64 `yaml:"consistency_weight" json:"consistency_weight"`
	UserFeedbackWeight     float64 `yaml:"user_feedback_weight" json:"user_feedback_weight"`
	DataQualityWeight      float64 `yaml:"data_quality_weight" json:"data_quality_weight"`
	ContextRelevanceWeight float64 `yaml:"context_relevance_weight" json:"context_relevance_weight"`
}

// SuggestionsConfig holds generation, ranking, diversity, refresh, and
// expiry knobs for the suggestion engine.
type SuggestionsConfig struct {
	MaxSuggestions int     `yaml:"max_suggestions" json:"max_suggestions"`
	MinConfidence  float64 `yaml:"min_confidence" json:"min_confidence"`

	// Hybrid generation
	HybridPatternBonus    float64 `yaml:"hybrid_pattern_bonus" json:"hybrid_pattern_bonus"`
	HybridContextBonusMax float64 `yaml:"hybrid_context_bonus_max" json:"hybrid_context_bonus_max"`
	HybridConfidenceCap   float64 `yaml:"hybrid_confidence_cap" json:"hybrid_confidence_cap"`

	// Ranking weights (renormalized to sum 1.0)
	RelevanceWeight          float64 `yaml:"relevance_weight" json:"relevance_weight"`
	TimingWeight             float64 `yaml:"timing_weight" json:"timing_weight"`
	CategoryPreferenceWeight float64 `yaml:"category_preference_weight" json:"category_preference_weight"`
	ContextWeight            float64 `yaml:"context_weight" json:"context_weight"`
	PatternStrengthWeight    float64 `yaml:"pattern_strength_weight" json:"pattern_strength_weight"`
	DiversityWeight          float64 `yaml:"diversity_weight" json:"diversity_weight"`

	// Diversity penalties inside the diversity term
	CategoryPenaltyWeight float64 `yaml:"category_penalty_weight" json:"category_penalty_weight"`
	KindPenaltyWeight     float64 `yaml:"kind_penalty_weight" json:"kind_penalty_weight"`
	TitleSimilarityLimit  float64 `yaml:"title_similarity_limit" json:"title_similarity_limit"`

	// Expiry per generation source, in minutes
	DefaultExpiryMinutes    int `yaml:"default_expiry_minutes" json:"default_expiry_minutes"`
	ContextualExpiryMinutes int `yaml:"contextual_expiry_minutes" json:"contextual_expiry_minutes"`
	SequentialExpiryMinutes int `yaml:"sequential_expiry_minutes" json:"sequential_expiry_minutes"`
	HybridExpiryMinutes     int `yaml:"hybrid_expiry_minutes" json:"hybrid_expiry_minutes"`
	StaleAfterDays          int `yaml:"stale_after_days" json:"stale_after_days"`

	// Contextual refresh gating
	RefreshThreshold    float64 `yaml:"refresh_threshold" json:"refresh_threshold"`
	RefreshTimeWeight   float64 `yaml:"refresh_time_weight" json:"refresh_time_weight"`
	RefreshTimeFullHrs  float64 `yaml:"refresh_time_full_hours" json:"refresh_time_full_hours"`
	RefreshLocWeight    float64 `yaml:"refresh_location_weight" json:"refresh_location_weight"`
	RefreshLocFullKm    float64 `yaml:"refresh_location_full_km" json:"refresh_location_full_km"`
	RefreshTasksWeight  float64 `yaml:"refresh_tasks_weight" json:"refresh_tasks_weight"`
	RefreshTasksFullCnt int     `yaml:"refresh_tasks_full_count" json:"refresh_tasks_full_count"`
}

// LearningConfig holds the feedback learning loop rates and bounds
type LearningConfig struct {
	BaseRate         float64 `yaml:"base_rate" json:"base_rate"`
	LowVolumeRate    float64 `yaml:"low_volume_rate" json:"low_volume_rate"`
	HighVolumeRate   float64 `yaml:"high_volume_rate" json:"high_volume_rate"`
	LowVolumeCount   int     `yaml:"low_volume_count" json:"low_volume_count"`
	HighVolumeCount  int     `yaml:"high_volume_count" json:"high_volume_count"`
	MinRate          float64 `yaml:"min_rate" json:"min_rate"`
	MaxRate          float64 `yaml:"max_rate" json:"max_rate"`
	AdjustedFloor    float64 `yaml:"adjusted_floor" json:"adjusted_floor"`
	AdjustedCeiling  float64 `yaml:"adjusted_ceiling" json:"adjusted_ceiling"`
	InsightWindowDays int    `yaml:"insight_window_days" json:"insight_window_days"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite3",
			DSN:    "./data/tasksense.db",
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			TTLSeconds: 300,
		},
		Mining: MiningConfig{
			MinOccurrences:      3,
			ConfidenceThreshold: 0.3,

			MinSupport:        0.1,
			MinRuleConfidence: 0.3,
			MaxGapHours:       24,
			MinSequenceLen:    2,
			MaxSequenceLen:    5,

			LocationFrequencyWeight:   0.4,
			LocationConsistencyWeight: 0.4,
			LocationRecencyWeight:     0.2,
			ContextFrequencyWeight:    0.6,
			ContextConsistencyWeight:  0.4,
		},
		Scoring: ScoringConfig{
			FrequencyWeight:        0.25,
			RecencyWeight:          0.20,
			ConsistencyWeight:      0.20,
			UserFeedbackWeight:     0.15,
			DataQualityWeight:      0.10,
			ContextRelevanceWeight: 0.10,
		},
		Suggestions: SuggestionsConfig{
			MaxSuggestions: 5,
			MinConfidence:  0.2,

			HybridPatternBonus:    0.1,
			HybridContextBonusMax: 0.15,
			HybridConfidenceCap:   0.95,

			RelevanceWeight:          0.25,
			TimingWeight:             0.20,
			CategoryPreferenceWeight: 0.20,
			ContextWeight:            0.15,
			PatternStrengthWeight:    0.15,
			DiversityWeight:          0.05,

			CategoryPenaltyWeight: 0.5,
			KindPenaltyWeight:     0.5,
			TitleSimilarityLimit:  0.8,

			DefaultExpiryMinutes:    120,
			ContextualExpiryMinutes: 30,
			SequentialExpiryMinutes: 240,
			HybridExpiryMinutes:     360,
			StaleAfterDays:          7,

			RefreshThreshold:    0.4,
			RefreshTimeWeight:   0.3,
			RefreshTimeFullHrs:  4,
			RefreshLocWeight:    0.4,
			RefreshLocFullKm:    5,
			RefreshTasksWeight:  0.3,
			RefreshTasksFullCnt: 5,
		},
		Learning: LearningConfig{
			BaseRate:          0.1,
			LowVolumeRate:     0.15,
			HighVolumeRate:    0.05,
			LowVolumeCount:    10,
			HighVolumeCount:   100,
			MinRate:           0.02,
			MaxRate:           0.2,
			AdjustedFloor:     0.1,
			AdjustedCeiling:   0.95,
			InsightWindowDays: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// LoadConfig loads configuration from defaults, an optional YAML file
// named by TASKSENSE_CONFIG_FILE, and environment variables, in that
// order of increasing precedence.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path := os.Getenv("TASKSENSE_CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFile overlays configuration from a YAML file.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	if driver := os.Getenv("TASKSENSE_STORAGE_DRIVER"); driver != "" {
		config.Storage.Driver = driver
	}
	if dsn := os.Getenv("TASKSENSE_STORAGE_DSN"); dsn != "" {
		config.Storage.DSN = dsn
	}

	if addr := os.Getenv("TASKSENSE_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if password := os.Getenv("TASKSENSE_REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if db := os.Getenv("TASKSENSE_REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			config.Redis.DB = d
		}
	}
	if ttl := os.Getenv("TASKSENSE_REDIS_TTL_SECONDS"); ttl != "" {
		if t, err := strconv.Atoi(ttl); err == nil {
			config.Redis.TTLSeconds = t
		}
	}

	if minOcc := os.Getenv("TASKSENSE_MINING_MIN_OCCURRENCES"); minOcc != "" {
		if m, err := strconv.Atoi(minOcc); err == nil {
			config.Mining.MinOccurrences = m
		}
	}
	if threshold := os.Getenv("TASKSENSE_MINING_CONFIDENCE_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Mining.ConfidenceThreshold = t
		}
	}
	if support := os.Getenv("TASKSENSE_MINING_MIN_SUPPORT"); support != "" {
		if s, err := strconv.ParseFloat(support, 64); err == nil {
			config.Mining.MinSupport = s
		}
	}

	if maxSuggestions := os.Getenv("TASKSENSE_MAX_SUGGESTIONS"); maxSuggestions != "" {
		if m, err := strconv.Atoi(maxSuggestions); err == nil {
			config.Suggestions.MaxSuggestions = m
		}
	}
	if minConfidence := os.Getenv("TASKSENSE_MIN_CONFIDENCE"); minConfidence != "" {
		if m, err := strconv.ParseFloat(minConfidence, 64); err == nil {
			config.Suggestions.MinConfidence = m
		}
	}
	if refreshThreshold := os.Getenv("TASKSENSE_REFRESH_THRESHOLD"); refreshThreshold != "" {
		if r, err := strconv.ParseFloat(refreshThreshold, 64); err == nil {
			config.Suggestions.RefreshThreshold = r
		}
	}

	if baseRate := os.Getenv("TASKSENSE_LEARNING_BASE_RATE"); baseRate != "" {
		if b, err := strconv.ParseFloat(baseRate, 64); err == nil {
			config.Learning.BaseRate = b
		}
	}

	if level := os.Getenv("TASKSENSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if jsonOut := os.Getenv("LOG_JSON"); jsonOut != "" {
		if j, err := strconv.ParseBool(jsonOut); err == nil {
			config.Logging.JSON = j
		}
	}
}

// Validate validates the configuration and renormalizes weight sets so
// that each sums to 1.0.
func (c *Config) Validate() error {
	if c.Storage.Driver != "postgres" && c.Storage.Driver != "sqlite3" {
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage DSN cannot be empty")
	}

	if c.Suggestions.MaxSuggestions <= 0 {
		return fmt.Errorf("max suggestions must be positive")
	}
	if c.Suggestions.MinConfidence < 0 || c.Suggestions.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0 and 1")
	}
	if c.Suggestions.RefreshThreshold < 0 || c.Suggestions.RefreshThreshold > 1 {
		return fmt.Errorf("refresh threshold must be between 0 and 1")
	}

	if c.Mining.MinOccurrences < 1 {
		return fmt.Errorf("min occurrences must be at least 1")
	}
	if c.Mining.MinSequenceLen < 2 {
		return fmt.Errorf("min sequence length must be at least 2")
	}
	if c.Mining.MaxSequenceLen < c.Mining.MinSequenceLen {
		return fmt.Errorf("max sequence length must be >= min sequence length")
	}

	if c.Learning.MinRate <= 0 || c.Learning.MaxRate <= c.Learning.MinRate {
		return fmt.Errorf("learning rate bounds must satisfy 0 < min < max")
	}
	if c.Learning.AdjustedFloor < 0 || c.Learning.AdjustedCeiling > 1 ||
		c.Learning.AdjustedFloor >= c.Learning.AdjustedCeiling {
		return fmt.Errorf("adjusted confidence bounds must satisfy 0 <= floor < ceiling <= 1")
	}

	if err := renormalize(
		&c.Scoring.FrequencyWeight,
		&c.Scoring.RecencyWeight,
		&c.Scoring.ConsistencyWeight,
		&c.Scoring.UserFeedbackWeight,
		&c.Scoring.DataQualityWeight,
		&c.Scoring.ContextRelevanceWeight,
	); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}

	if err := renormalize(
		&c.Suggestions.RelevanceWeight,
		&c.Suggestions.TimingWeight,
		&c.Suggestions.CategoryPreferenceWeight,
		&c.Suggestions.ContextWeight,
		&c.Suggestions.PatternStrengthWeight,
		&c.Suggestions.DiversityWeight,
	); err != nil {
		return fmt.Errorf("ranking weights: %w", err)
	}

	return nil
}

// renormalize scales a weight set so it sums to exactly 1.0.
func renormalize(weights ...*float64) error {
	var sum float64
	for _, w := range weights {
		if *w < 0 {
			return fmt.Errorf("weight must be non-negative, got %v", *w)
		}
		sum += *w
	}
	if sum <= 0 {
		return fmt.Errorf("weights must not all be zero")
	}
	for _, w := range weights {
		*w /= sum
	}
	return nil
}
