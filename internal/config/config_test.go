package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Mining.MinOccurrences)
	assert.InDelta(t, 0.3, cfg.Mining.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Mining.MinSupport, 1e-9)
	assert.InDelta(t, 0.4, cfg.Suggestions.RefreshThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Learning.BaseRate, 1e-9)
}

func TestScoringWeightsRenormalize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring.FrequencyWeight = 0.5
	cfg.Scoring.RecencyWeight = 0.4
	cfg.Scoring.ConsistencyWeight = 0.4
	cfg.Scoring.UserFeedbackWeight = 0.3
	cfg.Scoring.DataQualityWeight = 0.2
	cfg.Scoring.ContextRelevanceWeight = 0.2

	require.NoError(t, cfg.Validate())

	sum := cfg.Scoring.FrequencyWeight +
		cfg.Scoring.RecencyWeight +
		cfg.Scoring.ConsistencyWeight +
		cfg.Scoring.UserFeedbackWeight +
		cfg.Scoring.DataQualityWeight +
		cfg.Scoring.ContextRelevanceWeight
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.25, cfg.Scoring.FrequencyWeight, 1e-9)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "oracle" }},
		{"empty dsn", func(c *Config) { c.Storage.DSN = "" }},
		{"zero max suggestions", func(c *Config) { c.Suggestions.MaxSuggestions = 0 }},
		{"negative min confidence", func(c *Config) { c.Suggestions.MinConfidence = -0.1 }},
		{"inverted rate bounds", func(c *Config) { c.Learning.MaxRate = 0.01 }},
		{"negative weight", func(c *Config) { c.Scoring.RecencyWeight = -1 }},
		{"short sequences", func(c *Config) { c.Mining.MinSequenceLen = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TASKSENSE_STORAGE_DRIVER", "postgres")
	t.Setenv("TASKSENSE_STORAGE_DSN", "postgres://localhost/tasksense?sslmode=disable")
	t.Setenv("TASKSENSE_MAX_SUGGESTIONS", "9")
	t.Setenv("TASKSENSE_MIN_CONFIDENCE", "0.35")
	t.Setenv("TASKSENSE_LEARNING_BASE_RATE", "0.12")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 9, cfg.Suggestions.MaxSuggestions)
	assert.InDelta(t, 0.35, cfg.Suggestions.MinConfidence, 1e-9)
	assert.InDelta(t, 0.12, cfg.Learning.BaseRate, 1e-9)
}

func TestYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasksense.yaml")
	yamlBody := `
suggestions:
  max_suggestions: 7
  refresh_threshold: 0.5
mining:
  min_occurrences: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))
	t.Setenv("TASKSENSE_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Suggestions.MaxSuggestions)
	assert.InDelta(t, 0.5, cfg.Suggestions.RefreshThreshold, 1e-9)
	assert.Equal(t, 4, cfg.Mining.MinOccurrences)
}
