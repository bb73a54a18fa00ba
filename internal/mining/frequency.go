package mining

import (
	"sort"
	"time"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/scoring"
	"tasksense/pkg/types"
)

// FrequencyMiner tracks raw per-category completion frequency and the
// mean interval between completions. Frequency patterns back the
// simplest suggestion kind: "you do this every N hours".
type FrequencyMiner struct {
	cfg    config.MiningConfig
	model  *scoring.Model
	logger logging.Logger
}

// NewFrequencyMiner creates a frequency pattern miner.
func NewFrequencyMiner(cfg config.MiningConfig, model *scoring.Model, logger logging.Logger) *FrequencyMiner {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &FrequencyMiner{cfg: cfg, model: model, logger: logger.WithComponent("frequency_miner")}
}

// Mine emits one frequency pattern per category with enough completions.
// feedbackRatios carries the per-category positive-feedback ratio;
// categories without history score the feedback factor neutrally.
func (m *FrequencyMiner) Mine(userID string, events []types.CompletedTaskEvent, now time.Time, feedbackRatios map[string]float64) []*types.Pattern {
	if len(events) == 0 {
		return nil
	}

	byCategory := make(map[string][]time.Time)
	for _, e := range events {
		byCategory[e.Category] = append(byCategory[e.Category], e.CompletedAt)
	}

	var patterns []*types.Pattern
	for category, timestamps := range byCategory {
		if len(timestamps) < m.cfg.MinOccurrences {
			continue
		}
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

		var gapSum float64
		for i := 1; i < len(timestamps); i++ {
			gapSum += timestamps[i].Sub(timestamps[i-1]).Hours()
		}
		interval := gapSum / float64(len(timestamps)-1)

		last := timestamps[len(timestamps)-1]
		next := last.Add(time.Duration(interval * float64(time.Hour)))
		pattern := &types.Pattern{
			ID:     PatternID(userID, types.PatternKindFrequency, category),
			UserID: userID,
			Kind:   types.PatternKindFrequency,
			Payload: &types.FrequencyPayload{
				Category:      category,
				IntervalHours: interval,
				Count:         len(timestamps),
			},
			Frequency:      len(timestamps),
			LastOccurrence: last,
			NextPredicted:  &next,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		result := m.model.Score(scoring.Input{
			Pattern:       pattern,
			Occurrences:   timestamps,
			FeedbackRatio: feedbackRatioFor(feedbackRatios, category),
			Now:           now,
		})
		if result.Score < m.cfg.ConfidenceThreshold {
			continue
		}
		pattern.Confidence = result.Score
		pattern.ClampConfidence()
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })
	m.logger.Debug("frequency mining complete", "user_id", userID, "patterns", len(patterns))
	return patterns
}
