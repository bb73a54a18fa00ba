// Package mining extracts behavioral patterns from a user's
// task-completion history. Each miner is pure computation over in-memory
// events; persistence is the caller's job. Miners are independent and
// write disjoint pattern kinds, so they may be run in any order.
package mining

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/scoring"
	"tasksense/pkg/types"
)

// patternNamespace makes pattern ids deterministic per (user, kind, key)
// so re-mining replaces rows instead of accumulating duplicates.
var patternNamespace = uuid.MustParse("8f1b6c2a-4d3e-4f5a-9b7c-1e2d3c4b5a69")

// PatternID derives a stable pattern id from its identity key.
func PatternID(userID string, kind types.PatternKind, key string) string {
	return uuid.NewSHA1(patternNamespace, []byte(string(kind)+"|"+userID+"|"+key)).String()
}

// HourBucket returns the start hour of the 2-hour bucket containing hour.
func HourBucket(hour int) int {
	return (hour / 2) * 2
}

// DayOfMonthBucket returns the start day of the 3-day bucket containing
// day (1-based).
func DayOfMonthBucket(day int) int {
	return ((day-1)/3)*3 + 1
}

// TemporalMiner clusters completion timestamps into recurring daily,
// weekly, and monthly time windows per category.
type TemporalMiner struct {
	cfg    config.MiningConfig
	model  *scoring.Model
	logger logging.Logger
}

// NewTemporalMiner creates a temporal pattern miner.
func NewTemporalMiner(cfg config.MiningConfig, model *scoring.Model, logger logging.Logger) *TemporalMiner {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &TemporalMiner{cfg: cfg, model: model, logger: logger.WithComponent("temporal_miner")}
}

// Mine returns one temporal pattern per time bucket that has enough
// occurrences and scores above the confidence threshold. feedbackRatios
// carries the per-category positive-feedback ratio; categories without
// history score the feedback factor neutrally. An empty history yields
// an empty result, never an error.
func (m *TemporalMiner) Mine(userID string, events []types.CompletedTaskEvent, now time.Time, feedbackRatios map[string]float64) []*types.Pattern {
	if len(events) == 0 {
		return nil
	}

	byCategory := make(map[string][]types.CompletedTaskEvent)
	for _, e := range events {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	var patterns []*types.Pattern
	for category, catEvents := range byCategory {
		sort.Slice(catEvents, func(i, j int) bool {
			return catEvents[i].CompletedAt.Before(catEvents[j].CompletedAt)
		})
		ratio := feedbackRatioFor(feedbackRatios, category)
		patterns = append(patterns, m.mineCategory(userID, category, catEvents, now, ratio)...)
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })
	m.logger.Debug("temporal mining complete", "user_id", userID, "patterns", len(patterns))
	return patterns
}

// bucketed is one candidate time window with its member timestamps.
type bucketed struct {
	key        string
	payload    *types.TemporalPayload
	timestamps []time.Time
}

// feedbackRatioFor looks up a category's positive-feedback ratio,
// returning nil (neutral) when the category has no feedback history.
func feedbackRatioFor(ratios map[string]float64, category string) *float64 {
	if ratios == nil {
		return nil
	}
	ratio, ok := ratios[category]
	if !ok {
		return nil
	}
	return &ratio
}

func (m *TemporalMiner) mineCategory(userID, category string, events []types.CompletedTaskEvent, now time.Time, feedbackRatio *float64) []*types.Pattern {
	daily := make(map[string]*bucketed)
	weekly := make(map[string]*bucketed)
	monthly := make(map[string]*bucketed)

	for _, e := range events {
		t := e.CompletedAt
		hour := HourBucket(t.Hour())
		weekday := int(t.Weekday())
		dom := DayOfMonthBucket(t.Day())

		addBucket(daily, fmt.Sprintf("%s|daily|%02d", category, hour), t, &types.TemporalPayload{
			Category: category, TimeOfDay: hour, DayOfWeek: weekday, PeriodType: types.PeriodDaily,
		})
		addBucket(weekly, fmt.Sprintf("%s|weekly|%d|%02d", category, weekday, hour), t, &types.TemporalPayload{
			Category: category, TimeOfDay: hour, DayOfWeek: weekday, PeriodType: types.PeriodWeekly,
		})
		domCopy := dom
		addBucket(monthly, fmt.Sprintf("%s|monthly|%02d", category, dom), t, &types.TemporalPayload{
			Category: category, TimeOfDay: hour, DayOfWeek: weekday, DayOfMonth: &domCopy, PeriodType: types.PeriodMonthly,
		})
	}

	var patterns []*types.Pattern
	for _, group := range []map[string]*bucketed{daily, weekly, monthly} {
		for _, b := range group {
			if p := m.patternFromBucket(userID, b, now, feedbackRatio); p != nil {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

func addBucket(group map[string]*bucketed, key string, t time.Time, payload *types.TemporalPayload) {
	b, ok := group[key]
	if !ok {
		b = &bucketed{key: key, payload: payload}
		group[key] = b
	}
	b.timestamps = append(b.timestamps, t)
}

func (m *TemporalMiner) patternFromBucket(userID string, b *bucketed, now time.Time, feedbackRatio *float64) *types.Pattern {
	if len(b.timestamps) < m.cfg.MinOccurrences {
		return nil
	}

	last := b.timestamps[len(b.timestamps)-1]
	next := last.Add(b.payload.PeriodType.Period())

	pattern := &types.Pattern{
		ID:             PatternID(userID, types.PatternKindTemporal, b.key),
		UserID:         userID,
		Kind:           types.PatternKindTemporal,
		Payload:        b.payload,
		Frequency:      len(b.timestamps),
		LastOccurrence: last,
		NextPredicted:  &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := m.model.Score(scoring.Input{
		Pattern:       pattern,
		Occurrences:   b.timestamps,
		FeedbackRatio: feedbackRatio,
		Now:           now,
	})
	if result.Score < m.cfg.ConfidenceThreshold {
		m.logger.Debug("bucket below confidence threshold", "key", b.key, "score", result.Score)
		return nil
	}
	pattern.Confidence = result.Score
	pattern.ClampConfidence()
	return pattern
}
