package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tasksense/pkg/types"
)

// Insight detection thresholds over the scan window.
const (
	strongPreferenceMinSamples = 5
	strongAcceptance           = 0.8
	weakAcceptance             = 0.3
	bucketMinSamples           = 3
	bucketDivergence           = 0.2
	hourMinSamples             = 3
)

// FeedbackAnalytics summarizes a user's feedback over a timeframe.
type FeedbackAnalytics struct {
	Total          int                        `json:"total"`
	Positive       int                        `json:"positive"`
	Negative       int                        `json:"negative"`
	AcceptanceRate float64                    `json:"acceptance_rate"`
	ByCategory     map[string]CategorySummary `json:"by_category"`
	ByHour         map[int]HourSummary        `json:"by_hour"`
}

// CategorySummary is the per-category slice of the analytics.
type CategorySummary struct {
	Total          int     `json:"total"`
	Positive       int     `json:"positive"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// HourSummary is the per-hour slice of the analytics.
type HourSummary struct {
	Total          int     `json:"total"`
	Positive       int     `json:"positive"`
	AcceptanceRate float64 `json:"acceptance_rate"`
}

// GenerateFeedbackAnalytics aggregates feedback since the given instant.
// A zero since covers all history.
func (s *Service) GenerateFeedbackAnalytics(ctx context.Context, userID string, since time.Time) (*FeedbackAnalytics, error) {
	feedback, err := s.store.ListFeedbackSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	suggestions, err := s.suggestionIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	analytics := &FeedbackAnalytics{
		ByCategory: make(map[string]CategorySummary),
		ByHour:     make(map[int]HourSummary),
	}
	for _, f := range feedback {
		analytics.Total++
		positive := f.Type == types.FeedbackPositive
		if positive {
			analytics.Positive++
		} else {
			analytics.Negative++
		}

		if sg, ok := suggestions[f.SuggestionID]; ok {
			cs := analytics.ByCategory[sg.Category]
			cs.Total++
			if positive {
				cs.Positive++
			}
			cs.AcceptanceRate = float64(cs.Positive) / float64(cs.Total)
			analytics.ByCategory[sg.Category] = cs
		}

		hour := f.CreatedAt.Hour()
		if f.Context != nil {
			hour = f.Context.HourOfDay
		}
		hs := analytics.ByHour[hour]
		hs.Total++
		if positive {
			hs.Positive++
		}
		hs.AcceptanceRate = float64(hs.Positive) / float64(hs.Total)
		analytics.ByHour[hour] = hs
	}

	if analytics.Total > 0 {
		analytics.AcceptanceRate = float64(analytics.Positive) / float64(analytics.Total)
	}
	return analytics, nil
}

func (s *Service) suggestionIndex(ctx context.Context, userID string) (map[string]*types.Suggestion, error) {
	suggestions, err := s.store.ListSuggestions(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}
	index := make(map[string]*types.Suggestion, len(suggestions))
	for _, sg := range suggestions {
		index[sg.ID] = sg
	}
	return index, nil
}

// InsightImpact grades how strongly an insight should steer future
// suggestion behavior.
type InsightImpact string

// Insight impact tiers.
const (
	ImpactHigh   InsightImpact = "high"
	ImpactMedium InsightImpact = "medium"
	ImpactLow    InsightImpact = "low"
)

// Insight is one detected preference or miscalibration, with the action
// the engine takes in response.
type Insight struct {
	Message string        `json:"message"`
	Impact  InsightImpact `json:"impact"`
	Action  string        `json:"action"`
}

// GetLearningInsights scans the recent feedback window for strong
// category and timing preferences and for miscalibrated confidence
// buckets. Detected category and pattern-kind preferences feed a small
// second-order nudge back into the affected patterns' confidence.
func (s *Service) GetLearningInsights(ctx context.Context, userID string, now time.Time) ([]Insight, error) {
	since := now.AddDate(0, 0, -s.cfg.InsightWindowDays)
	feedback, err := s.store.ListFeedbackSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	if len(feedback) == 0 {
		return nil, nil
	}

	suggestions, err := s.suggestionIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	type tally struct{ positive, total int }
	categories := make(map[string]*tally)
	buckets := make(map[int]*tally)
	kinds := make(map[types.PatternKind]*tally)
	hours := make(map[int]*tally)

	bump := func(m map[string]*tally, key string, positive bool) {
		t := m[key]
		if t == nil {
			t = &tally{}
			m[key] = t
		}
		t.total++
		if positive {
			t.positive++
		}
	}

	for _, f := range feedback {
		positive := f.Type == types.FeedbackPositive
		sg, ok := suggestions[f.SuggestionID]
		if ok {
			bump(categories, sg.Category, positive)

			b := buckets[types.ConfidenceBucket(sg.Confidence)]
			if b == nil {
				b = &tally{}
				buckets[types.ConfidenceBucket(sg.Confidence)] = b
			}
			b.total++
			if positive {
				b.positive++
			}

			seen := make(map[types.PatternKind]bool)
			for _, ref := range sg.BasedOn {
				if ref.Kind.Valid() && !seen[ref.Kind] {
					seen[ref.Kind] = true
					k := kinds[ref.Kind]
					if k == nil {
						k = &tally{}
						kinds[ref.Kind] = k
					}
					k.total++
					if positive {
						k.positive++
					}
				}
			}
		}

		hour := f.CreatedAt.Hour()
		if f.Context != nil {
			hour = f.Context.HourOfDay
		}
		h := hours[hour]
		if h == nil {
			h = &tally{}
			hours[hour] = h
		}
		h.total++
		if positive {
			h.positive++
		}
	}

	var insights []Insight
	var nudgeUp, nudgeDown []string

	for _, category := range sortedKeys(categories) {
		t := categories[category]
		if t.total < strongPreferenceMinSamples {
			continue
		}
		rate := float64(t.positive) / float64(t.total)
		switch {
		case rate >= strongAcceptance:
			insights = append(insights, Insight{
				Message: fmt.Sprintf("You accept %.0f%% of %s suggestions; expect more of them.", rate*100, category),
				Impact:  ImpactHigh,
				Action:  fmt.Sprintf("raising confidence of %s patterns", category),
			})
			nudgeUp = append(nudgeUp, category)
		case rate <= weakAcceptance:
			insights = append(insights, Insight{
				Message: fmt.Sprintf("You decline most %s suggestions (%.0f%% accepted); they will be shown less.", category, rate*100),
				Impact:  ImpactHigh,
				Action:  fmt.Sprintf("lowering confidence of %s patterns", category),
			})
			nudgeDown = append(nudgeDown, category)
		}
	}

	bucketKeys := make([]int, 0, len(buckets))
	for b := range buckets {
		bucketKeys = append(bucketKeys, b)
	}
	sort.Ints(bucketKeys)
	for _, bucket := range bucketKeys {
		t := buckets[bucket]
		if t.total < bucketMinSamples {
			continue
		}
		rate := float64(t.positive) / float64(t.total)
		midpoint := types.BucketMidpoint(bucket)
		if diff := rate - midpoint; diff > bucketDivergence || diff < -bucketDivergence {
			insights = append(insights, Insight{
				Message: fmt.Sprintf(
					"Suggestions in the %s%% confidence range are accepted %.0f%% of the time; confidence is being recalibrated.",
					types.BucketLabel(bucket), rate*100),
				Impact: ImpactMedium,
				Action: "adjusting the calibration factor for this confidence range",
			})
		}
	}

	kindKeys := make([]string, 0, len(kinds))
	for k := range kinds {
		kindKeys = append(kindKeys, string(k))
	}
	sort.Strings(kindKeys)
	for _, key := range kindKeys {
		t := kinds[types.PatternKind(key)]
		if t.total < strongPreferenceMinSamples {
			continue
		}
		rate := float64(t.positive) / float64(t.total)
		if rate >= strongAcceptance {
			insights = append(insights, Insight{
				Message: fmt.Sprintf("%s-based suggestions work well for you (%.0f%% accepted).", key, rate*100),
				Impact:  ImpactMedium,
				Action:  fmt.Sprintf("favoring %s patterns in ranking", key),
			})
		} else if rate <= weakAcceptance {
			insights = append(insights, Insight{
				Message: fmt.Sprintf("%s-based suggestions rarely land (%.0f%% accepted).", key, rate*100),
				Impact:  ImpactMedium,
				Action:  fmt.Sprintf("deprioritizing %s patterns in ranking", key),
			})
		}
	}

	hourKeys := make([]int, 0, len(hours))
	for h := range hours {
		hourKeys = append(hourKeys, h)
	}
	sort.Ints(hourKeys)
	for _, hour := range hourKeys {
		t := hours[hour]
		if t.total < hourMinSamples {
			continue
		}
		rate := float64(t.positive) / float64(t.total)
		if rate >= strongAcceptance {
			insights = append(insights, Insight{
				Message: fmt.Sprintf("%02d:00 is a good hour for suggestions (%.0f%% accepted).", hour, rate*100),
				Impact:  ImpactLow,
				Action:  "weighting this hour up in timing preferences",
			})
		} else if rate <= weakAcceptance {
			insights = append(insights, Insight{
				Message: fmt.Sprintf("%02d:00 is a bad hour for suggestions (%.0f%% accepted).", hour, rate*100),
				Impact:  ImpactLow,
				Action:  "weighting this hour down in timing preferences",
			})
		}
	}

	s.nudgeCategories(ctx, userID, nudgeUp, nudgeDown, now)
	return insights, nil
}

// nudgeCategories applies the second-order confidence nudge to patterns
// in categories with a detected strong preference. Failures are logged;
// insights are still returned.
func (s *Service) nudgeCategories(ctx context.Context, userID string, up, down []string, now time.Time) {
	if len(up) == 0 && len(down) == 0 {
		return
	}
	patterns, err := s.store.ListPatterns(ctx, userID, nil)
	if err != nil {
		s.logger.Warn("failed to load patterns for insight nudge", "user_id", userID, "error", err)
		return
	}

	direction := make(map[string]float64, len(up)+len(down))
	for _, c := range up {
		direction[c] = s.cfg.MinRate
	}
	for _, c := range down {
		direction[c] = -s.cfg.MinRate
	}

	for _, p := range patterns {
		delta, ok := direction[categoryOf(p)]
		if !ok {
			continue
		}
		p.Confidence = types.Clamp01(p.Confidence + delta)
		p.UpdatedAt = now
		if err := s.store.UpsertPattern(ctx, p); err != nil {
			s.logger.Warn("failed to apply insight nudge", "pattern_id", p.ID, "error", err)
		}
	}
}

func categoryOf(p *types.Pattern) string {
	switch payload := p.Payload.(type) {
	case *types.TemporalPayload:
		return payload.Category
	case *types.SequentialPayload:
		return payload.Category
	case *types.ContextualPayload:
		return payload.Category
	case *types.FrequencyPayload:
		return payload.Category
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
