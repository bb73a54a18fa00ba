// Package scoring turns raw pattern statistics into bounded, explainable
// confidence scores. The model combines six factors, each in [0,1], with
// configurable weights that always renormalize to sum 1.0.
package scoring

import (
	"fmt"
	"math"
	"time"

	"tasksense/internal/config"
	"tasksense/pkg/types"
)

// ReliabilityTier labels how much a score can be trusted.
type ReliabilityTier string

const (
	// TierHigh requires score > 0.7 and at least 5 data points
	TierHigh ReliabilityTier = "high"
	// TierMedium requires score > 0.5 and at least 3 data points
	TierMedium ReliabilityTier = "medium"
	// TierLow is everything else
	TierLow ReliabilityTier = "low"
)

// Factor names used in results and explanations.
const (
	FactorFrequency        = "frequency"
	FactorRecency          = "recency"
	FactorConsistency      = "consistency"
	FactorUserFeedback     = "user_feedback"
	FactorDataQuality      = "data_quality"
	FactorContextRelevance = "context_relevance"
)

// Thresholds for explanation strings.
const (
	highFactorThreshold = 0.7
	lowFactorThreshold  = 0.3
)

// Input bundles everything the model needs to score one pattern.
type Input struct {
	Pattern *types.Pattern

	// Occurrences are the completion timestamps backing the pattern,
	// used for consistency and data-quality factors. May be empty when
	// only the pattern row is available.
	Occurrences []time.Time

	// FeedbackRatio is the historical positive-feedback ratio for the
	// pattern's category. Nil means no data (neutral 0.5).
	FeedbackRatio *float64

	// ContextMatch is a precomputed context-relevance score. Nil means
	// no context was supplied at scoring time (neutral 0.5).
	ContextMatch *float64

	Now time.Time
}

// Result is a scored pattern with its per-factor breakdown.
type Result struct {
	Score        float64
	Tier         ReliabilityTier
	Factors      map[string]float64
	Explanations []string
	DataPoints   int
}

// Model computes pattern and suggestion confidence scores.
type Model struct {
	cfg config.ScoringConfig
}

// NewModel creates a confidence scoring model. The weights in cfg are
// assumed already renormalized by config validation.
func NewModel(cfg config.ScoringConfig) *Model {
	return &Model{cfg: cfg}
}

// Score computes the weighted confidence for one pattern. The result is
// always in [0,1] and deterministic given the input.
func (m *Model) Score(in Input) Result {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	factors := map[string]float64{
		FactorFrequency:        m.frequencyFactor(in.Pattern),
		FactorRecency:          m.recencyFactor(in.Pattern, now),
		FactorConsistency:      m.consistencyFactor(in.Pattern, in.Occurrences),
		FactorUserFeedback:     neutralOr(in.FeedbackRatio),
		FactorDataQuality:      m.dataQualityFactor(in.Pattern, in.Occurrences, now),
		FactorContextRelevance: neutralOr(in.ContextMatch),
	}

	score := factors[FactorFrequency]*m.cfg.FrequencyWeight +
		factors[FactorRecency]*m.cfg.RecencyWeight +
		factors[FactorConsistency]*m.cfg.ConsistencyWeight +
		factors[FactorUserFeedback]*m.cfg.UserFeedbackWeight +
		factors[FactorDataQuality]*m.cfg.DataQualityWeight +
		factors[FactorContextRelevance]*m.cfg.ContextRelevanceWeight
	score = types.Clamp01(score)

	points := in.Pattern.Frequency
	if len(in.Occurrences) > points {
		points = len(in.Occurrences)
	}

	return Result{
		Score:        score,
		Tier:         tierFor(score, points),
		Factors:      factors,
		Explanations: explain(factors),
		DataPoints:   points,
	}
}

// neutralOr returns 0.5 when no value is supplied.
func neutralOr(v *float64) float64 {
	if v == nil {
		return 0.5
	}
	return types.Clamp01(*v)
}

// expectedCount returns the expected occurrence count for a period type:
// 30 per month for daily, 8 per month for weekly, 3 per quarter for
// monthly patterns.
func expectedCount(pt types.PeriodType) float64 {
	switch pt {
	case types.PeriodDaily:
		return 30
	case types.PeriodWeekly:
		return 8
	case types.PeriodMonthly:
		return 3
	default:
		return 8
	}
}

// halfLifeDays returns the recency half-life for a period type.
func halfLifeDays(pt types.PeriodType) float64 {
	switch pt {
	case types.PeriodDaily:
		return 7
	case types.PeriodWeekly:
		return 21
	case types.PeriodMonthly:
		return 90
	default:
		return 21
	}
}

// periodTypeOf extracts the recurrence period from the payload, defaulting
// to weekly for non-temporal patterns.
func periodTypeOf(p *types.Pattern) types.PeriodType {
	if p == nil {
		return types.PeriodWeekly
	}
	if tp, ok := p.Payload.(*types.TemporalPayload); ok && tp.PeriodType.Valid() {
		return tp.PeriodType
	}
	return types.PeriodWeekly
}

// frequencyFactor squashes the occurrence count against the expected
// count for the period type. tanh keeps the factor monotonic in the
// count and capped at 1.
func (m *Model) frequencyFactor(p *types.Pattern) float64 {
	if p == nil || p.Frequency <= 0 {
		return 0
	}
	ratio := float64(p.Frequency) / expectedCount(periodTypeOf(p))
	return types.Clamp01(math.Tanh(ratio * 1.5))
}

// recencyFactor decays exponentially with days since last occurrence.
func (m *Model) recencyFactor(p *types.Pattern, now time.Time) float64 {
	if p == nil || p.LastOccurrence.IsZero() {
		return 0
	}
	days := now.Sub(p.LastOccurrence).Hours() / 24
	if days < 0 {
		days = 0
	}
	return types.Clamp01(math.Exp(-days / halfLifeDays(periodTypeOf(p))))
}

// consistencyFactor is 1 minus normalized timing variance. Temporal
// patterns use hour and weekday variance; everything else uses the
// variance of inter-occurrence intervals.
func (m *Model) consistencyFactor(p *types.Pattern, occurrences []time.Time) float64 {
	if len(occurrences) < 2 {
		return 0.5
	}
	if _, ok := p.Payload.(*types.TemporalPayload); ok {
		return temporalConsistency(occurrences)
	}
	return intervalConsistency(occurrences)
}

// maxHourVariance is the variance of hours drawn uniformly over a day,
// used to normalize hour spread into [0,1].
const maxHourVariance = 48.0

// maxWeekdayVariance normalizes weekday spread the same way.
const maxWeekdayVariance = 4.0

func temporalConsistency(occurrences []time.Time) float64 {
	hours := make([]float64, len(occurrences))
	days := make([]float64, len(occurrences))
	for i, t := range occurrences {
		hours[i] = float64(t.Hour())
		days[i] = float64(int(t.Weekday()))
	}
	hourSpread := types.Clamp01(variance(hours) / maxHourVariance)
	daySpread := types.Clamp01(variance(days) / maxWeekdayVariance)
	return types.Clamp01(1 - (hourSpread+daySpread)/2)
}

// intervalConsistency uses the squared coefficient of variation of gaps
// between consecutive occurrences. Regular gaps score near 1.
func intervalConsistency(occurrences []time.Time) float64 {
	gaps := make([]float64, 0, len(occurrences)-1)
	for i := 1; i < len(occurrences); i++ {
		gaps = append(gaps, occurrences[i].Sub(occurrences[i-1]).Hours())
	}
	mean := meanOf(gaps)
	if mean <= 0 {
		return 0.5
	}
	cv2 := variance(gaps) / (mean * mean)
	return types.Clamp01(1 - cv2)
}

// dataQualityFactor is the mean of four sub-scores: sample sufficiency,
// timestamp completeness, underlying-data recency, and payload
// structural completeness.
func (m *Model) dataQualityFactor(p *types.Pattern, occurrences []time.Time, now time.Time) float64 {
	if p == nil {
		return 0
	}

	sufficiency := types.Clamp01(float64(p.Frequency) / 10)

	completeness := 1.0
	if len(occurrences) > 0 {
		present := 0
		for _, t := range occurrences {
			if !t.IsZero() {
				present++
			}
		}
		completeness = float64(present) / float64(len(occurrences))
	}

	recency := 0.0
	if !p.LastOccurrence.IsZero() {
		days := now.Sub(p.LastOccurrence).Hours() / 24
		if days < 0 {
			days = 0
		}
		recency = math.Exp(-days / 30)
	}

	structural := 0.0
	if p.Payload != nil && p.Validate() == nil {
		structural = 1.0
	}

	return types.Clamp01((sufficiency + completeness + recency + structural) / 4)
}

func tierFor(score float64, dataPoints int) ReliabilityTier {
	switch {
	case score > 0.7 && dataPoints >= 5:
		return TierHigh
	case score > 0.5 && dataPoints >= 3:
		return TierMedium
	default:
		return TierLow
	}
}

// factorOrder fixes explanation ordering so output is deterministic.
var factorOrder = []string{
	FactorFrequency,
	FactorRecency,
	FactorConsistency,
	FactorUserFeedback,
	FactorDataQuality,
	FactorContextRelevance,
}

// explanationText maps a factor and polarity to a human-readable phrase.
var explanationText = map[string][2]string{
	FactorFrequency:        {"occurs very regularly", "occurs only rarely"},
	FactorRecency:          {"happened recently", "has not happened in a while"},
	FactorConsistency:      {"timing is very consistent", "timing varies a lot"},
	FactorUserFeedback:     {"you usually accept suggestions like this", "you usually decline suggestions like this"},
	FactorDataQuality:      {"backed by solid history", "based on sparse history"},
	FactorContextRelevance: {"matches your current situation", "does not match your current situation"},
}

func explain(factors map[string]float64) []string {
	var out []string
	for _, name := range factorOrder {
		v := factors[name]
		text := explanationText[name]
		switch {
		case v > highFactorThreshold:
			out = append(out, text[0])
		case v < lowFactorThreshold:
			out = append(out, text[1])
		}
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := meanOf(values)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}

// String implements fmt.Stringer for logging.
func (r Result) String() string {
	return fmt.Sprintf("score=%.3f tier=%s points=%d", r.Score, r.Tier, r.DataPoints)
}
