// Package learning implements the feedback loop: accept/reject feedback
// moves pattern confidence, maintains per-bucket calibration factors, and
// biases future suggestions toward categories and times the user actually
// accepts.
package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

// minTimingSamples is how many observations an hour or weekday needs
// before its factor is applied.
const minTimingSamples = 3

// defaultCategoryFactor is used when a category has no feedback history.
const defaultCategoryFactor = 0.8

// Service is the feedback learning loop.
type Service struct {
	store  storage.PatternStore
	cfg    config.LearningConfig
	logger logging.Logger
}

// NewService creates a learning service.
func NewService(store storage.PatternStore, cfg config.LearningConfig, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Service{store: store, cfg: cfg, logger: logger.WithComponent("learning")}
}

// FeedbackRequest is one accept/reject signal to ingest.
type FeedbackRequest struct {
	UserID       string
	SuggestionID string
	Type         types.FeedbackType
	Reason       string
	Context      *types.FeedbackContext
	At           time.Time // zero means now
}

// CollectFeedback appends the feedback row, flips the suggestion to its
// terminal status, and updates pattern confidence, bucket calibration,
// and timing preferences, all in one transaction.
func (s *Service) CollectFeedback(ctx context.Context, req FeedbackRequest) error {
	if !req.Type.Valid() {
		return fmt.Errorf("invalid feedback type: %s", req.Type)
	}
	now := req.At
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return s.store.WithTx(ctx, func(tx storage.PatternStore) error {
		suggestion, err := tx.GetSuggestion(ctx, req.SuggestionID)
		if err != nil {
			return fmt.Errorf("feedback target: %w", err)
		}

		status := types.StatusAccepted
		if req.Type == types.FeedbackNegative {
			status = types.StatusRejected
		}
		if err := tx.UpdateSuggestionStatus(ctx, suggestion.ID, status); err != nil {
			return fmt.Errorf("feedback target: %w", err)
		}

		feedback := &types.Feedback{
			ID:           uuid.New().String(),
			UserID:       req.UserID,
			SuggestionID: req.SuggestionID,
			Type:         req.Type,
			Reason:       req.Reason,
			Context:      req.Context,
			CreatedAt:    now,
		}
		if err := tx.AppendFeedback(ctx, feedback); err != nil {
			return fmt.Errorf("failed to record feedback: %w", err)
		}

		rate := s.learningRate(ctx, tx, req.UserID)

		if err := s.updatePatterns(ctx, tx, suggestion, req.Type, rate, now); err != nil {
			return err
		}
		if err := s.updateBucketAdjustment(ctx, tx, req.UserID, suggestion.Confidence, req.Type, rate, now); err != nil {
			return err
		}
		return s.recordTimingPreference(ctx, tx, req, suggestion.Category, now)
	})
}

// ProcessFeedbackBatch ingests a queue of feedback items. A failure on
// one item is logged and counted but does not stop the rest.
func (s *Service) ProcessFeedbackBatch(ctx context.Context, requests []FeedbackRequest) (processed int, failed int) {
	for _, req := range requests {
		if err := s.CollectFeedback(ctx, req); err != nil {
			failed++
			s.logger.Warn("feedback item failed", "suggestion_id", req.SuggestionID, "error", err)
			continue
		}
		processed++
	}
	return processed, failed
}

// learningRate derives the per-user adaptive learning rate from feedback
// volume and self-consistency. Store failures fall back to the base rate.
func (s *Service) learningRate(ctx context.Context, store storage.PatternStore, userID string) float64 {
	history, err := store.ListFeedbackSince(ctx, userID, time.Time{})
	if err != nil {
		s.logger.Warn("failed to load feedback history, using base rate", "user_id", userID, "error", err)
		return s.cfg.BaseRate
	}

	rate := s.cfg.BaseRate
	switch {
	case len(history) < s.cfg.LowVolumeCount:
		rate = s.cfg.LowVolumeRate
	case len(history) > s.cfg.HighVolumeCount:
		rate = s.cfg.HighVolumeRate
	}

	rate *= 0.5 + 0.5*consistencyRatio(history)
	return types.Clamp(rate, s.cfg.MinRate, s.cfg.MaxRate)
}

// consistencyRatio is the fraction of suggestions whose feedback history
// contains only one feedback type. No history counts as fully consistent.
func consistencyRatio(history []*types.Feedback) float64 {
	if len(history) == 0 {
		return 1
	}
	kinds := make(map[string]map[types.FeedbackType]bool)
	for _, f := range history {
		if kinds[f.SuggestionID] == nil {
			kinds[f.SuggestionID] = make(map[types.FeedbackType]bool)
		}
		kinds[f.SuggestionID][f.Type] = true
	}
	consistent := 0
	for _, seen := range kinds {
		if len(seen) == 1 {
			consistent++
		}
	}
	return float64(consistent) / float64(len(kinds))
}

// updatePatterns nudges every contributing pattern's confidence and logs
// a calibration row per update. Missing patterns are skipped.
func (s *Service) updatePatterns(ctx context.Context, store storage.PatternStore, suggestion *types.Suggestion, fbType types.FeedbackType, rate float64, now time.Time) error {
	kinds := make([]types.PatternKind, 0, len(suggestion.BasedOn))
	for _, ref := range suggestion.BasedOn {
		if ref.Kind.Valid() {
			kinds = append(kinds, ref.Kind)
		}
	}

	for _, id := range suggestion.PatternIDs() {
		pattern, err := store.GetPattern(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("suggestion references missing pattern", "pattern_id", id)
				continue
			}
			return fmt.Errorf("failed to load pattern %s: %w", id, err)
		}

		before := pattern.Confidence
		delta := PatternDelta(pattern.Confidence, suggestion.Confidence, rate, fbType)
		pattern.Confidence = types.Clamp01(pattern.Confidence + delta)
		pattern.UpdatedAt = now

		if err := store.UpsertPattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to update pattern %s: %w", id, err)
		}

		calibration := &types.ConfidenceCalibration{
			ID:                   uuid.New().String(),
			UserID:               suggestion.UserID,
			PatternID:            pattern.ID,
			PatternKinds:         kinds,
			Category:             suggestion.Category,
			SuggestionConfidence: suggestion.Confidence,
			PatternConfidence:    before,
			Delta:                pattern.Confidence - before,
			FeedbackType:         fbType,
			CreatedAt:            now,
		}
		if err := store.AppendCalibration(ctx, calibration); err != nil {
			return fmt.Errorf("failed to record calibration: %w", err)
		}
	}
	return nil
}

// PatternDelta computes the confidence change for one pattern given the
// suggestion it backed and the feedback polarity. Positive feedback moves
// confidence up, negative moves it down, both scaled by how closely the
// pattern's confidence agreed with the suggestion's.
func PatternDelta(patternConfidence, suggestionConfidence, rate float64, fbType types.FeedbackType) float64 {
	weight := 1 - math.Abs(patternConfidence-suggestionConfidence)
	if fbType == types.FeedbackPositive {
		return rate * weight * (1 - patternConfidence)
	}
	return -rate * weight * (1 + patternConfidence)
}

func (s *Service) updateBucketAdjustment(ctx context.Context, store storage.PatternStore, userID string, confidence float64, fbType types.FeedbackType, rate float64, now time.Time) error {
	bucket := types.ConfidenceBucket(confidence)

	adj, err := store.GetAdjustment(ctx, userID, bucket)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to load adjustment: %w", err)
		}
		adj = &types.ConfidenceAdjustment{UserID: userID, Bucket: bucket}
	}

	incoming := 1 + rate/2
	if fbType == types.FeedbackNegative {
		incoming = 1 - rate/2
	}
	adj.Apply(incoming, now)

	if err := store.UpsertAdjustment(ctx, adj); err != nil {
		return fmt.Errorf("failed to store adjustment: %w", err)
	}
	return nil
}

func (s *Service) recordTimingPreference(ctx context.Context, store storage.PatternStore, req FeedbackRequest, category string, now time.Time) error {
	hour := now.Hour()
	weekday := int(now.Weekday())
	if req.Context != nil {
		hour = req.Context.HourOfDay
		weekday = req.Context.DayOfWeek
	}

	pref := &types.TimingPreference{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		HourOfDay: hour,
		DayOfWeek: weekday,
		Category:  category,
		Positive:  req.Type == types.FeedbackPositive,
		CreatedAt: now,
	}
	if err := store.AppendTimingPreference(ctx, pref); err != nil {
		return fmt.Errorf("failed to record timing preference: %w", err)
	}
	return nil
}

// categoryStats aggregates terminal suggestion outcomes per category.
type categoryStats struct {
	accepted int
	rejected int
	confSum  float64
}

func (c categoryStats) total() int { return c.accepted + c.rejected }

func (c categoryStats) acceptanceRate() float64 {
	if c.total() == 0 {
		return 0
	}
	return float64(c.accepted) / float64(c.total())
}

func (c categoryStats) avgConfidence() float64 {
	if c.total() == 0 {
		return 0
	}
	return c.confSum / float64(c.total())
}

func (s *Service) categoryStats(ctx context.Context, userID string) (map[string]categoryStats, error) {
	suggestions, err := s.store.ListSuggestions(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]categoryStats)
	for _, sg := range suggestions {
		cs := stats[sg.Category]
		switch sg.Status {
		case types.StatusAccepted:
			cs.accepted++
			cs.confSum += sg.Confidence
		case types.StatusRejected:
			cs.rejected++
			cs.confSum += sg.Confidence
		default:
			continue
		}
		stats[sg.Category] = cs
	}
	return stats, nil
}

// CategoryPreferences returns the positive-feedback ratio per category
// for ranking. Categories without data are omitted; store failures yield
// an empty map.
func (s *Service) CategoryPreferences(ctx context.Context, userID string) (map[string]float64, error) {
	stats, err := s.categoryStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute category preferences: %w", err)
	}
	prefs := make(map[string]float64, len(stats))
	for category, cs := range stats {
		if cs.total() == 0 {
			continue
		}
		prefs[category] = cs.acceptanceRate()
	}
	return prefs, nil
}

// ApplyLearningAdjustments multiplies each suggestion's confidence by the
// learned bucket, category, hour, and weekday factors, clamped to the
// configured bounds. Adjusted suggestions are tagged for explainability.
// Store failures pass the suggestions through unmodified.
func (s *Service) ApplyLearningAdjustments(ctx context.Context, userID string, suggestions []*types.Suggestion) ([]*types.Suggestion, error) {
	if len(suggestions) == 0 {
		return suggestions, nil
	}

	adjustments, err := s.store.ListAdjustments(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load adjustments, passing suggestions through", "user_id", userID, "error", err)
		return suggestions, nil
	}
	byBucket := make(map[int]*types.ConfidenceAdjustment, len(adjustments))
	for _, adj := range adjustments {
		byBucket[adj.Bucket] = adj
	}

	stats, err := s.categoryStats(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load category stats, passing suggestions through", "user_id", userID, "error", err)
		return suggestions, nil
	}

	prefs, err := s.store.ListTimingPreferences(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load timing preferences, passing suggestions through", "user_id", userID, "error", err)
		return suggestions, nil
	}
	hourFactors, weekdayFactors := timingFactors(prefs)

	for _, sg := range suggestions {
		factor := 1.0

		if adj, ok := byBucket[types.ConfidenceBucket(sg.Confidence)]; ok && adj.SampleCount > 0 {
			factor *= adj.Factor
		}
		factor *= categoryFactor(stats, sg.Category)
		if hf, ok := hourFactors[sg.CreatedAt.Hour()]; ok {
			factor *= hf
		}
		if wf, ok := weekdayFactors[int(sg.CreatedAt.Weekday())]; ok {
			factor *= wf
		}

		if factor != 1.0 {
			sg.Confidence = types.Clamp(sg.Confidence*factor, s.cfg.AdjustedFloor, s.cfg.AdjustedCeiling)
			sg.MarkLearningAdjusted()
		}
	}
	return suggestions, nil
}

// categoryFactor is acceptance_rate / max(0.1, avg_confidence), with a
// default when the category has no terminal suggestions yet.
func categoryFactor(stats map[string]categoryStats, category string) float64 {
	cs, ok := stats[category]
	if !ok || cs.total() == 0 {
		return defaultCategoryFactor
	}
	return cs.acceptanceRate() / math.Max(0.1, cs.avgConfidence())
}

// timingFactors aggregates timing preferences into per-hour and
// per-weekday factors of the form positive_ratio*0.4 + 0.8, applied only
// once a slot has enough samples.
func timingFactors(prefs []*types.TimingPreference) (map[int]float64, map[int]float64) {
	type tally struct{ positive, total int }
	hours := make(map[int]*tally)
	weekdays := make(map[int]*tally)

	for _, p := range prefs {
		h := hours[p.HourOfDay]
		if h == nil {
			h = &tally{}
			hours[p.HourOfDay] = h
		}
		w := weekdays[p.DayOfWeek]
		if w == nil {
			w = &tally{}
			weekdays[p.DayOfWeek] = w
		}
		h.total++
		w.total++
		if p.Positive {
			h.positive++
			w.positive++
		}
	}

	hourFactors := make(map[int]float64)
	for hour, t := range hours {
		if t.total >= minTimingSamples {
			hourFactors[hour] = float64(t.positive)/float64(t.total)*0.4 + 0.8
		}
	}
	weekdayFactors := make(map[int]float64)
	for day, t := range weekdays {
		if t.total >= minTimingSamples {
			weekdayFactors[day] = float64(t.positive)/float64(t.total)*0.4 + 0.8
		}
	}
	return hourFactors, weekdayFactors
}
