package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tasksense/pkg/types"
)

// MockPatternStore is an in-memory PatternStore for tests and the demo
// binary. It mirrors the ordering and transition semantics of the SQL
// store.
type MockPatternStore struct {
	mu sync.RWMutex

	patterns    map[string]*types.Pattern
	suggestions map[string]*types.Suggestion
	feedback    []*types.Feedback
	calibration []*types.ConfidenceCalibration
	adjustments map[string]*types.ConfidenceAdjustment
	timing      []*types.TimingPreference

	// FailNext makes the next call return an error, for exercising the
	// degrade-to-default paths.
	FailNext error
}

// NewMockPatternStore creates an empty in-memory store.
func NewMockPatternStore() *MockPatternStore {
	return &MockPatternStore{
		patterns:    make(map[string]*types.Pattern),
		suggestions: make(map[string]*types.Suggestion),
		adjustments: make(map[string]*types.ConfidenceAdjustment),
	}
}

func (m *MockPatternStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

// GetPattern returns a pattern by id.
func (m *MockPatternStore) GetPattern(_ context.Context, id string) (*types.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	p, ok := m.patterns[id]
	if !ok {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// UpsertPattern inserts or replaces a pattern, preserving created_at.
func (m *MockPatternStore) UpsertPattern(_ context.Context, pattern *types.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if err := pattern.Validate(); err != nil {
		return err
	}
	cp := *pattern
	if existing, ok := m.patterns[pattern.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	m.patterns[pattern.ID] = &cp
	return nil
}

// UpsertPatterns batch-upserts patterns.
func (m *MockPatternStore) UpsertPatterns(ctx context.Context, patterns []*types.Pattern) error {
	for _, p := range patterns {
		if err := m.UpsertPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ListPatterns returns a user's patterns ordered by confidence then recency.
func (m *MockPatternStore) ListPatterns(_ context.Context, userID string, kind *types.PatternKind) ([]*types.Pattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.Pattern
	for _, p := range m.patterns {
		if p.UserID != userID {
			continue
		}
		if kind != nil && p.Kind != *kind {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].LastOccurrence.After(out[j].LastOccurrence)
	})
	return out, nil
}

// GetSuggestion returns a suggestion by id.
func (m *MockPatternStore) GetSuggestion(_ context.Context, id string) (*types.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

// SaveSuggestion persists a new suggestion.
func (m *MockPatternStore) SaveSuggestion(_ context.Context, suggestion *types.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if err := suggestion.Validate(); err != nil {
		return err
	}
	cp := *suggestion
	m.suggestions[suggestion.ID] = &cp
	return nil
}

// ListSuggestions returns a user's suggestions, newest first.
func (m *MockPatternStore) ListSuggestions(_ context.Context, userID string, status *types.SuggestionStatus) ([]*types.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.Suggestion
	for _, s := range m.suggestions {
		if s.UserID != userID {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateSuggestionStatus flips a pending suggestion to a terminal status.
func (m *MockPatternStore) UpdateSuggestionStatus(_ context.Context, id string, status types.SuggestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	s, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	if !s.Status.CanTransitionTo(status) {
		return fmt.Errorf("suggestion %s: %w", id, ErrInvalidTransition)
	}
	s.Status = status
	return nil
}

// MarkExpiredSuggestions dismisses expired and stale pending suggestions.
func (m *MockPatternStore) MarkExpiredSuggestions(_ context.Context, userID string, now, staleBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}
	count := 0
	for _, s := range m.suggestions {
		if s.UserID != userID || s.Status != types.StatusPending {
			continue
		}
		if s.ExpiresAt.Before(now) || s.CreatedAt.Before(staleBefore) {
			s.Status = types.StatusDismissed
			count++
		}
	}
	return count, nil
}

// AppendFeedback appends an immutable feedback row.
func (m *MockPatternStore) AppendFeedback(_ context.Context, feedback *types.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if err := feedback.Validate(); err != nil {
		return err
	}
	cp := *feedback
	m.feedback = append(m.feedback, &cp)
	return nil
}

// ListFeedbackSince returns a user's feedback at or after since, oldest first.
func (m *MockPatternStore) ListFeedbackSince(_ context.Context, userID string, since time.Time) ([]*types.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.Feedback
	for _, f := range m.feedback {
		if f.UserID != userID || f.CreatedAt.Before(since) {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListFeedbackForSuggestion returns all feedback targeting a suggestion.
func (m *MockPatternStore) ListFeedbackForSuggestion(_ context.Context, suggestionID string) ([]*types.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.Feedback
	for _, f := range m.feedback {
		if f.SuggestionID != suggestionID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AppendCalibration appends a calibration audit row.
func (m *MockPatternStore) AppendCalibration(_ context.Context, calibration *types.ConfidenceCalibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cp := *calibration
	m.calibration = append(m.calibration, &cp)
	return nil
}

// Calibrations returns a copy of all stored calibration rows, for tests.
func (m *MockPatternStore) Calibrations() []*types.ConfidenceCalibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.ConfidenceCalibration, 0, len(m.calibration))
	for _, c := range m.calibration {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func adjustmentKey(userID string, bucket int) string {
	return fmt.Sprintf("%s:%d", userID, bucket)
}

// GetAdjustment returns the calibration factor for a bucket.
func (m *MockPatternStore) GetAdjustment(_ context.Context, userID string, bucket int) (*types.ConfidenceAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	adj, ok := m.adjustments[adjustmentKey(userID, bucket)]
	if !ok {
		return nil, fmt.Errorf("adjustment bucket %d: %w", bucket, ErrNotFound)
	}
	cp := *adj
	return &cp, nil
}

// UpsertAdjustment inserts or replaces a bucket adjustment.
func (m *MockPatternStore) UpsertAdjustment(_ context.Context, adjustment *types.ConfidenceAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cp := *adjustment
	m.adjustments[adjustmentKey(adjustment.UserID, adjustment.Bucket)] = &cp
	return nil
}

// ListAdjustments returns all bucket adjustments for a user.
func (m *MockPatternStore) ListAdjustments(_ context.Context, userID string) ([]*types.ConfidenceAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.ConfidenceAdjustment
	for _, adj := range m.adjustments {
		if adj.UserID != userID {
			continue
		}
		cp := *adj
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

// AppendTimingPreference appends a timing observation.
func (m *MockPatternStore) AppendTimingPreference(_ context.Context, pref *types.TimingPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cp := *pref
	m.timing = append(m.timing, &cp)
	return nil
}

// ListTimingPreferences returns all timing observations for a user.
func (m *MockPatternStore) ListTimingPreferences(_ context.Context, userID string) ([]*types.TimingPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	var out []*types.TimingPreference
	for _, p := range m.timing {
		if p.UserID != userID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// WithTx runs fn against the store directly. The mock has no transaction
// isolation; callers only rely on sequential application.
func (m *MockPatternStore) WithTx(_ context.Context, fn func(PatternStore) error) error {
	return fn(m)
}
