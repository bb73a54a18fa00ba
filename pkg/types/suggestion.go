package types

import (
	"errors"
	"time"
)

// SuggestionStatus represents the lifecycle state of a suggestion
type SuggestionStatus string

const (
	// StatusPending is the only non-terminal status
	StatusPending SuggestionStatus = "pending"
	// StatusAccepted is set when the user acts on a suggestion
	StatusAccepted SuggestionStatus = "accepted"
	// StatusRejected is set when the user explicitly declines a suggestion
	StatusRejected SuggestionStatus = "rejected"
	// StatusDismissed is set by expiry cleanup; dismissed rows are kept for analytics
	StatusDismissed SuggestionStatus = "dismissed"
)

// Valid returns true if the status is valid
func (s SuggestionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusDismissed:
		return true
	}
	return false
}

// Terminal returns true for statuses a suggestion can never leave.
func (s SuggestionStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusDismissed
}

// CanTransitionTo reports whether a status change is allowed. Only
// pending suggestions may move, and only to a terminal status.
func (s SuggestionStatus) CanTransitionTo(next SuggestionStatus) bool {
	return s == StatusPending && next.Terminal()
}

// SuggestionSource identifies which generation path produced a suggestion.
// The manager derives per-source expiry windows from it.
type SuggestionSource string

const (
	// SourceTemporal suggestions come from temporal patterns alone
	SourceTemporal SuggestionSource = "temporal"
	// SourceSequential suggestions come from workflow patterns
	SourceSequential SuggestionSource = "sequential"
	// SourceContextual suggestions come from contextual patterns alone
	SourceContextual SuggestionSource = "contextual"
	// SourceFrequency suggestions come from frequency patterns
	SourceFrequency SuggestionSource = "frequency"
	// SourceHybrid suggestions combine patterns from multiple miners
	SourceHybrid SuggestionSource = "hybrid"
)

// PatternRef names a pattern that contributed to a suggestion.
type PatternRef struct {
	Kind PatternKind `json:"kind"`
	ID   string      `json:"id"`
}

// KindLearningAdjusted is a marker ref kind, not a mined pattern kind. It
// is appended to BasedOn when learning adjustments changed a suggestion's
// confidence, for explainability.
const KindLearningAdjusted PatternKind = "learning_adjusted"

// SuggestionCandidate is a transient suggestion produced by a miner before
// ranking, diversity filtering, and persistence. The scoring fields are
// filled in by later pipeline stages.
type SuggestionCandidate struct {
	Title               string           `json:"title"`
	Category            string           `json:"category"`
	Priority            string           `json:"priority"`
	Confidence          float64          `json:"confidence"`
	Reasoning           []string         `json:"reasoning"`
	BasedOn             []PatternRef     `json:"based_on"`
	Source              SuggestionSource `json:"source"`
	TimeEstimateMinutes *int             `json:"time_estimate_minutes,omitempty"`
	OptimalTime         *time.Time       `json:"optimal_time,omitempty"`
	ExpiresAt           time.Time        `json:"expires_at"`

	// Scoring state, populated by the ranker and diversity filter.
	ContextRelevance float64 `json:"context_relevance"`
	PatternStrength  float64 `json:"pattern_strength"`
	DiversityScore   float64 `json:"diversity_score"`
	Score            float64 `json:"score"`
}

// Suggestion is a persisted, user-visible suggestion.
type Suggestion struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	Title               string           `json:"title"`
	Category            string           `json:"category"`
	Priority            string           `json:"priority"`
	Confidence          float64          `json:"confidence"`
	Reasoning           []string         `json:"reasoning"`
	BasedOn             []PatternRef     `json:"based_on"`
	Source              SuggestionSource `json:"source"`
	TimeEstimateMinutes *int             `json:"time_estimate_minutes,omitempty"`
	OptimalTime         *time.Time       `json:"optimal_time,omitempty"`
	Status              SuggestionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	ExpiresAt           time.Time        `json:"expires_at"`
}

// Validate checks structural invariants of the suggestion.
func (s *Suggestion) Validate() error {
	if s.ID == "" {
		return errors.New("suggestion ID is required")
	}
	if s.UserID == "" {
		return errors.New("suggestion user ID is required")
	}
	if !s.Status.Valid() {
		return errors.New("invalid suggestion status: " + string(s.Status))
	}
	if s.ExpiresAt.Before(s.CreatedAt) {
		return errors.New("suggestion expires_at must be >= created_at")
	}
	return nil
}

// Expired reports whether the suggestion has passed its expiry instant.
func (s *Suggestion) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Active reports whether the suggestion should be shown to the user.
func (s *Suggestion) Active(now time.Time) bool {
	return s.Status == StatusPending && !s.Expired(now)
}

// LearningAdjusted reports whether the learning loop changed this
// suggestion's confidence.
func (s *Suggestion) LearningAdjusted() bool {
	for _, ref := range s.BasedOn {
		if ref.Kind == KindLearningAdjusted {
			return true
		}
	}
	return false
}

// MarkLearningAdjusted tags the suggestion's BasedOn set with the
// learning-adjusted marker, once.
func (s *Suggestion) MarkLearningAdjusted() {
	if s.LearningAdjusted() {
		return
	}
	s.BasedOn = append(s.BasedOn, PatternRef{Kind: KindLearningAdjusted})
}

// PatternIDs returns the ids of real contributing patterns, skipping
// marker refs.
func (s *Suggestion) PatternIDs() []string {
	ids := make([]string, 0, len(s.BasedOn))
	for _, ref := range s.BasedOn {
		if ref.Kind.Valid() && ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}
