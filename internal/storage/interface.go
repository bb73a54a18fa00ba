// Package storage provides the pattern store contract and its SQL and
// in-memory implementations. The store is the only shared mutable state
// in the pipeline and is assumed single-writer-per-user.
package storage

import (
	"context"
	"errors"
	"time"

	"tasksense/pkg/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInvalidTransition is returned when a suggestion status change is
// attempted from a terminal status.
var ErrInvalidTransition = errors.New("suggestion status is terminal")

// PatternStore is the persistence contract consumed by the miners, the
// suggestion engine, and the learning loop.
type PatternStore interface {
	// GetPattern returns a pattern by id, or ErrNotFound.
	GetPattern(ctx context.Context, id string) (*types.Pattern, error)
	// UpsertPattern inserts or replaces a pattern by id, preserving the
	// original created_at on replace.
	UpsertPattern(ctx context.Context, pattern *types.Pattern) error
	// UpsertPatterns batch-upserts patterns.
	UpsertPatterns(ctx context.Context, patterns []*types.Pattern) error
	// ListPatterns returns a user's patterns, optionally filtered by kind,
	// ordered by confidence desc then last occurrence desc.
	ListPatterns(ctx context.Context, userID string, kind *types.PatternKind) ([]*types.Pattern, error)

	// GetSuggestion returns a suggestion by id, or ErrNotFound.
	GetSuggestion(ctx context.Context, id string) (*types.Suggestion, error)
	// SaveSuggestion persists a new suggestion.
	SaveSuggestion(ctx context.Context, suggestion *types.Suggestion) error
	// ListSuggestions returns a user's suggestions, optionally filtered by
	// status, ordered by created_at desc.
	ListSuggestions(ctx context.Context, userID string, status *types.SuggestionStatus) ([]*types.Suggestion, error)
	// UpdateSuggestionStatus moves a pending suggestion to a terminal
	// status. Terminal suggestions are never resurrected; attempting to
	// move one returns ErrInvalidTransition.
	UpdateSuggestionStatus(ctx context.Context, id string, status types.SuggestionStatus) error
	// MarkExpiredSuggestions dismisses pending suggestions whose expiry has
	// passed or that were created before staleBefore, returning the count.
	// Rows are kept for analytics, never deleted.
	MarkExpiredSuggestions(ctx context.Context, userID string, now, staleBefore time.Time) (int, error)

	// AppendFeedback appends an immutable feedback row.
	AppendFeedback(ctx context.Context, feedback *types.Feedback) error
	// ListFeedbackSince returns a user's feedback created at or after since,
	// oldest first.
	ListFeedbackSince(ctx context.Context, userID string, since time.Time) ([]*types.Feedback, error)
	// ListFeedbackForSuggestion returns all feedback targeting a suggestion.
	ListFeedbackForSuggestion(ctx context.Context, suggestionID string) ([]*types.Feedback, error)

	// AppendCalibration appends a confidence calibration audit row.
	AppendCalibration(ctx context.Context, calibration *types.ConfidenceCalibration) error
	// GetAdjustment returns the calibration factor for a confidence bucket,
	// or ErrNotFound when the bucket has never been touched.
	GetAdjustment(ctx context.Context, userID string, bucket int) (*types.ConfidenceAdjustment, error)
	// UpsertAdjustment inserts or replaces a bucket adjustment.
	UpsertAdjustment(ctx context.Context, adjustment *types.ConfidenceAdjustment) error
	// ListAdjustments returns all bucket adjustments for a user.
	ListAdjustments(ctx context.Context, userID string) ([]*types.ConfidenceAdjustment, error)

	// AppendTimingPreference appends a timing preference observation.
	AppendTimingPreference(ctx context.Context, pref *types.TimingPreference) error
	// ListTimingPreferences returns all timing observations for a user.
	ListTimingPreferences(ctx context.Context, userID string) ([]*types.TimingPreference, error)

	// WithTx runs fn against a transactional view of the store. Feedback
	// processing uses this so a status flip, pattern updates, and
	// calibration writes commit or roll back together.
	WithTx(ctx context.Context, fn func(PatternStore) error) error
}
