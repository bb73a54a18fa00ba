package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tasksense/internal/logging"
	"tasksense/pkg/types"
)

// Dialect names accepted by NewSQLPatternStore.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLPatternStore implements PatternStore over database/sql. Queries are
// written with ? placeholders and rebound for the postgres dialect.
type SQLPatternStore struct {
	db      *sql.DB
	q       queryable
	dialect string
	logger  logging.Logger
}

// NewSQLPatternStore creates a SQL-backed pattern store.
func NewSQLPatternStore(db *sql.DB, dialect string, logger logging.Logger) (*SQLPatternStore, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &SQLPatternStore{
		db:      db,
		q:       db,
		dialect: dialect,
		logger:  logger.WithComponent("storage"),
	}, nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *SQLPatternStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WithTx runs fn inside a database transaction. When already inside a
// transaction the callback runs on the same one.
func (s *SQLPatternStore) WithTx(ctx context.Context, fn func(PatternStore) error) error {
	if s.db == nil {
		// Already transactional.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &SQLPatternStore{q: tx, dialect: s.dialect, logger: s.logger}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- Patterns ---

const patternColumns = `id, user_id, kind, payload, confidence, frequency,
	last_occurrence, next_predicted, created_at, updated_at`

// GetPattern retrieves a pattern by id.
func (s *SQLPatternStore) GetPattern(ctx context.Context, id string) (*types.Pattern, error) {
	query := s.rebind(`SELECT ` + patternColumns + ` FROM patterns WHERE id = ?`)
	row := s.q.QueryRowContext(ctx, query, id)
	pattern, err := s.scanPattern(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return pattern, err
}

// UpsertPattern inserts or replaces a pattern, preserving created_at.
func (s *SQLPatternStore) UpsertPattern(ctx context.Context, pattern *types.Pattern) error {
	if err := pattern.Validate(); err != nil {
		return fmt.Errorf("refusing to store pattern: %w", err)
	}
	payload, err := types.MarshalPayload(pattern.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern payload: %w", err)
	}

	query := s.rebind(`
		INSERT INTO patterns (` + patternColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			kind = excluded.kind,
			payload = excluded.payload,
			confidence = excluded.confidence,
			frequency = excluded.frequency,
			last_occurrence = excluded.last_occurrence,
			next_predicted = excluded.next_predicted,
			updated_at = excluded.updated_at`)

	_, err = s.q.ExecContext(ctx, query,
		pattern.ID,
		pattern.UserID,
		string(pattern.Kind),
		string(payload),
		pattern.Confidence,
		pattern.Frequency,
		pattern.LastOccurrence,
		pattern.NextPredicted,
		pattern.CreatedAt,
		pattern.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pattern: %w", err)
	}
	return nil
}

// UpsertPatterns batch-upserts patterns.
func (s *SQLPatternStore) UpsertPatterns(ctx context.Context, patterns []*types.Pattern) error {
	for _, p := range patterns {
		if err := s.UpsertPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ListPatterns returns a user's patterns ordered by confidence then recency.
func (s *SQLPatternStore) ListPatterns(ctx context.Context, userID string, kind *types.PatternKind) ([]*types.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM patterns WHERE user_id = ?`
	args := []interface{}{userID}
	if kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY confidence DESC, last_occurrence DESC`

	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	defer s.closeRows(rows, "patterns")

	var patterns []*types.Pattern
	for rows.Next() {
		pattern, err := s.scanPattern(rows.Scan)
		if err != nil {
			if errors.Is(err, types.ErrMalformedPayload) {
				// Corrupt payloads are skipped, never fatal.
				continue
			}
			return nil, err
		}
		patterns = append(patterns, pattern)
	}
	return patterns, rows.Err()
}

func (s *SQLPatternStore) scanPattern(scan func(...interface{}) error) (*types.Pattern, error) {
	var pattern types.Pattern
	var kind, payload string
	var nextPredicted sql.NullTime

	err := scan(
		&pattern.ID,
		&pattern.UserID,
		&kind,
		&payload,
		&pattern.Confidence,
		&pattern.Frequency,
		&pattern.LastOccurrence,
		&nextPredicted,
		&pattern.CreatedAt,
		&pattern.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pattern.Kind = types.PatternKind(kind)
	if nextPredicted.Valid {
		t := nextPredicted.Time
		pattern.NextPredicted = &t
	}

	decoded, err := types.UnmarshalPayload([]byte(payload))
	if err != nil {
		s.logger.Warn("skipping pattern with malformed payload", "pattern_id", pattern.ID, "error", err)
		return nil, err
	}
	pattern.Payload = decoded
	return &pattern, nil
}

// --- Suggestions ---

const suggestionColumns = `id, user_id, title, category, priority, confidence,
	reasoning, based_on, source, time_estimate_minutes, optimal_time, status,
	created_at, expires_at`

// GetSuggestion retrieves a suggestion by id.
func (s *SQLPatternStore) GetSuggestion(ctx context.Context, id string) (*types.Suggestion, error) {
	query := s.rebind(`SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = ?`)
	row := s.q.QueryRowContext(ctx, query, id)
	suggestion, err := s.scanSuggestion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	return suggestion, err
}

// SaveSuggestion persists a new suggestion.
func (s *SQLPatternStore) SaveSuggestion(ctx context.Context, suggestion *types.Suggestion) error {
	if err := suggestion.Validate(); err != nil {
		return fmt.Errorf("refusing to store suggestion: %w", err)
	}
	reasoning, err := json.Marshal(suggestion.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to marshal reasoning: %w", err)
	}
	basedOn, err := json.Marshal(suggestion.BasedOn)
	if err != nil {
		return fmt.Errorf("failed to marshal based_on: %w", err)
	}

	query := s.rebind(`
		INSERT INTO suggestions (` + suggestionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.q.ExecContext(ctx, query,
		suggestion.ID,
		suggestion.UserID,
		suggestion.Title,
		suggestion.Category,
		suggestion.Priority,
		suggestion.Confidence,
		string(reasoning),
		string(basedOn),
		string(suggestion.Source),
		suggestion.TimeEstimateMinutes,
		suggestion.OptimalTime,
		string(suggestion.Status),
		suggestion.CreatedAt,
		suggestion.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save suggestion: %w", err)
	}
	return nil
}

// ListSuggestions returns a user's suggestions, newest first.
func (s *SQLPatternStore) ListSuggestions(ctx context.Context, userID string, status *types.SuggestionStatus) ([]*types.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE user_id = ?`
	args := []interface{}{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer s.closeRows(rows, "suggestions")

	var suggestions []*types.Suggestion
	for rows.Next() {
		suggestion, err := s.scanSuggestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, suggestion)
	}
	return suggestions, rows.Err()
}

func (s *SQLPatternStore) scanSuggestion(scan func(...interface{}) error) (*types.Suggestion, error) {
	var suggestion types.Suggestion
	var source, status, reasoning, basedOn string
	var timeEstimate sql.NullInt64
	var optimalTime sql.NullTime

	err := scan(
		&suggestion.ID,
		&suggestion.UserID,
		&suggestion.Title,
		&suggestion.Category,
		&suggestion.Priority,
		&suggestion.Confidence,
		&reasoning,
		&basedOn,
		&source,
		&timeEstimate,
		&optimalTime,
		&status,
		&suggestion.CreatedAt,
		&suggestion.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	suggestion.Source = types.SuggestionSource(source)
	suggestion.Status = types.SuggestionStatus(status)
	if timeEstimate.Valid {
		v := int(timeEstimate.Int64)
		suggestion.TimeEstimateMinutes = &v
	}
	if optimalTime.Valid {
		t := optimalTime.Time
		suggestion.OptimalTime = &t
	}
	if err := json.Unmarshal([]byte(reasoning), &suggestion.Reasoning); err != nil {
		s.logger.Warn("resetting malformed reasoning", "suggestion_id", suggestion.ID, "error", err)
		suggestion.Reasoning = nil
	}
	if err := json.Unmarshal([]byte(basedOn), &suggestion.BasedOn); err != nil {
		s.logger.Warn("resetting malformed based_on", "suggestion_id", suggestion.ID, "error", err)
		suggestion.BasedOn = nil
	}
	return &suggestion, nil
}

// UpdateSuggestionStatus flips a pending suggestion to a terminal status.
func (s *SQLPatternStore) UpdateSuggestionStatus(ctx context.Context, id string, status types.SuggestionStatus) error {
	if !types.StatusPending.CanTransitionTo(status) {
		return fmt.Errorf("cannot transition to %s: %w", status, ErrInvalidTransition)
	}

	query := s.rebind(`UPDATE suggestions SET status = ? WHERE id = ? AND status = ?`)
	result, err := s.q.ExecContext(ctx, query, string(status), id, string(types.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a terminal one.
		if _, getErr := s.GetSuggestion(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("suggestion %s: %w", id, ErrInvalidTransition)
	}
	return nil
}

// MarkExpiredSuggestions dismisses expired and stale pending suggestions.
func (s *SQLPatternStore) MarkExpiredSuggestions(ctx context.Context, userID string, now, staleBefore time.Time) (int, error) {
	query := s.rebind(`
		UPDATE suggestions SET status = ?
		WHERE user_id = ? AND status = ? AND (expires_at < ? OR created_at < ?)`)

	result, err := s.q.ExecContext(ctx, query,
		string(types.StatusDismissed), userID, string(types.StatusPending), now, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired suggestions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

// --- Feedback ---

// AppendFeedback appends an immutable feedback row.
func (s *SQLPatternStore) AppendFeedback(ctx context.Context, feedback *types.Feedback) error {
	if err := feedback.Validate(); err != nil {
		return fmt.Errorf("refusing to store feedback: %w", err)
	}
	var contextJSON interface{}
	if feedback.Context != nil {
		raw, err := json.Marshal(feedback.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal feedback context: %w", err)
		}
		contextJSON = string(raw)
	}

	query := s.rebind(`
		INSERT INTO feedback (id, user_id, suggestion_id, type, reason, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.q.ExecContext(ctx, query,
		feedback.ID,
		feedback.UserID,
		feedback.SuggestionID,
		string(feedback.Type),
		feedback.Reason,
		contextJSON,
		feedback.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// ListFeedbackSince returns a user's feedback at or after since, oldest first.
func (s *SQLPatternStore) ListFeedbackSince(ctx context.Context, userID string, since time.Time) ([]*types.Feedback, error) {
	query := s.rebind(`
		SELECT id, user_id, suggestion_id, type, reason, context, created_at
		FROM feedback WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC`)

	rows, err := s.q.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer s.closeRows(rows, "feedback")
	return s.scanFeedbackRows(rows)
}

// ListFeedbackForSuggestion returns all feedback targeting a suggestion.
func (s *SQLPatternStore) ListFeedbackForSuggestion(ctx context.Context, suggestionID string) ([]*types.Feedback, error) {
	query := s.rebind(`
		SELECT id, user_id, suggestion_id, type, reason, context, created_at
		FROM feedback WHERE suggestion_id = ?
		ORDER BY created_at ASC`)

	rows, err := s.q.QueryContext(ctx, query, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback for suggestion: %w", err)
	}
	defer s.closeRows(rows, "feedback")
	return s.scanFeedbackRows(rows)
}

func (s *SQLPatternStore) scanFeedbackRows(rows *sql.Rows) ([]*types.Feedback, error) {
	var items []*types.Feedback
	for rows.Next() {
		var fb types.Feedback
		var fbType string
		var contextJSON sql.NullString

		err := rows.Scan(&fb.ID, &fb.UserID, &fb.SuggestionID, &fbType, &fb.Reason, &contextJSON, &fb.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		fb.Type = types.FeedbackType(fbType)
		if contextJSON.Valid && contextJSON.String != "" {
			var fc types.FeedbackContext
			if err := json.Unmarshal([]byte(contextJSON.String), &fc); err != nil {
				s.logger.Warn("skipping malformed feedback context", "feedback_id", fb.ID, "error", err)
			} else {
				fb.Context = &fc
			}
		}
		items = append(items, &fb)
	}
	return items, rows.Err()
}

// --- Calibration ---

// AppendCalibration appends a calibration audit row.
func (s *SQLPatternStore) AppendCalibration(ctx context.Context, calibration *types.ConfidenceCalibration) error {
	kinds, err := json.Marshal(calibration.PatternKinds)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern kinds: %w", err)
	}

	query := s.rebind(`
		INSERT INTO confidence_calibrations (
			id, user_id, pattern_id, pattern_kinds, category,
			suggestion_confidence, pattern_confidence, delta, feedback_type, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.q.ExecContext(ctx, query,
		calibration.ID,
		calibration.UserID,
		calibration.PatternID,
		string(kinds),
		calibration.Category,
		calibration.SuggestionConfidence,
		calibration.PatternConfidence,
		calibration.Delta,
		string(calibration.FeedbackType),
		calibration.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append calibration: %w", err)
	}
	return nil
}

// GetAdjustment returns the calibration factor for a bucket.
func (s *SQLPatternStore) GetAdjustment(ctx context.Context, userID string, bucket int) (*types.ConfidenceAdjustment, error) {
	query := s.rebind(`
		SELECT user_id, bucket, factor, sample_count, updated_at
		FROM confidence_adjustments WHERE user_id = ? AND bucket = ?`)

	var adj types.ConfidenceAdjustment
	err := s.q.QueryRowContext(ctx, query, userID, bucket).Scan(
		&adj.UserID, &adj.Bucket, &adj.Factor, &adj.SampleCount, &adj.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjustment bucket %d: %w", bucket, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adjustment: %w", err)
	}
	return &adj, nil
}

// UpsertAdjustment inserts or replaces a bucket adjustment.
func (s *SQLPatternStore) UpsertAdjustment(ctx context.Context, adjustment *types.ConfidenceAdjustment) error {
	query := s.rebind(`
		INSERT INTO confidence_adjustments (user_id, bucket, factor, sample_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, bucket) DO UPDATE SET
			factor = excluded.factor,
			sample_count = excluded.sample_count,
			updated_at = excluded.updated_at`)

	_, err := s.q.ExecContext(ctx, query,
		adjustment.UserID, adjustment.Bucket, adjustment.Factor,
		adjustment.SampleCount, adjustment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert adjustment: %w", err)
	}
	return nil
}

// ListAdjustments returns all bucket adjustments for a user.
func (s *SQLPatternStore) ListAdjustments(ctx context.Context, userID string) ([]*types.ConfidenceAdjustment, error) {
	query := s.rebind(`
		SELECT user_id, bucket, factor, sample_count, updated_at
		FROM confidence_adjustments WHERE user_id = ? ORDER BY bucket ASC`)

	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer s.closeRows(rows, "adjustments")

	var items []*types.ConfidenceAdjustment
	for rows.Next() {
		var adj types.ConfidenceAdjustment
		if err := rows.Scan(&adj.UserID, &adj.Bucket, &adj.Factor, &adj.SampleCount, &adj.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		items = append(items, &adj)
	}
	return items, rows.Err()
}

// --- Timing preferences ---

// AppendTimingPreference appends a timing observation.
func (s *SQLPatternStore) AppendTimingPreference(ctx context.Context, pref *types.TimingPreference) error {
	query := s.rebind(`
		INSERT INTO timing_preferences (id, user_id, hour_of_day, day_of_week, category, positive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.q.ExecContext(ctx, query,
		pref.ID, pref.UserID, pref.HourOfDay, pref.DayOfWeek,
		pref.Category, pref.Positive, pref.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append timing preference: %w", err)
	}
	return nil
}

// ListTimingPreferences returns all timing observations for a user.
func (s *SQLPatternStore) ListTimingPreferences(ctx context.Context, userID string) ([]*types.TimingPreference, error) {
	query := s.rebind(`
		SELECT id, user_id, hour_of_day, day_of_week, category, positive, created_at
		FROM timing_preferences WHERE user_id = ? ORDER BY created_at ASC`)

	rows, err := s.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timing preferences: %w", err)
	}
	defer s.closeRows(rows, "timing preferences")

	var items []*types.TimingPreference
	for rows.Next() {
		var pref types.TimingPreference
		if err := rows.Scan(&pref.ID, &pref.UserID, &pref.HourOfDay, &pref.DayOfWeek,
			&pref.Category, &pref.Positive, &pref.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timing preference: %w", err)
		}
		items = append(items, &pref)
	}
	return items, rows.Err()
}

func (s *SQLPatternStore) closeRows(rows *sql.Rows, description string) {
	if err := rows.Close(); err != nil {
		s.logger.Error("failed to close rows", "description", description, "error", err)
	}
}
