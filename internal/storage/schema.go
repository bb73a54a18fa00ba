package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates every table the engine needs. The DDL is kept
// portable between postgres and sqlite3.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		frequency INTEGER NOT NULL,
		last_occurrence TIMESTAMP NOT NULL,
		next_predicted TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patterns_user_kind ON patterns (user_id, kind)`,

	`CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		priority TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reasoning TEXT NOT NULL,
		based_on TEXT NOT NULL,
		source TEXT NOT NULL,
		time_estimate_minutes INTEGER,
		optimal_time TIMESTAMP,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_user_status ON suggestions (user_id, status)`,

	`CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		suggestion_id TEXT NOT NULL,
		type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		context TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_user_created ON feedback (user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_feedback_suggestion ON feedback (suggestion_id)`,

	`CREATE TABLE IF NOT EXISTS confidence_calibrations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		pattern_id TEXT NOT NULL,
		pattern_kinds TEXT NOT NULL,
		category TEXT NOT NULL,
		suggestion_confidence DOUBLE PRECISION NOT NULL,
		pattern_confidence DOUBLE PRECISION NOT NULL,
		delta DOUBLE PRECISION NOT NULL,
		feedback_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calibrations_user ON confidence_calibrations (user_id)`,

	`CREATE TABLE IF NOT EXISTS confidence_adjustments (
		user_id TEXT NOT NULL,
		bucket INTEGER NOT NULL,
		factor DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, bucket)
	)`,

	`CREATE TABLE IF NOT EXISTS timing_preferences (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		hour_of_day INTEGER NOT NULL,
		day_of_week INTEGER NOT NULL,
		category TEXT NOT NULL,
		positive BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timing_user ON timing_preferences (user_id)`,
}

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
