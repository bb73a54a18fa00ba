// Package types provides core data structures and type definitions
// for the task-suggestion engine, including mined patterns, suggestions,
// and feedback records.
package types

import (
	"errors"
	"time"
)

// Priority levels
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// PatternKind represents the kind of mined pattern
type PatternKind string

const (
	// PatternKindTemporal represents recurring time-of-day/day-of-week patterns
	PatternKindTemporal PatternKind = "temporal"
	// PatternKindSequential represents frequent task-title subsequences (workflows)
	PatternKindSequential PatternKind = "sequential"
	// PatternKindContextual represents location/weather/calendar correlations
	PatternKindContextual PatternKind = "contextual"
	// PatternKindFrequency represents raw per-category completion frequency
	PatternKindFrequency PatternKind = "frequency"
)

// Valid returns true if the pattern kind is valid
func (pk PatternKind) Valid() bool {
	switch pk {
	case PatternKindTemporal, PatternKindSequential, PatternKindContextual, PatternKindFrequency:
		return true
	}
	return false
}

// PeriodType represents the recurrence granularity of a temporal pattern
type PeriodType string

const (
	// PeriodDaily recurs every day
	PeriodDaily PeriodType = "daily"
	// PeriodWeekly recurs every week
	PeriodWeekly PeriodType = "weekly"
	// PeriodMonthly recurs every month
	PeriodMonthly PeriodType = "monthly"
)

// Valid returns true if the period type is valid
func (pt PeriodType) Valid() bool {
	switch pt {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Period returns the length of one recurrence period.
func (pt PeriodType) Period() time.Duration {
	switch pt {
	case PeriodDaily:
		return 24 * time.Hour
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Pattern represents a mined statistical regularity in a user's
// task-completion history. Confidence is always kept within [0,1]; the
// only writers are the scoring model at mining time and the feedback
// learning loop at feedback time.
type Pattern struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Kind           PatternKind    `json:"kind"`
	Payload        PatternPayload `json:"-"`
	Confidence     float64        `json:"confidence"`
	Frequency      int            `json:"frequency"`
	LastOccurrence time.Time      `json:"last_occurrence"`
	NextPredicted  *time.Time     `json:"next_predicted,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ErrInvalidPattern is returned when a pattern fails validation
var ErrInvalidPattern = errors.New("invalid pattern")

// Validate checks structural invariants of the pattern.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return errors.New("pattern ID is required")
	}
	if p.UserID == "" {
		return errors.New("pattern user ID is required")
	}
	if !p.Kind.Valid() {
		return errors.New("invalid pattern kind: " + string(p.Kind))
	}
	if p.Payload != nil && p.Payload.PayloadKind() != p.Kind {
		return errors.New("payload kind does not match pattern kind")
	}
	if p.Frequency < 0 {
		return errors.New("pattern frequency must be >= 0")
	}
	return nil
}

// ClampConfidence clamps the pattern's confidence to [0,1].
func (p *Pattern) ClampConfidence() {
	p.Confidence = Clamp01(p.Confidence)
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp clamps v to [lo,hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
