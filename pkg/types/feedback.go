package types

import (
	"errors"
	"time"
)

// FeedbackType represents the polarity of user feedback
type FeedbackType string

const (
	// FeedbackPositive indicates the suggestion was accepted or useful
	FeedbackPositive FeedbackType = "positive"
	// FeedbackNegative indicates the suggestion was rejected or unhelpful
	FeedbackNegative FeedbackType = "negative"
)

// Valid returns true if the feedback type is valid
func (ft FeedbackType) Valid() bool {
	return ft == FeedbackPositive || ft == FeedbackNegative
}

// FeedbackContext captures the situation at feedback time.
type FeedbackContext struct {
	HourOfDay int    `json:"hour_of_day"`
	DayOfWeek int    `json:"day_of_week"`
	Location  string `json:"location,omitempty"`
	Device    string `json:"device,omitempty"`
	Activity  string `json:"activity,omitempty"`
}

// Feedback is one accept/reject signal for a suggestion. Rows are
// append-only and immutable once written.
type Feedback struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	SuggestionID string           `json:"suggestion_id"`
	Type         FeedbackType     `json:"type"`
	Reason       string           `json:"reason,omitempty"`
	Context      *FeedbackContext `json:"context,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Validate checks structural invariants of the feedback record.
func (f *Feedback) Validate() error {
	if f.ID == "" {
		return errors.New("feedback ID is required")
	}
	if f.UserID == "" {
		return errors.New("feedback user ID is required")
	}
	if f.SuggestionID == "" {
		return errors.New("feedback suggestion ID is required")
	}
	if !f.Type.Valid() {
		return errors.New("invalid feedback type: " + string(f.Type))
	}
	return nil
}

// ConfidenceCalibration is one audit row recording how a feedback event
// moved a pattern's confidence relative to the suggestion it backed.
type ConfidenceCalibration struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"user_id"`
	PatternID            string        `json:"pattern_id"`
	PatternKinds         []PatternKind `json:"pattern_kinds"`
	Category             string        `json:"category"`
	SuggestionConfidence float64       `json:"suggestion_confidence"`
	PatternConfidence    float64       `json:"pattern_confidence"`
	Delta                float64       `json:"delta"`
	FeedbackType         FeedbackType  `json:"feedback_type"`
	CreatedAt            time.Time     `json:"created_at"`
}

// AdjustmentBuckets is the number of fixed confidence buckets.
const AdjustmentBuckets = 5

// ConfidenceBucket maps a confidence in [0,1] to one of five fixed
// 20%-wide buckets (0-20, 20-40, 40-60, 60-80, 80-100).
func ConfidenceBucket(confidence float64) int {
	bucket := int(Clamp01(confidence) * 100 / 20)
	if bucket >= AdjustmentBuckets {
		bucket = AdjustmentBuckets - 1
	}
	return bucket
}

// BucketLabel returns the human-readable range for a bucket index.
func BucketLabel(bucket int) string {
	labels := [AdjustmentBuckets]string{"0-20", "20-40", "40-60", "60-80", "80-100"}
	if bucket < 0 || bucket >= AdjustmentBuckets {
		return "unknown"
	}
	return labels[bucket]
}

// BucketMidpoint returns the confidence midpoint of a bucket, in [0,1].
func BucketMidpoint(bucket int) float64 {
	return (float64(bucket)*20 + 10) / 100
}

// ConfidenceAdjustment is a per-(user, bucket) multiplicative calibration
// factor maintained as an exponential moving average on feedback events.
type ConfidenceAdjustment struct {
	UserID      string    `json:"user_id"`
	Bucket      int       `json:"bucket"`
	Factor      float64   `json:"factor"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AdjustmentEMAWeight is the weight of the previous factor in the EMA.
const AdjustmentEMAWeight = 0.8

// Apply folds an incoming factor into the EMA: new = 0.8*old + 0.2*incoming.
func (a *ConfidenceAdjustment) Apply(incoming float64, now time.Time) {
	if a.SampleCount == 0 {
		a.Factor = incoming
	} else {
		a.Factor = AdjustmentEMAWeight*a.Factor + (1-AdjustmentEMAWeight)*incoming
	}
	a.SampleCount++
	a.UpdatedAt = now
}

// TimingPreference records one observed accept/reject outcome by hour and
// weekday, later aggregated into per-hour and per-weekday positive ratios.
type TimingPreference struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	HourOfDay int       `json:"hour_of_day"`
	DayOfWeek int       `json:"day_of_week"`
	Category  string    `json:"category"`
	Positive  bool      `json:"positive"`
	CreatedAt time.Time `json:"created_at"`
}
