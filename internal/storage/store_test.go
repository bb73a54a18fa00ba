package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksense/pkg/types"
)

func newTemporalPattern(userID string, confidence float64, last time.Time) *types.Pattern {
	now := time.Now().UTC()
	return &types.Pattern{
		ID:     uuid.New().String(),
		UserID: userID,
		Kind:   types.PatternKindTemporal,
		Payload: &types.TemporalPayload{
			Category:   "work",
			TimeOfDay:  8,
			DayOfWeek:  1,
			PeriodType: types.PeriodDaily,
		},
		Confidence:     confidence,
		Frequency:      5,
		LastOccurrence: last,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func newSuggestion(userID string, createdAt time.Time) *types.Suggestion {
	return &types.Suggestion{
		ID:         uuid.New().String(),
		UserID:     userID,
		Title:      "Morning review",
		Category:   "work",
		Priority:   types.PriorityMedium,
		Confidence: 0.6,
		Source:     types.SourceTemporal,
		Status:     types.StatusPending,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(2 * time.Hour),
	}
}

func TestListPatternsOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()
	now := time.Now().UTC()

	low := newTemporalPattern("user-1", 0.3, now.Add(-time.Hour))
	highOld := newTemporalPattern("user-1", 0.8, now.Add(-48*time.Hour))
	highNew := newTemporalPattern("user-1", 0.8, now)
	other := newTemporalPattern("user-2", 0.9, now)

	require.NoError(t, store.UpsertPatterns(ctx, []*types.Pattern{low, highOld, highNew, other}))

	patterns, err := store.ListPatterns(ctx, "user-1", nil)
	require.NoError(t, err)
	require.Len(t, patterns, 3)
	assert.Equal(t, highNew.ID, patterns[0].ID)
	assert.Equal(t, highOld.ID, patterns[1].ID)
	assert.Equal(t, low.ID, patterns[2].ID)
}

func TestUpsertPatternPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()

	pattern := newTemporalPattern("user-1", 0.5, time.Now().UTC())
	original := pattern.CreatedAt
	require.NoError(t, store.UpsertPattern(ctx, pattern))

	updated := *pattern
	updated.Confidence = 0.7
	updated.CreatedAt = original.Add(time.Hour)
	updated.UpdatedAt = original.Add(time.Hour)
	require.NoError(t, store.UpsertPattern(ctx, &updated))

	stored, err := store.GetPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.7, stored.Confidence)
	assert.True(t, stored.CreatedAt.Equal(original))
}

func TestUpsertPatternRejectsMismatchedPayload(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()

	pattern := newTemporalPattern("user-1", 0.5, time.Now().UTC())
	pattern.Kind = types.PatternKindSequential
	assert.Error(t, store.UpsertPattern(ctx, pattern))
}

func TestSuggestionStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()
	now := time.Now().UTC()

	s := newSuggestion("user-1", now)
	require.NoError(t, store.SaveSuggestion(ctx, s))

	require.NoError(t, store.UpdateSuggestionStatus(ctx, s.ID, types.StatusAccepted))

	err := store.UpdateSuggestionStatus(ctx, s.ID, types.StatusRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = store.UpdateSuggestionStatus(ctx, "missing", types.StatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkExpiredSuggestions(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()
	now := time.Now().UTC()

	expired := newSuggestion("user-1", now.Add(-3*time.Hour))
	stale := newSuggestion("user-1", now.Add(-8*24*time.Hour))
	stale.ExpiresAt = now.Add(time.Hour)
	fresh := newSuggestion("user-1", now)
	accepted := newSuggestion("user-1", now.Add(-3*time.Hour))
	accepted.Status = types.StatusAccepted

	for _, s := range []*types.Suggestion{expired, stale, fresh, accepted} {
		require.NoError(t, store.SaveSuggestion(ctx, s))
	}

	count, err := store.MarkExpiredSuggestions(ctx, "user-1", now, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store.GetSuggestion(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)

	got, err = store.GetSuggestion(ctx, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAccepted, got.Status)

	got, err = store.GetSuggestion(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDismissed, got.Status)
}

func TestFeedbackIsAppendOnlyAndOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()
	now := time.Now().UTC()

	s := newSuggestion("user-1", now)
	require.NoError(t, store.SaveSuggestion(ctx, s))

	for i := 0; i < 3; i++ {
		fb := &types.Feedback{
			ID:           uuid.New().String(),
			UserID:       "user-1",
			SuggestionID: s.ID,
			Type:         types.FeedbackPositive,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.AppendFeedback(ctx, fb))
	}

	items, err := store.ListFeedbackSince(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i := 1; i < len(items); i++ {
		assert.True(t, !items[i].CreatedAt.Before(items[i-1].CreatedAt))
	}

	byID, err := store.ListFeedbackForSuggestion(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, byID, 3)
}

func TestAdjustmentUpsertAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMockPatternStore()
	now := time.Now().UTC()

	_, err := store.GetAdjustment(ctx, "user-1", 2)
	assert.ErrorIs(t, err, ErrNotFound)

	adj := &types.ConfidenceAdjustment{UserID: "user-1", Bucket: 2, Factor: 1.1, SampleCount: 1, UpdatedAt: now}
	require.NoError(t, store.UpsertAdjustment(ctx, adj))

	adj.Factor = 0.9
	require.NoError(t, store.UpsertAdjustment(ctx, adj))

	got, err := store.GetAdjustment(ctx, "user-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Factor)

	all, err := store.ListAdjustments(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRebindPlaceholders(t *testing.T) {
	pg := &SQLPatternStore{dialect: DialectPostgres}
	lite := &SQLPatternStore{dialect: DialectSQLite}

	query := `SELECT * FROM patterns WHERE user_id = ? AND kind = ?`
	assert.Equal(t, `SELECT * FROM patterns WHERE user_id = $1 AND kind = $2`, pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}
