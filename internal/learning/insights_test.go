package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

// seedOutcome stores a terminal suggestion plus its feedback row.
func seedOutcome(t *testing.T, store *storage.MockPatternStore, category string, positive bool, at time.Time) {
	t.Helper()
	ctx := context.Background()

	status := types.StatusAccepted
	fbType := types.FeedbackPositive
	if !positive {
		status = types.StatusRejected
		fbType = types.FeedbackNegative
	}

	s := &types.Suggestion{
		ID:         fmt.Sprintf("%s-%d-%t", category, at.UnixNano(), positive),
		UserID:     "user-1",
		Title:      "T",
		Category:   category,
		Priority:   types.PriorityLow,
		Confidence: 0.7,
		BasedOn:    []types.PatternRef{{Kind: types.PatternKindTemporal, ID: "p-" + category}},
		Source:     types.SourceTemporal,
		Status:     status,
		CreatedAt:  at,
		ExpiresAt:  at.Add(time.Hour),
	}
	require.NoError(t, store.SaveSuggestion(ctx, s))
	require.NoError(t, store.AppendFeedback(ctx, &types.Feedback{
		ID: s.ID + "-fb", UserID: "user-1", SuggestionID: s.ID, Type: fbType, CreatedAt: at,
	}))
}

func TestGenerateFeedbackAnalytics(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		seedOutcome(t, store, "work", true, now.Add(time.Duration(i)*time.Minute))
	}
	seedOutcome(t, store, "work", false, now.Add(10*time.Minute))
	seedOutcome(t, store, "home", false, now.Add(11*time.Minute))

	analytics, err := svc.GenerateFeedbackAnalytics(ctx, "user-1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 6, analytics.Total)
	assert.Equal(t, 4, analytics.Positive)
	assert.Equal(t, 2, analytics.Negative)
	assert.InDelta(t, 4.0/6.0, analytics.AcceptanceRate, 0.001)

	work := analytics.ByCategory["work"]
	assert.Equal(t, 5, work.Total)
	assert.InDelta(t, 0.8, work.AcceptanceRate, 0.001)

	nine := analytics.ByHour[9]
	assert.Equal(t, 6, nine.Total)
}

func TestGenerateFeedbackAnalyticsWindow(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	seedOutcome(t, store, "work", true, now.AddDate(0, 0, -60))
	seedOutcome(t, store, "work", true, now)

	analytics, err := svc.GenerateFeedbackAnalytics(ctx, "user-1", now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.Total, "only feedback inside the window counts")
}

func TestLearningInsightsCategoryPreference(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	// 5/5 accepted in "work", 0/5 in "chores".
	for i := 0; i < 5; i++ {
		seedOutcome(t, store, "work", true, now.Add(time.Duration(i)*time.Minute))
		seedOutcome(t, store, "chores", false, now.Add(time.Duration(i)*time.Minute))
	}

	work := seedPattern(t, store, 0.5)
	work.Payload = &types.TemporalPayload{Category: "work", TimeOfDay: 8, DayOfWeek: 1, PeriodType: types.PeriodWeekly}
	require.NoError(t, store.UpsertPattern(ctx, work))
	chores := seedPattern(t, store, 0.5)
	chores.Payload = &types.TemporalPayload{Category: "chores", TimeOfDay: 8, DayOfWeek: 2, PeriodType: types.PeriodWeekly}
	require.NoError(t, store.UpsertPattern(ctx, chores))

	insights, err := svc.GetLearningInsights(ctx, "user-1", now.Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, insights)

	var sawWork, sawChores bool
	for _, insight := range insights {
		if insight.Message == "You accept 100% of work suggestions; expect more of them." {
			sawWork = true
			assert.Equal(t, ImpactHigh, insight.Impact)
			assert.Equal(t, "raising confidence of work patterns", insight.Action)
		}
		if insight.Message == "You decline most chores suggestions (0% accepted); they will be shown less." {
			sawChores = true
			assert.Equal(t, ImpactHigh, insight.Impact)
		}
	}
	assert.True(t, sawWork, "strong positive category insight: %v", insights)
	assert.True(t, sawChores, "strong negative category insight: %v", insights)

	// The insight nudges the underlying patterns by the minimum rate.
	gotWork, err := store.GetPattern(ctx, work.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5+0.02, gotWork.Confidence, 0.001)

	gotChores, err := store.GetPattern(ctx, chores.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5-0.02, gotChores.Confidence, 0.001)
}

func TestLearningInsightsBucketDivergence(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	// Confidence 0.7 sits in the 60-80 bucket (midpoint 0.7); a 0%
	// acceptance rate diverges well past 0.2.
	for i := 0; i < 4; i++ {
		seedOutcome(t, store, "misc", false, now.Add(time.Duration(i)*time.Minute))
	}

	insights, err := svc.GetLearningInsights(ctx, "user-1", now.Add(time.Hour))
	require.NoError(t, err)

	var sawBucket bool
	for _, insight := range insights {
		if insight.Message == "Suggestions in the 60-80% confidence range are accepted 0% of the time; confidence is being recalibrated." {
			sawBucket = true
			assert.Equal(t, ImpactMedium, insight.Impact)
		}
	}
	assert.True(t, sawBucket, "bucket divergence insight: %v", insights)
}

func TestLearningInsightsNoFeedback(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	insights, err := svc.GetLearningInsights(ctx, "user-1", time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, insights)
}
