package suggestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/mining"
	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

func newTestEngine(t *testing.T, store storage.PatternStore) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	log := logging.NewNoopLogger()
	return NewEngine(cfg.Suggestions, store, mining.NewSequentialMiner(cfg.Mining, log), NewTemplateTitleSource(42), log)
}

func storedPattern(userID string, kind types.PatternKind, payload types.PatternPayload, confidence float64, last time.Time) *types.Pattern {
	return &types.Pattern{
		ID:             string(kind) + "-" + userID + "-" + last.Format("150405"),
		UserID:         userID,
		Kind:           kind,
		Payload:        payload,
		Confidence:     confidence,
		Frequency:      5,
		LastOccurrence: last,
		CreatedAt:      last,
		UpdatedAt:      last,
	}
}

func TestEngineDiscardsLowConfidence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	engine := newTestEngine(t, store)
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	weak := storedPattern("user-1", types.PatternKindTemporal, &types.TemporalPayload{
		Category: "work", TimeOfDay: 8, DayOfWeek: 6, PeriodType: types.PeriodWeekly,
	}, 0.1, now.Add(-24*time.Hour))
	require.NoError(t, store.UpsertPattern(ctx, weak))

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: now})
	assert.Empty(t, candidates, "0.1 is below the minimum confidence")
}

func TestEngineHybridConfidence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	engine := newTestEngine(t, store)
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	temporal := storedPattern("user-1", types.PatternKindTemporal, &types.TemporalPayload{
		Category: "work", TimeOfDay: 8, DayOfWeek: 6, PeriodType: types.PeriodWeekly,
	}, 0.6, now.Add(-24*time.Hour))
	frequency := storedPattern("user-1", types.PatternKindFrequency, &types.FrequencyPayload{
		Category: "work", IntervalHours: 24, Count: 5,
	}, 0.8, now.Add(-48*time.Hour))
	require.NoError(t, store.UpsertPatterns(ctx, []*types.Pattern{temporal, frequency}))

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: now})
	require.NotEmpty(t, candidates)

	var hybrid *types.SuggestionCandidate
	for _, c := range candidates {
		if c.Source == types.SourceHybrid {
			hybrid = c
		}
	}
	require.NotNil(t, hybrid)

	// mean(0.6, 0.8) + one extra-pattern bonus, no contextual member.
	assert.InDelta(t, 0.7+0.1, hybrid.Confidence, 0.001)
	assert.Len(t, hybrid.BasedOn, 2)
	assert.LessOrEqual(t, hybrid.Confidence, 0.95)
}

func TestEngineHybridConfidenceCapped(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	engine := newTestEngine(t, store)
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	patterns := []*types.Pattern{
		storedPattern("user-1", types.PatternKindTemporal, &types.TemporalPayload{
			Category: "work", TimeOfDay: 8, DayOfWeek: 6, PeriodType: types.PeriodWeekly,
		}, 0.95, now.Add(-time.Hour)),
		storedPattern("user-1", types.PatternKindFrequency, &types.FrequencyPayload{
			Category: "work", IntervalHours: 24, Count: 9,
		}, 0.95, now.Add(-48*time.Hour)),
		storedPattern("user-1", types.PatternKindContextual, &types.ContextualPayload{
			ContextType: types.ContextTypeTimeOfDay, Category: "work", TimeSlot: types.SlotMorning,
		}, 0.95, now.Add(-2*time.Hour)),
	}
	require.NoError(t, store.UpsertPatterns(ctx, patterns))

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: now})
	for _, c := range candidates {
		if c.Source == types.SourceHybrid {
			assert.Equal(t, 0.95, c.Confidence)
		}
	}
}

func TestEngineHybridAcrossCategoriesWithOverlappingWindows(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	engine := newTestEngine(t, store)
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	// Work temporal window [8, 10) falls inside the errands morning slot.
	temporal := storedPattern("user-1", types.PatternKindTemporal, &types.TemporalPayload{
		Category: "work", TimeOfDay: 8, DayOfWeek: 6, PeriodType: types.PeriodWeekly,
	}, 0.6, now.Add(-24*time.Hour))
	contextual := storedPattern("user-1", types.PatternKindContextual, &types.ContextualPayload{
		ContextType: types.ContextTypeTimeOfDay, Category: "errands", TimeSlot: types.SlotMorning,
	}, 0.7, now.Add(-2*time.Hour))
	require.NoError(t, store.UpsertPatterns(ctx, []*types.Pattern{temporal, contextual}))

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: now})

	var hybrid *types.SuggestionCandidate
	for _, c := range candidates {
		if c.Source == types.SourceHybrid {
			hybrid = c
		}
	}
	require.NotNil(t, hybrid, "overlapping time windows make the pair compatible")

	// The stronger member names the suggestion.
	assert.Equal(t, "errands", hybrid.Category)
	assert.Len(t, hybrid.BasedOn, 2)
	// mean(0.6, 0.7) + extra-pattern bonus + full context-match bonus.
	assert.InDelta(t, 0.65+0.1+0.15, hybrid.Confidence, 0.001)
}

func TestEngineNoHybridWhenWindowsDisjoint(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	engine := newTestEngine(t, store)
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	temporal := storedPattern("user-1", types.PatternKindTemporal, &types.TemporalPayload{
		Category: "work", TimeOfDay: 8, DayOfWeek: 6, PeriodType: types.PeriodWeekly,
	}, 0.6, now.Add(-24*time.Hour))
	contextual := storedPattern("user-1", types.PatternKindContextual, &types.ContextualPayload{
		ContextType: types.ContextTypeTimeOfDay, Category: "errands", TimeSlot: types.SlotEvening,
	}, 0.7, now.Add(-2*time.Hour))
	require.NoError(t, store.UpsertPatterns(ctx, []*types.Pattern{temporal, contextual}))

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: now})
	for _, c := range candidates {
		assert.NotEqual(t, types.SourceHybrid, c.Source,
			"different categories with disjoint windows must not combine")
	}
}

func TestTimeRangesOverlapWrapsMidnight(t *testing.T) {
	// Night slot runs 21:00 through 04:59.
	assert.True(t, timeRangesOverlap(21, 29, 2, 4))
	assert.True(t, timeRangesOverlap(2, 4, 21, 29))
	assert.True(t, timeRangesOverlap(21, 29, 22, 24))
	assert.False(t, timeRangesOverlap(21, 29, 8, 10))
	assert.False(t, timeRangesOverlap(5, 12, 12, 17))
}

func TestEngineStoreFailureYieldsNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	store.FailNext = assert.AnError
	engine := newTestEngine(t, store)

	candidates := engine.GenerateCandidates(ctx, &types.UserContext{UserID: "user-1", Now: time.Now().UTC()})
	assert.Empty(t, candidates)
}
