package suggestion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksense/internal/config"
	"tasksense/internal/learning"
	"tasksense/internal/logging"
	"tasksense/internal/mining"
	"tasksense/internal/scoring"
	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

// fakeHistory is a canned HistorySource.
type fakeHistory struct {
	tasks      []types.CompletedTaskEvent
	contextual []mining.ContextualEvent
	err        error
}

func (f *fakeHistory) CompletedTasks(_ context.Context, _ string) ([]types.CompletedTaskEvent, error) {
	return f.tasks, f.err
}

func (f *fakeHistory) ContextualEvents(_ context.Context, _ string) ([]mining.ContextualEvent, error) {
	return f.contextual, f.err
}

func newTestManager(t *testing.T, store storage.PatternStore, history HistorySource) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	model := scoring.NewModel(cfg.Scoring)
	log := logging.NewNoopLogger()
	seq := mining.NewSequentialMiner(cfg.Mining, log)
	engine := NewEngine(cfg.Suggestions, store, seq, NewTemplateTitleSource(1), log)
	ranker := NewRanker(cfg.Suggestions)

	return NewManager(cfg.Suggestions, ManagerDeps{
		Store:      store,
		Engine:     engine,
		Ranker:     ranker,
		Filter:     NewDiversityFilter(cfg.Suggestions, ranker),
		Temporal:   mining.NewTemporalMiner(cfg.Mining, model, log),
		Sequential: seq,
		Contextual: mining.NewContextualMiner(cfg.Mining, log),
		Frequency:  mining.NewFrequencyMiner(cfg.Mining, model, log),
		History:    history,
		Logger:     log,
	})
}

// newLearningManager wires the manager with a real learning service so
// stored feedback history influences mining and ranking.
func newLearningManager(t *testing.T, store storage.PatternStore, history HistorySource) *Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	model := scoring.NewModel(cfg.Scoring)
	log := logging.NewNoopLogger()
	seq := mining.NewSequentialMiner(cfg.Mining, log)
	engine := NewEngine(cfg.Suggestions, store, seq, NewTemplateTitleSource(1), log)
	ranker := NewRanker(cfg.Suggestions)

	return NewManager(cfg.Suggestions, ManagerDeps{
		Store:      store,
		Engine:     engine,
		Ranker:     ranker,
		Filter:     NewDiversityFilter(cfg.Suggestions, ranker),
		Temporal:   mining.NewTemporalMiner(cfg.Mining, model, log),
		Sequential: seq,
		Contextual: mining.NewContextualMiner(cfg.Mining, log),
		Frequency:  mining.NewFrequencyMiner(cfg.Mining, model, log),
		History:    history,
		Adjuster:   learning.NewService(store, cfg.Learning, log),
		Logger:     log,
	})
}

func weeklyHistory(n int) []types.CompletedTaskEvent {
	start := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC) // Saturday
	out := make([]types.CompletedTaskEvent, n)
	for i := range out {
		out[i] = types.CompletedTaskEvent{
			TaskID:      "groceries",
			Title:       "Buy groceries",
			Category:    "errands",
			CompletedAt: start.AddDate(0, 0, 7*i),
		}
	}
	return out
}

func TestGenerateSuggestionsEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	history := &fakeHistory{tasks: weeklyHistory(6)}
	manager := newTestManager(t, store, history)

	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC) // a Saturday morning
	userCtx := &types.UserContext{UserID: "user-1", Now: now}

	suggestions, err := manager.GenerateSuggestions(ctx, userCtx)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)

	for _, s := range suggestions {
		assert.Equal(t, types.StatusPending, s.Status)
		assert.True(t, s.ExpiresAt.After(s.CreatedAt))
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}

	// Patterns were mined and persisted.
	patterns, err := store.ListPatterns(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, patterns)

	// Suggestions were persisted.
	stored, err := store.ListSuggestions(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Len(t, stored, len(suggestions))
}

func TestGenerateSuggestionsRejectionHistoryLowersMinedConfidence(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	bestMinedConfidence := func(store *storage.MockPatternStore) float64 {
		manager := newLearningManager(t, store, &fakeHistory{tasks: weeklyHistory(6)})
		_, err := manager.GenerateSuggestions(ctx, &types.UserContext{UserID: "user-1", Now: now})
		require.NoError(t, err)

		patterns, err := store.ListPatterns(ctx, "user-1", nil)
		require.NoError(t, err)
		require.NotEmpty(t, patterns)
		best := 0.0
		for _, p := range patterns {
			if p.Confidence > best {
				best = p.Confidence
			}
		}
		return best
	}

	clean := storage.NewMockPatternStore()

	// A user who rejected every errands suggestion so far.
	poisoned := storage.NewMockPatternStore()
	for i := 0; i < 20; i++ {
		s := &types.Suggestion{
			ID: uuid.New().String(), UserID: "user-1", Title: "Buy groceries",
			Category: "errands", Priority: types.PriorityMedium, Confidence: 0.7,
			Source: types.SourceTemporal, Status: types.StatusRejected,
			CreatedAt: now.Add(-time.Duration(i+2) * time.Hour),
			ExpiresAt: now.Add(-time.Duration(i+1) * time.Hour),
		}
		require.NoError(t, poisoned.SaveSuggestion(ctx, s))
	}

	assert.Less(t, bestMinedConfidence(poisoned), bestMinedConfidence(clean),
		"rejection history must lower re-mined confidence")
}

func TestGenerateSuggestionsEmptyHistory(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	manager := newTestManager(t, store, &fakeHistory{})

	userCtx := &types.UserContext{UserID: "user-1", Now: time.Now().UTC()}
	suggestions, err := manager.GenerateSuggestions(ctx, userCtx)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestExpiryPerSource(t *testing.T) {
	store := storage.NewMockPatternStore()
	manager := newTestManager(t, store, &fakeHistory{})

	tests := []struct {
		source types.SuggestionSource
		want   time.Duration
	}{
		{types.SourceTemporal, 2 * time.Hour},
		{types.SourceFrequency, 2 * time.Hour},
		{types.SourceContextual, 30 * time.Minute},
		{types.SourceSequential, 4 * time.Hour},
		{types.SourceHybrid, 6 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, manager.expiryFor(tt.source), string(tt.source))
	}
}

func TestCheckContextualRefresh(t *testing.T) {
	store := storage.NewMockPatternStore()
	manager := newTestManager(t, store, &fakeHistory{})

	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	base := &types.UserContext{
		UserID:             "user-1",
		Now:                now,
		Location:           &types.GeoPoint{Latitude: 52.52, Longitude: 13.405},
		CompletedTaskCount: 10,
	}

	// No snapshot yet: always refresh.
	decision := manager.CheckContextualRefresh(base)
	assert.True(t, decision.NeedsRefresh)

	manager.recordSnapshot(base, now)

	// Nothing changed: no refresh.
	decision = manager.CheckContextualRefresh(base)
	assert.False(t, decision.NeedsRefresh)
	assert.InDelta(t, 0.0, decision.Score, 0.001)

	// Five hours later: time component saturates at 0.3, just below the
	// 0.4 threshold.
	later := *base
	later.Now = now.Add(5 * time.Hour)
	decision = manager.CheckContextualRefresh(&later)
	assert.False(t, decision.NeedsRefresh)
	assert.InDelta(t, 0.3, decision.Score, 0.001)

	// Moving 10 km tips it over.
	moved := later
	moved.Location = &types.GeoPoint{Latitude: 52.61, Longitude: 13.405}
	decision = manager.CheckContextualRefresh(&moved)
	assert.True(t, decision.NeedsRefresh)
	assert.Greater(t, decision.Score, 0.4)

	// Elapsed time plus a burst of completed tasks also tips it over.
	busy := later
	busy.CompletedTaskCount = 20
	decision = manager.CheckContextualRefresh(&busy)
	assert.True(t, decision.NeedsRefresh)
	assert.Equal(t, "task activity changed", decision.Reason)
}

func TestGetActiveSuggestionsExcludesExpired(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	manager := newTestManager(t, store, &fakeHistory{})
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	expired := &types.Suggestion{
		ID: uuid.New().String(), UserID: "user-1", Title: "Old", Category: "work",
		Priority: types.PriorityLow, Confidence: 0.9, Source: types.SourceTemporal,
		Status: types.StatusPending, CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	fresh := &types.Suggestion{
		ID: uuid.New().String(), UserID: "user-1", Title: "New", Category: "work",
		Priority: types.PriorityLow, Confidence: 0.6, Source: types.SourceTemporal,
		Status: types.StatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, store.SaveSuggestion(ctx, expired))
	require.NoError(t, store.SaveSuggestion(ctx, fresh))

	active, err := manager.GetActiveSuggestions(ctx, "user-1", now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "New", active[0].Title)

	// Cleanup dismisses the expired one.
	count, err := manager.CleanupExpiredSuggestions(ctx, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetSuggestion(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDismissed, got.Status)
}

func TestGetActiveSuggestionsSortedByConfidence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	manager := newTestManager(t, store, &fakeHistory{})
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	for i, conf := range []float64{0.4, 0.9, 0.7} {
		s := &types.Suggestion{
			ID: uuid.New().String(), UserID: "user-1", Title: "S", Category: "work",
			Priority: types.PriorityLow, Confidence: conf, Source: types.SourceTemporal,
			Status: types.StatusPending, CreatedAt: now.Add(time.Duration(i) * time.Minute),
			ExpiresAt: now.Add(2 * time.Hour),
		}
		require.NoError(t, store.SaveSuggestion(ctx, s))
	}

	active, err := manager.GetActiveSuggestions(ctx, "user-1", now.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, 0.9, active[0].Confidence)
	assert.Equal(t, 0.7, active[1].Confidence)
	assert.Equal(t, 0.4, active[2].Confidence)
}

func TestRefreshReturnsActiveWhenContextStable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockPatternStore()
	history := &fakeHistory{tasks: weeklyHistory(6)}
	manager := newTestManager(t, store, history)

	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	userCtx := &types.UserContext{UserID: "user-1", Now: now}

	first, err := manager.GenerateSuggestions(ctx, userCtx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// Ten minutes later with no other change: same active list, no new rows.
	laterCtx := &types.UserContext{UserID: "user-1", Now: now.Add(10 * time.Minute)}
	refreshed, err := manager.RefreshSuggestions(ctx, laterCtx)
	require.NoError(t, err)
	assert.Len(t, refreshed, len(first))

	all, err := store.ListSuggestions(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, len(first), "no regeneration happened")
}
