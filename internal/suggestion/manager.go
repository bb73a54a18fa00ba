package suggestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasksense/internal/config"
	"tasksense/internal/logging"
	"tasksense/internal/mining"
	"tasksense/internal/storage"
	"tasksense/pkg/types"
)

// HistorySource supplies completed-task history. It is owned by the
// task-management collaborator; this pipeline only reads from it.
type HistorySource interface {
	CompletedTasks(ctx context.Context, userID string) ([]types.CompletedTaskEvent, error)
	ContextualEvents(ctx context.Context, userID string) ([]mining.ContextualEvent, error)
}

// Adjuster applies learned confidence adjustments to fresh suggestions
// and reports category preferences for ranking.
type Adjuster interface {
	ApplyLearningAdjustments(ctx context.Context, userID string, suggestions []*types.Suggestion) ([]*types.Suggestion, error)
	CategoryPreferences(ctx context.Context, userID string) (map[string]float64, error)
}

// Cache holds the active suggestion list between refresh cycles. Nil-safe
// implementations may drop everything.
type Cache interface {
	GetActive(ctx context.Context, userID string) ([]*types.Suggestion, bool)
	SetActive(ctx context.Context, userID string, suggestions []*types.Suggestion)
	Invalidate(ctx context.Context, userID string)
}

// RefreshDecision explains whether a context change warrants regenerating
// suggestions.
type RefreshDecision struct {
	NeedsRefresh bool    `json:"needs_refresh"`
	Reason       string  `json:"reason"`
	Score        float64 `json:"score"`
}

// contextSnapshot remembers the situation of the last generation cycle.
type contextSnapshot struct {
	at             time.Time
	location       *types.GeoPoint
	completedCount int
}

// Manager runs the full suggestion pipeline and gates regeneration on
// context change. All public methods degrade to safe defaults on store
// failure; callers never see a partial pipeline error.
type Manager struct {
	cfg        config.SuggestionsConfig
	store      storage.PatternStore
	engine     *Engine
	ranker     *Ranker
	filter     *DiversityFilter
	temporal   *mining.TemporalMiner
	sequential *mining.SequentialMiner
	contextual *mining.ContextualMiner
	frequency  *mining.FrequencyMiner
	history    HistorySource
	adjuster   Adjuster
	cache      Cache
	logger     logging.Logger

	mu        sync.Mutex
	snapshots map[string]contextSnapshot
}

// ManagerDeps bundles the manager's collaborators.
type ManagerDeps struct {
	Store      storage.PatternStore
	Engine     *Engine
	Ranker     *Ranker
	Filter     *DiversityFilter
	Temporal   *mining.TemporalMiner
	Sequential *mining.SequentialMiner
	Contextual *mining.ContextualMiner
	Frequency  *mining.FrequencyMiner
	History    HistorySource
	Adjuster   Adjuster // optional
	Cache      Cache    // optional
	Logger     logging.Logger
}

// NewManager creates a suggestion manager.
func NewManager(cfg config.SuggestionsConfig, deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Manager{
		cfg:        cfg,
		store:      deps.Store,
		engine:     deps.Engine,
		ranker:     deps.Ranker,
		filter:     deps.Filter,
		temporal:   deps.Temporal,
		sequential: deps.Sequential,
		contextual: deps.Contextual,
		frequency:  deps.Frequency,
		history:    deps.History,
		adjuster:   deps.Adjuster,
		cache:      deps.Cache,
		logger:     logger.WithComponent("suggestion_manager"),
		snapshots:  make(map[string]contextSnapshot),
	}
}

// GenerateSuggestions runs the full pipeline: mine, generate, rank,
// filter, adjust, persist. It always returns a (possibly empty) list.
func (m *Manager) GenerateSuggestions(ctx context.Context, userCtx *types.UserContext) ([]*types.Suggestion, error) {
	now := userCtx.Time()
	userID := userCtx.UserID

	m.minePatterns(ctx, userCtx, now)

	candidates := m.engine.GenerateCandidates(ctx, userCtx)
	if len(candidates) == 0 {
		m.recordSnapshot(userCtx, now)
		return []*types.Suggestion{}, nil
	}

	prefs := m.categoryPreferences(ctx, userID)
	ranked := m.ranker.Rank(candidates, prefs, now)
	selected := m.filter.Apply(ranked, prefs, now)

	suggestions := make([]*types.Suggestion, 0, len(selected))
	for _, c := range selected {
		suggestions = append(suggestions, m.toSuggestion(userID, c, now))
	}

	if m.adjuster != nil {
		adjusted, err := m.adjuster.ApplyLearningAdjustments(ctx, userID, suggestions)
		if err != nil {
			m.logger.Warn("learning adjustment failed, keeping raw confidences", "user_id", userID, "error", err)
		} else {
			suggestions = adjusted
		}
	}

	for _, s := range suggestions {
		if err := m.store.SaveSuggestion(ctx, s); err != nil {
			m.logger.Error("failed to persist suggestion", "suggestion_id", s.ID, "error", err)
		}
	}

	m.recordSnapshot(userCtx, now)
	if m.cache != nil {
		m.cache.SetActive(ctx, userID, suggestions)
	}
	m.logger.Info("generated suggestions", "user_id", userID, "count", len(suggestions))
	return suggestions, nil
}

// minePatterns refreshes stored patterns from history. Failures are
// logged and mining proceeds with whatever data is available. The
// per-category positive-feedback ratio feeds the scorer's feedback
// factor so a poor acceptance history lowers re-mined confidence.
func (m *Manager) minePatterns(ctx context.Context, userCtx *types.UserContext, now time.Time) {
	userID := userCtx.UserID

	events, err := m.history.CompletedTasks(ctx, userID)
	if err != nil {
		m.logger.Error("failed to load task history", "user_id", userID, "error", err)
		events = nil
	}

	var patterns []*types.Pattern
	if len(events) > 0 {
		feedbackRatios := m.categoryPreferences(ctx, userID)
		patterns = append(patterns, m.temporal.Mine(userID, events, now, feedbackRatios)...)
		patterns = append(patterns, m.sequential.Mine(userID, events, now)...)
		patterns = append(patterns, m.frequency.Mine(userID, events, now, feedbackRatios)...)
	}

	contextualEvents, err := m.history.ContextualEvents(ctx, userID)
	if err != nil {
		m.logger.Error("failed to load contextual history", "user_id", userID, "error", err)
	} else if len(contextualEvents) > 0 {
		patterns = append(patterns, m.contextual.Mine(userID, contextualEvents, now)...)
	}

	if len(patterns) == 0 {
		return
	}
	if err := m.store.UpsertPatterns(ctx, patterns); err != nil {
		m.logger.Error("failed to persist mined patterns", "user_id", userID, "error", err)
	}
}

func (m *Manager) categoryPreferences(ctx context.Context, userID string) map[string]float64 {
	if m.adjuster == nil {
		return nil
	}
	prefs, err := m.adjuster.CategoryPreferences(ctx, userID)
	if err != nil {
		m.logger.Warn("failed to load category preferences, using neutral", "user_id", userID, "error", err)
		return nil
	}
	return prefs
}

func (m *Manager) toSuggestion(userID string, c *types.SuggestionCandidate, now time.Time) *types.Suggestion {
	return &types.Suggestion{
		ID:                  uuid.New().String(),
		UserID:              userID,
		Title:               c.Title,
		Category:            c.Category,
		Priority:            c.Priority,
		Confidence:          types.Clamp01(c.Confidence),
		Reasoning:           c.Reasoning,
		BasedOn:             c.BasedOn,
		Source:              c.Source,
		TimeEstimateMinutes: c.TimeEstimateMinutes,
		OptimalTime:         c.OptimalTime,
		Status:              types.StatusPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(m.expiryFor(c.Source)),
	}
}

// expiryFor derives the expiry window from the generation source.
func (m *Manager) expiryFor(source types.SuggestionSource) time.Duration {
	minutes := m.cfg.DefaultExpiryMinutes
	switch source {
	case types.SourceContextual:
		minutes = m.cfg.ContextualExpiryMinutes
	case types.SourceSequential:
		minutes = m.cfg.SequentialExpiryMinutes
	case types.SourceHybrid:
		minutes = m.cfg.HybridExpiryMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// RefreshSuggestions regenerates only when the context changed enough;
// otherwise it returns the currently active suggestions.
func (m *Manager) RefreshSuggestions(ctx context.Context, userCtx *types.UserContext) ([]*types.Suggestion, error) {
	decision := m.CheckContextualRefresh(userCtx)
	if decision.NeedsRefresh {
		m.logger.Debug("context changed, regenerating", "user_id", userCtx.UserID,
			"score", decision.Score, "reason", decision.Reason)
		return m.GenerateSuggestions(ctx, userCtx)
	}

	if m.cache != nil {
		if cached, ok := m.cache.GetActive(ctx, userCtx.UserID); ok {
			return m.truncateActive(cached, userCtx.Time()), nil
		}
	}
	return m.GetActiveSuggestions(ctx, userCtx.UserID, userCtx.Time())
}

// CheckContextualRefresh computes the context-change score against the
// last generation cycle's snapshot.
func (m *Manager) CheckContextualRefresh(userCtx *types.UserContext) RefreshDecision {
	m.mu.Lock()
	snap, ok := m.snapshots[userCtx.UserID]
	m.mu.Unlock()
	if !ok {
		return RefreshDecision{NeedsRefresh: true, Reason: "no previous context", Score: 1}
	}
	now := userCtx.Time()

	hours := now.Sub(snap.at).Hours()
	if hours < 0 {
		hours = 0
	}
	timeComponent := minFloat(1, hours/m.cfg.RefreshTimeFullHrs)

	locationComponent := 0.0
	if userCtx.Location != nil && snap.location != nil {
		km := userCtx.Location.DistanceKm(snap.location)
		locationComponent = minFloat(1, km/m.cfg.RefreshLocFullKm)
	}

	delta := userCtx.CompletedTaskCount - snap.completedCount
	if delta < 0 {
		delta = -delta
	}
	tasksComponent := minFloat(1, float64(delta)/float64(m.cfg.RefreshTasksFullCnt))

	score := timeComponent*m.cfg.RefreshTimeWeight +
		locationComponent*m.cfg.RefreshLocWeight +
		tasksComponent*m.cfg.RefreshTasksWeight

	reason := "context unchanged"
	if score > m.cfg.RefreshThreshold {
		reason = dominantReason(timeComponent, locationComponent, tasksComponent)
	}
	return RefreshDecision{
		NeedsRefresh: score > m.cfg.RefreshThreshold,
		Reason:       reason,
		Score:        score,
	}
}

func dominantReason(timeC, locC, tasksC float64) string {
	switch {
	case locC >= timeC && locC >= tasksC:
		return "location changed"
	case tasksC >= timeC:
		return "task activity changed"
	default:
		return "time elapsed"
	}
}

// GetActiveSuggestions returns pending, unexpired suggestions sorted by
// confidence then recency, truncated to the configured maximum.
func (m *Manager) GetActiveSuggestions(ctx context.Context, userID string, now time.Time) ([]*types.Suggestion, error) {
	pending := types.StatusPending
	suggestions, err := m.store.ListSuggestions(ctx, userID, &pending)
	if err != nil {
		m.logger.Error("failed to list suggestions, returning none", "user_id", userID, "error", err)
		return []*types.Suggestion{}, nil
	}
	return m.truncateActive(suggestions, now), nil
}

func (m *Manager) truncateActive(suggestions []*types.Suggestion, now time.Time) []*types.Suggestion {
	active := make([]*types.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Confidence != active[j].Confidence {
			return active[i].Confidence > active[j].Confidence
		}
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	if len(active) > m.cfg.MaxSuggestions {
		active = active[:m.cfg.MaxSuggestions]
	}
	return active
}

// CleanupExpiredSuggestions dismisses expired pending suggestions and
// pending suggestions older than the stale window. Idempotent.
func (m *Manager) CleanupExpiredSuggestions(ctx context.Context, userID string, now time.Time) (int, error) {
	staleBefore := now.AddDate(0, 0, -m.cfg.StaleAfterDays)
	count, err := m.store.MarkExpiredSuggestions(ctx, userID, now, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up suggestions: %w", err)
	}
	if count > 0 {
		m.logger.Info("dismissed expired suggestions", "user_id", userID, "count", count)
		if m.cache != nil {
			m.cache.Invalidate(ctx, userID)
		}
	}
	return count, nil
}

func (m *Manager) recordSnapshot(userCtx *types.UserContext, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[userCtx.UserID] = contextSnapshot{
		at:             now,
		location:       userCtx.Location,
		completedCount: userCtx.CompletedTaskCount,
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
