// demo runs the full suggestion pipeline against a synthetic task
// history: mining, scoring, generation, ranking, feedback, and the
// learning insights that result.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"tasksense/internal/cache"
	"tasksense/internal/config"
	"tasksense/internal/learning"
	"tasksense/internal/logging"
	"tasksense/internal/mining"
	"tasksense/internal/scoring"
	"tasksense/internal/storage"
	"tasksense/internal/suggestion"
	"tasksense/pkg/types"
)

const demoUser = "demo-user"

// syntheticHistory fabricates two months of task completions: weekly
// Saturday groceries, a weekday morning work routine, and gym sessions
// tied to one location.
type syntheticHistory struct {
	start time.Time
}

func (h *syntheticHistory) CompletedTasks(_ context.Context, _ string) ([]types.CompletedTaskEvent, error) {
	var tasks []types.CompletedTaskEvent

	// Groceries every Saturday at 10:00.
	for week := 0; week < 8; week++ {
		tasks = append(tasks, types.CompletedTaskEvent{
			TaskID:      fmt.Sprintf("groceries-%d", week),
			Title:       "Buy groceries",
			Category:    "errands",
			CompletedAt: h.start.AddDate(0, 0, 7*week).Add(10 * time.Hour),
		})
	}

	// A three-step Monday morning routine.
	steps := []struct {
		title string
		at    time.Duration
	}{
		{"Check email", 9 * time.Hour},
		{"Review calendar", 9*time.Hour + 15*time.Minute},
		{"Plan the day", 9*time.Hour + 30*time.Minute},
	}
	for week := 0; week < 6; week++ {
		monday := h.start.AddDate(0, 0, 7*week+2)
		for i, step := range steps {
			tasks = append(tasks, types.CompletedTaskEvent{
				TaskID:      fmt.Sprintf("routine-%d-%d", week, i),
				Title:       step.title,
				Category:    "work",
				CompletedAt: monday.Add(step.at),
			})
		}
	}
	return tasks, nil
}

func (h *syntheticHistory) ContextualEvents(_ context.Context, _ string) ([]mining.ContextualEvent, error) {
	gym := &types.GeoPoint{Latitude: 52.5205, Longitude: 13.4049, PlaceName: "Gym"}
	var events []mining.ContextualEvent
	for week := 0; week < 6; week++ {
		events = append(events, mining.ContextualEvent{
			Event: types.CompletedTaskEvent{
				TaskID:      fmt.Sprintf("gym-%d", week),
				Title:       "Strength training",
				Category:    "health",
				CompletedAt: h.start.AddDate(0, 0, 7*week+3).Add(18 * time.Hour),
			},
			Location: gym,
		})
	}
	return events, nil
}

func main() {
	if err := run(); err != nil {
		color.Red("demo failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.NewLogger(logging.WARN, false)

	store := storage.NewMockPatternStore()
	model := scoring.NewModel(cfg.Scoring)
	seq := mining.NewSequentialMiner(cfg.Mining, logger)
	learner := learning.NewService(store, cfg.Learning, logger)

	manager := suggestion.NewManager(cfg.Suggestions, suggestion.ManagerDeps{
		Store:      store,
		Engine:     suggestion.NewEngine(cfg.Suggestions, store, seq, suggestion.NewTemplateTitleSource(time.Now().UnixNano()), logger),
		Ranker:     suggestion.NewRanker(cfg.Suggestions),
		Filter:     suggestion.NewDiversityFilter(cfg.Suggestions, suggestion.NewRanker(cfg.Suggestions)),
		Temporal:   mining.NewTemporalMiner(cfg.Mining, model, logger),
		Sequential: seq,
		Contextual: mining.NewContextualMiner(cfg.Mining, logger),
		Frequency:  mining.NewFrequencyMiner(cfg.Mining, model, logger),
		History:    &syntheticHistory{start: time.Date(2026, 6, 6, 0, 0, 0, 0, time.UTC)}, // a Saturday
		Adjuster:   learner,
		Cache:      cache.NewMemoryCache(5 * time.Minute),
		Logger:     logger,
	})

	bold := color.New(color.Bold)
	bold.Println("tasksense demo")
	fmt.Println()

	// Saturday morning, eight weeks into the history.
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	userCtx := &types.UserContext{
		UserID:             demoUser,
		Now:                now,
		Location:           &types.GeoPoint{Latitude: 52.5200, Longitude: 13.4050, PlaceName: "Home"},
		CompletedTaskCount: 3,
	}

	suggestions, err := manager.GenerateSuggestions(ctx, userCtx)
	if err != nil {
		return err
	}

	bold.Printf("suggestions for Saturday %s\n", now.Format("15:04"))
	printSuggestions(suggestions)

	if len(suggestions) == 0 {
		return nil
	}

	// The user accepts the top suggestion and rejects the last one.
	accepted := suggestions[0]
	fmt.Println()
	color.Green("accepting %q", accepted.Title)
	if err := learner.CollectFeedback(ctx, learning.FeedbackRequest{
		UserID:       demoUser,
		SuggestionID: accepted.ID,
		Type:         types.FeedbackPositive,
		At:           now.Add(time.Minute),
	}); err != nil {
		return err
	}

	if last := suggestions[len(suggestions)-1]; last.ID != accepted.ID {
		color.Red("rejecting %q", last.Title)
		if err := learner.CollectFeedback(ctx, learning.FeedbackRequest{
			UserID:       demoUser,
			SuggestionID: last.ID,
			Type:         types.FeedbackNegative,
			Reason:       "not right now",
			At:           now.Add(2 * time.Minute),
		}); err != nil {
			return err
		}
	}

	analytics, err := learner.GenerateFeedbackAnalytics(ctx, demoUser, time.Time{})
	if err != nil {
		return err
	}
	fmt.Println()
	bold.Println("feedback so far")
	fmt.Printf("  total %d, accepted %.0f%%\n", analytics.Total, analytics.AcceptanceRate*100)

	insights, err := learner.GetLearningInsights(ctx, demoUser, now.Add(time.Hour))
	if err != nil {
		return err
	}
	if len(insights) > 0 {
		fmt.Println()
		bold.Println("insights")
		for _, insight := range insights {
			fmt.Printf("  - [%s] %s\n", insight.Impact, insight.Message)
		}
	}

	// A location change later the same day should trigger a refresh.
	moved := *userCtx
	moved.Now = now.Add(6 * time.Hour)
	moved.Location = &types.GeoPoint{Latitude: 52.5205, Longitude: 13.4049, PlaceName: "Gym"}
	decision := manager.CheckContextualRefresh(&moved)
	fmt.Println()
	bold.Println("context change check")
	fmt.Printf("  refresh=%v score=%.2f reason=%s\n", decision.NeedsRefresh, decision.Score, decision.Reason)

	if decision.NeedsRefresh {
		refreshed, err := manager.RefreshSuggestions(ctx, &moved)
		if err != nil {
			return err
		}
		fmt.Println()
		bold.Println("refreshed suggestions at the gym")
		printSuggestions(refreshed)
	}
	return nil
}

func printSuggestions(suggestions []*types.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Println("  (none)")
		return
	}
	for i, s := range suggestions {
		confColor := color.New(color.FgYellow)
		switch {
		case s.Confidence > 0.7:
			confColor = color.New(color.FgGreen)
		case s.Confidence < 0.4:
			confColor = color.New(color.FgRed)
		}
		fmt.Printf("  %d. %-40s [%s] %s  %s\n",
			i+1, s.Title, s.Category, confColor.Sprintf("%.0f%%", s.Confidence*100), s.Source)
		for _, reason := range s.Reasoning {
			fmt.Printf("     %s\n", color.New(color.Faint).Sprint(reason))
		}
	}
}
