package mining

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasksense/internal/logging"
	"tasksense/pkg/types"
)

// workflowClusters builds n repetitions of the titles completed an hour
// apart, with clusters separated by more than the max gap.
func workflowClusters(n int, titles []string, category string) []types.CompletedTaskEvent {
	var out []types.CompletedTaskEvent
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for c := 0; c < n; c++ {
		base := start.AddDate(0, 0, 2*c)
		for i, title := range titles {
			out = append(out, types.CompletedTaskEvent{
				TaskID:      title,
				Title:       title,
				Category:    category,
				CompletedAt: base.Add(time.Duration(i) * time.Hour),
			})
		}
	}
	return out
}

func TestSequentialMinerRepeatedWorkflow(t *testing.T) {
	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())

	events := workflowClusters(4, []string{"Plan sprint", "Write tickets", "Notify team"}, "work")
	now := events[len(events)-1].CompletedAt.Add(time.Hour)

	patterns := miner.Mine("user-1", events, now)
	require.NotEmpty(t, patterns)

	var full *types.Pattern
	for _, p := range patterns {
		payload := p.Payload.(*types.SequentialPayload)
		if len(payload.Sequence) == 3 {
			full = p
			break
		}
	}
	require.NotNil(t, full, "expected the full three-step sequence")

	payload := full.Payload.(*types.SequentialPayload)
	assert.Equal(t, []string{"Plan sprint", "Write tickets", "Notify team"}, payload.Sequence)
	assert.Equal(t, types.PatternKindSequential, full.Kind)
	assert.GreaterOrEqual(t, payload.Support, 0.1)
	assert.InDelta(t, 1.0, full.Confidence, 0.001, "antecedent always completes the workflow")
	assert.InDelta(t, 1.0, payload.AvgGapHours, 0.001)
	assert.Equal(t, "work", payload.Category)
	assert.Equal(t, 4, full.Frequency)
}

func TestSequentialMinerRespectsMaxGap(t *testing.T) {
	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())

	// Two titles always completed 30h apart never form a sequence.
	var events []types.CompletedTaskEvent
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for c := 0; c < 5; c++ {
		base := start.AddDate(0, 0, 7*c)
		events = append(events,
			types.CompletedTaskEvent{Title: "First", Category: "work", CompletedAt: base},
			types.CompletedTaskEvent{Title: "Second", Category: "work", CompletedAt: base.Add(30 * time.Hour)},
		)
	}
	now := events[len(events)-1].CompletedAt.Add(time.Hour)
	assert.Empty(t, miner.Mine("user-1", events, now))
}

func TestSequentialMinerEmptyInput(t *testing.T) {
	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())
	assert.Empty(t, miner.Mine("user-1", nil, time.Now().UTC()))
}

func TestNextInWorkflow(t *testing.T) {
	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())

	events := workflowClusters(4, []string{"Plan sprint", "Write tickets", "Notify team"}, "work")
	now := events[len(events)-1].CompletedAt.Add(time.Hour)
	patterns := miner.Mine("user-1", events, now)
	require.NotEmpty(t, patterns)

	lastCompletion := now.Add(-6 * time.Hour)
	step := miner.NextInWorkflow(patterns, []string{"Plan sprint", "Write tickets"}, lastCompletion, now)
	require.NotNil(t, step)
	assert.Equal(t, "Notify team", step.NextTitle)
	assert.Equal(t, "work", step.Category)

	wantBoost := math.Exp(-6.0 / 12.0)
	assert.InDelta(t, step.Pattern.Confidence*wantBoost, step.Confidence, 0.001)
}

func TestNextInWorkflowPrefersLongestPrefix(t *testing.T) {
	short := &types.Pattern{
		ID: "short", Kind: types.PatternKindSequential, Confidence: 0.9,
		Payload: &types.SequentialPayload{Sequence: []string{"B", "X"}, Category: "work"},
	}
	long := &types.Pattern{
		ID: "long", Kind: types.PatternKindSequential, Confidence: 0.5,
		Payload: &types.SequentialPayload{Sequence: []string{"A", "B", "Y"}, Category: "work"},
	}

	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	step := miner.NextInWorkflow([]*types.Pattern{short, long}, []string{"A", "B"}, now, now)
	require.NotNil(t, step)
	assert.Equal(t, "Y", step.NextTitle, "two-title prefix beats one-title prefix")
}

func TestNextInWorkflowNoMatch(t *testing.T) {
	cfg := testConfig(t)
	miner := NewSequentialMiner(cfg.Mining, logging.NewNoopLogger())
	now := time.Now().UTC()

	pattern := &types.Pattern{
		ID: "p", Kind: types.PatternKindSequential, Confidence: 0.8,
		Payload: &types.SequentialPayload{Sequence: []string{"A", "B"}, Category: "work"},
	}
	assert.Nil(t, miner.NextInWorkflow([]*types.Pattern{pattern}, []string{"Z"}, now, now))
	assert.Nil(t, miner.NextInWorkflow([]*types.Pattern{pattern}, nil, now, now))
}
