package suggestion

import (
	"fmt"
	"math/rand"
	"strings"
)

// TitleSource produces suggestion titles. Implementations must be
// deterministic for a fixed seed so generation is reproducible in tests.
type TitleSource interface {
	CategoryTitle(category string) string
	DueAgainTitle(category string) string
	WorkflowTitle(nextStep string) string
	ContextTitle(category, situation string) string
}

// TemplateTitleSource picks from fixed template sets using an injected
// random source.
type TemplateTitleSource struct {
	rng *rand.Rand
}

// NewTemplateTitleSource creates a title source seeded for reproducible
// output.
func NewTemplateTitleSource(seed int64) *TemplateTitleSource {
	return &TemplateTitleSource{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // not security sensitive
}

var categoryTemplates = []string{
	"Time for your usual %s tasks",
	"Plan your next %s task",
	"Catch up on %s",
}

var dueAgainTemplates = []string{
	"It's about time for %s again",
	"Your regular %s task is due",
}

var contextTemplates = []string{
	"Good moment for %s (%s)",
	"%s fits your current situation (%s)",
}

// CategoryTitle names a recurring-category suggestion.
func (s *TemplateTitleSource) CategoryTitle(category string) string {
	return fmt.Sprintf(s.pick(categoryTemplates), displayCategory(category))
}

// DueAgainTitle names a frequency-based suggestion.
func (s *TemplateTitleSource) DueAgainTitle(category string) string {
	return fmt.Sprintf(s.pick(dueAgainTemplates), displayCategory(category))
}

// WorkflowTitle names the next step of a matched workflow.
func (s *TemplateTitleSource) WorkflowTitle(nextStep string) string {
	return nextStep
}

// ContextTitle names a context-triggered suggestion.
func (s *TemplateTitleSource) ContextTitle(category, situation string) string {
	return fmt.Sprintf(s.pick(contextTemplates), displayCategory(category), situation)
}

func (s *TemplateTitleSource) pick(templates []string) string {
	return templates[s.rng.Intn(len(templates))]
}

func displayCategory(category string) string {
	if category == "" {
		return "general"
	}
	return strings.ReplaceAll(category, "_", " ")
}
