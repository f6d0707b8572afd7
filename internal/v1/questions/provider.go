// Package questions produces game content: AI-generated when the upstream
// is healthy, a static reserve bank when it is not.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// Generator is the upstream content generator. Satisfied by GeminiClient;
// tests substitute fakes.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Result is what Generate hands back: always at least 2*perTeam entries,
// with Source and Reason describing where they came from.
type Result struct {
	Questions []types.GeneratedQuestion
	Source    types.GenerationSource
	Reason    string
}

// Provider is the question provider facade (generation + validation +
// fallback substitution).
type Provider struct {
	generator Generator
	timeout   time.Duration
}

// NewProvider creates a provider. generator may be nil when no API key is
// configured; every request then takes the fallback path.
func NewProvider(generator Generator, timeout time.Duration) *Provider {
	return &Provider{generator: generator, timeout: timeout}
}

// Generate returns 2*perTeam questions for the topic. Upstream failure,
// timeout, parse failure, or partial validity all degrade to the reserve
// bank with source="fallback" and a reason.
func (p *Provider) Generate(ctx context.Context, topic string, perTeam int) Result {
	total := 2 * perTeam

	if p.generator == nil {
		return p.fallback(topic, total, "question generator is not configured, using reserve bank")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	content, err := p.generator.GenerateContent(ctx, buildPrompt(topic, total))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return p.fallback(topic, total, "question generator timed out, using reserve bank")
		}
		logging.Warn(ctx, "Question generation failed", zap.String("topic", topic), zap.Error(err))
		return p.fallback(topic, total, "question generator unavailable, using reserve bank")
	}

	parsed, ok := extractQuestionsJSON(content)
	if !ok {
		return p.fallback(topic, total, "question generator returned an invalid format, using reserve bank")
	}

	merged, validCount := mergeWithReserve(parsed, topic, total)
	switch {
	case validCount == 0:
		return p.fallbackResult(merged, "question generator produced no valid questions, using reserve bank")
	case validCount < total:
		return p.fallbackResult(merged, fmt.Sprintf("%d of %d questions replaced from the reserve bank", total-validCount, total))
	default:
		metrics.QuestionGeneration.WithLabelValues(string(types.SourceAI)).Inc()
		return Result{Questions: merged, Source: types.SourceAI}
	}
}

func (p *Provider) fallback(topic string, total int, reason string) Result {
	return p.fallbackResult(reserveQuestions(topic, total), reason)
}

func (p *Provider) fallbackResult(questions []types.GeneratedQuestion, reason string) Result {
	metrics.QuestionGeneration.WithLabelValues(string(types.SourceFallback)).Inc()
	return Result{Questions: questions, Source: types.SourceFallback, Reason: reason}
}

func buildPrompt(topic string, total int) string {
	var b strings.Builder
	b.WriteString("Generate a set of quiz questions for a team trivia game.\n")
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Number of questions: %d\n", total)
	b.WriteString("Requirements:\n")
	b.WriteString("- every question has a field text (string)\n")
	b.WriteString("- every question has a field options (array of exactly 4 non-empty strings)\n")
	b.WriteString("- every question has a field correctOption (number 0..3)\n")
	b.WriteString("- do not add explanations, markdown, or text outside the JSON\n")
	b.WriteString("Return strictly JSON of the form:\n")
	b.WriteString(`{"questions":[{"text":"...","options":["...","...","...","..."],"correctOption":0}]}` + "\n")
	return b.String()
}

type generatedPayload struct {
	Questions []types.GeneratedQuestion `json:"questions"`
}

// extractQuestionsJSON parses the model output, tolerating code fences and
// leading/trailing prose around the JSON object.
func extractQuestionsJSON(content string) ([]types.GeneratedQuestion, bool) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return nil, false
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payload.Questions, true
	}

	cleaned := raw
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.Trim(cleaned, "`")
		cleaned = strings.TrimPrefix(cleaned, "json")
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, false
	}
	return payload.Questions, true
}

// mergeWithReserve replaces invalid entries positionally with reserve bank
// questions and reports how many AI entries survived.
func mergeWithReserve(items []types.GeneratedQuestion, topic string, total int) ([]types.GeneratedQuestion, int) {
	fallback := reserveQuestions(topic, total)
	out := make([]types.GeneratedQuestion, total)
	validCount := 0

	for i := 0; i < total; i++ {
		if i < len(items) {
			item := items[i]
			item.Text = strings.TrimSpace(item.Text)
			for j := range item.Options {
				item.Options[j] = strings.TrimSpace(item.Options[j])
			}
			if item.Validate() == nil {
				out[i] = item
				validCount++
				continue
			}
		}
		out[i] = fallback[i]
	}
	return out, validCount
}
