package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	content string
	err     error
	delay   time.Duration
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.content, s.err
}

func validJSON(n int) string {
	items := make([]types.GeneratedQuestion, n)
	for i := range items {
		items[i] = types.GeneratedQuestion{
			Text:          fmt.Sprintf("q%d", i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: 2,
		}
	}
	data, _ := json.Marshal(map[string]any{"questions": items})
	return string(data)
}

func TestGenerate_FullAISuccess(t *testing.T) {
	p := NewProvider(&stubGenerator{content: validJSON(10)}, time.Second)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceAI, res.Source)
	assert.Empty(t, res.Reason)
	require.Len(t, res.Questions, 10)
	assert.Equal(t, "q0", res.Questions[0].Text)
}

func TestGenerate_NilGeneratorFallsBack(t *testing.T) {
	p := NewProvider(nil, time.Second)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.NotEmpty(t, res.Reason)
	require.Len(t, res.Questions, 10)
	for i, q := range res.Questions {
		assert.NoError(t, q.Validate(), "reserve entry %d", i)
	}
}

func TestGenerate_UpstreamErrorFallsBack(t *testing.T) {
	p := NewProvider(&stubGenerator{err: errors.New("boom")}, time.Second)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Len(t, res.Questions, 10)
}

func TestGenerate_TimeoutFallsBack(t *testing.T) {
	p := NewProvider(&stubGenerator{content: validJSON(10), delay: time.Second}, 5*time.Millisecond)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Contains(t, res.Reason, "timed out")
	assert.Len(t, res.Questions, 10)
}

func TestGenerate_GarbageOutputFallsBack(t *testing.T) {
	p := NewProvider(&stubGenerator{content: "I cannot answer that."}, time.Second)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Len(t, res.Questions, 10)
}

func TestGenerate_PartialValidityMergesReserve(t *testing.T) {
	items := []types.GeneratedQuestion{
		{Text: "good one", Options: []string{"a", "b", "c", "d"}, CorrectOption: 0},
		{Text: "", Options: []string{"a", "b", "c", "d"}, CorrectOption: 0},       // empty text
		{Text: "bad options", Options: []string{"a", "b"}, CorrectOption: 0},      // 2 options
		{Text: "bad index", Options: []string{"a", "b", "c", "d"}, CorrectOption: 7},
	}
	data, _ := json.Marshal(map[string]any{"questions": items})
	p := NewProvider(&stubGenerator{content: string(data)}, time.Second)

	res := p.Generate(context.Background(), "space", 5)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Contains(t, res.Reason, "replaced")
	require.Len(t, res.Questions, 10)

	// Valid entry survives in place; the rest come from the reserve.
	assert.Equal(t, "good one", res.Questions[0].Text)
	for i := 1; i < 10; i++ {
		assert.NoError(t, res.Questions[i].Validate(), "entry %d", i)
		assert.NotEmpty(t, res.Questions[i].Text)
	}
}

func TestExtractQuestionsJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		ok      bool
		count   int
	}{
		{"plain object", validJSON(2), true, 2},
		{"code fence", "```json\n" + validJSON(2) + "\n```", true, 2},
		{"surrounding prose", "Here you go: " + validJSON(1) + " enjoy!", true, 1},
		{"empty", "", false, 0},
		{"no json", "sorry, no", false, 0},
		{"broken json", `{"questions": [`, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, ok := extractQuestionsJSON(tc.content)
			assert.Equal(t, tc.ok, ok)
			assert.Len(t, items, tc.count)
		})
	}
}

func TestReserveQuestions_TopicMatchesFirst(t *testing.T) {
	out := reserveQuestions("math puzzles", 4)
	require.Len(t, out, 4)

	// Math-tagged entries lead the selection.
	assert.Contains(t, out[0].Text, "angle")
	for _, q := range out {
		assert.NoError(t, q.Validate())
	}
}

func TestReserveQuestions_WrapsAroundBank(t *testing.T) {
	total := len(reserveBank) + 10
	out := reserveQuestions("anything", total)
	require.Len(t, out, total)
	assert.Equal(t, out[0].Text, out[len(reserveBank)].Text)
}

func TestReserveBankIsValid(t *testing.T) {
	assert.GreaterOrEqual(t, len(reserveBank), 28)
	for i, rq := range reserveBank {
		q := types.GeneratedQuestion{
			Text:          rq.text,
			Options:       rq.options[:],
			CorrectOption: rq.correctOption,
		}
		assert.NoError(t, q.Validate(), "bank entry %d", i)
		assert.NotEmpty(t, rq.tags, "bank entry %d has no tags", i)
	}
}
