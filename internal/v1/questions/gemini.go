package questions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quizclash/backend/go/internal/v1/metrics"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent REST endpoint. All calls go
// through a circuit breaker so a flapping upstream fails fast into the
// fallback path instead of stalling every game start.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewGeminiClient creates a client with the given hard upstream timeout.
func NewGeminiClient(apiKey, model string, timeout time.Duration) *GeminiClient {
	st := gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("gemini").Set(stateVal)
		},
	}

	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBaseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// request/response mirror the subset of the generateContent schema we use.

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends the prompt and returns the raw model output text.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.doGenerate(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (c *GeminiClient) doGenerate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.7,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var chunks []string
	for _, part := range parsed.Candidates[0].Content.Parts {
		if text := strings.TrimSpace(part.Text); text != "" {
			chunks = append(chunks, text)
		}
	}
	content := strings.TrimSpace(strings.Join(chunks, "\n"))
	if content == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return content, nil
}
