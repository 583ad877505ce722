package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valpere/vorewrite/internal/validator"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "qwen/qwen-2.5-coder-32b-instruct"
)

// ErrMissingAPIKey is returned when a hosted backend has no credentials.
var ErrMissingAPIKey = errors.New("API key required")

// OpenRouterService calls an OpenAI-compatible chat completions endpoint.
// Responses are not streamed; the line budget is applied afterwards.
type OpenRouterService struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type openRouterRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type openRouterResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenRouterService(apiKey, baseURL, model string) *OpenRouterService {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouterService{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *OpenRouterService) Name() string {
	return "openrouter"
}

func (s *OpenRouterService) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	start := time.Now()
	if s.apiKey == "" {
		return nil, fmt.Errorf("openrouter: %w", ErrMissingAPIKey)
	}
	model := opts.Model
	if model == "" {
		model = s.model
	}

	body, err := json.Marshal(openRouterRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("HTTP-Referer", "https://vorewrite.local")
	req.Header.Set("X-Title", "vorewrite")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Service: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{Service: s.Name(), Err: &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}}
	}

	var out openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, &UnavailableError{Service: s.Name(), Err: errors.New(out.Error.Message)}
	}
	if len(out.Choices) == 0 {
		return nil, &UnavailableError{Service: s.Name(), Err: errors.New("empty response from API")}
	}

	budget := validator.LineBudget{Max: opts.MaxLines}
	text, cut := budget.Truncate(out.Choices[0].Message.Content)
	r := &Response{Text: text, Model: model, Truncated: cut, Latency: time.Since(start)}
	if cut {
		r.TruncatedAtLine = budget.Max
	}
	return r, nil
}
