package llm

import (
	"bufio"
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
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "qwen2.5-coder:14b"
)

// OllamaService talks to Ollama's /api/chat endpoint with streaming enabled
// so that generation can be cut off at the line budget.
type OllamaService struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllamaService creates a service for the Ollama server at baseURL.
// Empty arguments select the defaults.
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaService{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// WithHTTPClient replaces the HTTP client.
func (s *OllamaService) WithHTTPClient(c *http.Client) *OllamaService {
	s.client = c
	return s
}

func (s *OllamaService) Name() string {
	return "ollama"
}

func (s *OllamaService) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	start := time.Now()
	model := opts.Model
	if model == "" {
		model = s.model
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		Options:  map[string]any{"temperature": opts.Temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Service: s.Name(), Err: err}
	}
	// Closing the body early aborts generation server-side.
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{Service: s.Name(), Err: &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}}
	}

	guard := validator.NewStreamGuard(validator.LineBudget{Max: opts.MaxLines})
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, &UnavailableError{Service: s.Name(), Err: errors.New(chunk.Error)}
		}
		if guard.Write(chunk.Message.Content) || chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil && !guard.Stopped() {
		return nil, &UnavailableError{Service: s.Name(), Err: fmt.Errorf("stream interrupted: %w", err)}
	}

	return &Response{
		Text:            guard.Text(),
		Model:           model,
		Truncated:       guard.Stopped(),
		TruncatedAtLine: guard.TruncatedAtLine(),
		Latency:         time.Since(start),
	}, nil
}

// IsAvailable pings the server's model list.
func (s *OllamaService) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return &UnavailableError{Service: s.Name(), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &UnavailableError{Service: s.Name(), Err: &StatusError{Code: resp.StatusCode}}
	}
	return nil
}
