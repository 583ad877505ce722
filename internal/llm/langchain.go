package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/valpere/vorewrite/internal/validator"
)

var errStopStream = errors.New("line budget reached")

// LangchainService adapts any langchaingo llms.Model. The line budget is
// enforced from the streaming callback when the provider streams, and on the
// final content otherwise.
type LangchainService struct {
	name  string
	model string
	llm   llms.Model
}

// NewLangchainService wraps an existing model.
func NewLangchainService(name, model string, m llms.Model) *LangchainService {
	return &LangchainService{name: name, model: model, llm: m}
}

// NewLangchainOllama connects to Ollama through langchaingo.
func NewLangchainOllama(serverURL, model string) (*LangchainService, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	m, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama model: %w", err)
	}
	return NewLangchainService("langchain-ollama", model, m), nil
}

// NewLangchainOpenAI connects to OpenAI or any compatible endpoint.
func NewLangchainOpenAI(apiKey, baseURL, model string) (*LangchainService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai model: %w", err)
	}
	return NewLangchainService("openai", model, m), nil
}

// NewLangchainGemini connects to Google Gemini.
func NewLangchainGemini(ctx context.Context, apiKey, model string) (*LangchainService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
	if model != "" {
		opts = append(opts, googleai.WithDefaultModel(model))
	}
	m, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini model: %w", err)
	}
	return NewLangchainService("gemini", model, m), nil
}

// NewLangchainAnthropic connects to Anthropic.
func NewLangchainAnthropic(apiKey, model string) (*LangchainService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	m, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic model: %w", err)
	}
	return NewLangchainService("anthropic", model, m), nil
}

func (s *LangchainService) Name() string {
	return s.name
}

func (s *LangchainService) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	start := time.Now()
	budget := validator.LineBudget{Max: opts.MaxLines}
	guard := validator.NewStreamGuard(budget)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatType(m.Role), m.Content))
	}

	model := s.model
	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if guard.Write(string(chunk)) {
				return errStopStream
			}
			return nil
		}),
	}
	if opts.Model != "" {
		model = opts.Model
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}

	resp, err := s.llm.GenerateContent(ctx, content, callOpts...)
	if guard.Stopped() {
		log.Debug().Str("service", s.name).Int("max_lines", budget.Max).Msg("generation stopped at line budget")
		return &Response{
			Text:            guard.Text(),
			Model:           model,
			Truncated:       true,
			TruncatedAtLine: guard.TruncatedAtLine(),
			Latency:         time.Since(start),
		}, nil
	}
	if err != nil {
		return nil, &UnavailableError{Service: s.name, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, &UnavailableError{Service: s.name, Err: errors.New("empty response")}
	}

	text, cut := budget.Truncate(resp.Choices[0].Content)
	r := &Response{Text: text, Model: model, Truncated: cut, Latency: time.Since(start)}
	if cut {
		r.TruncatedAtLine = budget.Max
	}
	return r, nil
}

func chatType(r Role) schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
