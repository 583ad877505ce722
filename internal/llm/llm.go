// Package llm defines the language model service used by the conversion loop
// and its HTTP and langchaingo backends.
//
// Every backend honours Options.MaxLines: streaming backends stop generating
// once the line budget is reached, the others truncate the finished response.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are per-call generation settings. MaxLines ≤ 0 means no line cap.
type Options struct {
	Model       string
	Temperature float64
	MaxLines    int
}

// Response is a completed (possibly truncated) generation.
type Response struct {
	Text            string
	Model           string
	Truncated       bool
	TruncatedAtLine int
	Latency         time.Duration
}

// Service generates a reply for a conversation.
type Service interface {
	Name() string
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// UnavailableError reports that a service could not be reached or failed to
// produce a response.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("language model service %s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is or wraps an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// StatusError is a non-200 HTTP reply from a backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d", e.Code)
	}
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// Func adapts a function to Service.
type Func struct {
	ServiceName string
	Fn          func(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

func (f Func) Name() string {
	if f.ServiceName == "" {
		return "func"
	}
	return f.ServiceName
}

func (f Func) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	return f.Fn(ctx, messages, opts)
}
