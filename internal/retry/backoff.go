// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures retry behaviour.
type Config struct {
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" json:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier" json:"multiplier"`
	Jitter     bool          `mapstructure:"jitter" json:"jitter"`
}

// Result describes how an operation fared across attempts.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// ModelConfig suits language model requests, which are slow and sometimes
// rate limited.
func ModelConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, returns a non-retryable error, the retries
// are exhausted, or ctx is done. name labels log lines.
func Do(ctx context.Context, cfg Config, name string, op func(ctx context.Context) error) Result {
	start := time.Now()
	var res Result

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		err := op(ctx)
		if err == nil {
			res.Success = true
			res.LastError = nil
			res.TotalDuration = time.Since(start)
			if attempt > 0 {
				log.Debug().Str("op", name).Int("attempts", res.Attempts).Dur("took", res.TotalDuration).Msg("operation succeeded after retries")
			}
			return res
		}
		res.LastError = err

		var perm *permanentError
		if errors.As(err, &perm) || !IsRetryable(err) || attempt >= cfg.MaxRetries || ctx.Err() != nil {
			break
		}

		delay := Delay(cfg, attempt)
		log.Warn().Err(err).Str("op", name).Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying operation")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.LastError = ctx.Err()
			res.TotalDuration = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	var perm *permanentError
	if errors.As(res.LastError, &perm) {
		res.LastError = perm.err
	}
	res.TotalDuration = time.Since(start)
	return res
}

// Delay returns the backoff before retry number attempt+1.
func Delay(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(cfg.BaseDelay) * math.Pow(mult, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		spread := delay * 0.1
		delay += (rand.Float64()*2 - 1) * spread
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

var retryableFragments = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"status 429",
	"status 502",
	"status 503",
	"status 504",
	"no such host",
	"network unreachable",
	"broken pipe",
	"eof",
}

// IsRetryable classifies transport failures worth another attempt.
// Cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
