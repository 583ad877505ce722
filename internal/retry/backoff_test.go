package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("ollama returned status 503")
		}
		return nil
	})

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.LastError)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("invalid api key")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
	assert.EqualError(t, res.LastError, "invalid api key")
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	base := errors.New("connection refused but do not retry")
	res := Do(context.Background(), fastConfig(), "test", func(ctx context.Context) error {
		return Permanent(base)
	})

	assert.Equal(t, 1, res.Attempts)
	assert.Same(t, base, res.LastError)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	res := Do(context.Background(), fastConfig(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, res.Attempts)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour

	calls := 0
	res := Do(ctx, cfg, "test", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
}

func TestDelay_Capped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	assert.Equal(t, time.Second, Delay(cfg, 0))
	assert.Equal(t, 3*time.Second, Delay(cfg, 4))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("model not found")))
}
