package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/valpere/vorewrite/internal/retry"
)

// Resilient rate limits and retries calls to another Service.
type Resilient struct {
	inner   Service
	limiter *rate.Limiter
	cfg     retry.Config
}

// NewResilient wraps inner. interval is the minimum spacing between calls
// (zero disables limiting) and burst the number of calls allowed at once.
func NewResilient(inner Service, interval time.Duration, burst int, cfg retry.Config) *Resilient {
	r := &Resilient{inner: inner, cfg: cfg}
	if interval > 0 {
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
	return r
}

func (r *Resilient) Name() string {
	return r.inner.Name()
}

func (r *Resilient) Generate(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	var out *Response
	res := retry.Do(ctx, r.cfg, r.inner.Name(), func(ctx context.Context) error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		resp, err := r.inner.Generate(ctx, messages, opts)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if !res.Success {
		return nil, res.LastError
	}
	return out, nil
}
