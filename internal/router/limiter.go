package router

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// limiter enforces a route's per-minute request and token budgets locally.
type limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

func newLimiter(rpm, tpm int) *limiter {
	l := &limiter{}
	if rpm > 0 {
		l.requests = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
	if tpm > 0 {
		l.tokens = rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)
	}
	return l
}

// wait blocks until one request carrying n tokens fits both budgets.
func (l *limiter) wait(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if l.tokens != nil && n > 0 {
		// WaitN rejects n above the burst; a single oversized call spends the whole budget.
		if burst := l.tokens.Burst(); n > burst {
			n = burst
		}
		if err := l.tokens.WaitN(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
