package workflow

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces successive catalog/reasoning calls inside a stage. The
// inter-slot delay is deliberate rate-limit pacing, not scheduling; keeping
// it behind an interface makes it tunable and lets tests run unpaced.
type Pacer interface {
	Wait(ctx context.Context) error
}

type tokenBucketPacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a token-bucket pacer emitting one permit per interval.
// The first call proceeds immediately.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return NopPacer{}
	}
	return &tokenBucketPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *tokenBucketPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NopPacer never waits; used in tests and the standalone stage endpoints
// where pacing is not needed.
type NopPacer struct{}

func (NopPacer) Wait(ctx context.Context) error { return ctx.Err() }
