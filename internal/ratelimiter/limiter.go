package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/notifyhub/workitems/internal/domain"
)

// KindLimiters holds one token bucket per work item kind so a burst of
// Task changes cannot starve Epic notifications at the mail relay.
// Burst equals the rate: no saved-up capacity above the per-second maximum.
type KindLimiters struct {
	limiters map[domain.Kind]*rate.Limiter
}

// New creates a KindLimiters with ratePerSec tokens per second per kind.
// A non-positive rate disables throttling.
func New(ratePerSec int) *KindLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec
	if ratePerSec <= 0 {
		r, burst = rate.Inf, 1
	}

	limiters := make(map[domain.Kind]*rate.Limiter, len(domain.Kinds))
	for _, k := range domain.Kinds {
		limiters[k] = rate.NewLimiter(r, burst)
	}
	return &KindLimiters{limiters: limiters}
}

// Wait blocks until the kind's limiter grants a token. Called by each
// worker immediately before handing a message to the transport.
// Returns a non-nil error only if ctx ends while waiting. Unknown kinds
// are not throttled.
func (kl *KindLimiters) Wait(ctx context.Context, kind domain.Kind) error {
	l, ok := kl.limiters[kind]
	if !ok {
		return nil
	}
	return l.Wait(ctx)
}
