// Package ratelimit provides token-bucket limiters keyed by an arbitrary
// string (client IP, account id, route). The Redis limiter is shared by all
// replicas; the in-process limiter is a best-effort fallback whose counters
// reset on restart and are not shared, so it must never be relied on for
// correctness.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter takes one token from the bucket named by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Fallback consults Primary and switches to Secondary for any call on
// which Primary fails.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
	OnError   func(ctx context.Context, err error)
}

func (f Fallback) Allow(ctx context.Context, key string) (Decision, error) {
	d, err := f.Primary.Allow(ctx, key)
	if err == nil {
		return d, nil
	}
	if f.OnError != nil {
		f.OnError(ctx, err)
	}
	return f.Secondary.Allow(ctx, key)
}
