package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Wait blocks until resource has an available token, retrying Allow
// at RetryAfter intervals, or returns ctx.Err() if ctx is done first.
// A nil limiter is a no-op, so call sites stay functional when no
// limiter is configured. Embedding provider calls and ANN vector index
// calls both suspend here rather than firing unthrottled requests.
func Wait(ctx context.Context, l *Limiter, resource string) error {
	if l == nil {
		return nil
	}
	for {
		result := l.Allow(resource)
		if result.Allowed {
			return nil
		}
		retryAfter := result.RetryAfter
		if retryAfter <= 0 {
			retryAfter = 10 * time.Millisecond
		}
		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: wait for %s: %w", resource, ctx.Err())
		case <-timer.C:
		}
	}
}
