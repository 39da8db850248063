package ratelimit

import (
	"sync"
	"time"
)

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool          // Whether the request is allowed
	RetryAfter time.Duration // Suggested wait time if not allowed
	LimitType  string        // "global" or resource name
	Remaining  float64       // Remaining tokens in the relevant bucket
}

// Limiter throttles outbound calls to the embedding provider and the
// ANN vector index with a global bucket plus per-resource buckets.
type Limiter struct {
	mu              sync.RWMutex
	enabled         bool
	globalBucket    *Bucket
	resourceBuckets map[string]*Bucket
	config          *Config
	metrics         *Metrics
}

// NewLimiter creates a new rate limiter from configuration.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Limiter{
		enabled:         cfg.Enabled,
		resourceBuckets: make(map[string]*Bucket),
		config:          cfg,
		metrics:         NewMetrics(),
	}

	l.globalBucket = NewBucket(
		float64(cfg.Global.BurstSize),
		cfg.Global.RequestsPerSecond,
	)

	for _, limit := range cfg.Resources {
		l.resourceBuckets[limit.Name] = NewBucket(
			float64(limit.BurstSize),
			limit.RequestsPerSecond,
		)
	}

	return l
}

// Allow checks if a call against the named resource is allowed,
// consuming one token from both the global bucket and the
// resource-specific bucket if configured.
func (l *Limiter) Allow(resource string) *LimitResult {
	if !l.enabled {
		return &LimitResult{
			Allowed:   true,
			LimitType: "disabled",
			Remaining: -1,
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.globalBucket.TryConsume(1) {
		retryAfter := l.globalBucket.TimeToWait(1)
		l.metrics.RecordRejection("global", resource)
		return &LimitResult{
			Allowed:    false,
			RetryAfter: retryAfter,
			LimitType:  "global",
			Remaining:  l.globalBucket.Tokens(),
		}
	}

	if bucket, exists := l.resourceBuckets[resource]; exists {
		if !bucket.TryConsume(1) {
			retryAfter := bucket.TimeToWait(1)
			l.metrics.RecordRejection(resource, resource)
			return &LimitResult{
				Allowed:    false,
				RetryAfter: retryAfter,
				LimitType:  resource,
				Remaining:  bucket.Tokens(),
			}
		}
		l.metrics.RecordAllowed(resource)
		return &LimitResult{
			Allowed:   true,
			LimitType: resource,
			Remaining: bucket.Tokens(),
		}
	}

	l.metrics.RecordAllowed(resource)
	return &LimitResult{
		Allowed:   true,
		LimitType: "global",
		Remaining: l.globalBucket.Tokens(),
	}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled enables or disables rate limiting.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// GetMetrics returns the current metrics.
func (l *Limiter) GetMetrics() *Metrics {
	return l.metrics
}

// GetResourceBucket returns the bucket for a specific resource (for testing).
func (l *Limiter) GetResourceBucket(resource string) *Bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resourceBuckets[resource]
}

// GetGlobalBucket returns the global bucket (for testing).
func (l *Limiter) GetGlobalBucket() *Bucket {
	return l.globalBucket
}

// Reset resets all buckets to full capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.globalBucket.Reset()
	for _, bucket := range l.resourceBuckets {
		bucket.Reset()
	}
}

// Stats returns current limiter statistics.
type Stats struct {
	Enabled        bool               `json:"enabled"`
	GlobalTokens   float64            `json:"global_tokens"`
	ResourceTokens map[string]float64 `json:"resource_tokens"`
}

// GetStats returns current limiter statistics.
func (l *Limiter) GetStats() *Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &Stats{
		Enabled:        l.enabled,
		GlobalTokens:   l.globalBucket.Tokens(),
		ResourceTokens: make(map[string]float64),
	}

	for name, bucket := range l.resourceBuckets {
		stats.ResourceTokens[name] = bucket.Tokens()
	}

	return stats
}
