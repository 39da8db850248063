// Package embedding provides the pluggable boundary between the
// pipeline and whatever computes field embedding vectors. Embedding
// computation itself is out of scope: this package
// only defines the interface the Pipeline Orchestrator and Blocker's
// vector strategy consume, plus one concrete client adapter.
package embedding

import "context"

// Provider computes an embedding vector for a piece of text.
type Provider interface {
	// Embed returns the vector for text, or an error if the backend is
	// unavailable or the request fails.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the vector length Embed produces, or 0 if
	// unknown until the first call.
	Dimension() int
}

// NoopProvider always returns an error; it is the default when no
// embedding backend is configured, so vector comparators/blocking
// strategies cleanly no-op rather than panic.
type NoopProvider struct{}

func (NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, errNotConfigured
}

func (NoopProvider) Dimension() int { return 0 }

var errNotConfigured = providerError("embedding: no provider configured")

type providerError string

func (e providerError) Error() string { return string(e) }
