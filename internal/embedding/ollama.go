package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/ratelimit"
)

var log = logging.GetLogger("embedding")

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Enabled bool

	// Limiter throttles outbound calls against the "embedding" resource
	// bucket. Nil means unthrottled.
	Limiter *ratelimit.Limiter
}

// OllamaProvider computes embeddings via a local Ollama server: a raw
// net/http JSON request shape behind the Provider interface.
type OllamaProvider struct {
	baseURL    string
	model      string
	enabled    bool
	httpClient *http.Client
	limiter    *ratelimit.Limiter

	mu  sync.RWMutex
	dim int
}

// NewOllamaProvider builds an OllamaProvider from cfg, applying its
// baseline defaults.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    cfg.Limiter,
	}
	if p.baseURL == "" {
		p.baseURL = "http://localhost:11434"
	}
	if p.model == "" {
		p.model = "nomic-embed-text"
	}
	return p
}

// IsAvailable checks whether the Ollama endpoint is reachable.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	if !p.enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding for text from the configured model.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if !p.enabled {
		return nil, fmt.Errorf("embedding: ollama provider not enabled")
	}

	if err := ratelimit.Wait(ctx, p.limiter, "embedding"); err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}

	jsonBody, err := json.Marshal(embeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Warn("embedding request failed", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("embedding: request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}

	p.mu.Lock()
	p.dim = len(embResp.Embedding)
	p.mu.Unlock()

	return embResp.Embedding, nil
}

// Dimension reports the vector length of the last successful Embed
// call, or 0 before the first one.
func (p *OllamaProvider) Dimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}
