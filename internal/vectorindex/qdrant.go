package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/ratelimit"
)

var log = logging.GetLogger("vectorindex")

// QdrantConfig configures the Qdrant-backed ANN Index.
type QdrantConfig struct {
	URL            string
	CollectionName string
	Dimension      int

	// Limiter throttles outbound calls against the
	// "vectorindex_query" and "vectorindex_upsert" resource buckets.
	// Nil means unthrottled.
	Limiter *ratelimit.Limiter
}

// QdrantIndex is an Index backed by a Qdrant HTTP collection. It talks
// to the REST API directly (no SDK), a raw-net/http style consistent
// with this codebase's other outbound HTTP clients.
type QdrantIndex struct {
	baseURL        string
	collectionName string
	dimension      int
	httpClient     *http.Client
	limiter        *ratelimit.Limiter
}

// NewQdrantIndex creates a Qdrant-backed Index. It does not verify
// connectivity; call EnsureCollection before first use.
func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	idx := &QdrantIndex{
		baseURL:        cfg.URL,
		collectionName: cfg.CollectionName,
		dimension:      cfg.Dimension,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		limiter:        cfg.Limiter,
	}
	if idx.baseURL == "" {
		idx.baseURL = "http://localhost:6333"
	}
	if idx.collectionName == "" {
		idx.collectionName = "mdmcore-blocking"
	}
	return idx
}

// IsAvailable checks whether the Qdrant endpoint responds.
func (q *QdrantIndex) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// EnsureCollection creates the collection with an HNSW index if it does
// not already exist (m=16, ef_construct=100).
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("vectorindex: check collection: %w", err)
	}
	if exists {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dimension,
			"distance": "Cosine",
		},
		"hnsw_config": map[string]interface{}{
			"m":             16,
			"ef_construct":  100,
		},
	}
	return q.put(ctx, "/collections/"+q.collectionName, body, nil)
}

func (q *QdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/collections/%s", q.baseURL, q.collectionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, recordID string, vector []float32) error {
	if err := ratelimit.Wait(ctx, q.limiter, "vectorindex_upsert"); err != nil {
		return fmt.Errorf("vectorindex: %w", err)
	}
	points := []map[string]interface{}{
		{"id": recordID, "vector": toFloat64Slice(vector)},
	}
	return q.put(ctx, fmt.Sprintf("/collections/%s/points", q.collectionName), map[string]interface{}{"points": points}, nil)
}

func (q *QdrantIndex) Remove(ctx context.Context, recordID string) error {
	if err := ratelimit.Wait(ctx, q.limiter, "vectorindex_upsert"); err != nil {
		return fmt.Errorf("vectorindex: %w", err)
	}
	body := map[string]interface{}{"points": []string{recordID}}
	return q.post(ctx, fmt.Sprintf("/collections/%s/points/delete", q.collectionName), body, nil)
}

func (q *QdrantIndex) Query(ctx context.Context, recordID string, vector []float32, topK int) ([]Neighbor, error) {
	if err := ratelimit.Wait(ctx, q.limiter, "vectorindex_query"); err != nil {
		return nil, fmt.Errorf("vectorindex: %w", err)
	}
	if topK <= 0 {
		topK = 10
	}
	body := map[string]interface{}{
		"vector":       toFloat64Slice(vector),
		"limit":        topK,
		"with_payload": false,
	}

	var searchResp struct {
		Result []struct {
			ID    interface{} `json:"id"`
			Score float64     `json:"score"`
		} `json:"result"`
	}
	if err := q.post(ctx, fmt.Sprintf("/collections/%s/points/search", q.collectionName), body, &searchResp); err != nil {
		return nil, fmt.Errorf("vectorindex: qdrant search: %w", err)
	}

	out := make([]Neighbor, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		id := fmt.Sprintf("%v", r.ID)
		if id == recordID {
			continue
		}
		out = append(out, Neighbor{RecordID: id, Score: r.Score})
	}
	return out, nil
}

func (q *QdrantIndex) put(ctx context.Context, path string, body, out interface{}) error {
	return q.do(ctx, http.MethodPut, path, body, out)
}

func (q *QdrantIndex) post(ctx context.Context, path string, body, out interface{}) error {
	return q.do(ctx, http.MethodPost, path, body, out)
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		log.Warn("qdrant request failed", "path", path, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("request to %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toFloat64Slice(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
