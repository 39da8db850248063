package blocking

import (
	"context"
	"fmt"

	"github.com/mdmcore/resolve/internal/model"
	"github.com/mdmcore/resolve/internal/vectorindex"
)

// VectorStrategy blocks by approximate nearest-neighbor proximity over a
// field's embedding vector. It does
// not implement Strategy directly because ANN lookup requires the full
// record set to be indexed first; call BuildPairs instead of going
// through Blocker.GeneratePairs.
type VectorStrategy struct {
	name      string
	field     string
	index     vectorindex.Index
	topK      int
	threshold float64
}

// NewVectorStrategy builds a VectorStrategy over field's embedding,
// using index for ANN lookup. Only neighbors with cosine similarity >=
// threshold are paired, bounding block growth independent of topK.
func NewVectorStrategy(name, field string, index vectorindex.Index, topK int, threshold float64) *VectorStrategy {
	if topK <= 0 {
		topK = 20
	}
	return &VectorStrategy{name: name, field: field, index: index, topK: topK, threshold: threshold}
}

func (s *VectorStrategy) Name() string { return s.name }

// BuildPairs indexes every record's embedding for s.field, then queries
// each one's nearest neighbors to form candidate pairs.
func (s *VectorStrategy) BuildPairs(ctx context.Context, records []*model.NormalizedRecord) ([]model.CandidatePair, error) {
	byID := make(map[string]*model.NormalizedRecord, len(records))
	for _, rec := range records {
		vec, ok := rec.Embeddings[s.field]
		if !ok || len(vec) == 0 {
			continue
		}
		byID[rec.RecordID] = rec
		if err := s.index.Upsert(ctx, rec.RecordID, vec); err != nil {
			return nil, fmt.Errorf("blocking: vector strategy %s: upsert %s: %w", s.name, rec.RecordID, err)
		}
	}

	seen := make(map[model.CandidatePair]struct{})
	var out []model.CandidatePair
	for id, rec := range byID {
		vec := rec.Embeddings[s.field]
		neighbors, err := s.index.Query(ctx, id, vec, s.topK)
		if err != nil {
			return nil, fmt.Errorf("blocking: vector strategy %s: query %s: %w", s.name, id, err)
		}
		for _, n := range neighbors {
			if n.Score < s.threshold {
				continue
			}
			if _, ok := byID[n.RecordID]; !ok {
				continue
			}
			pair := model.NewCandidatePair(id, n.RecordID)
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			out = append(out, pair)
		}
	}
	return out, nil
}
