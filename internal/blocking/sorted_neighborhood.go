package blocking

import (
	"context"
	"fmt"
	"sort"

	"github.com/mdmcore/resolve/internal/model"
)

// SortedNeighborhoodStrategy implements the sorted-neighborhood method:
// records are sorted by a key field, then a fixed-size window slides
// over the sorted list, treating every record it covers as co-blocked
//. Unlike StandardStrategy it does not require an exact
// key match, which catches near-miss keys a standard strategy would
// split into separate blocks.
//
// Keys alone cannot express a sliding window (each record would need a
// distinct key per window position); BuildPairs computes pairs directly
// and should be called instead of going through Blocker.GeneratePairs
// when this strategy is used standalone. When used via Blocker, Keys
// returns one key per distinct key-field value, so only records with
// equal key values are co-blocked; the windowed semantics are not
// reproduced.
type SortedNeighborhoodStrategy struct {
	name       string
	keyField   string
	windowSize int
}

// NewSortedNeighborhoodStrategy builds the strategy sorting on keyField
// with the given window size (must be >= 2).
func NewSortedNeighborhoodStrategy(name, keyField string, windowSize int) *SortedNeighborhoodStrategy {
	if windowSize < 2 {
		windowSize = 2
	}
	return &SortedNeighborhoodStrategy{name: name, keyField: keyField, windowSize: windowSize}
}

func (s *SortedNeighborhoodStrategy) Name() string { return s.name }

// Keys is a degenerate single-key fallback so SortedNeighborhoodStrategy
// can satisfy the Strategy interface for use inside Blocker; prefer
// BuildPairs for the true windowed behavior.
func (s *SortedNeighborhoodStrategy) Keys(_ context.Context, rec *model.NormalizedRecord) ([]model.BlockKey, error) {
	v, ok := rec.Value(s.keyField)
	if !ok || v.Kind != model.KindString {
		return nil, nil
	}
	return []model.BlockKey{model.BlockKey(fmt.Sprintf("%s:%s", s.name, v.Str))}, nil
}

// BuildPairs sorts records by keyField and slides a window of
// s.windowSize across the sorted sequence, pairing every record with
// every other record the window covers.
func (s *SortedNeighborhoodStrategy) BuildPairs(_ context.Context, records []*model.NormalizedRecord) []model.CandidatePair {
	type keyed struct {
		key string
		rec *model.NormalizedRecord
	}
	sortable := make([]keyed, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Value(s.keyField)
		if !ok || v.Kind != model.KindString {
			continue
		}
		sortable = append(sortable, keyed{key: v.Str, rec: rec})
	}
	sort.Slice(sortable, func(i, j int) bool { return sortable[i].key < sortable[j].key })

	seen := make(map[model.CandidatePair]struct{})
	var out []model.CandidatePair
	for i := range sortable {
		end := i + s.windowSize
		if end > len(sortable) {
			end = len(sortable)
		}
		for j := i + 1; j < end; j++ {
			pair := model.NewCandidatePair(sortable[i].rec.RecordID, sortable[j].rec.RecordID)
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			out = append(out, pair)
		}
	}
	return out
}
