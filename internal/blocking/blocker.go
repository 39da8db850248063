// Package blocking generates candidate record pairs for the Match Engine
// without comparing every record against every other. A
// Blocker partitions normalized records into blocks using one or more
// strategies and emits the union of within-block pairs, each pair
// appearing exactly once regardless of how many blocks co-locate it.
package blocking

import (
	"context"
	"fmt"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/model"
)

var log = logging.GetLogger("blocking")

// ErrBlockExplosion is returned when a single block's population exceeds
// the configured MaxBlockSize, signaling a blocking key that is too
// coarse to be useful.
type ErrBlockExplosion struct {
	BlockKey model.BlockKey
	Size     int
	Limit    int
}

func (e *ErrBlockExplosion) Error() string {
	return fmt.Sprintf("blocking: block %q has %d members, exceeds limit %d", e.BlockKey, e.Size, e.Limit)
}

// Strategy computes the block keys a record belongs to.
type Strategy interface {
	// Name identifies the strategy for logging and metrics.
	Name() string
	// Keys returns the block keys a record occupies under this strategy.
	// A record with no applicable keys (e.g. missing source field)
	// returns an empty slice; it will not be blocked by this strategy.
	Keys(ctx context.Context, rec *model.NormalizedRecord) ([]model.BlockKey, error)
}

// Blocker runs one or more Strategies over a record set and produces the
// deduplicated union of candidate pairs.
type Blocker struct {
	strategies  []Strategy
	maxBlockSize int
}

// Option configures a Blocker.
type Option func(*Blocker)

// WithMaxBlockSize bounds any single block's population; exceeding it
// raises ErrBlockExplosion instead of silently emitting O(n^2) pairs. A
// non-positive value disables the check.
func WithMaxBlockSize(n int) Option {
	return func(b *Blocker) { b.maxBlockSize = n }
}

// New builds a Blocker running strategies in the given order. At least
// one strategy is required.
func New(strategies []Strategy, opts ...Option) *Blocker {
	b := &Blocker{strategies: strategies, maxBlockSize: 5000}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GeneratePairs partitions records by every configured strategy and
// returns the deduplicated union of within-block candidate pairs. Pairs
// are canonically ordered (model.NewCandidatePair) so the same logical
// pair never appears twice even when multiple strategies co-locate it.
func (b *Blocker) GeneratePairs(ctx context.Context, records []*model.NormalizedRecord) ([]model.CandidatePair, error) {
	seen := make(map[model.CandidatePair]struct{})
	var out []model.CandidatePair

	for _, strat := range b.strategies {
		blocks := make(map[model.BlockKey][]*model.NormalizedRecord)
		for _, rec := range records {
			keys, err := strat.Keys(ctx, rec)
			if err != nil {
				return nil, fmt.Errorf("blocking: strategy %s: %w", strat.Name(), err)
			}
			for _, k := range keys {
				blocks[k] = append(blocks[k], rec)
			}
		}

		for key, members := range blocks {
			if b.maxBlockSize > 0 && len(members) > b.maxBlockSize {
				return nil, &ErrBlockExplosion{BlockKey: key, Size: len(members), Limit: b.maxBlockSize}
			}
			for i := 0; i < len(members); i++ {
				for j := i + 1; j < len(members); j++ {
					pair := model.NewCandidatePair(members[i].RecordID, members[j].RecordID)
					if _, dup := seen[pair]; dup {
						continue
					}
					seen[pair] = struct{}{}
					out = append(out, pair)
				}
			}
		}
		log.Debug("blocking strategy complete", "strategy", strat.Name(), "blocks", len(blocks), "pairs_so_far", len(out))
	}

	return out, nil
}
