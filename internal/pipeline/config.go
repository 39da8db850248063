package pipeline

import (
	"github.com/mdmcore/resolve/internal/blocking"
	"github.com/mdmcore/resolve/internal/clustering"
	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/matching"
	"github.com/mdmcore/resolve/internal/preprocess"
	"github.com/mdmcore/resolve/internal/survivorship"
	"github.com/mdmcore/resolve/internal/trust"
)

// Config bundles one entity type's fully resolved stage configuration.
// It is assembled by the caller (typically from a registry.Registry
// entity descriptor plus pkg/config) and handed to New.
type Config struct {
	EntityName string

	// PreprocessSteps maps a field name to its configured pipeline.
	PreprocessSteps map[string][]preprocess.Step

	TrustConfig trust.Config

	BlockingStrategies []blocking.Strategy
	MaxBlockSize       int

	MatchingConfig matching.Config

	TransitivityGuard bool

	SurvivorshipRules []survivorship.FieldRule

	// CacheCapacity bounds the Match Engine's comparator score cache.
	// 0 disables memoization.
	CacheCapacity int

	// Workers bounds parallelism for preprocessing and pair evaluation.
	// 0 defaults to a single worker.
	Workers int
}

// buildStages wires a Config into the live stage objects the Pipeline
// drives. Split out from New for testability.
type stages struct {
	preReg    *preprocess.Registry
	scorer    *trust.Scorer
	blocker   *blocking.Blocker
	engine    *matching.Engine
	builder   *clustering.Builder
	survivor  *survivorship.Survivor
}

func buildStages(cfg Config, cmpReg *comparators.Registry) (*stages, error) {
	if err := cfg.TrustConfig.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.MatchingConfig.Validate(cmpReg); err != nil {
		return nil, err
	}

	var cache *matching.ScoreCache
	if cfg.CacheCapacity > 0 {
		cache = matching.NewScoreCache(cfg.CacheCapacity)
	}

	var blockerOpts []blocking.Option
	if cfg.MaxBlockSize > 0 {
		blockerOpts = append(blockerOpts, blocking.WithMaxBlockSize(cfg.MaxBlockSize))
	}

	return &stages{
		preReg:   preprocess.NewRegistry(),
		scorer:   trust.NewScorer(cfg.TrustConfig),
		blocker:  blocking.New(cfg.BlockingStrategies, blockerOpts...),
		engine:   matching.NewEngine(cfg.MatchingConfig, cmpReg, cache),
		builder:  clustering.NewBuilder(clustering.WithTransitivityGuard(cfg.TransitivityGuard)),
		survivor: survivorship.NewSurvivor(cfg.SurvivorshipRules),
	}, nil
}
