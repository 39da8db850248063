// Package wiring translates the declarative pkg/config surface into the
// live registry.Registry and pipeline.Config the CLI hands to
// pipeline.New.
package wiring

import (
	"fmt"
	"sort"

	"github.com/mdmcore/resolve/internal/blocking"
	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/matching"
	"github.com/mdmcore/resolve/internal/pipeline"
	"github.com/mdmcore/resolve/internal/preprocess"
	"github.com/mdmcore/resolve/internal/ratelimit"
	"github.com/mdmcore/resolve/internal/registry"
	"github.com/mdmcore/resolve/internal/survivorship"
	"github.com/mdmcore/resolve/internal/trust"
	"github.com/mdmcore/resolve/internal/vectorindex"
	"github.com/mdmcore/resolve/pkg/config"
)

// vectorBlockThreshold is the minimum cosine similarity an ANN neighbor
// must clear to become a candidate pair under the "vector" blocking
// strategy. Not user-configurable yet: pkg/config's blocking section has
// no threshold field (an Open Question deferred per DESIGN.md).
const vectorBlockThreshold = 0.85

// BuildLimiter constructs the single rate limiter shared by the REST
// API middleware, the embedding provider, and the ANN vector index, so
// a burst of cluster rebuilds that drives embedding/vector-index
// traffic is throttled against the same buckets the API's requests
// draw from. Global throughput comes from cfg.RateLimit; the
// per-resource embedding/vectorindex_query/vectorindex_upsert buckets
// keep ratelimit.DefaultConfig's defaults, since pkg/config has no
// per-resource override surface yet.
func BuildLimiter(cfg *config.Config) *ratelimit.Limiter {
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.Enabled = cfg.RateLimit.Enabled
	rlCfg.Global = ratelimit.LimitConfig{
		RequestsPerSecond: float64(cfg.RateLimit.RequestsPerSecond),
		BurstSize:         cfg.RateLimit.BurstSize,
	}
	return ratelimit.NewLimiter(rlCfg)
}

// defaultEntityName is used for the single flat entity type
// pkg/config's sources/fields sections describe. Multi-entity
// configuration is an Open Question deferred per DESIGN.md.
const defaultEntityName = "entity"

// BuildRegistry constructs a one-entity registry.Registry from cfg's
// sources and fields sections.
func BuildRegistry(cfg *config.Config) (*registry.Registry, error) {
	sourceNames := make([]string, 0, len(cfg.Sources))
	for name := range cfg.Sources {
		sourceNames = append(sourceNames, name)
	}
	sort.Strings(sourceNames)

	fieldNames := make([]string, 0, len(cfg.Fields))
	for name := range cfg.Fields {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)

	fields := make([]registry.FieldDescriptor, 0, len(fieldNames))
	for _, name := range fieldNames {
		fc := cfg.Fields[name]
		fields = append(fields, registry.FieldDescriptor{
			Name:             name,
			Type:             fc.Type,
			Comparator:       fc.Comparator,
			ComparatorParams: fc.ComparatorParams,
			Weight:           fc.Weight,
			MatchThreshold:   fc.MatchThreshold,
			NullPolicy:       matching.NullPolicy(fc.NullPolicy),
			Preprocessors:    fc.Preprocessors,
			Required:         fc.Required,
		})
	}

	return registry.New([]registry.EntityDescriptor{
		{Name: defaultEntityName, Fields: fields, Sources: sourceNames},
	})
}

// BuildPipelineConfig assembles a pipeline.Config for entityName from
// cfg and the entity descriptor reg holds for it. limiter throttles the
// ANN vector index when cfg.Blocking.Strategy is "vector"; pass nil to
// leave that path unthrottled.
func BuildPipelineConfig(cfg *config.Config, reg *registry.Registry, entityName string, limiter *ratelimit.Limiter) (pipeline.Config, error) {
	entity, ok := reg.Entity(entityName)
	if !ok {
		return pipeline.Config{}, fmt.Errorf("wiring: unknown entity %q", entityName)
	}

	preprocessSteps := make(map[string][]preprocess.Step, len(entity.Fields))
	fieldRules := make([]matching.FieldRule, 0, len(entity.Fields))
	var requiredFields []trust.FieldImportance

	for _, f := range entity.Fields {
		steps := make([]preprocess.Step, 0, len(f.Preprocessors))
		for _, name := range f.Preprocessors {
			steps = append(steps, preprocess.Step{Name: name})
		}
		if len(steps) > 0 {
			preprocessSteps[f.Name] = steps
		}

		fieldRules = append(fieldRules, matching.FieldRule{
			Field:        f.Name,
			ComparatorID: f.Comparator,
			Params:       f.ComparatorParams,
			Weight:       f.Weight,
			NullPolicy:   f.NullPolicy,
		})

		if f.Required {
			requiredFields = append(requiredFields, trust.FieldImportance{Field: f.Name, Weight: 1})
		}
	}

	blockingStrategies, err := buildBlockingStrategies(cfg, limiter)
	if err != nil {
		return pipeline.Config{}, err
	}

	survivorshipRules := make([]survivorship.FieldRule, 0, len(cfg.Survivorship))
	fieldNames := make([]string, 0, len(cfg.Survivorship))
	for name := range cfg.Survivorship {
		fieldNames = append(fieldNames, name)
	}
	sort.Strings(fieldNames)
	for _, name := range fieldNames {
		sc := cfg.Survivorship[name]
		var sourcePriority []string
		if sp, ok := sc.Params["source_priority"].([]string); ok {
			sourcePriority = sp
		}
		survivorshipRules = append(survivorshipRules, survivorship.FieldRule{
			Field:          name,
			Strategy:       survivorship.Strategy(sc.Strategy),
			SourcePriority: sourcePriority,
		})
	}

	sourceReliability := make(map[string]float64, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		sourceReliability[name] = sc.Reliability
	}

	return pipeline.Config{
		EntityName:      entityName,
		PreprocessSteps: preprocessSteps,
		TrustConfig: trust.Config{
			SourceReliabilityWeight: cfg.Trust.ComponentWeights.Source,
			CompletenessWeight:      cfg.Trust.ComponentWeights.Completeness,
			TimelinessWeight:        cfg.Trust.ComponentWeights.Timeliness,
			ValidityWeight:          cfg.Trust.ComponentWeights.Validity,
			SourceReliability:       sourceReliability,
			RequiredFields:          requiredFields,
			HalfLifeDays:            halfLifeFor(cfg, entityName),
		},
		BlockingStrategies: blockingStrategies,
		MaxBlockSize:       cfg.Blocking.MaxBlockSize,
		MatchingConfig: matching.Config{
			Fields:          fieldRules,
			Aggregation:     matching.AggWeightedAverage,
			MatchThreshold:  cfg.Thresholds.Match,
			ReviewThreshold: cfg.Thresholds.Review,
		},
		TransitivityGuard: cfg.Thresholds.TransitivityGuardEnabled,
		SurvivorshipRules: survivorshipRules,
		CacheCapacity:     4096,
		Workers:           0,
	}, nil
}

func halfLifeFor(cfg *config.Config, entityName string) float64 {
	if v, ok := cfg.Trust.HalfLifeDays[entityName]; ok {
		return v
	}
	return cfg.Trust.HalfLifeDays["default"]
}

func buildBlockingStrategies(cfg *config.Config, limiter *ratelimit.Limiter) ([]blocking.Strategy, error) {
	switch cfg.Blocking.Strategy {
	case "standard":
		if len(cfg.Blocking.Keys) == 0 {
			return nil, fmt.Errorf("wiring: blocking.strategy=standard requires blocking.keys")
		}
		return []blocking.Strategy{blocking.NewStandardStrategy("standard", cfg.Blocking.Keys, 0)}, nil
	case "sorted_neighborhood":
		if len(cfg.Blocking.Keys) != 1 {
			return nil, fmt.Errorf("wiring: blocking.strategy=sorted_neighborhood requires exactly one blocking.keys entry")
		}
		window := cfg.Blocking.Window
		if window <= 0 {
			window = 5
		}
		return []blocking.Strategy{blocking.NewSortedNeighborhoodStrategy("sorted_neighborhood", cfg.Blocking.Keys[0], window)}, nil
	case "vector":
		if len(cfg.Blocking.Keys) != 1 {
			return nil, fmt.Errorf("wiring: blocking.strategy=vector requires exactly one blocking.keys entry naming the embedded field")
		}
		idx, err := buildVectorIndex(cfg, limiter)
		if err != nil {
			return nil, err
		}
		topK := cfg.Blocking.TopK
		if topK <= 0 {
			topK = 20
		}
		return []blocking.Strategy{blocking.NewVectorStrategy("vector", cfg.Blocking.Keys[0], idx, topK, vectorBlockThreshold)}, nil
	default:
		return nil, fmt.Errorf("wiring: unknown blocking strategy %q", cfg.Blocking.Strategy)
	}
}

// buildVectorIndex constructs the ANN backend the "vector" blocking
// strategy queries: Qdrant over HTTP when vectorindex.enabled is set and
// the provider is "qdrant", otherwise the brute-force in-memory index.
// Qdrant calls are throttled through limiter's
// "vectorindex_query"/"vectorindex_upsert" buckets.
func buildVectorIndex(cfg *config.Config, limiter *ratelimit.Limiter) (vectorindex.Index, error) {
	if !cfg.VectorIndex.Enabled {
		return vectorindex.NewMemoryIndex(), nil
	}
	switch cfg.VectorIndex.Provider {
	case "", "memory":
		return vectorindex.NewMemoryIndex(), nil
	case "qdrant":
		return vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
			URL:       cfg.VectorIndex.URL,
			Dimension: cfg.VectorIndex.Dimension,
			Limiter:   limiter,
		}), nil
	default:
		return nil, fmt.Errorf("wiring: unknown vectorindex provider %q", cfg.VectorIndex.Provider)
	}
}

// NewComparatorRegistry builds the default comparator registry every
// entity's matching rules resolve comparator ids against.
func NewComparatorRegistry() *comparators.Registry {
	return comparators.NewRegistry()
}
