// Package matching implements the Match Engine: applying configured
// per-field comparators to a CandidatePair's two records, aggregating
// the per-field scores, and deciding MATCH/REVIEW/NO_MATCH. Grounded on
// the rule-evaluation and candidate-scoring shape of
// other_examples/e5be9673_..._matching-engine.go.go (per-rule scoring,
// weighted aggregation, sort-by-score) generalized from its "one
// candidate, many rules" model to "one pair, many fields".
package matching

import (
	"context"
	"fmt"

	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/model"
)

var log = logging.GetLogger("matching")

// NullPolicy controls how a missing field value contributes to the
// aggregate score.
type NullPolicy string

const (
	// NullMismatch scores the field 0 when either side is null.
	NullMismatch NullPolicy = "treat_as_mismatch"
	// NullSkip excludes the field from the aggregation denominator
	// entirely when either side is null.
	NullSkip NullPolicy = "skip"
	// NullEqual scores the field 1 when both sides are null, 0 if only
	// one side is.
	NullEqual NullPolicy = "treat_nulls_equal"
)

// Aggregation selects how per-field scores combine into an overall
// score.
type Aggregation string

const (
	AggWeightedAverage Aggregation = "weighted_average"
	AggMin             Aggregation = "min"
	AggProduct         Aggregation = "product"
)

// Condition gates a FieldRule's comparator selection on an arbitrary
// predicate over the two records ("conditional rule"). A nil Condition
// always applies.
type Condition func(left, right *model.NormalizedRecord) bool

// FieldRule configures comparison for a single field.
type FieldRule struct {
	Field        string
	ComparatorID string
	Params       map[string]any
	Weight       float64
	NullPolicy   NullPolicy

	// Condition, when non-nil, must return true for this rule to apply
	// to a given pair; otherwise the field is excluded from this
	// decision entirely (as if it had no configured rule).
	Condition Condition
}

// Config is the full Match Engine configuration for one entity type.
type Config struct {
	Fields          []FieldRule
	Aggregation     Aggregation
	MatchThreshold  float64
	ReviewThreshold float64
}

// Validate checks Config for the fatal configuration errors that must
// surface at startup rather than at decision time.
func (c Config) Validate(reg *comparators.Registry) error {
	if len(c.Fields) == 0 {
		return fmt.Errorf("matching: config has no field rules")
	}
	if c.ReviewThreshold > c.MatchThreshold {
		return fmt.Errorf("matching: review_threshold (%v) must be <= match_threshold (%v)", c.ReviewThreshold, c.MatchThreshold)
	}
	for _, f := range c.Fields {
		if f.Field == "" {
			return fmt.Errorf("matching: field rule missing field name")
		}
		if _, err := reg.Lookup(f.ComparatorID); err != nil {
			return fmt.Errorf("matching: field %q: %w", f.Field, err)
		}
	}
	return nil
}

// Engine decides MATCH/REVIEW/NO_MATCH for CandidatePairs.
type Engine struct {
	cfg     Config
	reg     *comparators.Registry
	cache   *ScoreCache
	onWarn  func(field, comparatorID string, err error)
}

// NewEngine builds an Engine. cache may be nil to disable memoization.
func NewEngine(cfg Config, reg *comparators.Registry, cache *ScoreCache) *Engine {
	return &Engine{cfg: cfg, reg: reg, cache: cache}
}

// OnWarning registers a callback invoked whenever a comparator raises
// an error during Decide: treated as score 0, never fatal, but
// surfaced as a warning event.
func (e *Engine) OnWarning(fn func(field, comparatorID string, err error)) {
	e.onWarn = fn
}

// Decide evaluates pair's two records against the configured field
// rules and returns the resulting MatchDecision.
func (e *Engine) Decide(ctx context.Context, pair model.CandidatePair, left, right *model.NormalizedRecord) (*model.MatchDecision, error) {
	perField := make(map[string]float64, len(e.cfg.Fields))
	var weightedSum, weightSum float64
	minScore := 1.0
	product := 1.0
	contributed := 0

	for _, rule := range e.cfg.Fields {
		if rule.Condition != nil && !rule.Condition(left, right) {
			continue
		}

		score, skip, err := e.scoreField(ctx, rule, left, right)
		if err != nil {
			if e.onWarn != nil {
				e.onWarn(rule.Field, rule.ComparatorID, err)
			}
			log.Warn("comparator failed, scoring as mismatch", "field", rule.Field, "comparator", rule.ComparatorID, "error", err)
			score, skip = 0, false
		}
		if skip {
			continue
		}

		perField[rule.Field] = score
		weight := rule.Weight
		if weight <= 0 {
			weight = 1
		}
		weightedSum += score * weight
		weightSum += weight
		if score < minScore {
			minScore = score
		}
		product *= score
		contributed++
	}

	overall := aggregate(e.cfg.Aggregation, weightedSum, weightSum, minScore, product, contributed)

	decision := &model.MatchDecision{
		Pair:          pair,
		OverallScore:  overall,
		PerFieldScore: perField,
		Verdict:       verdictFor(overall, e.cfg.MatchThreshold, e.cfg.ReviewThreshold),
	}
	return decision, nil
}

func aggregate(mode Aggregation, weightedSum, weightSum, minScore, product float64, contributed int) float64 {
	if contributed == 0 {
		return 0
	}
	switch mode {
	case AggMin:
		return minScore
	case AggProduct:
		return product
	default: // AggWeightedAverage
		if weightSum == 0 {
			return 0
		}
		return weightedSum / weightSum
	}
}

func verdictFor(overall, matchThreshold, reviewThreshold float64) model.Verdict {
	switch {
	case overall >= matchThreshold:
		return model.VerdictMatch
	case overall >= reviewThreshold:
		return model.VerdictReview
	default:
		return model.VerdictNoMatch
	}
}

// scoreField applies null policy then invokes the comparator (with
// memoization), returning (score, skip, error). skip is true when the
// field should be excluded from the aggregation entirely.
func (e *Engine) scoreField(ctx context.Context, rule FieldRule, left, right *model.NormalizedRecord) (float64, bool, error) {
	lv, lok := left.Value(rule.Field)
	rv, rok := right.Value(rule.Field)
	leftNull := !lok || lv.IsNull()
	rightNull := !rok || rv.IsNull()

	if leftNull || rightNull {
		switch rule.NullPolicy {
		case NullSkip:
			return 0, true, nil
		case NullEqual:
			if leftNull && rightNull {
				return 1, false, nil
			}
			return 0, false, nil
		default: // NullMismatch
			return 0, false, nil
		}
	}

	if e.cache != nil {
		if score, ok := e.cache.Get(rule.ComparatorID, lv, rv); ok {
			return score, false, nil
		}
	}

	cmp, err := e.reg.Lookup(rule.ComparatorID)
	if err != nil {
		return 0, false, fmt.Errorf("matching: %w", err)
	}
	score, err := cmp.Compare(lv, rv, rule.Params)
	if err != nil {
		return 0, false, err
	}

	if e.cache != nil {
		e.cache.Put(rule.ComparatorID, lv, rv, score)
	}
	return score, false, nil
}
