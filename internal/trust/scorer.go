// Package trust implements the Trust Scorer: four per-record
// components (source reliability, completeness, timeliness, validity),
// combined into a weighted overall score attached to each
// NormalizedRecord before matching.
package trust

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// ValidationRule checks a single field value, used for the Validity
// component. Exactly one of Pattern, Range, or Predicate should be set.
type ValidationRule struct {
	Field     string
	Pattern   *regexp.Regexp
	RangeMin  *float64
	RangeMax  *float64
	Predicate func(model.Value) bool
}

func (r ValidationRule) check(v model.Value) bool {
	if v.IsNull() {
		return false
	}
	switch {
	case r.Pattern != nil:
		return r.Pattern.MatchString(v.AsString())
	case r.RangeMin != nil || r.RangeMax != nil:
		n, ok := v.AsNumber()
		if !ok {
			return false
		}
		if r.RangeMin != nil && n < *r.RangeMin {
			return false
		}
		if r.RangeMax != nil && n > *r.RangeMax {
			return false
		}
		return true
	case r.Predicate != nil:
		return r.Predicate(v)
	default:
		return true
	}
}

// FieldImportance weights a required field's contribution to the
// Completeness component.
type FieldImportance struct {
	Field  string
	Weight float64
}

// Config parameterizes Scorer for one entity type.
type Config struct {
	// Weights must sum to 1.
	SourceReliabilityWeight float64
	CompletenessWeight      float64
	TimelinessWeight        float64
	ValidityWeight          float64

	// SourceReliability maps source_id to its configured reliability
	// in [0,1].
	SourceReliability map[string]float64

	RequiredFields  []FieldImportance
	HalfLifeDays    float64
	ValidationRules []ValidationRule
}

// Validate checks that the component weights sum to 1 (within floating
// point tolerance), a fatal configuration error// of surfacing config problems at startup.
func (c Config) Validate() error {
	sum := c.SourceReliabilityWeight + c.CompletenessWeight + c.TimelinessWeight + c.ValidityWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("trust: component weights must sum to 1, got %v", sum)
	}
	if c.HalfLifeDays <= 0 {
		return fmt.Errorf("trust: half_life_days must be positive")
	}
	return nil
}

// Scorer computes TrustScores.6.
type Scorer struct {
	cfg Config
}

// NewScorer builds a Scorer from cfg.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the TrustScore for rec, evaluated as of now.
func (s *Scorer) Score(rec *model.NormalizedRecord, now time.Time) model.TrustScore {
	sourceReliability := s.cfg.SourceReliability[rec.SourceID]
	completeness := s.completeness(rec)
	timeliness := s.timeliness(rec, now)
	validity := s.validity(rec)

	overall := s.cfg.SourceReliabilityWeight*sourceReliability +
		s.cfg.CompletenessWeight*completeness +
		s.cfg.TimelinessWeight*timeliness +
		s.cfg.ValidityWeight*validity

	return model.TrustScore{
		RecordID:          rec.RecordID,
		SourceReliability: sourceReliability,
		Completeness:      completeness,
		Timeliness:        timeliness,
		Validity:          validity,
		Overall:           clamp01(overall),
	}
}

// completeness is the fraction of required fields that are non-null,
// weighted by per-field importance.
func (s *Scorer) completeness(rec *model.NormalizedRecord) float64 {
	if len(s.cfg.RequiredFields) == 0 {
		return 1
	}
	var weightSum, presentWeight float64
	for _, f := range s.cfg.RequiredFields {
		weight := f.Weight
		if weight <= 0 {
			weight = 1
		}
		weightSum += weight
		if v, ok := rec.Value(f.Field); ok && !v.IsNull() {
			presentWeight += weight
		}
	}
	if weightSum == 0 {
		return 1
	}
	return presentWeight / weightSum
}

// timeliness is exp(-age_days / half_life_days).6.
func (s *Scorer) timeliness(rec *model.NormalizedRecord, now time.Time) float64 {
	if rec.SourceTimestamp.IsZero() {
		return 0
	}
	ageDays := now.Sub(rec.SourceTimestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp01(math.Exp(-ageDays / s.cfg.HalfLifeDays))
}

// validity is the fraction of configured validation rules the record
// passes.
func (s *Scorer) validity(rec *model.NormalizedRecord) float64 {
	if len(s.cfg.ValidationRules) == 0 {
		return 1
	}
	passed := 0
	for _, rule := range s.cfg.ValidationRules {
		v, ok := rec.Value(rule.Field)
		if ok && rule.check(v) {
			passed++
		}
	}
	return float64(passed) / float64(len(s.cfg.ValidationRules))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
