// Package survivorship implements the Survivor: given a cluster of
// NormalizedRecords with trust scores, produces one GoldenRecord
// attribute-by-attribute using per-field strategies.
package survivorship

import (
	"fmt"
	"sort"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// Strategy names the survivorship rule applied to one field.
type Strategy string

const (
	StrategyMostTrusted           Strategy = "most_trusted"
	StrategyMostRecent            Strategy = "most_recent"
	StrategyTrustedSourcePriority Strategy = "trusted_source_priority"
	StrategyMostFrequent          Strategy = "most_frequent"
	StrategyLongest               Strategy = "longest"
	StrategyShortest              Strategy = "shortest"
	StrategyWeightedAverage       Strategy = "weighted_average"
	StrategyCustom                Strategy = "custom"
)

// CustomFunc is a registered pure survivorship function:
// (values_with_metadata) → value.
type CustomFunc func(candidates []Candidate) (model.Value, *Candidate)

// FieldRule configures one attribute's survivorship.
type FieldRule struct {
	Field    string
	Strategy Strategy
	// SourcePriority is consulted only for StrategyTrustedSourcePriority:
	// an ordered list of source_ids, first with a non-null value wins.
	SourcePriority []string
	// CustomFuncName is consulted only for StrategyCustom.
	CustomFuncName string
}

// Candidate is one record's contribution to a field's survivorship
// decision.
type Candidate struct {
	RecordID        string
	SourceID        string
	Value           model.Value
	Trust           model.TrustScore
	SourceTimestamp time.Time
}

// Survivor computes GoldenRecords from clusters.
type Survivor struct {
	rules       map[string]FieldRule
	customFuncs map[string]CustomFunc
}

// NewSurvivor builds a Survivor from per-field rules.
func NewSurvivor(rules []FieldRule) *Survivor {
	byField := make(map[string]FieldRule, len(rules))
	for _, r := range rules {
		byField[r.Field] = r
	}
	return &Survivor{rules: byField, customFuncs: make(map[string]CustomFunc)}
}

// RegisterCustomFunc adds a named custom survivorship function,
// consulted by fields configured with StrategyCustom.
func (s *Survivor) RegisterCustomFunc(name string, fn CustomFunc) {
	s.customFuncs[name] = fn
}

// Survive produces a GoldenRecord for a cluster of records. goldenID
// and clusterID are assigned by the caller; golden id assignment is
// the Lineage Store's responsibility on write.
func (s *Survivor) Survive(records []*model.NormalizedRecord, goldenID, clusterID string, now time.Time) (*model.GoldenRecord, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("survivorship: cluster has no records")
	}

	fields := collectFields(records)
	attrs := make(model.Attributes, len(fields))
	provenance := make(map[string]model.Provenance, len(fields))

	for _, field := range fields {
		rule, ok := s.rules[field]
		if !ok {
			rule = FieldRule{Field: field, Strategy: StrategyMostTrusted}
		}

		candidates := collectCandidates(records, field)
		if len(candidates) == 0 {
			continue
		}

		value, winner, err := s.resolveField(rule, candidates)
		if err != nil {
			return nil, fmt.Errorf("survivorship: field %q: %w", field, err)
		}
		if winner == nil {
			continue
		}

		attrs[field] = value
		provenance[field] = model.Provenance{
			RecordID: winner.RecordID,
			SourceID: winner.SourceID,
			Rule:     string(rule.Strategy),
		}
	}

	return &model.GoldenRecord{
		GoldenID:   goldenID,
		Attributes: attrs,
		Provenance: provenance,
		ClusterID:  clusterID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

func (s *Survivor) resolveField(rule FieldRule, candidates []Candidate) (model.Value, *Candidate, error) {
	nonNull := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Value.IsNull() {
			nonNull = append(nonNull, c)
		}
	}
	if len(nonNull) == 0 {
		return model.Null, nil, nil
	}

	switch rule.Strategy {
	case StrategyMostRecent:
		best := bestBy(nonNull, func(a, b Candidate) bool { return a.SourceTimestamp.After(b.SourceTimestamp) })
		return best.Value, &best, nil

	case StrategyTrustedSourcePriority:
		for _, sourceID := range rule.SourcePriority {
			for i := range nonNull {
				if nonNull[i].SourceID == sourceID {
					return nonNull[i].Value, &nonNull[i], nil
				}
			}
		}
		best := bestByTrust(nonNull)
		return best.Value, &best, nil

	case StrategyMostFrequent:
		return mostFrequent(nonNull)

	case StrategyLongest:
		best := bestBy(nonNull, func(a, b Candidate) bool { return len(a.Value.AsString()) > len(b.Value.AsString()) })
		return best.Value, &best, nil

	case StrategyShortest:
		best := bestBy(nonNull, func(a, b Candidate) bool { return len(a.Value.AsString()) < len(b.Value.AsString()) })
		return best.Value, &best, nil

	case StrategyWeightedAverage:
		return weightedAverage(nonNull)

	case StrategyCustom:
		fn, ok := s.customFuncs[rule.CustomFuncName]
		if !ok {
			return model.Null, nil, fmt.Errorf("unknown custom survivorship function %q", rule.CustomFuncName)
		}
		value, winner := fn(nonNull)
		return value, winner, nil

	default: // StrategyMostTrusted
		best := bestByTrust(nonNull)
		return best.Value, &best, nil
	}
}

// bestByTrust applies the full deterministic tie-break order: higher
// trust, then later timestamp, then lexicographically smaller
// source_id, then lexicographically smaller record_id.
func bestByTrust(candidates []Candidate) Candidate {
	return bestBy(candidates, lessCandidate)
}

// lessCandidate reports whether a should be preferred over b under the
// tie-break order above.
func lessCandidate(a, b Candidate) bool {
	if a.Trust.Overall != b.Trust.Overall {
		return a.Trust.Overall > b.Trust.Overall
	}
	if !a.SourceTimestamp.Equal(b.SourceTimestamp) {
		return a.SourceTimestamp.After(b.SourceTimestamp)
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return a.RecordID < b.RecordID
}

// bestBy picks the candidate preferred by better(), falling back
// through the deterministic tie-break whenever better() is indifferent.
func bestBy(candidates []Candidate, better func(a, b Candidate) bool) Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if better(sorted[i], sorted[j]) {
			return true
		}
		if better(sorted[j], sorted[i]) {
			return false
		}
		return lessCandidate(sorted[i], sorted[j])
	})
	return sorted[0]
}

// mostFrequent picks the majority non-null value, breaking ties via
// most_trusted.
func mostFrequent(candidates []Candidate) (model.Value, *Candidate, error) {
	counts := make(map[string]int)
	firstOf := make(map[string]Candidate)
	for _, c := range candidates {
		key := c.Value.AsString()
		counts[key]++
		if _, ok := firstOf[key]; !ok {
			firstOf[key] = c
		}
	}

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}

	var tied []Candidate
	for key, n := range counts {
		if n == maxCount {
			tied = append(tied, firstOf[key])
		}
	}
	winner := bestByTrust(tied)
	return winner.Value, &winner, nil
}

// weightedAverage computes the trust-weighted mean of numeric values.
func weightedAverage(candidates []Candidate) (model.Value, *Candidate, error) {
	var weightedSum, weightSum float64
	for _, c := range candidates {
		n, ok := c.Value.AsNumber()
		if !ok {
			return model.Null, nil, fmt.Errorf("weighted_average: non-numeric value from record %s", c.RecordID)
		}
		weight := c.Trust.Overall
		if weight <= 0 {
			weight = 0.01
		}
		weightedSum += n * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return model.Null, nil, nil
	}
	winner := bestByTrust(candidates)
	return model.NumberValue(weightedSum / weightSum), &winner, nil
}

func collectFields(records []*model.NormalizedRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for field := range r.Record.Attributes {
			seen[field] = struct{}{}
		}
		for field := range r.Normalized {
			seen[field] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func collectCandidates(records []*model.NormalizedRecord, field string) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		v, ok := r.Value(field)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			RecordID:        r.RecordID,
			SourceID:        r.SourceID,
			Value:           v,
			Trust:           r.Trust,
			SourceTimestamp: r.SourceTimestamp,
		})
	}
	return out
}
