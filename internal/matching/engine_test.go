package matching

import (
	"context"
	"testing"

	"github.com/mdmcore/resolve/internal/comparators"
	"github.com/mdmcore/resolve/internal/model"
)

func normRec(id string, attrs model.Attributes) *model.NormalizedRecord {
	return &model.NormalizedRecord{
		Record:     model.Record{RecordID: id},
		Normalized: attrs,
	}
}

func TestDecideWeightedAverageMatch(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields: []FieldRule{
			{Field: "name", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
			{Field: "email", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
		},
		Aggregation:     AggWeightedAverage,
		MatchThreshold:  0.9,
		ReviewThreshold: 0.5,
	}
	if err := cfg.Validate(reg); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	eng := NewEngine(cfg, reg, NewScoreCache(100))
	left := normRec("a", model.Attributes{"name": model.StringValue("acme"), "email": model.StringValue("x@y.com")})
	right := normRec("b", model.Attributes{"name": model.StringValue("acme"), "email": model.StringValue("x@y.com")})

	decision, err := eng.Decide(context.Background(), model.NewCandidatePair("a", "b"), left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Verdict != model.VerdictMatch {
		t.Errorf("expected MATCH, got %v (score %v)", decision.Verdict, decision.OverallScore)
	}
}

func TestDecideNullSkipExcludesField(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields: []FieldRule{
			{Field: "name", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
			{Field: "phone", ComparatorID: "exact", Weight: 1, NullPolicy: NullSkip},
		},
		Aggregation:     AggWeightedAverage,
		MatchThreshold:  0.9,
		ReviewThreshold: 0.5,
	}
	eng := NewEngine(cfg, reg, nil)

	left := normRec("a", model.Attributes{"name": model.StringValue("acme")})
	right := normRec("b", model.Attributes{"name": model.StringValue("acme")})

	decision, err := eng.Decide(context.Background(), model.NewCandidatePair("a", "b"), left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := decision.PerFieldScore["phone"]; ok {
		t.Error("skipped null field should not appear in per-field scores")
	}
	if decision.OverallScore != 1.0 {
		t.Errorf("expected overall 1.0 ignoring skipped field, got %v", decision.OverallScore)
	}
}

func TestDecideConditionalRuleExcludesField(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields: []FieldRule{
			{Field: "name", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
			{
				Field: "ssn", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch,
				Condition: func(left, right *model.NormalizedRecord) bool {
					_, lok := left.Value("ssn")
					_, rok := right.Value("ssn")
					return lok && rok
				},
			},
		},
		Aggregation:     AggWeightedAverage,
		MatchThreshold:  0.9,
		ReviewThreshold: 0.5,
	}
	eng := NewEngine(cfg, reg, nil)

	left := normRec("a", model.Attributes{"name": model.StringValue("acme")})
	right := normRec("b", model.Attributes{"name": model.StringValue("acme")})

	decision, err := eng.Decide(context.Background(), model.NewCandidatePair("a", "b"), left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := decision.PerFieldScore["ssn"]; ok {
		t.Error("gated-off conditional rule should not contribute a field score")
	}
}

func TestDecideMinAggregation(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields: []FieldRule{
			{Field: "name", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
			{Field: "email", ComparatorID: "exact", Weight: 1, NullPolicy: NullMismatch},
		},
		Aggregation:     AggMin,
		MatchThreshold:  0.9,
		ReviewThreshold: 0.5,
	}
	eng := NewEngine(cfg, reg, nil)

	left := normRec("a", model.Attributes{"name": model.StringValue("acme"), "email": model.StringValue("x@y.com")})
	right := normRec("b", model.Attributes{"name": model.StringValue("acme"), "email": model.StringValue("different@z.com")})

	decision, err := eng.Decide(context.Background(), model.NewCandidatePair("a", "b"), left, right)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Verdict != model.VerdictNoMatch {
		t.Errorf("expected NO_MATCH under min aggregation with a mismatched field, got %v", decision.Verdict)
	}
}

func TestScoreCacheHitAndSymmetricLookup(t *testing.T) {
	c := NewScoreCache(16) // 1 entry per shard across 16 shards
	c.Put("exact", model.StringValue("a"), model.StringValue("b"), 0.5)
	if score, ok := c.Get("exact", model.StringValue("a"), model.StringValue("b")); !ok || score != 0.5 {
		t.Fatalf("expected cache hit with score 0.5, got %v ok=%v", score, ok)
	}
	// Symmetric lookup: reversed arguments should hit the same entry.
	if _, ok := c.Get("exact", model.StringValue("b"), model.StringValue("a")); !ok {
		t.Error("expected symmetric cache hit")
	}
}

func TestConfigValidateRejectsBadThresholds(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields:          []FieldRule{{Field: "name", ComparatorID: "exact", Weight: 1}},
		MatchThreshold:  0.5,
		ReviewThreshold: 0.9,
	}
	if err := cfg.Validate(reg); err == nil {
		t.Error("expected validation error when review_threshold > match_threshold")
	}
}

func TestConfigValidateRejectsUnknownComparator(t *testing.T) {
	reg := comparators.NewRegistry()
	cfg := Config{
		Fields:          []FieldRule{{Field: "name", ComparatorID: "does_not_exist", Weight: 1}},
		MatchThreshold:  0.9,
		ReviewThreshold: 0.5,
	}
	if err := cfg.Validate(reg); err == nil {
		t.Error("expected validation error for unknown comparator id")
	}
}
