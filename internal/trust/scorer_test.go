package trust

import (
	"math"
	"testing"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

func baseConfig() Config {
	return Config{
		SourceReliabilityWeight: 0.25,
		CompletenessWeight:      0.25,
		TimelinessWeight:        0.25,
		ValidityWeight:          0.25,
		SourceReliability:       map[string]float64{"crm": 0.9, "legacy": 0.4},
		RequiredFields: []FieldImportance{
			{Field: "name", Weight: 2},
			{Field: "email", Weight: 1},
		},
		HalfLifeDays: 30,
	}
}

func TestScoreCompleteness(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}
	scorer := NewScorer(cfg)

	rec := &model.NormalizedRecord{
		Record: model.Record{
			RecordID:        "r1",
			SourceID:        "crm",
			SourceTimestamp: time.Now(),
		},
		Normalized: model.Attributes{"name": model.StringValue("Acme")},
	}

	score := scorer.Score(rec, time.Now())
	// name weight 2 present, email weight 1 absent: 2/3
	want := 2.0 / 3.0
	if math.Abs(score.Completeness-want) > 1e-9 {
		t.Errorf("expected completeness %v, got %v", want, score.Completeness)
	}
	if score.SourceReliability != 0.9 {
		t.Errorf("expected source reliability 0.9, got %v", score.SourceReliability)
	}
}

func TestScoreTimelinessDecaysWithAge(t *testing.T) {
	cfg := baseConfig()
	scorer := NewScorer(cfg)
	now := time.Now()

	fresh := &model.NormalizedRecord{Record: model.Record{RecordID: "fresh", SourceID: "crm", SourceTimestamp: now}}
	stale := &model.NormalizedRecord{Record: model.Record{RecordID: "stale", SourceID: "crm", SourceTimestamp: now.Add(-90 * 24 * time.Hour)}}

	freshScore := scorer.Score(fresh, now)
	staleScore := scorer.Score(stale, now)

	if freshScore.Timeliness <= staleScore.Timeliness {
		t.Errorf("expected fresh record timeliness > stale, got fresh=%v stale=%v", freshScore.Timeliness, staleScore.Timeliness)
	}
	if freshScore.Timeliness < 0.99 {
		t.Errorf("expected near-1.0 timeliness for zero age, got %v", freshScore.Timeliness)
	}
}

func TestScoreValidity(t *testing.T) {
	cfg := baseConfig()
	minAge := 0.0
	maxAge := 150.0
	cfg.ValidationRules = []ValidationRule{
		{Field: "age", RangeMin: &minAge, RangeMax: &maxAge},
	}
	scorer := NewScorer(cfg)

	valid := &model.NormalizedRecord{
		Record:     model.Record{RecordID: "v1", SourceID: "crm"},
		Normalized: model.Attributes{"age": model.NumberValue(40)},
	}
	invalid := &model.NormalizedRecord{
		Record:     model.Record{RecordID: "v2", SourceID: "crm"},
		Normalized: model.Attributes{"age": model.NumberValue(999)},
	}

	if s := scorer.Score(valid, time.Now()); s.Validity != 1 {
		t.Errorf("expected validity 1 for in-range age, got %v", s.Validity)
	}
	if s := scorer.Score(invalid, time.Now()); s.Validity != 0 {
		t.Errorf("expected validity 0 for out-of-range age, got %v", s.Validity)
	}
}

func TestConfigValidateRejectsBadWeights(t *testing.T) {
	cfg := baseConfig()
	cfg.ValidityWeight = 0.5 // sum now > 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for weights not summing to 1")
	}
}
