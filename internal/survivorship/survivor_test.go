package survivorship

import (
	"testing"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

func trustedRec(id, sourceID, name string, overall float64, ts time.Time) *model.NormalizedRecord {
	return &model.NormalizedRecord{
		Record: model.Record{
			RecordID:        id,
			SourceID:        sourceID,
			Attributes:      model.Attributes{"name": model.StringValue(name)},
			SourceTimestamp: ts,
		},
		Trust: model.TrustScore{RecordID: id, Overall: overall},
	}
}

func TestSurviveMostTrusted(t *testing.T) {
	now := time.Now()
	r1 := trustedRec("1", "crm", "Acme Corp", 0.9, now)
	r2 := trustedRec("2", "legacy", "ACME", 0.4, now)

	s := NewSurvivor([]FieldRule{{Field: "name", Strategy: StrategyMostTrusted}})
	golden, err := s.Survive([]*model.NormalizedRecord{r1, r2}, "g1", "c1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if golden.Attributes["name"].Str != "Acme Corp" {
		t.Errorf("expected most-trusted value, got %q", golden.Attributes["name"].Str)
	}
	if golden.Provenance["name"].RecordID != "1" {
		t.Errorf("expected provenance to point at record 1, got %+v", golden.Provenance["name"])
	}
}

func TestSurviveTrustedSourcePriority(t *testing.T) {
	now := time.Now()
	r1 := trustedRec("1", "legacy", "Legacy Name", 0.9, now)
	r2 := trustedRec("2", "crm", "CRM Name", 0.5, now)

	s := NewSurvivor([]FieldRule{
		{Field: "name", Strategy: StrategyTrustedSourcePriority, SourcePriority: []string{"crm", "legacy"}},
	})
	golden, err := s.Survive([]*model.NormalizedRecord{r1, r2}, "g1", "c1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if golden.Attributes["name"].Str != "CRM Name" {
		t.Errorf("expected CRM source to win priority regardless of trust, got %q", golden.Attributes["name"].Str)
	}
}

func TestSurviveMostRecent(t *testing.T) {
	older := time.Now().Add(-48 * time.Hour)
	newer := time.Now()
	r1 := trustedRec("1", "a", "Old Value", 0.9, older)
	r2 := trustedRec("2", "b", "New Value", 0.1, newer)

	s := NewSurvivor([]FieldRule{{Field: "name", Strategy: StrategyMostRecent}})
	golden, err := s.Survive([]*model.NormalizedRecord{r1, r2}, "g1", "c1", newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if golden.Attributes["name"].Str != "New Value" {
		t.Errorf("expected most recent value, got %q", golden.Attributes["name"].Str)
	}
}

func TestSurviveWeightedAverage(t *testing.T) {
	now := time.Now()
	r1 := &model.NormalizedRecord{
		Record: model.Record{RecordID: "1", SourceID: "a", Attributes: model.Attributes{"revenue": model.NumberValue(100)}, SourceTimestamp: now},
		Trust:  model.TrustScore{Overall: 0.8},
	}
	r2 := &model.NormalizedRecord{
		Record: model.Record{RecordID: "2", SourceID: "b", Attributes: model.Attributes{"revenue": model.NumberValue(200)}, SourceTimestamp: now},
		Trust:  model.TrustScore{Overall: 0.2},
	}

	s := NewSurvivor([]FieldRule{{Field: "revenue", Strategy: StrategyWeightedAverage}})
	golden, err := s.Survive([]*model.NormalizedRecord{r1, r2}, "g1", "c1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (100*0.8 + 200*0.2) / 1.0
	if golden.Attributes["revenue"].Num != want {
		t.Errorf("expected weighted average %v, got %v", want, golden.Attributes["revenue"].Num)
	}
}

func TestSurviveCustomFunc(t *testing.T) {
	now := time.Now()
	r1 := trustedRec("1", "a", "x", 0.5, now)

	s := NewSurvivor([]FieldRule{{Field: "name", Strategy: StrategyCustom, CustomFuncName: "upper"}})
	s.RegisterCustomFunc("upper", func(candidates []Candidate) (model.Value, *Candidate) {
		return model.StringValue("CUSTOM"), &candidates[0]
	})

	golden, err := s.Survive([]*model.NormalizedRecord{r1}, "g1", "c1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if golden.Attributes["name"].Str != "CUSTOM" {
		t.Errorf("expected custom function output, got %q", golden.Attributes["name"].Str)
	}
}

func TestSurviveSkipsAllNullField(t *testing.T) {
	now := time.Now()
	r1 := &model.NormalizedRecord{Record: model.Record{RecordID: "1", SourceID: "a", Attributes: model.Attributes{"name": model.Null}, SourceTimestamp: now}}

	s := NewSurvivor(nil)
	golden, err := s.Survive([]*model.NormalizedRecord{r1}, "g1", "c1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := golden.Attributes["name"]; ok {
		t.Error("expected all-null field to be absent from golden record")
	}
}
