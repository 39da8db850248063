package preprocess

import (
	"testing"

	"github.com/mdmcore/resolve/internal/model"
)

func TestPipelineBasicTransforms(t *testing.T) {
	r := NewRegistry()
	steps := []Step{{Name: "lower"}, {Name: "strip"}, {Name: "collapse_whitespace"}}

	out, err := r.Apply(model.StringValue("  ACME   Corp  "), steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Str != "acme corp" {
		t.Errorf("got %q", out.Str)
	}
}

func TestNormalizePhone(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply(model.StringValue("(555) 010-1234"), []Step{{Name: "normalize_phone", Params: map[string]any{"region_code": "1"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Str != "+15550101234" {
		t.Errorf("got %q", out.Str)
	}
}

func TestNormalizeDate(t *testing.T) {
	r := NewRegistry()
	out, err := r.Apply(model.StringValue("02/25/2024"), []Step{{Name: "normalize_date"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Str != "2024-02-25" {
		t.Errorf("got %q", out.Str)
	}
}

func TestUnknownTransformIsError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply(model.StringValue("x"), []Step{{Name: "does_not_exist"}}); err == nil {
		t.Error("expected error for unknown transform")
	}
}

func TestNormalizeRecordAttributes(t *testing.T) {
	r := NewRegistry()
	attrs := model.Attributes{
		"name":  model.StringValue("  Acme  "),
		"phone": model.StringValue("555-0101"),
	}
	fieldSteps := map[string][]Step{
		"name": {{Name: "lower"}, {Name: "strip"}},
	}
	out, err := Normalize(r, attrs, fieldSteps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["name"].Str != "acme" {
		t.Errorf("got %q", out["name"].Str)
	}
	if _, ok := out["phone"]; ok {
		t.Error("phone has no configured pipeline, should not appear in normalized output")
	}
}
