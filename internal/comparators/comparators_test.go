package comparators

import (
	"testing"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

func TestExactComparator(t *testing.T) {
	c := ExactComparator{}

	cases := []struct {
		name  string
		a, b  string
		want  float64
	}{
		{"equal", "Acme Corp", "Acme Corp", 1},
		{"case_fold", "ACME", "acme", 1},
		{"mismatch", "Acme", "Acne", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Compare(model.StringValue(tc.a), model.StringValue(tc.b), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestFuzzyComparatorMethods(t *testing.T) {
	c := FuzzyComparator{}

	score, err := c.Compare(model.StringValue("martha"), model.StringValue("marhta"), map[string]any{"method": "jaro"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.9 || score > 1.0 {
		t.Errorf("jaro(martha, marhta) = %v, want ~0.944", score)
	}

	score, err = c.Compare(model.StringValue("acme corp"), model.StringValue("acme corporation"), map[string]any{"method": "levenshtein"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score <= 0 || score >= 1 {
		t.Errorf("levenshtein score out of range: %v", score)
	}

	if _, err := c.Compare(model.StringValue("a"), model.StringValue("b"), map[string]any{"method": "bogus"}); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestPhoneticComparator(t *testing.T) {
	c := PhoneticComparator{}
	score, err := c.Compare(model.StringValue("Robert"), model.StringValue("Rupert"), map[string]any{"method": "soundex"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1 {
		t.Errorf("expected soundex(Robert)==soundex(Rupert), got score %v", score)
	}
}

func TestNumericComparator(t *testing.T) {
	c := NumericComparator{}

	score, err := c.Compare(model.NumberValue(100), model.NumberValue(102), map[string]any{"tolerance": 10.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.8 {
		t.Errorf("got %v want 0.8", score)
	}

	if _, err := c.Compare(model.NumberValue(1), model.NumberValue(2), map[string]any{"tolerance": 0.0}); err == nil {
		t.Error("expected error for tolerance <= 0")
	}

	score, err = c.Compare(model.StringValue("not-a-number"), model.NumberValue(2), map[string]any{"tolerance": 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("non-numeric input should score 0, got %v", score)
	}
}

func TestDateComparator(t *testing.T) {
	c := DateComparator{}
	a := model.DateValue(time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC))
	b := model.DateValue(time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC))

	score, err := c.Compare(a, b, map[string]any{"window_days": 30.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1 - 1.0/30.0
	if score < want-1e-9 || score > want+1e-9 {
		t.Errorf("got %v want %v", score, want)
	}
}

func TestAddressComparator(t *testing.T) {
	c := AddressComparator{}
	a := model.StringValue("123 Main St, Springfield, IL 62704")
	b := model.StringValue("123 Main Street, Springfield, IL 62704")

	score, err := c.Compare(a, b, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.7 {
		t.Errorf("expected high similarity for near-identical addresses, got %v", score)
	}
}

func TestVectorComparatorFallback(t *testing.T) {
	c := &VectorComparator{}

	// No vectors supplied: falls through to textual comparator.
	score, err := c.Compare(model.StringValue("Acme"), model.StringValue("Acme"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1 {
		t.Errorf("expected fallback exact match to score 1, got %v", score)
	}

	// Identical vectors score 1.
	v := []float32{1, 0, 0}
	score, err = c.Compare(model.Null, model.Null, map[string]any{"left_vector": v, "right_vector": v})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score < 0.999 {
		t.Errorf("expected cosine similarity ~1, got %v", score)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("exact"); err != nil {
		t.Fatalf("expected exact to be registered: %v", err)
	}
	if _, err := r.Lookup("nonexistent"); err == nil {
		t.Error("expected error for unregistered comparator id")
	}
}
