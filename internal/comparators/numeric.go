package comparators

import (
	"fmt"

	"github.com/mdmcore/resolve/internal/model"
)

// NumericComparator scores max(0, 1 − |a − b| / tolerance). tolerance > 0
// is required by configuration; if either value is non-numeric after
// coercion, score = 0.
type NumericComparator struct{}

func (NumericComparator) ID() string { return "numeric" }

func (NumericComparator) Compare(left, right model.Value, params map[string]any) (float64, error) {
	tolerance, ok := toFloat(params["tolerance"])
	if !ok || tolerance <= 0 {
		return 0, fmt.Errorf("comparators: numeric comparator requires tolerance > 0")
	}

	a, aok := left.AsNumber()
	b, bok := right.AsNumber()
	if !aok || !bok {
		return 0, nil
	}

	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return clamp01(1 - diff/tolerance), nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
