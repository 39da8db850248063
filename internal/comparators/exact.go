package comparators

import (
	"strings"

	"github.com/mdmcore/resolve/internal/model"
)

// ExactComparator scores 1 if values compare equal after optional
// case-folding, else 0. Null handling is the Match Engine's concern
//, not this comparator's.
type ExactComparator struct{}

func (ExactComparator) ID() string { return "exact" }

func (ExactComparator) Compare(left, right model.Value, params map[string]any) (float64, error) {
	foldCase := true
	if v, ok := params["case_sensitive"].(bool); ok {
		foldCase = !v
	}

	a, b := left.AsString(), right.AsString()
	if foldCase {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	if a == b {
		return 1, nil
	}
	return 0, nil
}
