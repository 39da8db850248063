// Package comparators implements the field-level similarity functions
// used by the Match Engine: exact, fuzzy, phonetic, numeric, date,
// address, and vector comparisons. Every comparator is a pure,
// deterministic, thread-safe function over two model.Value inputs plus
// a parameter map, returning a score in [0, 1].
//
// Grounded on the pairwise-scoring shape of
// other_examples/f137d07f_..._address-matching__internal-match-engine.go.go
// and other_examples/e5be9673_..._matching-engine.go.go.
package comparators

import (
	"fmt"

	"github.com/mdmcore/resolve/internal/model"
)

// Comparator is a pure field-level similarity function. Params carries
// comparator-specific configuration (e.g. "method" for Fuzzy, "tolerance"
// for Numeric). Implementations must not mutate their inputs and must be
// safe for concurrent use.
type Comparator interface {
	// ID is the stable string identifier persisted in MatchDecisions.
	ID() string
	// Compare returns a similarity score in [0, 1]. An error indicates the
	// comparator could not evaluate the pair (e.g. malformed params); this
	// is treated as score 0 by the caller, never fatal.
	Compare(left, right model.Value, params map[string]any) (float64, error)
}

// Registry resolves comparator ids to implementations. Unknown ids are a
// configuration error at startup, never at decision time.
type Registry struct {
	byID map[string]Comparator
}

// NewRegistry builds a Registry pre-populated with the built-in
// comparators.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]Comparator)}
	for _, c := range []Comparator{
		ExactComparator{},
		FuzzyComparator{},
		PhoneticComparator{},
		NumericComparator{},
		DateComparator{},
		AddressComparator{},
		&VectorComparator{},
	} {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a comparator under its ID, supporting
// registered custom comparators.2/§9.
func (r *Registry) Register(c Comparator) {
	r.byID[c.ID()] = c
}

// Lookup returns the comparator for id, or an error if unknown. Callers
// must treat a lookup failure during configuration loading as fatal.
func (r *Registry) Lookup(id string) (Comparator, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("comparators: unknown comparator id %q", id)
	}
	return c, nil
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
