package blocking

import (
	"context"
	"strings"

	"github.com/mdmcore/resolve/internal/model"
)

// StandardStrategy blocks on the exact (optionally prefix-truncated)
// normalized value of one or more fields, joined with a delimiter —
// the traditional single/multi-pass blocking key.
type StandardStrategy struct {
	name        string
	fields      []string
	prefixChars int // 0 means use the full value
}

// NewStandardStrategy builds a StandardStrategy over fields. When
// prefixChars > 0, only the first N runes of each field's value
// contribute to the key (e.g. first-3-of-surname blocking).
func NewStandardStrategy(name string, fields []string, prefixChars int) *StandardStrategy {
	return &StandardStrategy{name: name, fields: fields, prefixChars: prefixChars}
}

func (s *StandardStrategy) Name() string { return s.name }

func (s *StandardStrategy) Keys(_ context.Context, rec *model.NormalizedRecord) ([]model.BlockKey, error) {
	parts := make([]string, 0, len(s.fields))
	for _, field := range s.fields {
		v, ok := rec.Value(field)
		if !ok || v.Kind != model.KindString || v.Str == "" {
			return nil, nil
		}
		parts = append(parts, s.truncate(v.Str))
	}
	return []model.BlockKey{model.BlockKey(s.name + ":" + strings.Join(parts, "|"))}, nil
}

func (s *StandardStrategy) truncate(v string) string {
	if s.prefixChars <= 0 {
		return v
	}
	runes := []rune(v)
	if len(runes) <= s.prefixChars {
		return v
	}
	return string(runes[:s.prefixChars])
}
