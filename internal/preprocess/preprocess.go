// Package preprocess normalizes field values before comparison: case
// folding, whitespace collapsing, phone/date canonicalization, plus
// registered custom transforms. Input is never mutated;
// the caller is responsible for caching output on the NormalizedRecord.
package preprocess

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// Transform maps a raw value to a normalized one. Transforms are pure and
// must not mutate their input.
type Transform func(model.Value, map[string]any) (model.Value, error)

// Pipeline is an ordered, named sequence of transforms applied to a
// single field.
type Pipeline struct {
	Steps []Step
}

// Step names one configured transform plus its parameters.
type Step struct {
	Name   string
	Params map[string]any
}

// Registry resolves transform names to implementations, including
// user-registered custom transforms.
type Registry struct {
	byName map[string]Transform
}

// NewRegistry builds a Registry with the built-in normalization
// transforms.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Transform)}
	r.Register("lower", lowerTransform)
	r.Register("strip", stripTransform)
	r.Register("collapse_whitespace", collapseWhitespaceTransform)
	r.Register("normalize_phone", normalizePhoneTransform)
	r.Register("normalize_date", normalizeDateTransform)
	return r
}

// Register adds or replaces a transform under name.
func (r *Registry) Register(name string, t Transform) {
	r.byName[name] = t
}

// Apply runs the named pipeline of steps over v in order, returning the
// final value. An unknown step name is a configuration error.
func (r *Registry) Apply(v model.Value, steps []Step) (model.Value, error) {
	out := v
	for _, step := range steps {
		t, ok := r.byName[step.Name]
		if !ok {
			return model.Null, fmt.Errorf("preprocess: unknown transform %q", step.Name)
		}
		next, err := t(out, step.Params)
		if err != nil {
			return model.Null, fmt.Errorf("preprocess: transform %q failed: %w", step.Name, err)
		}
		out = next
	}
	return out, nil
}

func lowerTransform(v model.Value, _ map[string]any) (model.Value, error) {
	if v.Kind != model.KindString {
		return v, nil
	}
	return model.StringValue(strings.ToLower(v.Str)), nil
}

func stripTransform(v model.Value, _ map[string]any) (model.Value, error) {
	if v.Kind != model.KindString {
		return v, nil
	}
	return model.StringValue(strings.TrimSpace(v.Str)), nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func collapseWhitespaceTransform(v model.Value, _ map[string]any) (model.Value, error) {
	if v.Kind != model.KindString {
		return v, nil
	}
	return model.StringValue(whitespaceRE.ReplaceAllString(v.Str, " ")), nil
}

// phoneDigitsRE strips everything but digits and a leading '+'.
var phoneDigitsRE = regexp.MustCompile(`[^\d+]`)

// normalizePhoneTransform canonicalizes a phone number to E.164 given a
// region's country calling code (param "region_code", e.g. "1" for
// NANP). Numbers already starting with '+' are assumed international.
func normalizePhoneTransform(v model.Value, params map[string]any) (model.Value, error) {
	if v.Kind != model.KindString {
		return v, nil
	}
	raw := phoneDigitsRE.ReplaceAllString(v.Str, "")
	if raw == "" {
		return model.StringValue(""), nil
	}
	if strings.HasPrefix(raw, "+") {
		return model.StringValue(raw), nil
	}

	regionCode, _ := params["region_code"].(string)
	if regionCode == "" {
		regionCode = "1"
	}
	return model.StringValue("+" + regionCode + raw), nil
}

// dateInputFormats lists the layouts normalizeDateTransform will try when
// no explicit "format" param is given.
var dateInputFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
	time.RFC3339,
}

// normalizeDateTransform canonicalizes a date string to ISO-8601
//.
func normalizeDateTransform(v model.Value, params map[string]any) (model.Value, error) {
	if v.Kind == model.KindDate || v.Kind == model.KindTimestamp {
		t, _ := v.AsTime()
		return model.StringValue(t.Format("2006-01-02")), nil
	}
	if v.Kind != model.KindString || v.Str == "" {
		return v, nil
	}

	format, _ := params["format"].(string)
	if format != "" {
		t, err := time.Parse(format, v.Str)
		if err != nil {
			return model.Null, fmt.Errorf("normalize_date: %w", err)
		}
		return model.StringValue(t.Format("2006-01-02")), nil
	}

	for _, layout := range dateInputFormats {
		if t, err := time.Parse(layout, v.Str); err == nil {
			return model.StringValue(t.Format("2006-01-02")), nil
		}
	}
	return model.Null, fmt.Errorf("normalize_date: could not parse %q", v.Str)
}

// Normalize applies the configured per-field pipelines to a record's
// attributes, producing the derived mapping stored on NormalizedRecord.
// Fields without a configured pipeline are left out of the result; the
// caller falls back to the raw attribute (model.NormalizedRecord.Value).
func Normalize(reg *Registry, attrs model.Attributes, fieldSteps map[string][]Step) (model.Attributes, error) {
	out := make(model.Attributes, len(fieldSteps))
	for field, steps := range fieldSteps {
		v, ok := attrs[field]
		if !ok {
			continue
		}
		normalized, err := reg.Apply(v, steps)
		if err != nil {
			return nil, fmt.Errorf("preprocess: field %q: %w", field, err)
		}
		out[field] = normalized
	}
	return out, nil
}
