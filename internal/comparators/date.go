package comparators

import (
	"time"

	"github.com/mdmcore/resolve/internal/model"
)

// dateHeuristicFormats is the fixed set of layouts tried when a value
// is not already a model.KindDate/KindTimestamp and no explicit format
// is configured.
var dateHeuristicFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
	time.RFC3339,
}

// DateComparator parses both sides (explicit format or heuristics); if
// both parse, score = max(0, 1 − |days_diff| / window_days); else 0.
type DateComparator struct{}

func (DateComparator) ID() string { return "date" }

func (DateComparator) Compare(left, right model.Value, params map[string]any) (float64, error) {
	windowDays, ok := toFloat(params["window_days"])
	if !ok || windowDays <= 0 {
		windowDays = 30
	}
	format, _ := params["format"].(string)

	at, aok := parseDateValue(left, format)
	bt, bok := parseDateValue(right, format)
	if !aok || !bok {
		return 0, nil
	}

	days := at.Sub(bt).Hours() / 24
	if days < 0 {
		days = -days
	}
	return clamp01(1 - days/windowDays), nil
}

func parseDateValue(v model.Value, format string) (time.Time, bool) {
	if t, ok := v.AsTime(); ok {
		return t, true
	}
	s := v.AsString()
	if s == "" {
		return time.Time{}, false
	}
	if format != "" {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
		return time.Time{}, false
	}
	for _, layout := range dateHeuristicFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
