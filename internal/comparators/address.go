package comparators

import (
	"regexp"
	"strings"

	"github.com/mdmcore/resolve/internal/model"
)

// addressComponents holds the parsed pieces of a free-text address:
// {number, street, type, city, region, postal}.
type addressComponents struct {
	Number string
	Street string
	Type   string
	City   string
	Region string
	Postal string
}

var (
	streetTypeWords = map[string]bool{
		"ST": true, "STREET": true, "AVE": true, "AVENUE": true, "RD": true,
		"ROAD": true, "BLVD": true, "BOULEVARD": true, "DR": true, "DRIVE": true,
		"LN": true, "LANE": true, "CT": true, "COURT": true, "WAY": true,
		"PL": true, "PLACE": true, "CIR": true, "CIRCLE": true,
	}
	leadingNumberRE = regexp.MustCompile(`^\s*(\d+[A-Za-z]?)\s+`)
	postalRE        = regexp.MustCompile(`\b(\d{5}(?:-\d{4})?)\b`)
	regionRE        = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

// parseAddress performs a best-effort, single-line address parse. It is
// deterministic and makes no network or database calls: it looks for a
// leading house number, a trailing postal code, a two-letter region code
// preceding it, and treats the remaining tokens as street/type/city.
func parseAddress(raw string) addressComponents {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var c addressComponents

	if m := leadingNumberRE.FindStringSubmatch(s); m != nil {
		c.Number = m[1]
		s = strings.TrimSpace(s[len(m[0]):])
	}

	if m := postalRE.FindString(s); m != "" {
		c.Postal = m
		s = strings.TrimSpace(strings.Replace(s, m, "", 1))
	}

	// Split on commas: "street [type], city, region"
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch {
	case len(parts) >= 3:
		c.Street, c.Type = splitStreetType(parts[0])
		c.City = parts[1]
		c.Region = firstRegionToken(parts[2])
	case len(parts) == 2:
		c.Street, c.Type = splitStreetType(parts[0])
		c.City = firstNonRegionToken(parts[1])
		c.Region = firstRegionToken(parts[1])
	default:
		tokens := strings.Fields(s)
		if m := regionRE.FindString(s); m != "" {
			c.Region = m
		}
		c.Street, c.Type = splitStreetType(strings.Join(tokens, " "))
	}

	return c
}

func splitStreetType(s string) (street, typ string) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return "", ""
	}
	last := tokens[len(tokens)-1]
	if streetTypeWords[last] {
		return strings.Join(tokens[:len(tokens)-1], " "), last
	}
	return s, ""
}

func firstRegionToken(s string) string {
	if m := regionRE.FindString(s); m != "" {
		return m
	}
	return ""
}

func firstNonRegionToken(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// AddressComparator scores a weighted sum of per-component fuzzy/exact
// scores: number .25, street .35, type .15, city .15, region .05,
// postal .05. Components missing on both sides contribute
// 0 to both numerator and denominator.
type AddressComparator struct{}

func (AddressComparator) ID() string { return "address" }

type addressWeight struct {
	name   string
	weight float64
	exact  bool
}

var addressWeights = []addressWeight{
	{"number", 0.25, true},
	{"street", 0.35, false},
	{"type", 0.15, true},
	{"city", 0.15, false},
	{"region", 0.05, true},
	{"postal", 0.05, true},
}

func (AddressComparator) Compare(left, right model.Value, params map[string]any) (float64, error) {
	a := parseAddress(left.AsString())
	b := parseAddress(right.AsString())

	get := func(c addressComponents, name string) string {
		switch name {
		case "number":
			return c.Number
		case "street":
			return c.Street
		case "type":
			return c.Type
		case "city":
			return c.City
		case "region":
			return c.Region
		case "postal":
			return c.Postal
		}
		return ""
	}

	var numerator, denominator float64
	for _, w := range addressWeights {
		av, bv := get(a, w.name), get(b, w.name)
		if av == "" && bv == "" {
			continue
		}
		denominator += w.weight

		var score float64
		if w.exact {
			if strings.EqualFold(av, bv) {
				score = 1
			}
		} else {
			score = normalizedLevenshtein(strings.ToLower(av), strings.ToLower(bv))
		}
		numerator += w.weight * score
	}

	if denominator == 0 {
		return 0, nil
	}
	return clamp01(numerator / denominator), nil
}
