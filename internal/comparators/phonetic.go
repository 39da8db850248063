package comparators

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mdmcore/resolve/internal/model"
)

// PhoneticComparator encodes both inputs with Soundex, Metaphone, or
// NYSIIS and returns 1 if the codes are equal, else 0.
type PhoneticComparator struct{}

func (PhoneticComparator) ID() string { return "phonetic" }

func (PhoneticComparator) Compare(left, right model.Value, params map[string]any) (float64, error) {
	method, _ := params["method"].(string)
	if method == "" {
		method = "soundex"
	}

	a, b := left.AsString(), right.AsString()

	var encode func(string) string
	switch method {
	case "soundex":
		encode = soundex
	case "metaphone":
		encode = metaphone
	case "nysiis":
		encode = nysiis
	default:
		return 0, fmt.Errorf("comparators: unknown phonetic method %q", method)
	}

	if encode(a) == encode(b) {
		return 1, nil
	}
	return 0, nil
}

// soundex implements the classic American Soundex algorithm.
func soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	code := func(r rune) byte {
		switch r {
		case 'B', 'F', 'P', 'V':
			return '1'
		case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
			return '2'
		case 'D', 'T':
			return '3'
		case 'L':
			return '4'
		case 'M', 'N':
			return '5'
		case 'R':
			return '6'
		default:
			return 0
		}
	}

	runes := []rune(s)
	var first rune
	firstIdx := -1
	for i, r := range runes {
		if unicode.IsLetter(r) {
			first = r
			firstIdx = i
			break
		}
	}
	if firstIdx == -1 {
		return ""
	}

	out := []byte{byte(first)}
	lastCode := code(first)
	for _, r := range runes[firstIdx+1:] {
		if !unicode.IsLetter(r) {
			continue
		}
		c := code(r)
		if c != 0 && c != lastCode {
			out = append(out, c)
			if len(out) == 4 {
				break
			}
		}
		lastCode = c
	}
	for len(out) < 4 {
		out = append(out, '0')
	}
	return string(out)
}

// metaphone is a simplified, deterministic approximation of the
// Metaphone algorithm sufficient for blocking/comparator purposes: it
// collapses common digraphs and drops vowels after the first letter.
func metaphone(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	replacer := strings.NewReplacer(
		"PH", "F", "WH", "W", "CK", "K", "SCH", "SK",
		"TH", "0", "GH", "G", "KN", "N", "MB", "M",
	)
	s = replacer.Replace(s)

	var out strings.Builder
	for i, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if i > 0 && isVowel(r) {
			continue
		}
		out.WriteRune(r)
	}
	code := out.String()
	if len(code) > 6 {
		code = code[:6]
	}
	return code
}

// nysiis is a simplified New York State Identification and Intelligence
// System encoding: uppercase, common prefix/suffix substitutions, then
// first-letter plus de-duplicated consonant skeleton.
func nysiis(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "MAC"):
		s = "MCC" + s[3:]
	case strings.HasPrefix(s, "KN"):
		s = "NN" + s[2:]
	case strings.HasPrefix(s, "K"):
		s = "C" + s[1:]
	}

	var out strings.Builder
	var last rune
	for i, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		if isVowel(r) {
			r = 'A'
		}
		if r == last && i > 0 {
			continue
		}
		out.WriteRune(r)
		last = r
	}
	code := out.String()
	if len(code) > 6 {
		code = code[:6]
	}
	return code
}

func isVowel(r rune) bool {
	switch r {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}
