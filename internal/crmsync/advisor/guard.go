package advisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// ErrFabricated is wrapped by VerifyNoFabrication failures.
var ErrFabricated = errors.New("corrected payload introduces values absent from the original")

// VerifyNoFabrication checks that every scalar in corrected already appears
// in original, either as a whole value, as an object key, or as a run of
// whole tokens inside one value ("26" out of "26 ft"). Fragments of a token
// do not count. Re-typed numbers and booleans are compared by their text form.
func VerifyNoFabrication(original, corrected map[string]any) error {
	allowed := make(map[string]struct{})
	var texts []string
	var tokenized [][]string
	walk(original, func(s string) {
		allowed[s] = struct{}{}
		texts = append(texts, s)
		tokenized = append(tokenized, tokens(s))
	}, func(key string) {
		allowed[strings.ToLower(key)] = struct{}{}
	})

	var offending []string
	walk(corrected, func(s string) {
		if _, ok := allowed[s]; ok {
			return
		}
		if isBoolText(s) && hasBoolText(texts) {
			return
		}
		want := tokens(s)
		for _, have := range tokenized {
			if containsRun(have, want) {
				return
			}
		}
		offending = append(offending, s)
	}, nil)

	if len(offending) > 0 {
		return fmt.Errorf("%w: %s", ErrFabricated, strings.Join(offending, ", "))
	}
	return nil
}

// tokens splits normalized text on anything other than letters, digits and
// the characters that hold emails, phones and decimals together.
func tokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune(".@+-_", r)
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, ".-_"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// containsRun reports whether want occurs as consecutive whole tokens of have.
func containsRun(have, want []string) bool {
	if len(want) == 0 || len(want) > len(have) {
		return false
	}
	for i := 0; i+len(want) <= len(have); i++ {
		if slices.EqualFunc(have[i:i+len(want)], want, sameToken) {
			return true
		}
	}
	return false
}

func sameToken(a, b string) bool {
	if a == b {
		return true
	}
	x, errX := strconv.ParseFloat(a, 64)
	y, errY := strconv.ParseFloat(b, 64)
	return errX == nil && errY == nil && x == y
}

func walk(v any, leaf func(string), key func(string)) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if key != nil {
				key(k)
			}
			walk(child, leaf, key)
		}
	case []any:
		for _, child := range t {
			walk(child, leaf, key)
		}
	case nil:
	default:
		if s := scalarText(t); s != "" {
			leaf(s)
		}
	}
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		return strings.ToLower(fmt.Sprint(t))
	}
}

var boolTexts = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "y": {}, "n": {}, "1": {}, "0": {}, "on": {}, "off": {},
}

func isBoolText(s string) bool {
	return s == "true" || s == "false"
}

func hasBoolText(texts []string) bool {
	for _, t := range texts {
		if _, ok := boolTexts[t]; ok {
			return true
		}
	}
	return false
}
