// Package coerce turns loosely formatted listing values ("$1,234", "3 bd",
// "1.5k sqft", JSON numbers, numeric strings) into typed numbers.
//
// Every function here is total: malformed input yields "unknown" (ok == false),
// never an error.
package coerce

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// First numeric token, optionally followed by a magnitude suffix that ends
// a word. "3 bd" and "3bd" keep their 3, "2.5k" becomes 2500.
var numberRe = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?|\.\d+)(?:([kmb])\b)?`)

// Number returns the numeric value of v. Numbers pass through unchanged so
// Number is idempotent on its own output.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return Parse(n.String())
		}
		return finite(f)
	case string:
		return Parse(n)
	case *float64:
		if n == nil {
			return 0, false
		}
		return finite(*n)
	case bool:
		return 0, false
	}
	return 0, false
}

// Parse extracts the first number in s. Everything but digits and the
// decimal point is dropped from the matched token before conversion.
func Parse(s string) (float64, bool) {
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	token := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, m[1])
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		f *= 1e3
	case "m":
		f *= 1e6
	case "b":
		f *= 1e9
	}
	return finite(f)
}

// Cents reads v as an amount in cents and returns dollars.
func Cents(v any) (float64, bool) {
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	return f / 100, true
}

// Ptr is Number returning nil for unknown.
func Ptr(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	return &f
}

// IntPtr truncates a known value to an int.
func IntPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

// Text renders scalar JSON-ish values as trimmed strings. Maps, slices and
// nil render as "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Truthy mirrors the loose "is this value set" check used when choosing
// between synonym keys: zero, empty and false are unset.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		return t.String() != "0" && t.String() != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
