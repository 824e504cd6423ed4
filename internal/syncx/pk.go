package syncx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// maxPKLen bounds canonical pk strings so arbitrary caller blobs cannot be
// smuggled in as keys.
const maxPKLen = 256

// CanonicalKey returns the deterministic string form of a primary key.
// Scalars keep their string or decimal representation; composite maps become
// the keys sorted ascending joined as k=v pairs separated by "|". The
// canonical form is not reversible and never needs to be.
func CanonicalKey(pk any) (string, error) {
	switch v := pk.(type) {
	case string:
		if !ValidPKToken(v) {
			return "", fmt.Errorf("invalid pk string")
		}
		return v, nil
	case map[string]any:
		return canonicalComposite(v)
	default:
		if s, ok := canonicalScalar(pk); ok {
			return s, nil
		}
		return "", fmt.Errorf("unsupported pk type %T", pk)
	}
}

func canonicalScalar(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, ValidPKToken(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case json.Number:
		return n.String(), true
	}
	return "", false
}

func canonicalComposite(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", fmt.Errorf("empty composite pk")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		s, ok := canonicalScalar(m[k])
		if !ok {
			return "", fmt.Errorf("composite pk value for %q is not a scalar", k)
		}
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s)
	}
	out := b.String()
	if len(out) > maxPKLen {
		return "", fmt.Errorf("composite pk too long")
	}
	return out, nil
}

// ValidPKToken reports whether s is acceptable as a pk string: non-empty,
// bounded, printable, no control characters.
func ValidPKToken(s string) bool {
	if s == "" || len(s) > maxPKLen {
		return false
	}
	for _, r := range s {
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
