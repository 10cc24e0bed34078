// Package typeutil provides comma-ok coercion helpers for loosely typed values
// decoded from JSON, YAML and protobuf Structs.
//
// Policy contexts and config maps arrive as map[string]any where a number may be
// an int, a float64 or a numeric string depending on the producer. These helpers
// never panic; callers decide the default.
package typeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SafeMapStringAny asserts value to map[string]any.
func SafeMapStringAny(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// SafeString asserts value to string.
func SafeString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// SafeInt converts integral numeric types to int. Float64 values are accepted
// only when they carry no fractional part, since JSON decodes every number as
// float64.
func SafeInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return int(v), true
	case float32:
		f := float64(v)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}

// SafeBool asserts value to bool.
func SafeBool(value any) (bool, bool) {
	b, ok := value.(bool)
	return b, ok
}

// ToFloat64 coerces numbers, numeric strings and booleans to float64.
// Strings are trimmed before parsing; NaN and infinities are rejected.
func ToFloat64(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString renders a scalar the way it would appear in a condition literal.
// Whole floats drop their fractional part so 5.0 renders as "5".
func ToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SafeSlice returns value as []any, converting []string.
func SafeSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// SafeStringSlice returns value as []string. Mixed slices fail unless every
// element is a string.
func SafeStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Truthy reports whether value is set in the sense of a bare condition atom:
// false, zero, empty strings, empty collections and nil are all false.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	if f, ok := ToFloat64(value); ok {
		return f != 0
	}
	return true
}

// GetNestedValue resolves a dot-separated path through nested maps.
// An exact key match wins over path splitting so flat keys containing dots
// still resolve.
func GetNestedValue(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}

	current := any(data)
	for _, key := range splitPath(path) {
		m, ok := SafeMapStringAny(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// =============================================================================
// Map decoding (config and request payloads)
// =============================================================================

// IntFromMap reads key as an int, returning def when absent or not integral.
func IntFromMap(m map[string]any, key string, def int) int {
	if v, ok := SafeInt(m[key]); ok {
		return v
	}
	return def
}

// FloatFromMap reads key as a float64, returning def when absent or non-numeric.
func FloatFromMap(m map[string]any, key string, def float64) float64 {
	if v, ok := ToFloat64(m[key]); ok {
		if _, isBool := m[key].(bool); !isBool {
			return v
		}
	}
	return def
}

// BoolFromMap reads key as a bool, returning def when absent.
func BoolFromMap(m map[string]any, key string, def bool) bool {
	if v, ok := SafeBool(m[key]); ok {
		return v
	}
	return def
}

// StringFromMap reads key as a string, returning def when absent or empty.
func StringFromMap(m map[string]any, key string, def string) string {
	if v, ok := SafeString(m[key]); ok && v != "" {
		return v
	}
	return def
}

func splitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
