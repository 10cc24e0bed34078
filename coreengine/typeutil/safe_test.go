package typeutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ASSERTION TESTS
// =============================================================================

func TestSafeMapStringAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		wantBool bool
	}{
		{"valid map", map[string]any{"key": "value"}, true},
		{"nil value", nil, false},
		{"wrong type", "not a map", false},
		{"empty map", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := SafeMapStringAny(tt.input)
			assert.Equal(t, tt.wantBool, ok)
		})
	}
}

func TestSafeInt(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   int
		wantOK bool
	}{
		{"int", 42, 42, true},
		{"int64", int64(7), 7, true},
		{"whole float64", float64(3600), 3600, true},
		{"fractional float64", 1.5, 0, false},
		{"string", "42", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeInt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// COERCION TESTS
// =============================================================================

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{"float64", 500.5, 500.5, true},
		{"int", 500, 500, true},
		{"numeric string", "500", 500, true},
		{"padded numeric string", "  12.25 ", 12.25, true},
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"word", "manager", 0, false},
		{"nan string", "NaN", 0, false},
		{"nil", nil, 0, false},
		{"slice", []any{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToFloat64_RejectsInfinity(t *testing.T) {
	_, ok := ToFloat64(math.Inf(1))
	assert.False(t, ok)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "cfo", ToString("cfo"))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "5", ToString(5.0))
	assert.Equal(t, "5.25", ToString(5.25))
	assert.Equal(t, "12", ToString(12))
}

func TestSafeStringSlice(t *testing.T) {
	got, ok := SafeStringSlice([]any{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = SafeStringSlice([]any{"a", 1})
	assert.False(t, ok)

	got, ok = SafeStringSlice([]string{"x"})
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, got)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{"nil", nil, false},
		{"true", true, true},
		{"false", false, false},
		{"empty string", "", false},
		{"string", "yes", true},
		{"zero", 0, false},
		{"zero float", 0.0, false},
		{"number", 3, true},
		{"empty slice", []any{}, false},
		{"slice", []any{"x"}, true},
		{"empty map", map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.input))
		})
	}
}

// =============================================================================
// NESTED LOOKUP TESTS
// =============================================================================

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"invoice": map[string]any{
			"vendor": map[string]any{"name": "Acme"},
			"amount": 1200.0,
		},
		"simple":      "value",
		"flat.dotted": "flat",
	}

	tests := []struct {
		name      string
		path      string
		wantValue any
		wantBool  bool
	}{
		{"simple path", "simple", "value", true},
		{"nested path", "invoice.vendor.name", "Acme", true},
		{"nested number", "invoice.amount", 1200.0, true},
		{"exact dotted key wins", "flat.dotted", "flat", true},
		{"missing key", "invoice.missing", nil, false},
		{"empty path", "", nil, false},
		{"path through non-map", "simple.nested", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetNestedValue(data, tt.path)
			assert.Equal(t, tt.wantBool, ok)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

func TestGetNestedValue_NilMap(t *testing.T) {
	_, ok := GetNestedValue(nil, "a.b")
	assert.False(t, ok)
}

// =============================================================================
// MAP DECODING TESTS
// =============================================================================

func TestFromMapHelpers(t *testing.T) {
	m := map[string]any{
		"budget":  float64(20000),
		"ratio":   0.5,
		"enabled": false,
		"name":    "fast",
		"empty":   "",
		"flag":    true,
	}

	assert.Equal(t, 20000, IntFromMap(m, "budget", 1))
	assert.Equal(t, 1, IntFromMap(m, "ratio", 1))
	assert.Equal(t, 9, IntFromMap(m, "missing", 9))

	assert.Equal(t, 0.5, FloatFromMap(m, "ratio", 1))
	assert.Equal(t, 20000.0, FloatFromMap(m, "budget", 1))
	assert.Equal(t, 2.0, FloatFromMap(m, "flag", 2))

	assert.False(t, BoolFromMap(m, "enabled", true))
	assert.True(t, BoolFromMap(m, "missing", true))

	assert.Equal(t, "fast", StringFromMap(m, "name", "x"))
	assert.Equal(t, "x", StringFromMap(m, "empty", "x"))
}
