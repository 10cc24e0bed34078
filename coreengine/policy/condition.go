package policy

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/typeutil"
)

// Condition grammar, loosest binding first:
//
//	condition   = conjunction { "||" conjunction }
//	conjunction = atom { "&&" atom }
//	atom        = "!" field
//	            | field "not in" list
//	            | field "in" list
//	            | field "contains" value
//	            | field op value        (op: === !== == != >= <= > <)
//	            | field
//
// A field is an identifier, optionally dotted to reach into nested maps.
// Any atom that matches none of the forms is false.
var (
	negationAtom   = regexp.MustCompile(`^!\s*([A-Za-z_][\w.]*)$`)
	notInAtom      = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+not\s+in\s+(.+)$`)
	inAtom         = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+in\s+(.+)$`)
	containsAtom   = regexp.MustCompile(`(?i)^([A-Za-z_][\w.]*)\s+contains\s+(.+)$`)
	comparisonAtom = regexp.MustCompile(`^([A-Za-z_][\w.]*)\s*(===|!==|==|!=|>=|<=|>|<)\s*(.+)$`)
	bareAtom       = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)
)

// EvaluateCondition reports whether condition holds against ctx.
// Malformed conditions and any panic during evaluation yield false.
func EvaluateCondition(condition string, ctx Context) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()

	condition = strings.TrimSpace(condition)
	if condition == "" {
		return false
	}
	for _, clause := range strings.Split(condition, "||") {
		if evaluateConjunction(clause, ctx) {
			return true
		}
	}
	return false
}

func evaluateConjunction(clause string, ctx Context) bool {
	for _, atom := range strings.Split(clause, "&&") {
		if !evaluateAtom(strings.TrimSpace(atom), ctx) {
			return false
		}
	}
	return true
}

func evaluateAtom(atom string, ctx Context) bool {
	if atom == "" {
		return false
	}

	if m := negationAtom.FindStringSubmatch(atom); m != nil {
		v, _ := lookup(ctx, m[1])
		return !typeutil.Truthy(v)
	}
	if strings.HasPrefix(atom, "!") && !strings.HasPrefix(atom, "!=") {
		return false
	}

	if m := notInAtom.FindStringSubmatch(atom); m != nil {
		v, ok := lookup(ctx, m[1])
		if !ok {
			return true
		}
		return !memberOf(v, parseList(m[2]))
	}
	if m := inAtom.FindStringSubmatch(atom); m != nil {
		v, ok := lookup(ctx, m[1])
		if !ok {
			return false
		}
		return memberOf(v, parseList(m[2]))
	}
	if m := containsAtom.FindStringSubmatch(atom); m != nil {
		v, ok := lookup(ctx, m[1])
		if !ok {
			return false
		}
		return contains(v, unquote(m[2]))
	}
	if m := comparisonAtom.FindStringSubmatch(atom); m != nil {
		v, ok := lookup(ctx, m[1])
		if !ok || v == nil {
			return false
		}
		return compare(v, m[2], strings.TrimSpace(m[3]))
	}
	if bareAtom.MatchString(atom) {
		v, _ := lookup(ctx, atom)
		return typeutil.Truthy(v)
	}
	return false
}

func lookup(ctx Context, field string) (any, bool) {
	return typeutil.GetNestedValue(ctx, field)
}

func compare(actual any, op, raw string) bool {
	literal := unquote(raw)

	if _, isBool := actual.(bool); !isBool {
		if a, ok := typeutil.ToFloat64(actual); ok {
			if b, err := strconv.ParseFloat(literal, 64); err == nil {
				switch op {
				case ">":
					return a > b
				case "<":
					return a < b
				case ">=":
					return a >= b
				case "<=":
					return a <= b
				case "==", "===":
					return a == b
				case "!=", "!==":
					return a != b
				}
			}
		}
	}

	switch op {
	case "==", "===":
		return equalLiteral(actual, literal)
	case "!=", "!==":
		return !equalLiteral(actual, literal)
	default:
		return false
	}
}

func equalLiteral(actual any, literal string) bool {
	if b, ok := actual.(bool); ok {
		parsed, err := strconv.ParseBool(literal)
		return err == nil && parsed == b
	}
	return typeutil.ToString(actual) == literal
}

func memberOf(actual any, list []string) bool {
	if items, ok := typeutil.SafeSlice(actual); ok {
		for _, item := range items {
			if memberOf(item, list) {
				return true
			}
		}
		return false
	}
	needle := strings.ToLower(typeutil.ToString(actual))
	for _, candidate := range list {
		if candidate == needle {
			return true
		}
	}
	return false
}

func contains(actual any, value string) bool {
	if s, ok := actual.(string); ok {
		return strings.Contains(strings.ToLower(s), strings.ToLower(value))
	}
	if items, ok := typeutil.SafeSlice(actual); ok {
		for _, item := range items {
			if strings.EqualFold(typeutil.ToString(item), value) {
				return true
			}
		}
	}
	return false
}

// parseList accepts "[a, b]", "(a, b)" and "a,b", returning lowercased,
// unquoted, non-empty entries.
func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 {
		if (raw[0] == '[' && raw[len(raw)-1] == ']') || (raw[0] == '(' && raw[len(raw)-1] == ')') {
			raw = raw[1 : len(raw)-1]
		}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		item := strings.ToLower(unquote(p))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func unquote(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `'"`)
}
