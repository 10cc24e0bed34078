package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/typeutil"
)

// ErrEmptyDocument is returned when a policy document has no content.
var ErrEmptyDocument = errors.New("policy document is empty")

// Document is a parsed policy document: the rules plus the context they are
// evaluated against.
type Document struct {
	Rules   []Rule  `json:"rules"`
	Context Context `json:"context"`
}

// Evaluate evaluates the document's rules against its own context.
func (d *Document) Evaluate() *Result {
	return Evaluate(d.Rules, d.Context)
}

// ParseDocument decodes a policy document in JSON or YAML.
//
// The top level is either {"rules": [...], "context": {...}} or a bare rule
// list. Rule keys accept the common spellings seen in the wild: id/rule_id/ruleId,
// level/escalation_level/escalationLevel, description/message. Rules without a
// condition are dropped; rules without an id get a positional one.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, ErrEmptyDocument
	}

	var raw any
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("decode policy document: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}

	doc := &Document{Context: Context{}}
	var rawRules []any
	switch v := raw.(type) {
	case map[string]any:
		rules, ok := typeutil.SafeSlice(v["rules"])
		if !ok && v["rules"] != nil {
			return nil, errors.New("policy document: rules must be a list")
		}
		rawRules = rules
		if ctx, ok := typeutil.SafeMapStringAny(v["context"]); ok {
			doc.Context = Context(ctx)
		}
	case []any:
		rawRules = v
	default:
		return nil, fmt.Errorf("policy document: unexpected top-level %T", raw)
	}

	for i, item := range rawRules {
		m, ok := typeutil.SafeMapStringAny(item)
		if !ok {
			continue
		}
		rule := RuleFromMap(m)
		if rule.Condition == "" {
			continue
		}
		if rule.ID == "" {
			rule.ID = fmt.Sprintf("rule_%d", i+1)
		}
		doc.Rules = append(doc.Rules, rule)
	}
	return doc, nil
}

// RuleFromMap builds a Rule from a loosely typed map.
func RuleFromMap(m map[string]any) Rule {
	return Rule{
		ID:          firstString(m, "id", "rule_id", "ruleId"),
		Condition:   firstString(m, "condition", "when"),
		Action:      firstString(m, "action"),
		Level:       firstString(m, "level", "escalation_level", "escalationLevel"),
		Description: firstString(m, "description", "message"),
	}
}

// ToMap converts a rule to a JSON-compatible map.
func (r Rule) ToMap() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"condition":   r.Condition,
		"action":      r.Action,
		"level":       r.Level,
		"description": r.Description,
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(typeutil.ToString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
