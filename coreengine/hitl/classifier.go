// Package hitl decides which actions must wait for a human.
//
// Action names are classified as read, compute or mutate. While a process sits
// at its approval gate, every mutating action is blocked. Names the rules do
// not recognise are treated as mutating.
package hitl

import (
	"strings"
	"sync"
)

// ActionClass is the side-effect category of an action.
type ActionClass string

const (
	// ClassRead gathers data without side effects.
	ClassRead ActionClass = "read"
	// ClassCompute calculates without side effects. Never blocked.
	ClassCompute ActionClass = "compute"
	// ClassMutate changes persistent state.
	ClassMutate ActionClass = "mutate"
)

// ParseActionClass parses a class name case-insensitively.
func ParseActionClass(name string) (ActionClass, bool) {
	switch ActionClass(strings.ToLower(strings.TrimSpace(name))) {
	case ClassRead:
		return ClassRead, true
	case ClassCompute:
		return ClassCompute, true
	case ClassMutate:
		return ClassMutate, true
	}
	return "", false
}

var computePrefixes = []string{"calculate", "compute", "estimate"}

var readPrefixes = []string{
	"get", "list", "fetch", "read", "search", "find", "query", "check",
	"verify", "retrieve", "describe", "show", "count", "sum", "aggregate",
	"filter", "compare", "lookup", "inspect", "validate", "preview",
}

var mutatePrefixes = []string{
	"create", "update", "delete", "cancel", "approve", "reject", "submit",
	"send", "post", "modify", "change", "set", "add", "remove", "revoke",
	"grant", "book", "order", "place", "transfer", "pay", "charge", "refund",
	"issue", "close", "archive", "migrate", "deploy", "rollback", "terminate",
	"execute", "apply", "process", "dispatch", "trigger", "write", "insert",
	"upsert", "patch", "commit", "push", "publish", "fire", "mark", "flag",
	"lock", "unlock", "escalate", "initiate", "finalize", "complete",
	"activate", "deactivate", "enable", "disable", "start", "stop", "pause",
	"resume", "confirm", "acknowledge", "resolve", "reopen", "merge", "split",
	"move", "assign", "unassign", "notify", "alert", "enroll", "disenroll",
	"provision", "deprovision", "bump", "promote", "demote", "reset",
	"regenerate", "rotate", "register", "deregister", "tag", "untag", "link",
	"unlink", "import", "export", "upload", "download",
}

// mutateFragments catch mutating verbs embedded after a noun, as in
// "invoice_commit" or "ticketescalation".
var mutateFragments = []string{
	"write", "insert", "upsert", "patch", "execute", "commit", "push",
	"publish", "trigger", "invoke", "dispatch", "escalat", "initiat",
	"finaliz", "terminat", "activat", "deactivat",
}

// hasVerbPrefix reports whether name starts with verb followed by a word
// separator, or is exactly verb.
func hasVerbPrefix(name, verb string) bool {
	if !strings.HasPrefix(name, verb) {
		return false
	}
	if len(name) == len(verb) {
		return true
	}
	switch name[len(verb)] {
	case '_', '-', '.', ' ', '/', ':':
		return true
	}
	return false
}

func matchesAny(name string, verbs []string) bool {
	for _, v := range verbs {
		if hasVerbPrefix(name, v) {
			return true
		}
	}
	return false
}

// MatchRule names the rule that decided a classification.
type MatchRule string

const (
	RuleOverride       MatchRule = "override"
	RuleComputePrefix  MatchRule = "compute_prefix"
	RuleReadPrefix     MatchRule = "read_prefix"
	RuleMutatePrefix   MatchRule = "mutate_prefix"
	RuleMutateFragment MatchRule = "mutate_fragment"
	RuleDefault        MatchRule = "default"
)

// Classification is a classified action name with the rule that decided it.
type Classification struct {
	Name  string      `json:"name"`
	Class ActionClass `json:"class"`
	Rule  MatchRule   `json:"rule"`
}

// ClassifyName applies the static rules: compute prefixes first, then read
// prefixes, then mutate prefixes and fragments. Anything else is mutate.
func ClassifyName(name string) ActionClass {
	return explain(name).Class
}

func explain(name string) Classification {
	n := strings.ToLower(strings.TrimSpace(name))
	c := Classification{Name: name}
	switch {
	case matchesAny(n, computePrefixes):
		c.Class, c.Rule = ClassCompute, RuleComputePrefix
	case matchesAny(n, readPrefixes):
		c.Class, c.Rule = ClassRead, RuleReadPrefix
	case matchesAny(n, mutatePrefixes):
		c.Class, c.Rule = ClassMutate, RuleMutatePrefix
	case containsAny(n, mutateFragments):
		c.Class, c.Rule = ClassMutate, RuleMutateFragment
	default:
		c.Class, c.Rule = ClassMutate, RuleDefault
	}
	return c
}

func containsAny(name string, fragments []string) bool {
	for _, frag := range fragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// =============================================================================
// Classifier
// =============================================================================

// Classifier classifies action names with per-instance overrides layered over
// the static rules. It is safe for concurrent use.
type Classifier struct {
	mu        sync.RWMutex
	overrides map[string]ActionClass
}

// NewClassifier creates a Classifier seeded with overrides.
func NewClassifier(overrides map[string]ActionClass) *Classifier {
	c := &Classifier{overrides: make(map[string]ActionClass)}
	c.Seed(overrides)
	return c
}

// Seed installs classifications for exact action names, replacing earlier
// entries for the same names. Entries with an invalid class are ignored.
func (c *Classifier) Seed(overrides map[string]ActionClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, class := range overrides {
		parsed, ok := ParseActionClass(string(class))
		if !ok {
			continue
		}
		c.overrides[strings.ToLower(strings.TrimSpace(name))] = parsed
	}
}

// Classify returns the class for name, preferring an override.
func (c *Classifier) Classify(name string) ActionClass {
	return c.Explain(name).Class
}

// Explain classifies name and reports which rule decided it.
func (c *Classifier) Explain(name string) Classification {
	c.mu.RLock()
	class, ok := c.overrides[strings.ToLower(strings.TrimSpace(name))]
	c.mu.RUnlock()
	if ok {
		return Classification{Name: name, Class: class, Rule: RuleOverride}
	}
	return explain(name)
}

// Overrides returns a copy of the installed overrides.
func (c *Classifier) Overrides() map[string]ActionClass {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]ActionClass, len(c.overrides))
	for k, v := range c.overrides {
		out[k] = v
	}
	return out
}
