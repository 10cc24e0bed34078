package process

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultProcessType is the template used for unknown process types.
const DefaultProcessType = "general"

// TemplateTable maps process types to their ordered states. It is read-only
// after construction and safe to share between goroutines.
type TemplateTable struct {
	templates   map[string][]State
	defaultType string
}

var builtinTemplates = map[string][]State{
	"expense_approval":       {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateComplete},
	"procurement":            {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateScheduleNotify, StateComplete},
	"hr_offboarding":         {StateDecompose, StateAssess, StatePolicyCheck, StateMutate, StateScheduleNotify, StateComplete},
	"incident_response":      {StateDecompose, StateAssess, StateCompute, StateApprovalGate, StateMutate, StateScheduleNotify, StateComplete},
	"invoice_reconciliation": {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateMutate, StateComplete},
	"customer_onboarding":    {StateDecompose, StateAssess, StateMutate, StateScheduleNotify, StateComplete},
	"compliance_audit":       {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateScheduleNotify, StateComplete},
	"dispute_resolution":     {StateDecompose, StateAssess, StatePolicyCheck, StateApprovalGate, StateMutate, StateComplete},
	"order_management":       {StateDecompose, StateAssess, StateCompute, StateApprovalGate, StateMutate, StateComplete},
	"sla_breach":             {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateScheduleNotify, StateEscalate},
	"month_end_close":        {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateComplete},
	"ar_collections":         {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateMutate, StateScheduleNotify, StateComplete},
	"subscription_migration": {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateComplete},
	"payroll":                {StateDecompose, StateAssess, StateCompute, StatePolicyCheck, StateApprovalGate, StateMutate, StateScheduleNotify, StateComplete},
	DefaultProcessType:       {StateDecompose, StateAssess, StateMutate, StateComplete},
}

// DefaultTemplates returns the built-in template table.
func DefaultTemplates() *TemplateTable {
	t, err := NewTemplateTable(builtinTemplates, DefaultProcessType)
	if err != nil {
		// The built-in table is covered by tests; reaching this is a programming error.
		panic(fmt.Sprintf("builtin process templates invalid: %v", err))
	}
	return t
}

// NewTemplateTable validates and copies templates.
//
// Every template must be non-empty, start with DECOMPOSE, end with a terminal
// state and contain only known states. defaultType must name one of the
// templates.
func NewTemplateTable(templates map[string][]State, defaultType string) (*TemplateTable, error) {
	defaultType = NormalizeProcessType(defaultType)
	if defaultType == "" {
		return nil, errors.New("process templates: default type is required")
	}

	table := &TemplateTable{
		templates:   make(map[string][]State, len(templates)),
		defaultType: defaultType,
	}
	for name, states := range templates {
		key := NormalizeProcessType(name)
		if key == "" {
			return nil, errors.New("process templates: empty process type name")
		}
		if err := validateTemplate(states); err != nil {
			return nil, fmt.Errorf("process templates: %s: %w", key, err)
		}
		copied := make([]State, len(states))
		copy(copied, states)
		table.templates[key] = copied
	}
	if _, ok := table.templates[defaultType]; !ok {
		return nil, fmt.Errorf("process templates: default type %q has no template", defaultType)
	}
	return table, nil
}

func validateTemplate(states []State) error {
	if len(states) == 0 {
		return errors.New("template is empty")
	}
	for i, s := range states {
		if !s.IsValid() {
			return fmt.Errorf("unknown state %q at position %d", s, i)
		}
	}
	if states[0] != StateDecompose {
		return fmt.Errorf("template must start with %s, got %s", StateDecompose, states[0])
	}
	if last := states[len(states)-1]; !last.IsTerminal() {
		return fmt.Errorf("template must end with a terminal state, got %s", last)
	}
	return nil
}

// Resolve returns the template for processType and the key it resolved to.
// Unknown or empty types resolve to the default template. The returned slice
// is a copy.
func (t *TemplateTable) Resolve(processType string) (string, []State) {
	key := NormalizeProcessType(processType)
	states, ok := t.templates[key]
	if !ok {
		key = t.defaultType
		states = t.templates[key]
	}
	out := make([]State, len(states))
	copy(out, states)
	return key, out
}

// Has reports whether processType has its own template.
func (t *TemplateTable) Has(processType string) bool {
	_, ok := t.templates[NormalizeProcessType(processType)]
	return ok
}

// DefaultType returns the fallback process type.
func (t *TemplateTable) DefaultType() string {
	return t.defaultType
}

// Types returns the configured process types in sorted order.
func (t *TemplateTable) Types() []string {
	out := make([]string, 0, len(t.templates))
	for k := range t.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ToMap returns the table as process type -> state names.
func (t *TemplateTable) ToMap() map[string][]string {
	out := make(map[string][]string, len(t.templates))
	for k, v := range t.templates {
		out[k] = statesToStrings(v)
	}
	return out
}

var processTypeSeparators = strings.NewReplacer(" ", "_", "-", "_")

// NormalizeProcessType lowercases and joins words with underscores, so
// "Expense Approval" and "expense-approval" both become "expense_approval".
func NormalizeProcessType(processType string) string {
	return processTypeSeparators.Replace(strings.ToLower(strings.TrimSpace(processType)))
}
