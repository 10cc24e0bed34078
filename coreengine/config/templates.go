package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// TemplatesDocument is the on-disk shape of a process catalog:
//
//	default: general
//	merge_builtin: true
//	templates:
//	  vendor_review: [DECOMPOSE, ASSESS, POLICY_CHECK, APPROVAL_GATE, MUTATE, COMPLETE]
//	action_classes:
//	  sync_ledger: read
type TemplatesDocument struct {
	Default       string              `yaml:"default" json:"default"`
	MergeBuiltin  *bool               `yaml:"merge_builtin" json:"merge_builtin"`
	Templates     map[string][]string `yaml:"templates" json:"templates"`
	ActionClasses map[string]string   `yaml:"action_classes" json:"action_classes"`
}

// ProcessCatalog is a validated template table plus classifier overrides.
type ProcessCatalog struct {
	Templates     *process.TemplateTable
	ActionClasses map[string]hitl.ActionClass
}

// DefaultProcessCatalog returns the built-in templates with no overrides.
func DefaultProcessCatalog() *ProcessCatalog {
	return &ProcessCatalog{
		Templates:     process.DefaultTemplates(),
		ActionClasses: map[string]hitl.ActionClass{},
	}
}

// ParseTemplates decodes and validates a YAML (or JSON) catalog. Templates are
// layered over the built-in table unless merge_builtin is false.
func ParseTemplates(data []byte) (*ProcessCatalog, error) {
	var doc TemplatesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return doc.Build()
}

// Build validates the document into a ProcessCatalog.
func (d *TemplatesDocument) Build() (*ProcessCatalog, error) {
	merge := d.MergeBuiltin == nil || *d.MergeBuiltin
	builtin := process.DefaultTemplates()

	raw := map[string][]string{}
	if merge {
		raw = builtin.ToMap()
	}
	for name, states := range d.Templates {
		raw[process.NormalizeProcessType(name)] = states
	}
	if len(raw) == 0 {
		return nil, errors.New("templates: no templates defined")
	}

	defaultType := d.Default
	if defaultType == "" {
		defaultType = builtin.DefaultType()
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make(map[string][]process.State, len(raw))
	for _, name := range names {
		states := make([]process.State, 0, len(raw[name]))
		for i, s := range raw[name] {
			state, ok := process.ParseState(s)
			if !ok {
				return nil, fmt.Errorf("templates: %s: unknown state %q at %d", name, s, i)
			}
			states = append(states, state)
		}
		table[name] = states
	}

	templates, err := process.NewTemplateTable(table, defaultType)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	classes := make(map[string]hitl.ActionClass, len(d.ActionClasses))
	for name, class := range d.ActionClasses {
		parsed, ok := hitl.ParseActionClass(class)
		if !ok {
			return nil, fmt.Errorf("templates: action %q has unknown class %q", name, class)
		}
		classes[name] = parsed
	}

	return &ProcessCatalog{Templates: templates, ActionClasses: classes}, nil
}

// LoadTemplatesFile reads and validates a catalog file.
func LoadTemplatesFile(path string) (*ProcessCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	catalog, err := ParseTemplates(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}
