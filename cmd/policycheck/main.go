// Package main provides the policycheck CLI.
//
// policycheck runs the control plane's stateless checks without a server. It
// reads JSON (or YAML, for evaluate) from stdin and writes one JSON object to
// stdout, so scripts and CI jobs can lint policies and action lists.
//
// Usage:
//
//	# Evaluate a policy document
//	echo '{"rules":[{"id":"R1","condition":"amount > 500","action":"require_approval"}],"context":{"amount":900}}' | policycheck evaluate
//
//	# Classify action names
//	echo '{"actions":["get_invoice","create_payment"]}' | policycheck classify
//
//	# Evaluate the approval gate at a state
//	echo '{"state":"APPROVAL_GATE","process_type":"procurement","actions":["create_purchase_order"]}' | policycheck gate
//
//	# Detect the process type of a task description
//	echo '{"task":"Offboard Dana from payroll"}' | policycheck detect
//
//	# Print the template table, optionally from a file
//	policycheck templates -templates processes.yaml
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/config"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

const (
	cmdEvaluate  = "evaluate"
	cmdClassify  = "classify"
	cmdGate      = "gate"
	cmdDetect    = "detect"
	cmdTemplates = "templates"
	cmdVersion   = "version"
)

// Version information
const (
	Version   = "1.0.0"
	BuildTime = "2026-10-01"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	templatesPath := fs.String("templates", "", "YAML process template file")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	c := &cli{stdin: stdin, stdout: stdout}
	if *templatesPath != "" {
		catalog, err := config.LoadTemplatesFile(*templatesPath)
		if err != nil {
			c.writeError("templates_error", err.Error())
			return 1
		}
		c.catalog = catalog
	} else {
		c.catalog = config.DefaultProcessCatalog()
	}

	var err error
	switch cmd {
	case cmdVersion:
		err = c.handleVersion()
	case cmdEvaluate:
		err = c.handleEvaluate()
	case cmdClassify:
		err = c.handleClassify()
	case cmdGate:
		err = c.handleGate()
	case cmdDetect:
		err = c.handleDetect()
	case cmdTemplates:
		err = c.handleTemplates()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}

	if err != nil {
		var inputErr *inputError
		if errors.As(err, &inputErr) {
			c.writeError(inputErr.code, inputErr.message)
		} else {
			fmt.Fprintf(stderr, "Error: %s\n", err.Error())
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: policycheck <command> [-templates file]

Commands:
  evaluate   Evaluate a policy document {"rules": [...], "context": {...}} (JSON or YAML)
  classify   Classify {"actions": [...]} as read, compute or mutate
  gate       Evaluate the approval gate for {"state", "process_type", "actions", "rules", "context"}
  detect     Detect the process type of {"task": "..."}
  templates  Print the process template table
  version    Print version information

Input/Output:
  Commands read from stdin and write one JSON object to stdout.
  Input errors are reported as {"error": true, "code": ..., "message": ...}.`)
}

// inputError is a problem with stdin, reported as JSON on stdout.
type inputError struct {
	code    string
	message string
}

func (e *inputError) Error() string {
	return e.code + ": " + e.message
}

type cli struct {
	stdin   io.Reader
	stdout  io.Writer
	catalog *config.ProcessCatalog
}

func (c *cli) classifier() *hitl.Classifier {
	return hitl.NewClassifier(c.catalog.ActionClasses)
}

// =============================================================================
// Commands
// =============================================================================

func (c *cli) handleVersion() error {
	return c.writeJSON(map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
	})
}

func (c *cli) handleEvaluate() error {
	input, err := c.readInput()
	if err != nil {
		return err
	}
	doc, err := policy.ParseDocument(input)
	if err != nil {
		return &inputError{code: "parse_error", message: err.Error()}
	}
	return c.writeJSON(doc.Evaluate())
}

type actionsInput struct {
	Actions []json.RawMessage `json:"actions"`
}

// decodeActions accepts action names or {"name": ...} objects.
func decodeActions(raw []json.RawMessage) ([]hitl.Action, error) {
	actions := make([]hitl.Action, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			actions = append(actions, hitl.Action{Name: name})
			continue
		}
		var action hitl.Action
		if err := json.Unmarshal(item, &action); err != nil {
			return nil, fmt.Errorf("action %s: %w", string(item), err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (c *cli) handleClassify() error {
	var in actionsInput
	if err := c.decodeInput(&in); err != nil {
		return err
	}
	actions, err := decodeActions(in.Actions)
	if err != nil {
		return &inputError{code: "parse_error", message: err.Error()}
	}
	if len(actions) == 0 {
		return &inputError{code: "invalid_input", message: "actions is required"}
	}

	classifier := c.classifier()
	classifications := make([]hitl.Classification, 0, len(actions))
	for _, a := range actions {
		classifications = append(classifications, classifier.Explain(a.Name))
	}
	return c.writeJSON(map[string]any{
		"classifications": classifications,
		"mutating":        classifier.MutatingActions(actions),
	})
}

type gateInput struct {
	actionsInput
	State       string          `json:"state"`
	ProcessType string          `json:"process_type"`
	Rules       json.RawMessage `json:"rules,omitempty"`
	Context     policy.Context  `json:"context,omitempty"`
}

func (c *cli) handleGate() error {
	var in gateInput
	if err := c.decodeInput(&in); err != nil {
		return err
	}
	actions, err := decodeActions(in.Actions)
	if err != nil {
		return &inputError{code: "parse_error", message: err.Error()}
	}
	state := process.StateApprovalGate
	if in.State != "" {
		parsed, ok := process.ParseState(in.State)
		if !ok {
			return &inputError{code: "invalid_input", message: fmt.Sprintf("unknown state %q", in.State)}
		}
		state = parsed
	}

	var result *policy.Result
	if len(in.Rules) > 0 {
		doc, err := policy.ParseDocument(in.Rules)
		if err != nil {
			return &inputError{code: "parse_error", message: err.Error()}
		}
		result = policy.Evaluate(doc.Rules, in.Context)
	}

	processType, _ := c.catalog.Templates.Resolve(in.ProcessType)
	decision := c.classifier().Evaluate(state, actions, result, processType)
	return c.writeJSON(map[string]any{
		"gate":   decision,
		"policy": result,
	})
}

type detectInput struct {
	Task string `json:"task"`
}

func (c *cli) handleDetect() error {
	var in detectInput
	if err := c.decodeInput(&in); err != nil {
		return err
	}
	processType := process.DetectProcessType(in.Task)
	resolved, states := c.catalog.Templates.Resolve(processType)
	return c.writeJSON(map[string]any{
		"process_type": resolved,
		"read_only":    process.IsReadOnlyQuery(in.Task),
		"definition":   process.DefinitionFor(resolved),
		"states":       states,
	})
}

func (c *cli) handleTemplates() error {
	return c.writeJSON(map[string]any{
		"default":        c.catalog.Templates.DefaultType(),
		"templates":      c.catalog.Templates.ToMap(),
		"action_classes": c.catalog.ActionClasses,
	})
}

// =============================================================================
// I/O
// =============================================================================

func (c *cli) readInput() ([]byte, error) {
	data, err := io.ReadAll(bufio.NewReader(c.stdin))
	if err != nil {
		return nil, &inputError{code: "read_error", message: err.Error()}
	}
	return data, nil
}

func (c *cli) decodeInput(v any) error {
	data, err := c.readInput()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &inputError{code: "parse_error", message: fmt.Sprintf("Invalid JSON: %s", err.Error())}
	}
	return nil
}

func (c *cli) writeJSON(v any) error {
	encoder := json.NewEncoder(c.stdout)
	encoder.SetIndent("", "")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func (c *cli) writeError(code, message string) {
	_ = c.writeJSON(map[string]any{
		"error":   true,
		"code":    code,
		"message": message,
	})
}
