package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a stream conformance scenario.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Wallets are the participant names. Each name maps to a fixed key.
	Wallets []string `yaml:"wallets"`

	// Setup steps must succeed; a failure aborts the run.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow steps may fail, and their expect clauses are checked.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and the folded state.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep invokes one action.
type FlowStep struct {
	// Invoke is the action name, e.g. "Member.join".
	Invoke string `yaml:"invoke"`

	// Args are the action arguments.
	Args map[string]any `yaml:"args"`

	// Expect, when set, is compared with the actual completion.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause is the expected completion of a step.
type ExpectClause struct {
	// Case is "Success" or a protocol error code.
	Case string `yaml:"case"`

	// Result is a subset match on the completion result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Args is a subset match for trace_contains.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is used by trace_count.
	Count int `yaml:"count,omitempty"`

	// Actions is used by trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Stream names the stream for final_state.
	Stream string `yaml:"stream,omitempty"`

	// Expect is a subset match for final_state.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface early.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Discover returns the scenario files in dir, sorted.
func Discover(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		found, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("discover scenarios: %w", err)
		}
		paths = append(paths, found...)
	}
	sort.Strings(paths)
	return paths, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Wallets) == 0 {
		return fmt.Errorf("wallets list is required and must be non-empty")
	}
	seen := make(map[string]bool, len(s.Wallets))
	for _, w := range s.Wallets {
		if w == "" {
			return fmt.Errorf("wallet names must be non-empty")
		}
		if seen[w] {
			return fmt.Errorf("duplicate wallet %q", w)
		}
		seen[w] = true
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step FlowStep) error {
	if step.Invoke == "" {
		return fmt.Errorf("invoke is required")
	}
	if _, ok := actions[step.Invoke]; !ok {
		return fmt.Errorf("unknown action %q", step.Invoke)
	}
	if step.Args == nil {
		return fmt.Errorf("args is required (use empty map if no args)")
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Stream == "" {
			return fmt.Errorf("assertions[%d]: stream is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
