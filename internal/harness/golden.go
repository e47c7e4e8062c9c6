package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/streamcore/internal/canon"
)

// TraceSnapshot is what golden files record for a run.
type TraceSnapshot struct {
	ScenarioName string                    `json:"scenario_name"`
	Trace        []TraceEvent              `json:"trace"`
	State        map[string]map[string]any `json:"state,omitempty"`
}

// NewTraceSnapshot captures the trace and final state of result.
func NewTraceSnapshot(scenarioName string, result *Result) *TraceSnapshot {
	return &TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace, State: result.State}
}

// Marshal returns the canonical JSON of the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return canon.Marshal(s)
}

// RunWithGolden runs a scenario, fails t on any failed expectation, and
// compares the trace and state with testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	data, err := NewTraceSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
