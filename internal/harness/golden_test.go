package harness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_KeyExchange(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/key_exchange.yaml")
	require.NoError(t, err)
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "ordering",
		Trace: []TraceEvent{
			{Type: "invocation", Action: "Member.join", Args: map[string]any{"stream": "s", "as": "a"}, Seq: 1},
			{Type: "completion", Action: "Member.join", Case: CaseSuccess, Seq: 2},
		},
	}
	data, err := snapshot.Marshal()
	require.NoError(t, err)
	require.Equal(t,
		`{"scenario_name":"ordering","trace":[{"action":"Member.join","args":{"as":"a","stream":"s"},"seq":1,"type":"invocation"},{"action":"Member.join","case":"Success","seq":2,"type":"completion"}]}`,
		string(data))
}
