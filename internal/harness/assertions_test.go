package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "invocation", Action: "Stream.create", Args: map[string]any{"stream": "town", "as": "alice"}, Seq: 1},
		{Type: "completion", Action: "Stream.create", Case: CaseSuccess, Seq: 2},
		{Type: "invocation", Action: "Member.join", Args: map[string]any{"stream": "town", "as": "bob"}, Seq: 3},
		{Type: "completion", Action: "Member.join", Case: CaseSuccess, Seq: 4},
		{Type: "invocation", Action: "Member.join", Args: map[string]any{"stream": "town", "as": "carol"}, Seq: 5},
		{Type: "completion", Action: "Member.join", Case: "PERMISSION_DENIED", Seq: 6},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "Member.join", Args: map[string]any{"as": "carol"}}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "Member.join"}))

	err := assertTraceContains(trace, Assertion{Action: "Member.join", Args: map[string]any{"as": "dave"}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"Stream.create", "Member.join"}}))
	assert.ErrorContains(t, assertTraceOrder(trace, Assertion{Actions: []string{"Member.join", "Stream.create"}}), "should be before")
	assert.ErrorContains(t, assertTraceOrder(trace, Assertion{Actions: []string{"Stream.create", "Key.solicit"}}), "missing action")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Member.join", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "Key.solicit", Count: 0}))
	assert.ErrorContains(t, assertTraceCount(trace, Assertion{Action: "Member.join", Count: 1}), "2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	state := map[string]map[string]any{
		"town": {
			"members":       []any{"alice", "bob"},
			"miniblock_num": 2,
			"solicitations": map[string]any{"bob": []any{"s1"}},
		},
	}

	assert.NoError(t, assertFinalState(state, Assertion{Stream: "town", Expect: map[string]any{
		"members":       []any{"alice", "bob"},
		"miniblock_num": int64(2),
		"solicitations": map[string]any{"bob": []any{"s1"}},
	}}))
	assert.ErrorContains(t, assertFinalState(state, Assertion{Stream: "town", Expect: map[string]any{"members": []any{"alice"}}}), "town.members")
	assert.ErrorContains(t, assertFinalState(state, Assertion{Stream: "town", Expect: map[string]any{"pins": 0}}), "to exist")
	assert.ErrorContains(t, assertFinalState(state, Assertion{Stream: "hall", Expect: map[string]any{"members": []any{}}}), "never created")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"ints across widths", 3, int64(3), true},
		{"int vs string", 3, "3", false},
		{"nil pair", nil, nil, true},
		{"nil vs value", nil, 1, false},
		{"lists", []any{"a", 1}, []any{"a", int64(1)}, true},
		{"list length", []any{"a"}, []any{"a", "b"}, false},
		{"maps exact", map[string]any{"a": 1}, map[string]any{"a": 1}, true},
		{"maps extra key", map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1}, false},
		{"bools", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Action: "Member.join", Count: 2},
		{Type: AssertTraceCount, Action: "Member.join", Count: 5},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], "unknown assertion type")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertTraceCount, Expected: "1", Actual: "2", Trace: sampleTrace()}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[3] Member.join")
}
