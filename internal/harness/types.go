package harness

// TraceEvent is one invocation or completion of a scenario action.
type TraceEvent struct {
	Type   string         `json:"type"` // "invocation" or "completion"
	Action string         `json:"action,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Case   string         `json:"case,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Seq    int64          `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations and completions in order, setup included.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// State maps stream names to their folded state.
	State map[string]map[string]any `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]map[string]any),
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace appends an invocation.
func (r *Result) AddInvocationTrace(action string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Type: "invocation", Action: action, Args: args, Seq: seq})
}

// AddCompletionTrace appends a completion.
func (r *Result) AddCompletionTrace(action, outputCase string, result map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Type: "completion", Action: action, Case: outputCase, Result: result, Seq: seq})
}
