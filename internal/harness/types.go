package harness

// Trace event types.
const (
	EventLoop     = "loop"
	EventBridge   = "bridge"
	EventExit     = "exit"
	EventError    = "error"
	EventRedirect = "redirect"
	EventFree     = "free"
)

// TraceEvent is one entry of a scenario trace. Only the fields relevant to
// Type are set.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Loop is the scenario name of the loop involved.
	Loop string `json:"loop,omitempty"`

	// Guard is the descriptor a bridge was attached to.
	Guard string `json:"guard,omitempty"`

	// Target is the new target of a redirect.
	Target string `json:"target,omitempty"`

	// Inputs and Values are rendered the way expectations are written.
	Inputs []string `json:"inputs,omitempty"`
	Descr  string   `json:"descr,omitempty"`
	Values []string `json:"values,omitempty"`

	// Exception is the class of the exception pending at exit.
	Exception string `json:"exception,omitempty"`

	// Ops is the operation count of a compiled loop or bridge.
	Ops int `json:"ops,omitempty"`

	// Error is the structural or runtime error code of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains every compile, exit and error in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Exits returns the exit events of the trace.
func (r *Result) Exits() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventExit {
			out = append(out, ev)
		}
	}
	return out
}
