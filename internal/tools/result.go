package tools

import "time"

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM   string        `json:"for_llm"`  // content sent to the model
	IsError  bool          `json:"is_error"` // marks a tool failure the model should see
	Duration time.Duration `json:"-"`        // wall clock of the invocation
	Err      error         `json:"-"`        // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
