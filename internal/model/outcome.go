package model

// OutcomeState describes how an optional stage ended.
type OutcomeState string

const (
	OutcomeCompleted OutcomeState = "completed"
	OutcomeSkipped   OutcomeState = "skipped"
	OutcomeFailed    OutcomeState = "failed"
)

// Outcome wraps an optional stage result so a policy skip, a failure and a
// completed-but-empty result stay distinguishable.
type Outcome[T any] struct {
	State    OutcomeState `json:"state" yaml:"state"`
	Value    *T           `json:"value,omitempty" yaml:"value,omitempty"`
	Reason   string       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error    string       `json:"error,omitempty" yaml:"error,omitempty"`
	Attempts int          `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// Completed wraps a stage value.
func Completed[T any](v T, attempts int) Outcome[T] {
	return Outcome[T]{State: OutcomeCompleted, Value: &v, Attempts: attempts}
}

// Skipped records a policy skip; the stage was never invoked.
func Skipped[T any](reason string) Outcome[T] {
	return Outcome[T]{State: OutcomeSkipped, Reason: reason}
}

// Failed records a stage that ran and errored after its retry budget.
func Failed[T any](err error, attempts int) Outcome[T] {
	o := Outcome[T]{State: OutcomeFailed, Attempts: attempts}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Available reports whether a value is present.
func (o Outcome[T]) Available() bool {
	return o.State == OutcomeCompleted && o.Value != nil
}

// Get returns the value or nil.
func (o Outcome[T]) Get() *T {
	if !o.Available() {
		return nil
	}
	return o.Value
}
