package verify

import "fmt"

// StepError reports which step of a scenario failed.
type StepError struct {
	Index int // zero-based position in Scenario.Steps
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
