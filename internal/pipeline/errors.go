package pipeline

import "fmt"

// InputError means the manifest or its referenced files cannot support a
// run at all. Nothing was started and nothing needs cleanup.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// StageError wraps a failure with the stage it occurred in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
