package saga

import (
	"errors"
	"fmt"
	"strings"
)

// ErrActionNotFound is returned by ActionRegistry.Get for unknown names.
var ErrActionNotFound = errors.New("action not found")

// ErrSerialize marks an action whose output cannot be journaled.
var ErrSerialize = errors.New("action output is not serializable")

// CompensationError records one undo that failed while unwinding.
type CompensationError struct {
	Node NodeName
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("undo %s: %v", e.Node, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// StepError is returned by SagaExecutor.Execute when a step fails. Err is the
// step's own error; undo failures are kept apart in Compensation and never
// replace it.
type StepError struct {
	SagaID       SagaID
	Node         NodeName
	Action       ActionName
	Err          error
	Undone       []NodeName
	Compensation []*CompensationError
}

func (e *StepError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "saga %s: step %s failed: %v", e.SagaID, e.Node, e.Err)
	if n := len(e.Compensation); n > 0 {
		fmt.Fprintf(&sb, " (%d undo failures)", n)
	}
	return sb.String()
}

func (e *StepError) Unwrap() error { return e.Err }

func joinCompensation(errs []*CompensationError) error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}
