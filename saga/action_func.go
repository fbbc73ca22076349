package saga

import (
	"context"
	"encoding/json"
	"fmt"
)

type DoItFunc[T any, S SagaType[T], R ActionData] func(ctx context.Context, sgctx ActionContext[T, S]) (ActionResult[R], error)

type UndoItFunc[T any, S SagaType[T]] func(ctx context.Context, sgctx ActionContext[T, S]) error

// ActionFunc adapts a typed do function and its undo to Action. R is the
// step's output type; dependants read it back with LookupTyped.
type ActionFunc[T any, S SagaType[T], R ActionData] struct {
	name ActionName
	do   DoItFunc[T, S, R]
	undo UndoItFunc[T, S]
}

func NewActionFunc[T any, S SagaType[T], R ActionData](name ActionName, do DoItFunc[T, S, R], undo UndoItFunc[T, S]) *ActionFunc[T, S, R] {
	if undo == nil {
		undo = NoOpUndo[T, S]
	}
	return &ActionFunc[T, S, R]{name: name, do: do, undo: undo}
}

// NoOpUndo is the undo of a step without side effects.
func NoOpUndo[T any, S SagaType[T]](context.Context, ActionContext[T, S]) error {
	return nil
}

// DoIt runs the do function. An output that cannot be encoded fails the step
// here, before it is journaled.
func (af *ActionFunc[T, S, R]) DoIt(ctx context.Context, sgctx ActionContext[T, S]) (ActionResult[ActionData], error) {
	result, err := af.do(ctx, sgctx)
	if err != nil {
		return ActionResult[ActionData]{}, err
	}
	if _, err := json.Marshal(result.Output); err != nil {
		return ActionResult[ActionData]{}, fmt.Errorf("%s: %w: %v", af.name, ErrSerialize, err)
	}
	return ActionResult[ActionData]{Output: result.Output, Warnings: result.Warnings}, nil
}

func (af *ActionFunc[T, S, R]) UndoIt(ctx context.Context, sgctx ActionContext[T, S]) error {
	return af.undo(ctx, sgctx)
}

func (af *ActionFunc[T, S, R]) Name() ActionName { return af.name }

func (af *ActionFunc[T, S, R]) String() string {
	return fmt.Sprintf("ActionFunc[%s]", af.name)
}
