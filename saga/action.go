package saga

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"
)

// SagaType gives actions access to the state shared by one saga run.
type SagaType[T any] interface {
	ExecContext() T
}

// ActionData is the output of an action. It must marshal to JSON so that it
// can be journaled and restored for rollback.
type ActionData any

// ActionName is the unique name an action is registered under.
type ActionName string

// Action is one step of a saga with its compensating undo.
type Action[T any, S SagaType[T]] interface {
	DoIt(ctx context.Context, sgctx ActionContext[T, S]) (ActionResult[ActionData], error)
	UndoIt(ctx context.Context, sgctx ActionContext[T, S]) error
	Name() ActionName
}

// ActionContext is what the executor hands to DoIt and UndoIt.
type ActionContext[T any, S SagaType[T]] struct {
	AncestorTree *btree.Map[NodeName, any]
	NodeID       int64
	NodeName     NodeName
	DAG          *SagaDag
	SagaID       SagaID
	UserContext  T
	Logger       logrus.FieldLogger
}

// Lookup returns the output recorded for an earlier node. During undo the
// node's own output is available too.
func (ac *ActionContext[T, S]) Lookup(nodeName NodeName) (any, bool) {
	if ac.AncestorTree == nil {
		return nil, false
	}
	return ac.AncestorTree.Get(nodeName)
}

// LookupTyped is Lookup with a type assertion. Outputs restored from a
// journal are held as json.RawMessage and are decoded into R.
func LookupTyped[R any, T any, S SagaType[T]](ac ActionContext[T, S], nodeName NodeName) (R, bool) {
	var zero R
	value, found := ac.Lookup(nodeName)
	if !found {
		return zero, false
	}

	if typed, ok := value.(R); ok {
		return typed, true
	}

	if raw, ok := value.(json.RawMessage); ok {
		var result R
		if err := json.Unmarshal(raw, &result); err == nil {
			return result, true
		}
	}

	return zero, false
}

// ActionResult is what an action produced. The executor sets the timing.
type ActionResult[T any] struct {
	Output    T
	Warnings  []string
	StartTime time.Time
	EndTime   time.Time
}

// Duration is how long DoIt ran.
func (r ActionResult[T]) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Result wraps output in an ActionResult.
func Result[T any](output T) ActionResult[T] {
	return ActionResult[T]{Output: output}
}
