package saga

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// ActionRegistry maps action names to actions for every saga built from it.
//
// A saga restored from its journal only knows the names of its actions, so
// the concrete Action is recovered from here. Registering the same name twice
// is an error.
type ActionRegistry[T any, S SagaType[T]] struct {
	actions *xsync.MapOf[ActionName, Action[T, S]]
}

func NewActionRegistry[T any, S SagaType[T]]() *ActionRegistry[T, S] {
	return &ActionRegistry[T, S]{
		actions: xsync.NewMapOf[ActionName, Action[T, S]](),
	}
}

func (r *ActionRegistry[T, S]) Register(action Action[T, S]) error {
	if _, loaded := r.actions.LoadOrStore(action.Name(), action); loaded {
		return fmt.Errorf("action with name '%s' already registered", action.Name())
	}
	return nil
}

func (r *ActionRegistry[T, S]) Get(name ActionName) (Action[T, S], error) {
	action, ok := r.actions.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return action, nil
}

// Len returns the number of registered actions.
func (r *ActionRegistry[T, S]) Len() int {
	return r.actions.Size()
}
