package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/btree"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrNothingToRollback is returned by Rollback when no step has an effect
// left to undo.
var ErrNothingToRollback = errors.New("no completed actions to rollback")

type ActionState int

const (
	ActionStatePending ActionState = iota
	ActionStateRunning
	ActionStateCompleted
	ActionStateFailed
	ActionStateUndoing
	ActionStateUndone
	ActionStateUndoFailed
)

func (s ActionState) String() string {
	switch s {
	case ActionStatePending:
		return "pending"
	case ActionStateRunning:
		return "running"
	case ActionStateCompleted:
		return "completed"
	case ActionStateFailed:
		return "failed"
	case ActionStateUndoing:
		return "undoing"
	case ActionStateUndone:
		return "undone"
	case ActionStateUndoFailed:
		return "undo_failed"
	default:
		return "unknown"
	}
}

// ExecutionNode is the executor's view of one node.
type ExecutionNode struct {
	NodeIndex int64
	NodeName  NodeName
	State     ActionState
	Result    *ActionResult[ActionData]
	Error     error
}

type Option func(*options)

type options struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// WithLogger sets the logger handed to actions and used for journal warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.logger = l
	}
	return o
}

// SagaExecutor runs one saga. Steps run one at a time in topological order,
// ties broken by the order they were appended. When a step fails, the steps
// that completed are undone in reverse order. Compensation is best effort: a
// failed undo is recorded and the remaining undos still run.
//
// An executor is not safe for concurrent use.
type SagaExecutor[T any, S SagaType[T]] struct {
	dag            *SagaDag
	actionRegistry *ActionRegistry[T, S]
	sagaContext    S

	nodes        map[int64]*ExecutionNode
	ancestorTree *btree.Map[NodeName, any]
	completed    []int64
	log          *SagaLog

	store     Store[T]
	sagaID    SagaID
	startedAt time.Time
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewSagaExecutor[T any, S SagaType[T]](
	dag *SagaDag,
	actionRegistry *ActionRegistry[T, S],
	sagaContext S,
	sagaID SagaID,
	store Store[T],
	opts ...Option,
) *SagaExecutor[T, S] {
	o := buildOptions(opts)
	executor := &SagaExecutor[T, S]{
		dag:            dag,
		actionRegistry: actionRegistry,
		sagaContext:    sagaContext,
		sagaID:         sagaID,
		store:          store,
		nodes:          make(map[int64]*ExecutionNode),
		ancestorTree:   btree.NewMap[NodeName, any](10),
		completed:      make([]int64, 0),
		log:            NewEmptySagaLog(sagaID),
		startedAt:      o.now(),
		logger: o.logger.WithFields(logrus.Fields{
			"saga":    dag.SagaName,
			"saga_id": sagaID.String(),
		}),
		now: o.now,
	}
	executor.initializeNodes()
	return executor
}

func (e *SagaExecutor[T, S]) initializeNodes() {
	for nodeIndex, internalNode := range e.dag.Nodes {
		var nodeName NodeName
		if name := internalNode.NodeName(); name != nil {
			nodeName = *name
		}
		e.nodes[nodeIndex] = &ExecutionNode{
			NodeIndex: nodeIndex,
			NodeName:  nodeName,
			State:     ActionStatePending,
		}
	}
}

// SagaID returns the ID of the run.
func (e *SagaExecutor[T, S]) SagaID() SagaID {
	return e.sagaID
}

// Execute runs the saga. On failure it compensates and returns a *StepError.
// Compensation runs even when ctx is canceled.
func (e *SagaExecutor[T, S]) Execute(ctx context.Context) error {
	if err := e.persistState(ctx, SagaStatusRunning); err != nil {
		return fmt.Errorf("failed to save initial state: %w", err)
	}

	executionOrder, err := e.getTopologicalOrder()
	if err != nil {
		return fmt.Errorf("failed to get execution order: %w", err)
	}

	for _, nodeIndex := range executionOrder {
		if err := e.executeNode(ctx, nodeIndex); err != nil {
			return e.unwind(ctx, nodeIndex, err)
		}
		e.persistOrWarn(ctx, SagaStatusRunning)
	}

	e.persistOrWarn(ctx, SagaStatusCompleted)
	return nil
}

func (e *SagaExecutor[T, S]) unwind(ctx context.Context, nodeIndex int64, cause error) error {
	ctx = context.WithoutCancel(ctx)
	stepErr := &StepError{
		SagaID: e.sagaID,
		Node:   e.nodes[nodeIndex].NodeName,
		Err:    cause,
	}
	if an, ok := e.dag.Nodes[nodeIndex].(*ActionNodeInternal); ok {
		stepErr.Action = an.ActionName
	}

	e.logger.WithError(cause).WithField("node", stepErr.Node).Warn("saga step failed, compensating")
	e.persistOrWarn(ctx, SagaStatusRollingBack)

	stepErr.Undone, stepErr.Compensation = e.compensate(ctx)

	status := SagaStatusRolledBack
	if len(stepErr.Compensation) > 0 {
		status = SagaStatusFailed
	}
	e.persistOrWarn(ctx, status)
	e.logger.WithField("log", &SagaLogPretty{Log: e.log}).Debug("saga unwound")
	return stepErr
}

func (e *SagaExecutor[T, S]) executeNode(ctx context.Context, nodeIndex int64) error {
	execNode := e.nodes[nodeIndex]
	actionNode, ok := e.dag.Nodes[nodeIndex].(*ActionNodeInternal)
	if !ok {
		execNode.State = ActionStateCompleted
		return nil
	}
	execNode.State = ActionStateRunning

	startTime := e.now()
	var result ActionResult[ActionData]
	err := ctx.Err()
	if err == nil {
		var action Action[T, S]
		action, err = e.actionRegistry.Get(actionNode.ActionName)
		if err == nil {
			e.record(nodeIndex, EventStarted)
			result, err = action.DoIt(ctx, e.actionContext(nodeIndex))
		}
	}
	endTime := e.now()
	result.StartTime = startTime
	result.EndTime = endTime

	finalStatus := ActionStateCompleted
	if err != nil {
		finalStatus = ActionStateFailed
		execNode.Error = err
		if e.log.Status(SagaNodeID(nodeIndex)) == LoadStarted {
			e.record(nodeIndex, EventFailed)
		}
	} else {
		execNode.Result = &result
		e.ancestorTree.Set(execNode.NodeName, result.Output)
		e.completed = append(e.completed, nodeIndex)
		e.record(nodeIndex, EventSucceeded)
		for _, w := range result.Warnings {
			e.logger.WithField("node", execNode.NodeName).Warn(w)
		}
	}
	execNode.State = finalStatus
	return err
}

// compensate undoes every completed node, most recent first. Nodes whose undo
// succeeded leave the completed list; the rest stay so a later Rollback can
// retry them.
func (e *SagaExecutor[T, S]) compensate(ctx context.Context) ([]NodeName, []*CompensationError) {
	var (
		undone    []NodeName
		errs      []*CompensationError
		remaining []int64
	)
	for i := len(e.completed) - 1; i >= 0; i-- {
		nodeIndex := e.completed[i]
		name := e.nodes[nodeIndex].NodeName
		if err := e.undoNode(ctx, nodeIndex); err != nil {
			e.logger.WithError(err).WithField("node", name).Error("undo failed")
			errs = append(errs, &CompensationError{Node: name, Err: err})
			remaining = append(remaining, nodeIndex)
			continue
		}
		undone = append(undone, name)
		e.ancestorTree.Delete(name)
	}

	for i, j := 0, len(remaining)-1; i < j; i, j = i+1, j-1 {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	}
	e.completed = remaining
	return undone, errs
}

func (e *SagaExecutor[T, S]) undoNode(ctx context.Context, nodeIndex int64) error {
	execNode := e.nodes[nodeIndex]
	actionNode, ok := e.dag.Nodes[nodeIndex].(*ActionNodeInternal)
	if !ok {
		execNode.State = ActionStateUndone
		return nil
	}

	action, err := e.actionRegistry.Get(actionNode.ActionName)
	if err != nil {
		execNode.State = ActionStateUndoFailed
		return fmt.Errorf("action not found during undo: %w", err)
	}

	execNode.State = ActionStateUndoing
	e.record(nodeIndex, EventUndoStarted)
	if err := action.UndoIt(ctx, e.actionContext(nodeIndex)); err != nil {
		execNode.State = ActionStateUndoFailed
		e.record(nodeIndex, EventUndoFailed)
		return err
	}

	execNode.State = ActionStateUndone
	e.record(nodeIndex, EventUndoFinished)
	return nil
}

func (e *SagaExecutor[T, S]) actionContext(nodeIndex int64) ActionContext[T, S] {
	name := e.nodes[nodeIndex].NodeName
	return ActionContext[T, S]{
		AncestorTree: e.ancestorTree,
		NodeID:       nodeIndex,
		NodeName:     name,
		DAG:          e.dag,
		SagaID:       e.sagaID,
		UserContext:  e.sagaContext.ExecContext(),
		Logger:       e.logger.WithField("node", name),
	}
}

func (e *SagaExecutor[T, S]) record(nodeIndex int64, eventType SagaNodeEventType) {
	err := e.log.Record(&SagaNodeEvent{
		SagaID:    e.sagaID,
		NodeID:    SagaNodeID(nodeIndex),
		EventType: eventType,
		At:        e.now(),
	})
	if err != nil {
		e.logger.WithError(err).Warn("saga log rejected event")
	}
}

func (e *SagaExecutor[T, S]) getTopologicalOrder() ([]int64, error) {
	sorted, err := topo.SortStabilized(e.dag.Graph, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].ID() < nodes[j].ID()
		})
	})
	if err != nil {
		return nil, fmt.Errorf("topological sort failed (cycle detected?): %w", err)
	}

	order := make([]int64, len(sorted))
	for i, node := range sorted {
		order[i] = node.ID()
	}
	return order, nil
}

// GetCompletedNodes returns the nodes whose effects are still in place.
func (e *SagaExecutor[T, S]) GetCompletedNodes() []int64 {
	return append([]int64(nil), e.completed...)
}

// Output returns the output of a completed node.
func (e *SagaExecutor[T, S]) Output(name NodeName) (any, bool) {
	return e.ancestorTree.Get(name)
}

func (e *SagaExecutor[T, S]) Log() *SagaLog {
	return e.log
}

// Rollback undoes every completed node, most recent first, with the same
// best-effort rules as Execute. It is used to deprovision a finished saga or
// to retry undos that failed before.
func (e *SagaExecutor[T, S]) Rollback(ctx context.Context) error {
	if len(e.completed) == 0 {
		return ErrNothingToRollback
	}
	ctx = context.WithoutCancel(ctx)

	e.persistOrWarn(ctx, SagaStatusRollingBack)
	_, errs := e.compensate(ctx)

	finalStatus := SagaStatusRolledBack
	if len(errs) > 0 {
		finalStatus = SagaStatusFailed
	}
	e.persistOrWarn(ctx, finalStatus)
	e.logger.WithField("log", &SagaLogPretty{Log: e.log}).Debug("saga rolled back")

	return joinCompensation(errs)
}

func (e *SagaExecutor[T, S]) persistOrWarn(ctx context.Context, status string) {
	if err := e.persistState(ctx, status); err != nil {
		e.logger.WithError(err).WithField("status", status).Warn("failed to persist saga state")
	}
}

func (e *SagaExecutor[T, S]) persistState(ctx context.Context, status string) error {
	completedActions := make([]CompletedAction, 0, len(e.completed))
	for _, nodeID := range e.completed {
		node := e.nodes[nodeID]
		if node == nil || node.NodeName == "" {
			continue
		}

		var output json.RawMessage
		if val, ok := e.ancestorTree.Get(node.NodeName); ok && val != nil {
			data, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("failed to marshal action output for %s: %w", node.NodeName, err)
			}
			output = data
		}

		ca := CompletedAction{Name: string(node.NodeName), Output: output}
		if node.Result != nil {
			ca.StartTime = node.Result.StartTime
			ca.EndTime = node.Result.EndTime
			ca.Warnings = node.Result.Warnings
		}
		completedActions = append(completedActions, ca)
	}

	state := State[T]{
		SagaID:           e.sagaID.String(),
		SagaName:         string(e.dag.SagaName),
		Status:           status,
		Context:          e.sagaContext.ExecContext(),
		CompletedActions: completedActions,
		Events:           e.log.Events(),
		CreatedAt:        e.startedAt,
		UpdatedAt:        e.now(),
	}
	return e.store.Save(ctx, e.sagaID.String(), state)
}

// NewExecutorFromState restores an executor from a journal entry so that its
// completed actions can be rolled back.
func NewExecutorFromState[T any, S SagaType[T]](
	dag *SagaDag,
	registry *ActionRegistry[T, S],
	sagaContext S,
	state *State[T],
	store Store[T],
	opts ...Option,
) (*SagaExecutor[T, S], error) {
	sagaID, err := ParseSagaID(state.SagaID)
	if err != nil {
		return nil, err
	}
	if state.SagaName != string(dag.SagaName) {
		return nil, fmt.Errorf("journal entry is for saga %q, not %q", state.SagaName, dag.SagaName)
	}

	executor := NewSagaExecutor(dag, registry, sagaContext, sagaID, store, opts...)
	executor.startedAt = state.CreatedAt

	if len(state.Events) > 0 {
		log, err := NewSagaLogRecover(sagaID, state.Events)
		if err != nil {
			return nil, err
		}
		executor.log = log
	}

	for _, completedAction := range state.CompletedActions {
		nodeID, err := dag.GetNodeIndex(completedAction.Name)
		if err != nil {
			executor.logger.WithField("node", completedAction.Name).Warn("completed action not found in DAG")
			continue
		}

		executor.completed = append(executor.completed, nodeID)
		if node, ok := executor.nodes[nodeID]; ok {
			node.State = ActionStateCompleted
		}
		if executor.log.Status(SagaNodeID(nodeID)) == LoadNeverStarted {
			executor.record(nodeID, EventStarted)
			executor.record(nodeID, EventSucceeded)
		}
		// Kept raw so LookupTyped can decode it into the action's own type.
		if completedAction.Output != nil {
			executor.ancestorTree.Set(NodeName(completedAction.Name), completedAction.Output)
		}
	}

	return executor, nil
}
