package saga

import (
	"errors"
	"fmt"

	"github.com/fortressi/onboard/set"
)

// DagBuilder builds a saga graph stage by stage. Each call to Append or
// AppendParallel adds a stage that depends on every node of the stage before.
type DagBuilder[T any, S SagaType[T]] struct {
	sagaName   SagaName
	dag        *Dag
	firstAdded []NodeIndex
	lastAdded  []NodeIndex
	nodeNames  *set.Set[NodeName]
	registry   *ActionRegistry[T, S]
}

// NewDagBuilder returns a builder that registers the actions it is given in
// registry.
func NewDagBuilder[T any, S SagaType[T]](sagaName SagaName, registry *ActionRegistry[T, S]) *DagBuilder[T, S] {
	return &DagBuilder[T, S]{
		sagaName:  sagaName,
		dag:       NewDag(sagaName),
		nodeNames: &set.Set[NodeName]{},
		registry:  registry,
	}
}

// Append adds a stage of one node.
func (b *DagBuilder[T, S]) Append(node Node) error {
	return b.appendStage([]Node{node})
}

// AppendParallel adds a stage of nodes that do not depend on each other.
func (b *DagBuilder[T, S]) AppendParallel(nodes ...Node) error {
	return b.appendStage(nodes)
}

func (b *DagBuilder[T, S]) appendStage(userNodes []Node) error {
	// An empty stage would split the graph into two components.
	if len(userNodes) == 0 {
		return fmt.Errorf("empty stage")
	}

	newNodes := make([]NodeIndex, 0, len(userNodes))
	for _, userNode := range userNodes {
		if !b.nodeNames.Insert(userNode.nodeName()) {
			return fmt.Errorf("node with name '%s' already exists", userNode.nodeName())
		}

		n, ok := userNode.(*ActionNodeKind[T, S])
		if !ok {
			return fmt.Errorf("node %s has unsupported type %T", userNode.nodeName(), userNode)
		}

		actionName := n.Action.Name()
		if _, err := b.registry.Get(actionName); err != nil {
			if regErr := b.registry.Register(n.Action); regErr != nil {
				return fmt.Errorf("failed to register action %s: %w", actionName, regErr)
			}
		}

		id := b.dag.AddNode(&ActionNodeInternal{
			Name:       n.NodeName,
			LabelValue: n.Label,
			ActionName: actionName,
		})
		if err := b.dependsOnLast(id); err != nil {
			return err
		}
		newNodes = append(newNodes, id)
	}

	if len(b.firstAdded) == 0 {
		b.firstAdded = newNodes
	}
	b.lastAdded = newNodes
	return nil
}

func (b *DagBuilder[T, S]) dependsOnLast(id NodeIndex) error {
	for _, node := range b.lastAdded {
		if err := b.dag.AddEdge(node, id); err != nil {
			return fmt.Errorf("dependsOnLast: %w", err)
		}
	}
	return nil
}

// Build returns the graph. It must have at least one node and end with a
// stage of exactly one node.
func (b *DagBuilder[T, S]) Build() (*Dag, error) {
	if len(b.firstAdded) == 0 {
		return nil, errors.New("DAG has no root nodes")
	}
	if len(b.lastAdded) != 1 {
		return nil, errors.New("DAG must end with exactly one leaf node")
	}

	return &Dag{
		Graph:      b.dag.Graph,
		SagaName:   b.sagaName,
		nodes:      b.dag.nodes,
		firstNodes: toInt64s(b.firstAdded),
		lastNodes:  toInt64s(b.lastAdded),
	}, nil
}
