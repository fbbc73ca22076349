package saga

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph/encoding"

	"github.com/fortressi/onboard/dag"
)

// SagaID identifies one saga run.
type SagaID struct {
	UUID uuid.UUID
}

func NewSagaID() SagaID {
	return SagaID{UUID: uuid.New()}
}

func ParseSagaID(s string) (SagaID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SagaID{}, fmt.Errorf("parse saga id: %w", err)
	}
	return SagaID{UUID: id}, nil
}

func (s SagaID) String() string {
	return s.UUID.String()
}

// SagaName is a human-readable name for a kind of saga.
type SagaName string

func (s SagaName) String() string {
	return string(s)
}

// NodeName is the unique name of a node within one saga.
type NodeName string

type NodeIndex int64

// Dag is the user-built part of a saga graph, before start and end nodes are
// added by NewSagaDag.
type Dag struct {
	*dag.Graph
	SagaName   SagaName
	nodes      map[int64]InternalNode
	firstNodes []int64
	lastNodes  []int64
}

func NewDag(sagaName SagaName) *Dag {
	return &Dag{
		Graph:    dag.New(string(sagaName)),
		SagaName: sagaName,
		nodes:    make(map[int64]InternalNode),
	}
}

// AddNode adds node to the graph and labels it for DOT output.
func (d *Dag) AddNode(node InternalNode) NodeIndex {
	gonumNode := d.NewNode()
	if name := node.NodeName(); name != nil {
		_ = gonumNode.SetAttribute(encoding.Attribute{Key: "nodeName", Value: string(*name)})
	}
	_ = gonumNode.SetAttribute(encoding.Attribute{Key: "label", Value: node.Label()})

	d.Graph.AddNode(gonumNode)
	d.nodes[gonumNode.ID()] = node
	return NodeIndex(gonumNode.ID())
}

// AddEdge records that to depends on from.
func (d *Dag) AddEdge(from, to NodeIndex) error {
	fromNode := d.Node(int64(from))
	if fromNode == nil {
		return fmt.Errorf("node %d does not exist", from)
	}
	toNode := d.Node(int64(to))
	if toNode == nil {
		return fmt.Errorf("node %d does not exist", to)
	}
	d.SetEdge(d.NewEdge(fromNode, toNode))
	return nil
}

func (d *Dag) GetNode(id int64) (InternalNode, error) {
	node, exists := d.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node not found: %d", id)
	}
	return node, nil
}

func toInt64s(in []NodeIndex) []int64 {
	out := make([]int64, len(in))
	for i := range in {
		out[i] = int64(in[i])
	}
	return out
}

func (s SagaID) MarshalText() ([]byte, error) {
	return s.UUID.MarshalText()
}

func (s *SagaID) UnmarshalText(data []byte) error {
	return s.UUID.UnmarshalText(data)
}
