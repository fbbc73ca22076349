package saga

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/encoding"

	"github.com/fortressi/onboard/dag"
)

// SagaDag is an executable saga graph: a built Dag framed by one start and
// one end node. It is read-only once created and may be shared by any number
// of concurrent executors.
type SagaDag struct {
	Graph     *dag.Graph
	SagaName  SagaName
	StartNode int64
	EndNode   int64
	Nodes     map[int64]InternalNode
	byName    map[NodeName]int64
}

// NewSagaDag takes ownership of d and frames it with start and end nodes.
func NewSagaDag(d *Dag) *SagaDag {
	sd := &SagaDag{
		SagaName: d.SagaName,
		Graph:    d.Graph,
		Nodes:    d.nodes,
		byName:   make(map[NodeName]int64, len(d.nodes)),
	}

	sd.StartNode = sd.addFrameNode(&StartNode{})
	sd.EndNode = sd.addFrameNode(&EndNode{})

	for _, first := range d.firstNodes {
		sd.Graph.SetEdge(sd.Graph.NewEdge(sd.Graph.Node(sd.StartNode), sd.Graph.Node(first)))
	}
	for _, last := range d.lastNodes {
		sd.Graph.SetEdge(sd.Graph.NewEdge(sd.Graph.Node(last), sd.Graph.Node(sd.EndNode)))
	}

	for id, node := range sd.Nodes {
		if name := node.NodeName(); name != nil {
			sd.byName[*name] = id
		}
	}
	return sd
}

func (s *SagaDag) addFrameNode(node InternalNode) int64 {
	n := s.Graph.NewNode()
	_ = n.SetAttribute(encoding.Attribute{Key: "label", Value: node.Label()})
	_ = n.SetAttribute(encoding.Attribute{Key: "shape", Value: "ellipse"})
	s.Graph.AddNode(n)
	s.Nodes[n.ID()] = node
	return n.ID()
}

func (s *SagaDag) GetNode(nodeID int64) (InternalNode, error) {
	node, exists := s.Nodes[nodeID]
	if !exists {
		return nil, fmt.Errorf("node not found: %d", nodeID)
	}
	return node, nil
}

// GetNodeIndex returns the index of the node called name.
func (s *SagaDag) GetNodeIndex(name string) (int64, error) {
	id, ok := s.byName[NodeName(name)]
	if !ok {
		return 0, fmt.Errorf("saga has no node named %q", name)
	}
	return id, nil
}

// ActionNodes returns the action nodes ordered by index, which is the order
// they were appended in.
func (s *SagaDag) ActionNodes() []*ActionNodeInternal {
	ids := make([]int64, 0, len(s.Nodes))
	for id, node := range s.Nodes {
		if _, ok := node.(*ActionNodeInternal); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*ActionNodeInternal, len(ids))
	for i, id := range ids {
		out[i] = s.Nodes[id].(*ActionNodeInternal)
	}
	return out
}

// ExportToDot renders the saga graph in Graphviz DOT format.
func (s *SagaDag) ExportToDot() (string, error) {
	return s.Graph.ExportToDot()
}

// Levels groups the action nodes by dependency depth. Nodes in one level do
// not depend on each other.
func (s *SagaDag) Levels() ([][]NodeName, error) {
	remaining := make(map[int64]int)
	nodes := s.Graph.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		remaining[id] = s.Graph.To(id).Len()
	}

	var levels [][]NodeName
	for len(remaining) > 0 {
		var ready []int64
		for id, deps := range remaining {
			if deps == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("circular dependency detected or unable to make progress")
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

		var level []NodeName
		for _, id := range ready {
			delete(remaining, id)
			succ := s.Graph.From(id)
			for succ.Next() {
				remaining[succ.Node().ID()]--
			}
			if name := s.Nodes[id].NodeName(); name != nil {
				level = append(level, *name)
			}
		}
		if len(level) > 0 {
			levels = append(levels, level)
		}
	}
	return levels, nil
}
