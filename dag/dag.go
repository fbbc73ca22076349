// Package dag is a gonum directed graph whose nodes and edges carry DOT
// attributes, so a saga plan can be rendered with Graphviz.
package dag

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

type Graph struct {
	*simple.DirectedGraph
	name      string
	graphAttr encoding.Attributes
	nodeAttr  encoding.Attributes
	edgeAttr  encoding.Attributes
}

func New(name string) *Graph {
	g := &Graph{DirectedGraph: simple.NewDirectedGraph(), name: name}
	_ = g.graphAttr.SetAttribute(encoding.Attribute{Key: "rankdir", Value: "TB"})
	_ = g.nodeAttr.SetAttribute(encoding.Attribute{Key: "shape", Value: "box"})
	return g
}

func (g *Graph) Name() string { return g.name }

// NewNode returns a node with an unused ID. It is not added to the graph.
func (g *Graph) NewNode() *Node {
	return &Node{Node: g.DirectedGraph.NewNode()}
}

// NewEdge returns an attributed edge between from and to. It is not added to
// the graph.
func (g *Graph) NewEdge(from, to graph.Node) *Edge {
	return &Edge{Edge: g.DirectedGraph.NewEdge(from, to)}
}

// DOTAttributers implements dot.Attributers.
func (g *Graph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return &g.graphAttr, &g.nodeAttr, &g.edgeAttr
}

// ExportToDot renders the graph in Graphviz DOT format.
func (g *Graph) ExportToDot() (string, error) {
	data, err := dot.Marshal(g, g.name, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export %s to DOT: %w", g.name, err)
	}
	return string(data), nil
}

type Node struct {
	graph.Node
	attrs encoding.Attributes
}

func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

// Attribute returns the value of key, or "" when unset.
func (n *Node) Attribute(key string) string {
	for _, a := range n.attrs.Attributes() {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

type Edge struct {
	graph.Edge
	attrs encoding.Attributes
}

func (e *Edge) Attributes() []encoding.Attribute {
	return e.attrs.Attributes()
}

func (e *Edge) SetAttribute(attr encoding.Attribute) error {
	return e.attrs.SetAttribute(attr)
}
