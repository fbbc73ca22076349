package saga

// Node is a node handed to DagBuilder. Only action nodes exist; the output
// of an action is available to every node that depends on it, directly or
// indirectly, through ActionContext.Lookup under the node's name.
type Node interface {
	nodeName() NodeName
}

type ActionNodeKind[T any, S SagaType[T]] struct {
	NodeName NodeName
	Action   Action[T, S]
	Label    string
}

func (a *ActionNodeKind[T, S]) nodeName() NodeName {
	return a.NodeName
}

// NewActionNode returns a node that runs action under name.
func NewActionNode[T any, S SagaType[T]](name NodeName, label string, action Action[T, S]) *ActionNodeKind[T, S] {
	return &ActionNodeKind[T, S]{NodeName: name, Action: action, Label: label}
}

// InternalNode is a node as stored in the graph.
type InternalNode interface {
	NodeName() *NodeName
	Label() string
}

// StartNode is the single root added by NewSagaDag.
type StartNode struct{}

func (n *StartNode) NodeName() *NodeName { return nil }
func (n *StartNode) Label() string       { return "(start node)" }

// EndNode is the single leaf added by NewSagaDag.
type EndNode struct{}

func (n *EndNode) NodeName() *NodeName { return nil }
func (n *EndNode) Label() string       { return "(end node)" }

type ActionNodeInternal struct {
	Name       NodeName
	LabelValue string
	ActionName ActionName
}

func (n *ActionNodeInternal) NodeName() *NodeName {
	return &n.Name
}

func (n *ActionNodeInternal) Label() string {
	if n.LabelValue == "" {
		return string(n.Name)
	}
	return n.LabelValue
}
