package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRejectsDuplicateNodeNames(t *testing.T) {
	registry := NewActionRegistry[*ledgerState, *ledgerSaga]()
	builder := NewDagBuilder[*ledgerState, *ledgerSaga]("dup", registry)

	require.NoError(t, builder.Append(NewActionNode[*ledgerState, *ledgerSaga]("a", "", step("a", nil, nil))))
	err := builder.Append(NewActionNode[*ledgerState, *ledgerSaga]("a", "", step("other", nil, nil)))
	assert.ErrorContains(t, err, "already exists")
}

func TestBuilderRejectsEmptyStage(t *testing.T) {
	builder := NewDagBuilder[*ledgerState, *ledgerSaga]("empty", NewActionRegistry[*ledgerState, *ledgerSaga]())
	assert.Error(t, builder.AppendParallel())
}

func TestBuildRequiresSingleLeaf(t *testing.T) {
	builder := NewDagBuilder[*ledgerState, *ledgerSaga]("leaf", NewActionRegistry[*ledgerState, *ledgerSaga]())
	_, err := builder.Build()
	assert.ErrorContains(t, err, "no root nodes")

	require.NoError(t, builder.AppendParallel(
		NewActionNode[*ledgerState, *ledgerSaga]("a", "", step("a", nil, nil)),
		NewActionNode[*ledgerState, *ledgerSaga]("b", "", step("b", nil, nil)),
	))
	_, err = builder.Build()
	assert.ErrorContains(t, err, "exactly one leaf")
}

func TestBuilderRegistersActionsOnce(t *testing.T) {
	registry := NewActionRegistry[*ledgerState, *ledgerSaga]()
	shared := step("shared", nil, nil)
	builder := NewDagBuilder[*ledgerState, *ledgerSaga]("reuse", registry)

	require.NoError(t, builder.Append(NewActionNode[*ledgerState, *ledgerSaga]("first", "", shared)))
	require.NoError(t, builder.Append(NewActionNode[*ledgerState, *ledgerSaga]("second", "", shared)))
	assert.Equal(t, 1, registry.Len())

	_, err := registry.Get("missing")
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.Error(t, registry.Register(shared))
}

func TestSagaDagExportAndLookup(t *testing.T) {
	d, _ := buildChain(t, step("a", nil, nil), step("b", nil, nil))

	id, err := d.GetNodeIndex("b")
	require.NoError(t, err)
	node, err := d.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, "b", node.Label())

	_, err = d.GetNodeIndex("nope")
	assert.Error(t, err)

	names := make([]NodeName, 0)
	for _, n := range d.ActionNodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []NodeName{"a", "b"}, names)

	out, err := d.ExportToDot()
	require.NoError(t, err)
	assert.Contains(t, out, "digraph chain")
	assert.Contains(t, out, "(start node)")
	assert.Regexp(t, `label="?b"?`, out)
}

func TestSharedSagaDagAcrossExecutors(t *testing.T) {
	d, registry := buildChain(t, step("a", nil, nil), step("b", nil, nil))
	for range 3 {
		state := &ledgerState{}
		exec := NewSagaExecutor(d, registry, &ledgerSaga{state}, NewSagaID(), NewMemoryStore[*ledgerState]())
		require.NoError(t, exec.Execute(context.Background()))
		assert.Equal(t, []string{"a", "b"}, state.Applied)
	}
}
