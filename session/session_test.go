package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
	"github.com/fortressi/onboard/store/memstore"
)

type plainStore struct{ store.Store }

func TestHandleLifecycle(t *testing.T) {
	ctx := context.Background()
	st, err := memstore.New()
	require.NoError(t, err)
	h := New(st)

	assert.False(t, h.Is())
	_, err = h.Start(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, h.Init(ctx))
	require.NoError(t, h.Init(ctx), "init is idempotent")
	assert.True(t, h.Is())

	tx, err := h.Start(ctx)
	require.NoError(t, err)
	assert.Same(t, tx, h.Tx())
	_, err = h.Start(ctx)
	assert.ErrorIs(t, err, ErrTxActive)

	id, err := tx.CreateOne(ctx, &model.Account{Username: "ada1"})
	require.NoError(t, err)
	require.NoError(t, h.Commit(ctx))
	assert.Nil(t, h.Tx())
	assert.ErrorIs(t, h.Commit(ctx), ErrNoTx)

	_, err = st.FindOne(ctx, model.Accounts, model.FieldID, id)
	require.NoError(t, err)

	require.NoError(t, h.End(ctx))
	assert.False(t, h.Is())
	require.NoError(t, h.End(ctx))
}

func TestEndAbortsOpenTransaction(t *testing.T) {
	ctx := context.Background()
	st, err := memstore.New()
	require.NoError(t, err)
	h := New(st)

	require.NoError(t, h.Init(ctx))
	tx, err := h.Start(ctx)
	require.NoError(t, err)
	id, err := tx.CreateOne(ctx, &model.Account{Username: "ada1"})
	require.NoError(t, err)

	require.NoError(t, h.End(ctx))
	assert.False(t, h.Is())
	assert.Nil(t, h.Tx())

	_, err = st.FindOne(ctx, model.Accounts, model.FieldID, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAbortWithoutTransaction(t *testing.T) {
	st, err := memstore.New()
	require.NoError(t, err)
	assert.ErrorIs(t, New(st).Abort(context.Background()), ErrNoTx)
}

func TestUnsupportedStore(t *testing.T) {
	st, err := memstore.New()
	require.NoError(t, err)
	h := New(plainStore{st})

	assert.ErrorIs(t, h.Init(context.Background()), ErrUnsupported)
	assert.False(t, h.Is())
}
