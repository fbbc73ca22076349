package guard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
	"github.com/fortressi/onboard/store/memstore"
)

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) FindOne(context.Context, model.Collection, string, string) (model.Document, error) {
	return nil, f.err
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	st, err := memstore.New()
	require.NoError(t, err)

	_, err = st.CreateOne(ctx, &model.Account{Username: "ada1"})
	require.NoError(t, err)
	_, err = st.CreateOne(ctx, &model.Contact{
		AccountID: "a1",
		Phones:    []model.StoredPhone{{Packed: "p", Number: "7012345678"}},
		Emails:    []string{"ada@x.com"},
		NameID:    "ada\x1elovelace",
	})
	require.NoError(t, err)
	_, err = st.CreateOne(ctx, &model.Employee{ContactID: "c1", Signature: "c2ln"})
	require.NoError(t, err)
	_, err = st.CreateOne(ctx, &model.Subject{ContactID: "c2", TaxID: "GB123456"})
	require.NoError(t, err)

	g := New(st)
	checks := []struct {
		name  string
		check func(context.Context, string) (bool, error)
		taken string
		free  string
	}{
		{"username", g.ExistsByUsername, "ada1", "ada2"},
		{"email", g.ExistsByEmail, "ada@x.com", "grace@x.com"},
		{"phone", g.ExistsByPhoneNumber, "7012345678", "7000000000"},
		{"signature", g.ExistsBySignature, "c2ln", "b3RoZXI="},
		{"tax id", g.ExistsByTaxID, "GB123456", "GB999999"},
		{"name", g.NameInUse, "ada\x1elovelace", "grace\x1ehopper"},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			found, err := c.check(ctx, c.taken)
			require.NoError(t, err)
			assert.True(t, found)

			found, err = c.check(ctx, c.free)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestLookupErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	g := New(failingStore{err: boom})

	found, err := g.ExistsByEmail(context.Background(), "ada@x.com")
	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
}
