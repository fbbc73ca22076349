package onboarding

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fortressi/onboard/credential"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
	"github.com/fortressi/onboard/store/memstore"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func sharedKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func clock() time.Time { return t0 }

func newManager(t *testing.T) *credential.Manager {
	t.Helper()
	m, err := credential.NewManager(sharedKey(t), credential.WithClock(clock))
	require.NoError(t, err)
	return m
}

func newMem(t *testing.T) *memstore.Store {
	t.Helper()
	st, err := memstore.New(memstore.WithClock(clock))
	require.NoError(t, err)
	return st
}

func newOrchestrator(t *testing.T, st store.Store, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(st, newManager(t), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return o
}

func ada() model.EmployeeInput {
	return model.EmployeeInput{
		Contact: model.ContactInput{
			Name:      &model.PersonName{First: "Ada", Surname: "Lovelace"},
			Addresses: []model.Address{{Street: "12 St James's Square", City: "London", CountryCode: "GB", Comment: "ring twice"}},
			Phones:    []model.Phone{{Number: "7012345678"}},
			Emails:    []model.Email{{Address: "ada@x.com"}},
		},
		Account:     model.AccountInput{Username: "ada1", Password: "analytical-engine"},
		DateOfBirth: time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Gender:      model.GenderFemale,
	}
}

func grace() model.EmployeeInput {
	in := ada()
	in.Contact.Name = &model.PersonName{First: "Grace", Surname: "Hopper"}
	in.Contact.Phones = []model.Phone{{Number: "7099999999", Type: model.PhoneWork}}
	in.Contact.Emails = []model.Email{{Address: "grace@x.com"}}
	in.Account.Username = "grace1"
	return in
}

func counts(t *testing.T, st *memstore.Store) map[model.Collection]int {
	t.Helper()
	out := make(map[model.Collection]int)
	for _, c := range model.Collections() {
		n, err := st.Len(c)
		require.NoError(t, err)
		out[c] = n
	}
	return out
}

// faultyStore injects errors per collection into an underlying store.
type faultyStore struct {
	store.Store
	mu         sync.Mutex
	failCreate map[model.Collection]error
	failFind   map[model.Collection]error
	failField  map[string]error
	failDelete map[model.Collection]error
	// hideFind makes lookups on these collections report not found, as if a
	// concurrent writer had not committed yet.
	hideFind map[model.Collection]bool
	// onFind runs before every lookup, outside the lock.
	onFind func(coll model.Collection, field, value string)
}

func (f *faultyStore) CreateOne(ctx context.Context, doc model.Document) (string, error) {
	f.mu.Lock()
	err := f.failCreate[doc.Collection()]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Store.CreateOne(ctx, doc)
}

func (f *faultyStore) FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error) {
	f.mu.Lock()
	err, hide, hook := f.failFind[coll], f.hideFind[coll], f.onFind
	if err == nil {
		err = f.failField[field]
	}
	f.mu.Unlock()
	if hook != nil {
		hook(coll, field, value)
	}
	if err != nil {
		return nil, err
	}
	if hide {
		return nil, store.ErrNotFound
	}
	return f.Store.FindOne(ctx, coll, field, value)
}

func (f *faultyStore) DeleteByID(ctx context.Context, coll model.Collection, id string) error {
	f.mu.Lock()
	err := f.failDelete[coll]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.DeleteByID(ctx, coll, id)
}

func (f *faultyStore) set(apply func(f *faultyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f)
}
