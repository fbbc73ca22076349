// Package memstore is an in-memory store.Store built on go-memdb.
//
// Each collection is a memdb table. Rows carry the JSON body of the record,
// the "field=value" strings of its unique keys, indexed so that uniqueness can
// be checked inside the single memdb write transaction, and the non-unique
// "field=value" strings of its references.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/fortressi/onboard/ids"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
)

const (
	indexID   = "id"
	indexKeys = "keys"
	indexRefs = "refs"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memstore: transaction already finished")

type row struct {
	ID   string
	Keys []string
	Refs []string
	Body []byte
}

func schema() *memdb.DBSchema {
	tables := make(map[string]*memdb.TableSchema)
	for _, c := range model.Collections() {
		name := string(c)
		tables[name] = &memdb.TableSchema{
			Name: name,
			Indexes: map[string]*memdb.IndexSchema{
				indexID: {
					Name:    indexID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				indexKeys: {
					Name:         indexKeys,
					AllowMissing: true,
					Indexer:      &memdb.StringSliceFieldIndex{Field: "Keys"},
				},
				indexRefs: {
					Name:         indexRefs,
					AllowMissing: true,
					Indexer:      &memdb.StringSliceFieldIndex{Field: "Refs"},
				},
			},
		}
	}
	return &memdb.DBSchema{Tables: tables}
}

// Store is safe for concurrent use. Writers are serialized by memdb.
type Store struct {
	db  *memdb.MemDB
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memstore: schema: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) CreateOne(ctx context.Context, doc model.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	id, err := create(txn, doc, s.now())
	if err != nil {
		return "", err
	}
	txn.Commit()
	return id, nil
}

func (s *Store) FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return find(s.db.Txn(false), coll, field, value)
}

func (s *Store) DeleteByID(ctx context.Context, coll model.Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := remove(txn, coll, id); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Len returns the number of records in coll.
func (s *Store) Len(coll model.Collection) (int, error) {
	it, err := s.db.Txn(false).Get(string(coll), indexID)
	if err != nil {
		return 0, fmt.Errorf("memstore: scan %s: %w", coll, err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

// StartSession implements store.Sessioner.
func (s *Store) StartSession(ctx context.Context) (store.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{store: s}, nil
}

type session struct {
	store *Store
	ended bool
}

// StartTransaction opens a write transaction. It blocks while another
// transaction on the same Store is open.
func (ss *session) StartTransaction(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ss.ended {
		return nil, errors.New("memstore: session ended")
	}
	return &Tx{txn: ss.store.db.Txn(true), now: ss.store.now}, nil
}

func (ss *session) EndSession(context.Context) error {
	ss.ended = true
	return nil
}

// Tx reads its own writes; nothing is visible to other readers until Commit.
type Tx struct {
	txn  *memdb.Txn
	now  func() time.Time
	done bool
}

func (t *Tx) CreateOne(ctx context.Context, doc model.Document) (string, error) {
	if err := t.usable(ctx); err != nil {
		return "", err
	}
	return create(t.txn, doc, t.now())
}

func (t *Tx) FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error) {
	if err := t.usable(ctx); err != nil {
		return nil, err
	}
	return find(t.txn, coll, field, value)
}

func (t *Tx) DeleteByID(ctx context.Context, coll model.Collection, id string) error {
	if err := t.usable(ctx); err != nil {
		return err
	}
	return remove(t.txn, coll, id)
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.txn.Commit()
	return nil
}

func (t *Tx) Abort(context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.txn.Abort()
	return nil
}

func (t *Tx) usable(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	return ctx.Err()
}

func create(txn *memdb.Txn, doc model.Document, now time.Time) (string, error) {
	table := string(doc.Collection())
	meta := doc.Bookkeeping()
	saved := *meta

	if meta.ID == "" {
		meta.ID = ids.New()
	}
	meta.CreatedAt, meta.UpdatedAt, meta.Version = now, now, 1

	r, err := newRow(doc)
	if err == nil {
		err = checkUnique(txn, table, r)
	}
	if err == nil {
		err = txn.Insert(table, r)
	}
	if err != nil {
		*meta = saved
		return "", err
	}
	return r.ID, nil
}

func newRow(doc model.Document) (*row, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode %s: %w", doc.Collection(), err)
	}
	r := &row{ID: doc.Bookkeeping().ID, Keys: flatten(doc.UniqueKeys()), Body: body}
	if ref, ok := doc.(model.Referrer); ok {
		r.Refs = flatten(ref.References())
	}
	return r, nil
}

// flatten turns field values into sorted "field=value" strings, skipping
// empty and repeated values.
func flatten(fields map[string][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for field, values := range fields {
		for _, v := range values {
			if v == "" {
				continue
			}
			k := field + "=" + v
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func checkUnique(txn *memdb.Txn, table string, r *row) error {
	hit, err := txn.First(table, indexID, r.ID)
	if err != nil {
		return fmt.Errorf("memstore: lookup %s: %w", table, err)
	}
	if hit != nil {
		return fmt.Errorf("%w: %s id %q", store.ErrDuplicateKey, table, r.ID)
	}
	for _, k := range r.Keys {
		hit, err := txn.First(table, indexKeys, k)
		if err != nil {
			return fmt.Errorf("memstore: lookup %s: %w", table, err)
		}
		if hit != nil {
			return fmt.Errorf("%w: %s %s", store.ErrDuplicateKey, table, k)
		}
	}
	return nil
}

func find(txn *memdb.Txn, coll model.Collection, field, value string) (model.Document, error) {
	var (
		raw any
		err error
	)
	switch {
	case field == model.FieldID:
		raw, err = txn.First(string(coll), indexID, value)
	case model.IsReference(field):
		raw, err = txn.First(string(coll), indexRefs, field+"="+value)
	default:
		raw, err = txn.First(string(coll), indexKeys, field+"="+value)
	}
	if err != nil {
		return nil, fmt.Errorf("memstore: lookup %s.%s: %w", coll, field, err)
	}
	if raw == nil {
		return nil, store.ErrNotFound
	}

	doc, err := model.NewDocument(coll)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw.(*row).Body, doc); err != nil {
		return nil, fmt.Errorf("memstore: decode %s: %w", coll, err)
	}
	return doc, nil
}

func remove(txn *memdb.Txn, coll model.Collection, id string) error {
	n, err := txn.DeleteAll(string(coll), indexID, id)
	if err != nil {
		return fmt.Errorf("memstore: delete %s: %w", coll, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
