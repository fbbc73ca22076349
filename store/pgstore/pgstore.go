// Package pgstore is a Postgres-backed store.Store.
//
// Records are kept as jsonb bodies in one documents table keyed by
// (collection, id). Unique keys live in document_keys with a primary key on
// (collection, key), so concurrent writers racing for the same username,
// email, phone or signature are serialized by Postgres itself. References,
// such as a contact's name, live in document_refs without that constraint.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fortressi/onboard/ids"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
)

const uniqueViolation = "23505"

var migrations = []string{
	`create table if not exists documents (
		collection text not null,
		id text not null,
		body jsonb not null,
		created_at timestamptz not null,
		updated_at timestamptz not null,
		version bigint not null,
		primary key (collection, id)
	)`,
	`create table if not exists document_keys (
		collection text not null,
		key text not null,
		id text not null,
		primary key (collection, key),
		foreign key (collection, id) references documents (collection, id) on delete cascade
	)`,
	`create table if not exists document_refs (
		collection text not null,
		ref text not null,
		id text not null,
		primary key (collection, ref, id),
		foreign key (collection, id) references documents (collection, id) on delete cascade
	)`,
}

const (
	insertDocument = `insert into documents (collection, id, body, created_at, updated_at, version) values ($1, $2, $3, $4, $5, $6)`
	insertKey      = `insert into document_keys (collection, key, id) values ($1, $2, $3)`
	insertRef      = `insert into document_refs (collection, ref, id) values ($1, $2, $3)`
	selectByID     = `select body from documents where collection = $1 and id = $2`
	selectByKey    = `select d.body from document_keys k join documents d on d.collection = k.collection and d.id = k.id where k.collection = $1 and k.key = $2`
	selectByRef    = `select d.body from document_refs r join documents d on d.collection = r.collection and d.id = r.id where r.collection = $1 and r.ref = $2 limit 1`
	deleteDocument = `delete from documents where collection = $1 and id = $2`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
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

// Open connects with the pgx driver.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgstore: migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateOne(ctx context.Context, doc model.Document) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := create(ctx, tx, doc, s.now())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", mapErr(err)
	}
	return id, nil
}

func (s *Store) FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error) {
	return find(ctx, s.db, coll, field, value)
}

func (s *Store) DeleteByID(ctx context.Context, coll model.Collection, id string) error {
	return remove(ctx, s.db, coll, id)
}

// StartSession implements store.Sessioner.
func (s *Store) StartSession(context.Context) (store.Session, error) {
	return &session{store: s}, nil
}

type session struct {
	store *Store
}

func (ss *session) StartTransaction(ctx context.Context) (store.Tx, error) {
	tx, err := ss.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, now: ss.store.now}, nil
}

func (ss *session) EndSession(context.Context) error { return nil }

// Tx runs every operation on one database transaction. A failed create is
// rolled back to a savepoint so the transaction stays usable.
type Tx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *Tx) CreateOne(ctx context.Context, doc model.Document) (string, error) {
	if _, err := t.tx.ExecContext(ctx, `savepoint create_one`); err != nil {
		return "", err
	}
	id, err := create(ctx, t.tx, doc, t.now())
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `rollback to savepoint create_one`); rbErr != nil {
			return "", errors.Join(err, rbErr)
		}
		return "", err
	}
	if _, err := t.tx.ExecContext(ctx, `release savepoint create_one`); err != nil {
		return "", err
	}
	return id, nil
}

func (t *Tx) FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error) {
	return find(ctx, t.tx, coll, field, value)
}

func (t *Tx) DeleteByID(ctx context.Context, coll model.Collection, id string) error {
	return remove(ctx, t.tx, coll, id)
}

func (t *Tx) Commit(context.Context) error { return mapErr(t.tx.Commit()) }

func (t *Tx) Abort(context.Context) error { return t.tx.Rollback() }

func create(ctx context.Context, q querier, doc model.Document, now time.Time) (string, error) {
	coll := string(doc.Collection())
	meta := doc.Bookkeeping()
	saved := *meta

	if meta.ID == "" {
		meta.ID = ids.New()
	}
	meta.CreatedAt, meta.UpdatedAt, meta.Version = now, now, 1

	err := insert(ctx, q, coll, doc)
	if err != nil {
		*meta = saved
		return "", err
	}
	return meta.ID, nil
}

func insert(ctx context.Context, q querier, coll string, doc model.Document) error {
	meta := doc.Bookkeeping()
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("pgstore: encode %s: %w", coll, err)
	}
	if _, err := q.ExecContext(ctx, insertDocument, coll, meta.ID, body, meta.CreatedAt, meta.UpdatedAt, meta.Version); err != nil {
		return mapErr(err)
	}
	for _, key := range flatten(doc.UniqueKeys()) {
		if _, err := q.ExecContext(ctx, insertKey, coll, key, meta.ID); err != nil {
			return mapErr(err)
		}
	}
	if ref, ok := doc.(model.Referrer); ok {
		for _, r := range flatten(ref.References()) {
			if _, err := q.ExecContext(ctx, insertRef, coll, r, meta.ID); err != nil {
				return mapErr(err)
			}
		}
	}
	return nil
}

func flatten(fields map[string][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for field, values := range fields {
		for _, v := range values {
			k := field + "=" + v
			if _, dup := seen[k]; v == "" || dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func find(ctx context.Context, q querier, coll model.Collection, field, value string) (model.Document, error) {
	var row *sql.Row
	switch {
	case field == model.FieldID:
		row = q.QueryRowContext(ctx, selectByID, string(coll), value)
	case model.IsReference(field):
		row = q.QueryRowContext(ctx, selectByRef, string(coll), field+"="+value)
	default:
		row = q.QueryRowContext(ctx, selectByKey, string(coll), field+"="+value)
	}

	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	doc, err := model.NewDocument(coll)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("pgstore: decode %s: %w", coll, err)
	}
	return doc, nil
}

func remove(ctx context.Context, q querier, coll model.Collection, id string) error {
	res, err := q.ExecContext(ctx, deleteDocument, string(coll), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}
