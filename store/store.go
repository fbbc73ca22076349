// Package store defines the storage contract the onboarding workflow writes
// through. Implementations live in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/fortressi/onboard/model"
)

var (
	// ErrNotFound is returned by FindOne and DeleteByID when no record matches.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateKey is returned by CreateOne when the record's id or one of
	// its unique keys is already taken.
	ErrDuplicateKey = errors.New("store: duplicate key")
)

// Store creates, finds and deletes records. Uniqueness of model.Document
// UniqueKeys is enforced at write time.
type Store interface {
	// CreateOne persists doc, filling in its bookkeeping, and returns its id.
	// A doc with a preset id keeps it.
	CreateOne(ctx context.Context, doc model.Document) (string, error)
	// FindOne returns the record in coll whose field equals value. Field is
	// model.FieldID, one of the collection's unique key fields, or a
	// reference field, for which any one matching record is returned.
	FindOne(ctx context.Context, coll model.Collection, field, value string) (model.Document, error)
	// DeleteByID removes a record and releases its unique keys.
	DeleteByID(ctx context.Context, coll model.Collection, id string) error
}

// Sessioner is implemented by stores that support multi-record transactions.
type Sessioner interface {
	StartSession(ctx context.Context) (Session, error)
}

// Session groups transactions issued on behalf of one caller.
type Session interface {
	StartTransaction(ctx context.Context) (Tx, error)
	EndSession(ctx context.Context) error
}

// Tx is a Store whose writes become visible together on Commit.
type Tx interface {
	Store
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}
