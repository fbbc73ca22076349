// Package session wraps a store session and its current transaction for one
// logical operation.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortressi/onboard/store"
)

var (
	ErrNoSession   = errors.New("session: no active session")
	ErrNoTx        = errors.New("session: no active transaction")
	ErrTxActive    = errors.New("session: transaction already active")
	ErrUnsupported = errors.New("session: store does not support transactions")
)

// Handle holds at most one session and one transaction. A Handle belongs to a
// single in-flight operation and is not safe for concurrent use.
type Handle struct {
	starter store.Sessioner
	sess    store.Session
	tx      store.Tx
}

// New returns a Handle for st. Init fails with ErrUnsupported when st has no
// session support.
func New(st store.Store) *Handle {
	h := &Handle{}
	if s, ok := st.(store.Sessioner); ok {
		h.starter = s
	}
	return h
}

// Init starts a session unless one is already active.
func (h *Handle) Init(ctx context.Context) error {
	if h.sess != nil {
		return nil
	}
	if h.starter == nil {
		return ErrUnsupported
	}
	sess, err := h.starter.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	h.sess = sess
	return nil
}

// Is reports whether a session is active.
func (h *Handle) Is() bool {
	return h.sess != nil
}

// Start begins a transaction on the active session.
func (h *Handle) Start(ctx context.Context) (store.Tx, error) {
	if h.sess == nil {
		return nil, ErrNoSession
	}
	if h.tx != nil {
		return nil, ErrTxActive
	}
	tx, err := h.sess.StartTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: start transaction: %w", err)
	}
	h.tx = tx
	return tx, nil
}

// Tx returns the active transaction, or nil.
func (h *Handle) Tx() store.Tx {
	return h.tx
}

func (h *Handle) Commit(ctx context.Context) error {
	if h.tx == nil {
		return ErrNoTx
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

func (h *Handle) Abort(ctx context.Context) error {
	if h.tx == nil {
		return ErrNoTx
	}
	tx := h.tx
	h.tx = nil
	if err := tx.Abort(ctx); err != nil {
		return fmt.Errorf("session: abort: %w", err)
	}
	return nil
}

// End aborts any open transaction, ends the session and clears the handle.
// Ending an inactive handle is a no-op.
func (h *Handle) End(ctx context.Context) error {
	if h.sess == nil {
		return nil
	}
	var abortErr error
	if h.tx != nil {
		abortErr = h.Abort(ctx)
	}
	sess := h.sess
	h.sess = nil
	return errors.Join(abortErr, sess.EndSession(ctx))
}
