// Package guard checks uniqueness before the onboarding workflow writes.
//
// A check is a fail-fast optimization. The store's unique keys remain the
// authority, since two callers can both pass a check before either writes.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
)

type Guard struct {
	store store.Store
}

func New(st store.Store) *Guard {
	return &Guard{store: st}
}

func (g *Guard) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return g.exists(ctx, model.Accounts, model.FieldUsername, username)
}

func (g *Guard) ExistsByEmail(ctx context.Context, address string) (bool, error) {
	return g.exists(ctx, model.Contacts, model.FieldEmail, address)
}

// ExistsByPhoneNumber looks up the raw number, without country code.
func (g *Guard) ExistsByPhoneNumber(ctx context.Context, number string) (bool, error) {
	return g.exists(ctx, model.Contacts, model.FieldPhone, number)
}

func (g *Guard) ExistsBySignature(ctx context.Context, signature string) (bool, error) {
	return g.exists(ctx, model.Employees, model.FieldSignature, signature)
}

func (g *Guard) ExistsByTaxID(ctx context.Context, taxID string) (bool, error) {
	return g.exists(ctx, model.Subjects, model.FieldTaxID, taxID)
}

// NameInUse reports whether any contact points at the name record nameID.
func (g *Guard) NameInUse(ctx context.Context, nameID string) (bool, error) {
	return g.exists(ctx, model.Contacts, model.FieldNameID, nameID)
}

// exists treats only store.ErrNotFound as absence. Any other lookup error is
// returned so the caller stops.
func (g *Guard) exists(ctx context.Context, coll model.Collection, field, value string) (bool, error) {
	_, err := g.store.FindOne(ctx, coll, field, value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("guard: lookup %s by %s: %w", coll, field, err)
	}
}
