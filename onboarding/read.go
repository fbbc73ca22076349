package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortressi/onboard/codec"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/store"
)

// EmployeeView is an employee with its contact and account, packed fields
// unpacked.
type EmployeeView struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Version     int64               `json:"version"`
	Name        model.PersonName    `json:"name"`
	DateOfBirth time.Time           `json:"date_of_birth"`
	Gender      model.Gender        `json:"gender"`
	Roles       []string            `json:"roles,omitempty"`
	Signature   string              `json:"signature,omitempty"`
	Username    string              `json:"username"`
	Status      model.AccountStatus `json:"status"`
	Addresses   []model.Address     `json:"addresses"`
	Phones      []model.Phone       `json:"phones,omitempty"`
	Emails      []string            `json:"emails,omitempty"`
	ContactID   string              `json:"contact_id"`
	AccountID   string              `json:"account_id"`
	NameID      string              `json:"name_id"`
}

// GetEmployee loads an employee and the records it references. A stored
// value that cannot be unpacked fails with KindMalformedRecord.
func (o *Orchestrator) GetEmployee(ctx context.Context, id string) (*EmployeeView, error) {
	const op = "get-employee"

	emp, err := findTyped[*model.Employee](ctx, o.store, model.Employees, id)
	if err != nil {
		return nil, newError(op, err)
	}
	contact, err := findTyped[*model.Contact](ctx, o.store, model.Contacts, emp.ContactID)
	if err != nil {
		return nil, newError(op, err)
	}
	account, err := findTyped[*model.Account](ctx, o.store, model.Accounts, emp.AccountID)
	if err != nil {
		return nil, newError(op, err)
	}
	name, err := findTyped[*model.NameRecord](ctx, o.store, model.Names, contact.NameID)
	if err != nil {
		return nil, newError(op, err)
	}

	view := &EmployeeView{
		ID:          emp.ID,
		CreatedAt:   emp.CreatedAt,
		UpdatedAt:   emp.UpdatedAt,
		Version:     emp.Version,
		DateOfBirth: emp.DateOfBirth,
		Gender:      emp.Gender,
		Roles:       emp.Roles,
		Signature:   emp.Signature,
		Username:    account.Username,
		Status:      account.Status,
		Emails:      contact.Emails,
		ContactID:   contact.ID,
		AccountID:   account.ID,
		NameID:      name.ID,
	}
	if view.Name, err = codec.UnpackName(name.Packed); err != nil {
		return nil, newError(op, err)
	}
	for _, a := range contact.Addresses {
		addr, err := codec.UnpackAddress(a.Packed)
		if err != nil {
			return nil, newError(op, err)
		}
		addr.Comment = a.Comment
		view.Addresses = append(view.Addresses, addr)
	}
	for _, p := range contact.Phones {
		phone, err := codec.UnpackPhone(p.Packed)
		if err != nil {
			return nil, newError(op, err)
		}
		view.Phones = append(view.Phones, phone)
	}
	return view, nil
}

func findTyped[D model.Document](ctx context.Context, st store.Store, coll model.Collection, id string) (D, error) {
	var zero D
	doc, err := st.FindOne(ctx, coll, model.FieldID, id)
	if err != nil {
		return zero, fmt.Errorf("%s %q: %w", coll, id, err)
	}
	typed, ok := doc.(D)
	if !ok {
		return zero, fmt.Errorf("%s %q: unexpected record type %T", coll, id, doc)
	}
	return typed, nil
}

// Login checks a username and password and returns a signed session token.
// Unknown usernames and wrong passwords fail alike with ErrBadCredentials.
func (o *Orchestrator) Login(ctx context.Context, username, password string) (string, error) {
	const op = "login"

	doc, err := o.store.FindOne(ctx, model.Accounts, model.FieldUsername, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", newError(op, ErrBadCredentials)
	}
	if err != nil {
		return "", newError(op, err)
	}
	account, ok := doc.(*model.Account)
	if !ok {
		return "", newError(op, fmt.Errorf("unexpected record type %T", doc))
	}
	if !account.Status.CanLogin() {
		return "", newError(op, fmt.Errorf("%w: %s", ErrInactiveAccount, account.Status))
	}

	match, err := o.creds.ComparePassword(account.Password, password)
	if err != nil {
		return "", newError(op, err)
	}
	if !match {
		return "", newError(op, ErrBadCredentials)
	}

	token, err := o.creds.IssueToken(account.ID)
	if err != nil {
		return "", newError(op, err)
	}
	o.logger.WithField("account_id", account.ID).Debug("session issued")
	return token, nil
}

// Authenticate returns the account id a session token was issued for.
func (o *Orchestrator) Authenticate(token string) (string, error) {
	id, err := o.creds.VerifyToken(token)
	if err != nil {
		return "", newError("authenticate", err)
	}
	return id, nil
}
