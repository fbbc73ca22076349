package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fortressi/onboard/codec"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/saga"
	"github.com/fortressi/onboard/set"
	"github.com/fortressi/onboard/store"
)

const (
	StepAssembleAddress saga.NodeName = "assemble-address"
	StepAssembleEmail   saga.NodeName = "assemble-email"
	StepAssemblePhone   saga.NodeName = "assemble-phone"
	StepCreateName      saga.NodeName = "create-name"
	StepCheckUsername   saga.NodeName = "check-username"
	StepCreateAccount   saga.NodeName = "create-account"
	StepCheckContact    saga.NodeName = "check-contact"
	StepCreateContact   saga.NodeName = "create-contact"
	StepCheckSignature  saga.NodeName = "check-signature"
	StepCreateEmployee  saga.NodeName = "create-employee"
	StepCheckTaxID      saga.NodeName = "check-tax-id"
	StepCreateSubject   saga.NodeName = "create-subject"
)

type actx = saga.ActionContext[*State, *Saga]

type action = saga.Action[*State, *Saga]

func step[R any](name saga.NodeName, do func(context.Context, *State, actx) (R, error), undo saga.UndoItFunc[*State, *Saga]) action {
	return saga.NewActionFunc[*State, *Saga, R](
		saga.ActionName(name),
		func(ctx context.Context, sgctx actx) (saga.ActionResult[R], error) {
			out, err := do(ctx, sgctx.UserContext, sgctx)
			if err != nil {
				return saga.ActionResult[R]{}, err
			}
			return saga.Result(out), nil
		},
		undo,
	)
}

// steps returns every action, keyed by node name. Both sagas share one
// instance per step.
func steps() map[saga.NodeName]action {
	return map[saga.NodeName]action{
		StepAssembleAddress: step(StepAssembleAddress, assembleAddresses, nil),
		StepAssembleEmail:   step(StepAssembleEmail, assembleEmails, nil),
		StepAssemblePhone:   step(StepAssemblePhone, assemblePhones, nil),
		StepCreateName:      step(StepCreateName, createName, undoName),
		StepCheckUsername:   step(StepCheckUsername, checkUsername, nil),
		StepCreateAccount:   step(StepCreateAccount, createAccount, undoCreate(model.Accounts)),
		StepCheckContact:    step(StepCheckContact, checkContact, nil),
		StepCreateContact:   step(StepCreateContact, createContact, undoCreate(model.Contacts)),
		StepCheckSignature:  step(StepCheckSignature, checkSignature, nil),
		StepCreateEmployee:  step(StepCreateEmployee, createEmployee, undoCreate(model.Employees)),
		StepCheckTaxID:      step(StepCheckTaxID, checkTaxID, nil),
		StepCreateSubject:   step(StepCreateSubject, createSubject, undoCreate(model.Subjects)),
	}
}

func lookup[R any](sgctx actx, node saga.NodeName) (R, error) {
	out, ok := saga.LookupTyped[R](sgctx, node)
	if !ok {
		return out, fmt.Errorf("no output recorded for %s", node)
	}
	return out, nil
}

func assembleAddresses(_ context.Context, st *State, _ actx) ([]model.StoredAddress, error) {
	in := st.contact().Addresses
	out := make([]model.StoredAddress, 0, len(in))
	for _, a := range in {
		out = append(out, model.StoredAddress{Packed: codec.PackAddress(a), Comment: a.Comment})
	}
	return out, nil
}

// assembleEmails lower-cases addresses and drops repeats.
func assembleEmails(_ context.Context, st *State, _ actx) ([]string, error) {
	var seen set.Set[string]
	for _, e := range st.contact().Emails {
		seen.Insert(strings.ToLower(strings.TrimSpace(e.Address)))
	}
	return seen.Values(), nil
}

// assemblePhones orders phones by preference and keeps the most preferred
// entry for a repeated number.
func assemblePhones(_ context.Context, st *State, _ actx) ([]model.StoredPhone, error) {
	phones := append([]model.Phone(nil), st.contact().Phones...)
	sort.SliceStable(phones, func(i, j int) bool { return phones[i].Preference < phones[j].Preference })

	var seen set.Set[string]
	out := make([]model.StoredPhone, 0, len(phones))
	for _, p := range phones {
		if !seen.Insert(p.Number) {
			continue
		}
		if p.CountryCode == "" {
			p.CountryCode = st.countryCode
		}
		if p.Type == "" {
			p.Type = model.PhoneMobile
		}
		packed, err := codec.PackPhone(p)
		if err != nil {
			return nil, err
		}
		out = append(out, model.StoredPhone{Packed: packed, Number: p.Number})
	}
	return out, nil
}

// createName finds or creates the name record keyed by the packed name.
func createName(ctx context.Context, st *State, _ actx) (NameOutput, error) {
	packed := codec.PackName(*st.employee.Contact.Name)
	st.bundle.NameID = packed

	created, err := ensureName(ctx, st.store, packed)
	if err != nil {
		return NameOutput{}, err
	}
	if created {
		st.created.NameID = packed
	}
	return NameOutput{ID: packed, Created: created}, nil
}

// ensureName creates the name record unless it exists. A record created
// concurrently by another saga counts as existing.
func ensureName(ctx context.Context, s store.Store, packed string) (bool, error) {
	_, err := s.FindOne(ctx, model.Names, model.FieldID, packed)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	_, err = s.CreateOne(ctx, &model.NameRecord{Meta: model.Meta{ID: packed}, Packed: packed})
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// undoName deletes a name this saga created, unless a contact of another
// saga already points at it. Names are shared, so a contact written between
// the check and the delete gets its name back.
func undoName(ctx context.Context, sgctx actx) error {
	out, err := lookup[NameOutput](sgctx, sgctx.NodeName)
	if err != nil {
		return err
	}
	if !out.Created {
		return nil
	}
	st := sgctx.UserContext
	inUse, err := st.guard.NameInUse(ctx, out.ID)
	if err != nil || inUse {
		return err
	}
	if err := deleteRecord(ctx, st, model.Names, out.ID); err != nil {
		return err
	}
	inUse, err = st.guard.NameInUse(ctx, out.ID)
	if err != nil || !inUse {
		return err
	}
	sgctx.Logger.WithField("name", out.ID).Info("name taken up while undoing, restoring it")
	_, err = ensureName(ctx, st.store, out.ID)
	return err
}

// undoCreate deletes the record whose id the step returned. A record that is
// already gone counts as undone.
func undoCreate(coll model.Collection) saga.UndoItFunc[*State, *Saga] {
	return func(ctx context.Context, sgctx actx) error {
		id, err := lookup[string](sgctx, sgctx.NodeName)
		if err != nil {
			return err
		}
		return deleteRecord(ctx, sgctx.UserContext, coll, id)
	}
}

func deleteRecord(ctx context.Context, st *State, coll model.Collection, id string) error {
	err := st.store.DeleteByID(ctx, coll, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func checkUsername(ctx context.Context, st *State, _ actx) (string, error) {
	username := st.account().Username
	taken, err := st.guard.ExistsByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if taken {
		return "", fmt.Errorf("%w: %q", ErrDuplicateUsername, username)
	}
	return username, nil
}

func createAccount(ctx context.Context, st *State, _ actx) (string, error) {
	in := st.account()
	password, err := st.creds.EncryptPassword(in.Password)
	if err != nil {
		return "", err
	}
	id, err := st.store.CreateOne(ctx, &model.Account{
		Username: in.Username,
		Password: password,
		Status:   model.AccountPending,
		Provider: in.ProviderLink(),
	})
	if err != nil {
		return "", duplicate(err, ErrDuplicateUsername)
	}
	st.bundle.AccountID, st.created.AccountID = id, id
	return id, nil
}

func checkContact(ctx context.Context, st *State, sgctx actx) (string, error) {
	emails, err := lookup[[]string](sgctx, StepAssembleEmail)
	if err != nil {
		return "", err
	}
	phones, err := lookup[[]model.StoredPhone](sgctx, StepAssemblePhone)
	if err != nil {
		return "", err
	}

	for _, e := range emails {
		taken, err := st.guard.ExistsByEmail(ctx, e)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%w: email %q", ErrDuplicateContactField, e)
		}
	}
	for _, p := range phones {
		taken, err := st.guard.ExistsByPhoneNumber(ctx, p.Number)
		if err != nil {
			return "", err
		}
		if taken {
			return "", fmt.Errorf("%w: phone %q", ErrDuplicateContactField, p.Number)
		}
	}
	return "", nil
}

func createContact(ctx context.Context, st *State, sgctx actx) (string, error) {
	addresses, err := lookup[[]model.StoredAddress](sgctx, StepAssembleAddress)
	if err != nil {
		return "", err
	}
	emails, err := lookup[[]string](sgctx, StepAssembleEmail)
	if err != nil {
		return "", err
	}
	phones, err := lookup[[]model.StoredPhone](sgctx, StepAssemblePhone)
	if err != nil {
		return "", err
	}
	accountID, err := lookup[string](sgctx, StepCreateAccount)
	if err != nil {
		return "", err
	}

	in := st.contact()
	c := &model.Contact{
		CompanyName:      in.CompanyName,
		AccountID:        accountID,
		Addresses:        addresses,
		Phones:           phones,
		Emails:           emails,
		PreferredContact: in.PreferredContact,
		Notes:            in.Notes,
		ProfilePictures:  in.ProfilePictures,
		Socials:          in.Socials,
		Websites:         in.Websites,
	}
	if in.Name != nil {
		name, err := lookup[NameOutput](sgctx, StepCreateName)
		if err != nil {
			return "", err
		}
		c.NameID = name.ID
	}

	id, err := st.store.CreateOne(ctx, c)
	if err != nil {
		return "", duplicate(err, ErrDuplicateContactField)
	}
	if c.NameID != "" {
		// Another saga that created the name may have undone it meanwhile.
		if _, err := ensureName(ctx, st.store, c.NameID); err != nil {
			if derr := deleteRecord(ctx, st, model.Contacts, id); derr != nil {
				return "", errors.Join(err, derr)
			}
			return "", err
		}
	}
	st.bundle.ContactID, st.created.ContactID = id, id
	return id, nil
}

func checkSignature(ctx context.Context, st *State, _ actx) (string, error) {
	sig := st.employee.Signature
	if sig == "" {
		return "", nil
	}
	taken, err := st.guard.ExistsBySignature(ctx, sig)
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrDuplicateSignature
	}
	return "", nil
}

func createEmployee(ctx context.Context, st *State, sgctx actx) (string, error) {
	contactID, err := lookup[string](sgctx, StepCreateContact)
	if err != nil {
		return "", err
	}
	accountID, err := lookup[string](sgctx, StepCreateAccount)
	if err != nil {
		return "", err
	}

	in := st.employee
	id, err := st.store.CreateOne(ctx, &model.Employee{
		DateOfBirth: in.DateOfBirth,
		Gender:      in.Gender,
		ContactID:   contactID,
		AccountID:   accountID,
		Roles:       in.Roles,
		Signature:   in.Signature,
	})
	if err != nil {
		return "", duplicate(err, ErrDuplicateSignature)
	}
	st.bundle.EmployeeID, st.created.EmployeeID = id, id
	return id, nil
}

func checkTaxID(ctx context.Context, st *State, _ actx) (string, error) {
	taxID := st.subject.TaxID
	if taxID == "" {
		return "", nil
	}
	taken, err := st.guard.ExistsByTaxID(ctx, taxID)
	if err != nil {
		return "", err
	}
	if taken {
		return "", fmt.Errorf("%w: %q", ErrDuplicateTaxID, taxID)
	}
	return taxID, nil
}

func createSubject(ctx context.Context, st *State, sgctx actx) (string, error) {
	contactID, err := lookup[string](sgctx, StepCreateContact)
	if err != nil {
		return "", err
	}
	accountID, err := lookup[string](sgctx, StepCreateAccount)
	if err != nil {
		return "", err
	}

	id, err := st.store.CreateOne(ctx, &model.Subject{
		Kind:      st.subject.Kind,
		TaxID:     st.subject.TaxID,
		ContactID: contactID,
		AccountID: accountID,
	})
	if err != nil {
		return "", duplicate(err, ErrDuplicateTaxID)
	}
	st.bundle.SubjectID, st.created.SubjectID = id, id
	return id, nil
}
