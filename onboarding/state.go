package onboarding

import (
	"github.com/fortressi/onboard/credential"
	"github.com/fortressi/onboard/guard"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/saga"
	"github.com/fortressi/onboard/store"
)

const (
	EmployeeSaga saga.SagaName = "employee"
	SubjectSaga  saga.SagaName = "subject"
)

// Bundle holds the identifiers produced by one onboarding.
type Bundle struct {
	SagaID     string `json:"saga_id,omitempty"`
	NameID     string `json:"name_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
}

// Result is one element of a batch onboarding.
type Result struct {
	Index  int
	Bundle Bundle
	Err    error
}

// State is the context shared by the steps of one saga run. Only Username is
// journaled; undo steps work from the journaled step outputs.
type State struct {
	Username string `json:"username,omitempty"`

	employee    *model.EmployeeInput
	subject     *model.SubjectInput
	store       store.Store
	guard       *guard.Guard
	creds       *credential.Manager
	countryCode string

	bundle  Bundle
	created Bundle
}

func (s *State) contact() *model.ContactInput {
	if s.employee != nil {
		return &s.employee.Contact
	}
	return &s.subject.Contact
}

func (s *State) account() *model.AccountInput {
	if s.employee != nil {
		return &s.employee.Account
	}
	return &s.subject.Account
}

// Saga adapts State to the saga engine.
type Saga struct {
	state *State
}

func (s *Saga) ExecContext() *State { return s.state }

// NameOutput is the output of the create-name step. Created is false when an
// identical name already existed, in which case undo leaves it alone.
type NameOutput struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}
