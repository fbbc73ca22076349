package onboarding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fortressi/onboard/codec"
	"github.com/fortressi/onboard/credential"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/saga"
	"github.com/fortressi/onboard/store"
)

var (
	ErrDuplicateUsername     = errors.New("duplicate username")
	ErrDuplicateContactField = errors.New("duplicate contact field")
	ErrDuplicateSignature    = errors.New("duplicate signature")
	ErrDuplicateTaxID        = errors.New("duplicate tax id")
	// ErrInactiveAccount is returned by Login for disabled, suspended and
	// locked accounts.
	ErrInactiveAccount = fmt.Errorf("%w: account is not active", credential.ErrAuth)
	// ErrBadCredentials is returned by Login for an unknown username or a
	// wrong password.
	ErrBadCredentials = fmt.Errorf("%w: bad username or password", credential.ErrAuth)
)

// Kind classifies an onboarding failure.
type Kind int

const (
	KindIO Kind = iota
	KindValidation
	KindDuplicateUsername
	KindDuplicateContactField
	KindDuplicateSignature
	KindDuplicateTaxID
	KindMalformedRecord
	KindCrypto
	KindAuth
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindValidation:
		return "validation"
	case KindDuplicateUsername:
		return "duplicate_username"
	case KindDuplicateContactField:
		return "duplicate_contact_field"
	case KindDuplicateSignature:
		return "duplicate_signature"
	case KindDuplicateTaxID:
		return "duplicate_tax_id"
	case KindMalformedRecord:
		return "malformed_record"
	case KindCrypto:
		return "crypto"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Duplicate reports whether k is one of the uniqueness conflicts.
func (k Kind) Duplicate() bool {
	switch k {
	case KindDuplicateUsername, KindDuplicateContactField, KindDuplicateSignature, KindDuplicateTaxID:
		return true
	}
	return false
}

// Error is returned by every Orchestrator operation. Err is the original
// failure, unchanged; undo failures are in Compensation and never replace it.
type Error struct {
	Kind   Kind
	SagaID string
	// Step names the saga step that failed, or the operation for failures
	// outside a saga.
	Step string
	// Partial holds the records this saga created before Step failed. They
	// have been removed, except those whose undo is listed in Compensation.
	Partial      Bundle
	Err          error
	Compensation []*saga.CompensationError
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "onboarding: %s: %v", e.Step, e.Err)
	if n := len(e.Compensation); n > 0 {
		fmt.Fprintf(&sb, " (%d undo failures, saga %s)", n, e.SagaID)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindIO when err is not an *Error.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, codec.ErrInvalidField):
		return KindValidation
	case errors.Is(err, ErrDuplicateUsername):
		return KindDuplicateUsername
	case errors.Is(err, ErrDuplicateContactField):
		return KindDuplicateContactField
	case errors.Is(err, ErrDuplicateSignature):
		return KindDuplicateSignature
	case errors.Is(err, ErrDuplicateTaxID):
		return KindDuplicateTaxID
	case errors.Is(err, codec.ErrMalformedRecord):
		return KindMalformedRecord
	case errors.Is(err, credential.ErrCrypto):
		return KindCrypto
	case errors.Is(err, credential.ErrAuth):
		return KindAuth
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	default:
		return KindIO
	}
}

func newError(step string, err error) *Error {
	return &Error{Kind: classify(err), Step: step, Err: err}
}

// duplicate maps a write-time unique-key conflict onto the step's
// duplicate sentinel. Other errors pass through.
func duplicate(err, sentinel error) error {
	if errors.Is(err, store.ErrDuplicateKey) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}
