package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks malformed input rejected before any write.
var ErrValidation = errors.New("validation failed")

// Delimiters reserved by the field codec. Free text carrying them is rejected.
const reservedDelimiters = "\x1e\x1f"

// Validator checks onboarding documents for shape and business bounds.
type Validator struct {
	validate *validator.Validate
	minAge   int
	maxAge   int
	now      func() time.Time
}

// NewValidator returns a Validator enforcing employee ages within [minAge, maxAge].
func NewValidator(minAge, maxAge int, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New()
	// nodelim is registered on a fresh instance, so this cannot fail.
	_ = v.RegisterValidation("nodelim", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), reservedDelimiters)
	})
	v.RegisterStructValidation(contactLevel, ContactInput{})
	return &Validator{validate: v, minAge: minAge, maxAge: maxAge, now: now}
}

func contactLevel(sl validator.StructLevel) {
	c := sl.Current().Interface().(ContactInput)
	if (c.Name == nil) == (c.CompanyName == "") {
		sl.ReportError(c.CompanyName, "CompanyName", "CompanyName", "name_xor_company", "")
	}
	if len(c.Phones) == 0 && len(c.Emails) == 0 {
		sl.ReportError(c.Phones, "Phones", "Phones", "phone_or_email", "")
	}
}

// Employee validates an employee onboarding document.
func (v *Validator) Employee(in *EmployeeInput) error {
	if err := v.check(in); err != nil {
		return err
	}
	if in.Contact.Name == nil {
		return fmt.Errorf("%w: Contact.Name: employees need a personal name", ErrValidation)
	}
	now := v.now()
	if in.DateOfBirth.AddDate(v.minAge, 0, 0).After(now) {
		return fmt.Errorf("%w: DateOfBirth: younger than %d", ErrValidation, v.minAge)
	}
	if !in.DateOfBirth.AddDate(v.maxAge+1, 0, 0).After(now) {
		return fmt.Errorf("%w: DateOfBirth: older than %d", ErrValidation, v.maxAge)
	}
	return nil
}

// Subject validates a business-subject onboarding document.
func (v *Validator) Subject(in *SubjectInput) error {
	if err := v.check(in); err != nil {
		return err
	}
	if in.Contact.CompanyName == "" {
		return fmt.Errorf("%w: Contact.CompanyName: subjects need a company name", ErrValidation)
	}
	return nil
}

func (v *Validator) check(in any) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
