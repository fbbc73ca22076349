package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	return NewValidator(16, 100, func() time.Time { return fixedNow })
}

func validEmployee() EmployeeInput {
	return EmployeeInput{
		Contact: ContactInput{
			Name:      &PersonName{First: "Ada", Surname: "Lovelace"},
			Addresses: []Address{{Street: "12 St James's Square", City: "London"}},
			Phones:    []Phone{{Number: "7012345678", Type: PhoneMobile}},
			Emails:    []Email{{Address: "ada@x.com"}},
		},
		Account:     AccountInput{Username: "ada1", Password: "correct-horse"},
		DateOfBirth: time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Gender:      GenderFemale,
	}
}

func TestValidatorAcceptsEmployee(t *testing.T) {
	in := validEmployee()
	require.NoError(t, testValidator().Employee(&in))
}

func TestValidatorRejectsEmployee(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EmployeeInput)
		want   string
	}{
		{
			name:   "no address",
			mutate: func(in *EmployeeInput) { in.Contact.Addresses = nil },
			want:   "Addresses",
		},
		{
			name: "no channel",
			mutate: func(in *EmployeeInput) {
				in.Contact.Phones = nil
				in.Contact.Emails = nil
			},
			want: "phone_or_email",
		},
		{
			name:   "name and company",
			mutate: func(in *EmployeeInput) { in.Contact.CompanyName = "Analytical Engines Ltd" },
			want:   "name_xor_company",
		},
		{
			name:   "short username",
			mutate: func(in *EmployeeInput) { in.Account.Username = "ad" },
			want:   "Username",
		},
		{
			name:   "email without at",
			mutate: func(in *EmployeeInput) { in.Contact.Emails = []Email{{Address: "ada.x.com"}} },
			want:   "contains",
		},
		{
			name:   "short phone",
			mutate: func(in *EmployeeInput) { in.Contact.Phones = []Phone{{Number: "1234"}} },
			want:   "Number",
		},
		{
			name:   "phone type",
			mutate: func(in *EmployeeInput) { in.Contact.Phones[0].Type = "pager" },
			want:   "oneof",
		},
		{
			name:   "delimiter in street",
			mutate: func(in *EmployeeInput) { in.Contact.Addresses[0].Street = "12\x1fSt" },
			want:   "nodelim",
		},
		{
			name:   "delimiter in name",
			mutate: func(in *EmployeeInput) { in.Contact.Name.Others = []string{"aug\x1eusta"} },
			want:   "nodelim",
		},
		{
			name:   "partial provider",
			mutate: func(in *EmployeeInput) { in.Account.Provider = "github" },
			want:   "required_with",
		},
		{
			name:   "gender",
			mutate: func(in *EmployeeInput) { in.Gender = "robot" },
			want:   "Gender",
		},
		{
			name:   "too young",
			mutate: func(in *EmployeeInput) { in.DateOfBirth = fixedNow.AddDate(-15, 0, 0) },
			want:   "younger than 16",
		},
		{
			name:   "too old",
			mutate: func(in *EmployeeInput) { in.DateOfBirth = fixedNow.AddDate(-101, 0, 0) },
			want:   "older than 100",
		},
		{
			name: "company only",
			mutate: func(in *EmployeeInput) {
				in.Contact.Name = nil
				in.Contact.CompanyName = "Analytical Engines Ltd"
			},
			want: "personal name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validEmployee()
			tt.mutate(&in)
			err := testValidator().Employee(&in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidatorSubject(t *testing.T) {
	v := testValidator()
	in := SubjectInput{
		Contact: ContactInput{
			CompanyName: "Babbage Supplies",
			Addresses:   []Address{{Street: "1 Dorset St"}},
			Emails:      []Email{{Address: "sales@babbage.example"}},
		},
		Account: AccountInput{Username: "babbage", Password: "difference-engine"},
		Kind:    SubjectSupplier,
		TaxID:   "GB123456",
	}
	require.NoError(t, v.Subject(&in))

	in.Contact.CompanyName = ""
	in.Contact.Name = &PersonName{First: "Charles", Surname: "Babbage"}
	assert.ErrorIs(t, v.Subject(&in), ErrValidation)
}

func TestNewDocument(t *testing.T) {
	for _, c := range Collections() {
		doc, err := NewDocument(c)
		require.NoError(t, err)
		assert.Equal(t, c, doc.Collection())
	}
	_, err := NewDocument("widgets")
	assert.Error(t, err)
}

func TestUniqueKeys(t *testing.T) {
	c := &Contact{
		Phones: []StoredPhone{{Packed: "6i\x1f7012345678\x1f0\x1fmobile", Number: "7012345678"}},
		Emails: []string{"ada@x.com"},
	}
	assert.Equal(t, map[string][]string{
		FieldEmail: {"ada@x.com"},
		FieldPhone: {"7012345678"},
	}, c.UniqueKeys())

	assert.Nil(t, (&Employee{}).UniqueKeys())
	assert.Equal(t, []string{"c2ln"}, (&Employee{Signature: "c2ln"}).UniqueKeys()[FieldSignature])
}
