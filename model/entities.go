package model

import "time"

// PersonName is a structured personal name.
type PersonName struct {
	First      string   `json:"name" yaml:"name" validate:"required,nodelim"`
	Surname    string   `json:"surname" yaml:"surname" validate:"required,nodelim"`
	Others     []string `json:"others,omitempty" yaml:"others,omitempty" validate:"dive,required,nodelim"`
	PreTitles  []string `json:"pre_titles,omitempty" yaml:"pre_titles,omitempty" validate:"dive,required,nodelim"`
	PostTitles []string `json:"post_titles,omitempty" yaml:"post_titles,omitempty" validate:"dive,required,nodelim"`
}

// Address is a postal address. Comment is stored beside the packed location.
type Address struct {
	Street      string `json:"street" yaml:"street" validate:"required,nodelim"`
	Landmark    string `json:"landmark,omitempty" yaml:"landmark,omitempty" validate:"nodelim"`
	City        string `json:"city,omitempty" yaml:"city,omitempty" validate:"nodelim"`
	Zip         string `json:"zip,omitempty" yaml:"zip,omitempty" validate:"nodelim"`
	LocalArea   string `json:"local_area,omitempty" yaml:"local_area,omitempty" validate:"nodelim"`
	State       string `json:"state,omitempty" yaml:"state,omitempty" validate:"nodelim"`
	CountryCode string `json:"country_code,omitempty" yaml:"country_code,omitempty" validate:"nodelim"`
	Comment     string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

type PhoneType string

const (
	PhoneMobile           PhoneType = "mobile"
	PhoneHome             PhoneType = "home"
	PhoneWork             PhoneType = "work"
	PhoneFax              PhoneType = "fax"
	PhoneEmergency        PhoneType = "emergency"
	PhoneMain             PhoneType = "main"
	PhoneAlt              PhoneType = "alt"
	PhoneSec              PhoneType = "sec"
	PhoneDirect           PhoneType = "direct"
	PhoneCustomerSupport  PhoneType = "customer-support"
	PhoneSales            PhoneType = "sales"
	PhoneBilling          PhoneType = "billing"
	PhoneTechnicalSupport PhoneType = "technical-support"
	PhoneVendor           PhoneType = "vendor"
	PhoneSupplier         PhoneType = "supplier"
	PhonePersonal         PhoneType = "personal"
	PhoneOther            PhoneType = "other"
)

// DefaultCountryCode is used for phones submitted without one.
const DefaultCountryCode = "234"

// Phone is a telephone number. Uniqueness is on Number alone.
type Phone struct {
	CountryCode string    `json:"country_code,omitempty" yaml:"country_code,omitempty" validate:"omitempty,number,max=6"`
	Number      string    `json:"number" yaml:"number" validate:"required,number,min=5,max=20"`
	Preference  int       `json:"preference" yaml:"preference" validate:"min=0"`
	Type        PhoneType `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=mobile home work fax emergency main alt sec direct customer-support sales billing technical-support vendor supplier personal other"`
}

// Email is an email address.
type Email struct {
	Address string `json:"address" yaml:"address" validate:"required,min=3,max=254,contains=@,nodelim"`
}

// NameRecord is a stored PersonName. Its id is the packed canonical name, so
// identical names share one record.
type NameRecord struct {
	Meta
	Packed string `json:"packed"`
}

func (n *NameRecord) Collection() Collection { return Names }

func (n *NameRecord) UniqueKeys() map[string][]string { return nil }

type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountActive    AccountStatus = "active"
	AccountDisabled  AccountStatus = "disabled"
	AccountSuspended AccountStatus = "suspended"
	AccountLocked    AccountStatus = "locked"
)

// CanLogin reports whether an account in status s may open a session.
func (s AccountStatus) CanLogin() bool {
	return s == AccountPending || s == AccountActive
}

// ProviderLink ties an account to an external identity provider.
type ProviderLink struct {
	Provider          string `json:"provider"`
	ProviderID        string `json:"provider_id"`
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
	AccessTokenSecret string `json:"access_token_secret"`
}

// Account holds login credentials. Password is the base64 ciphertext.
type Account struct {
	Meta
	Username string        `json:"username"`
	Password string        `json:"password"`
	Status   AccountStatus `json:"status"`
	Provider *ProviderLink `json:"provider,omitempty"`
}

func (a *Account) Collection() Collection { return Accounts }

func (a *Account) UniqueKeys() map[string][]string {
	return map[string][]string{FieldUsername: {a.Username}}
}

// StoredAddress is an address as persisted on a contact.
type StoredAddress struct {
	Packed  string `json:"packed"`
	Comment string `json:"comment,omitempty"`
}

// StoredPhone is a packed phone plus the raw number used for uniqueness.
type StoredPhone struct {
	Packed string `json:"packed"`
	Number string `json:"number"`
}

type ContactMethod string

const (
	ContactByEmail    ContactMethod = "email"
	ContactByPhone    ContactMethod = "phone"
	ContactBySMS      ContactMethod = "sms"
	ContactByWhatsApp ContactMethod = "whatsapp"
	ContactByMail     ContactMethod = "mail"
)

// Contact aggregates the naming identity and communication channels of a
// person or company.
type Contact struct {
	Meta
	NameID           string            `json:"name_id,omitempty"`
	CompanyName      string            `json:"company_name,omitempty"`
	AccountID        string            `json:"account_id"`
	Addresses        []StoredAddress   `json:"addresses"`
	Phones           []StoredPhone     `json:"phones,omitempty"`
	Emails           []string          `json:"emails,omitempty"`
	PreferredContact ContactMethod     `json:"preferred_contact,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	ProfilePictures  []string          `json:"profile_pictures,omitempty"`
	Socials          map[string]string `json:"socials,omitempty"`
	Websites         []string          `json:"websites,omitempty"`
}

func (c *Contact) Collection() Collection { return Contacts }

func (c *Contact) UniqueKeys() map[string][]string {
	numbers := make([]string, 0, len(c.Phones))
	for _, p := range c.Phones {
		numbers = append(numbers, p.Number)
	}
	return map[string][]string{
		FieldEmail: c.Emails,
		FieldPhone: numbers,
	}
}

func (c *Contact) References() map[string][]string {
	if c.NameID == "" {
		return nil
	}
	return map[string][]string{FieldNameID: {c.NameID}}
}

type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderNonBinary   Gender = "non-binary"
	GenderUndisclosed Gender = "undisclosed"
)

// Employee is the final record of an onboarding.
type Employee struct {
	Meta
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      Gender    `json:"gender"`
	ContactID   string    `json:"contact_id"`
	AccountID   string    `json:"account_id"`
	Roles       []string  `json:"roles,omitempty"`
	Signature   string    `json:"signature,omitempty"`
}

func (e *Employee) Collection() Collection { return Employees }

func (e *Employee) UniqueKeys() map[string][]string {
	if e.Signature == "" {
		return nil
	}
	return map[string][]string{FieldSignature: {e.Signature}}
}

type SubjectKind string

const (
	SubjectSupplier SubjectKind = "supplier"
	SubjectCustomer SubjectKind = "customer"
	SubjectPartner  SubjectKind = "partner"
)

// Subject is a business party such as a supplier.
type Subject struct {
	Meta
	Kind      SubjectKind `json:"kind"`
	TaxID     string      `json:"tax_id,omitempty"`
	ContactID string      `json:"contact_id"`
	AccountID string      `json:"account_id"`
}

func (s *Subject) Collection() Collection { return Subjects }

func (s *Subject) UniqueKeys() map[string][]string {
	if s.TaxID == "" {
		return nil
	}
	return map[string][]string{FieldTaxID: {s.TaxID}}
}
