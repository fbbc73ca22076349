package model

import "time"

// AccountInput carries credentials as submitted, before encryption.
// The provider fields are all-or-none.
type AccountInput struct {
	Username          string `json:"username" yaml:"username" validate:"required,min=3,max=24,nodelim"`
	Password          string `json:"password" yaml:"password" validate:"required,min=8,max=128"`
	Provider          string `json:"provider,omitempty" yaml:"provider,omitempty" validate:"required_with=ProviderID AccessToken RefreshToken AccessTokenSecret"`
	ProviderID        string `json:"provider_id,omitempty" yaml:"provider_id,omitempty" validate:"required_with=Provider AccessToken RefreshToken AccessTokenSecret"`
	AccessToken       string `json:"access_token,omitempty" yaml:"access_token,omitempty" validate:"required_with=Provider ProviderID RefreshToken AccessTokenSecret"`
	RefreshToken      string `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty" validate:"required_with=Provider ProviderID AccessToken AccessTokenSecret"`
	AccessTokenSecret string `json:"access_token_secret,omitempty" yaml:"access_token_secret,omitempty" validate:"required_with=Provider ProviderID AccessToken RefreshToken"`
}

// ProviderLink returns the external-provider fields, or nil when none were given.
func (a AccountInput) ProviderLink() *ProviderLink {
	if a.Provider == "" {
		return nil
	}
	return &ProviderLink{
		Provider:          a.Provider,
		ProviderID:        a.ProviderID,
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		AccessTokenSecret: a.AccessTokenSecret,
	}
}

// ContactInput is the contact part of an onboarding document. Exactly one of
// Name and CompanyName must be set, and at least one phone or email.
type ContactInput struct {
	Name             *PersonName       `json:"name,omitempty" yaml:"name,omitempty"`
	CompanyName      string            `json:"company_name,omitempty" yaml:"company_name,omitempty" validate:"max=200,nodelim"`
	Addresses        []Address         `json:"addresses" yaml:"addresses" validate:"required,min=1,dive"`
	Phones           []Phone           `json:"phones,omitempty" yaml:"phones,omitempty" validate:"dive"`
	Emails           []Email           `json:"emails,omitempty" yaml:"emails,omitempty" validate:"dive"`
	PreferredContact ContactMethod     `json:"preferred_contact,omitempty" yaml:"preferred_contact,omitempty" validate:"omitempty,oneof=email phone sms whatsapp mail"`
	Notes            string            `json:"notes,omitempty" yaml:"notes,omitempty" validate:"max=2000"`
	ProfilePictures  []string          `json:"profile_pictures,omitempty" yaml:"profile_pictures,omitempty" validate:"dive,url"`
	Socials          map[string]string `json:"socials,omitempty" yaml:"socials,omitempty" validate:"dive,keys,required,endkeys,required"`
	Websites         []string          `json:"websites,omitempty" yaml:"websites,omitempty" validate:"dive,url"`
}

// EmployeeInput is the composite document submitted to onboard one employee.
type EmployeeInput struct {
	Contact     ContactInput `json:"contact" yaml:"contact"`
	Account     AccountInput `json:"account" yaml:"account"`
	DateOfBirth time.Time    `json:"date_of_birth" yaml:"date_of_birth" validate:"required"`
	Gender      Gender       `json:"gender" yaml:"gender" validate:"required,oneof=male female non-binary undisclosed"`
	Roles       []string     `json:"roles,omitempty" yaml:"roles,omitempty" validate:"dive,required,nodelim"`
	Signature   string       `json:"signature,omitempty" yaml:"signature,omitempty" validate:"omitempty,base64"`
}

// SubjectInput is the composite document submitted to onboard a business subject.
type SubjectInput struct {
	Contact ContactInput `json:"contact" yaml:"contact"`
	Account AccountInput `json:"account" yaml:"account"`
	Kind    SubjectKind  `json:"kind" yaml:"kind" validate:"required,oneof=supplier customer partner"`
	TaxID   string       `json:"tax_id,omitempty" yaml:"tax_id,omitempty" validate:"omitempty,alphanum,max=32"`
}
