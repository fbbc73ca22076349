package model

import (
	"fmt"
	"time"
)

// Collection names the storage collection a record lives in.
type Collection string

const (
	Names     Collection = "names"
	Accounts  Collection = "accounts"
	Contacts  Collection = "contacts"
	Employees Collection = "employees"
	Subjects  Collection = "subjects"
)

// Collections returns every collection known to the onboarding workflow.
func Collections() []Collection {
	return []Collection{Names, Accounts, Contacts, Employees, Subjects}
}

// Unique key fields. Storage enforces uniqueness of each value within the
// owning collection and allows lookups by them.
const (
	FieldID        = "id"
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldSignature = "signature"
	FieldTaxID     = "tax_id"
)

// FieldNameID is a reference field. Many contacts share one name record, so a
// lookup by it returns any one of the contacts pointing at that name.
const FieldNameID = "name_id"

// IsReference reports whether field is a non-unique reference field.
func IsReference(field string) bool {
	return field == FieldNameID
}

// Meta is the bookkeeping carried by every stored record.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Bookkeeping returns the record's bookkeeping fields for the store to fill in.
func (m *Meta) Bookkeeping() *Meta {
	return m
}

// Document is a record the storage collaborator can persist.
type Document interface {
	Collection() Collection
	Bookkeeping() *Meta
	// UniqueKeys maps a unique field to the values this record claims.
	UniqueKeys() map[string][]string
}

// Referrer is implemented by records that point at other records through a
// reference field.
type Referrer interface {
	References() map[string][]string
}

// NewDocument returns an empty record for coll, ready to be decoded into.
func NewDocument(coll Collection) (Document, error) {
	switch coll {
	case Names:
		return &NameRecord{}, nil
	case Accounts:
		return &Account{}, nil
	case Contacts:
		return &Contact{}, nil
	case Employees:
		return &Employee{}, nil
	case Subjects:
		return &Subject{}, nil
	}
	return nil, fmt.Errorf("unknown collection %q", coll)
}
