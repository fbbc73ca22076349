// Package codec packs structured names, phones and addresses into single
// delimited strings for storage and uniqueness, and unpacks them on read.
//
// Fields are separated by ASCII control characters. The codec does not escape
// them; input carrying either delimiter is rejected by model validation.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fortressi/onboard/model"
)

const (
	// RecordSep separates the top-level fields of a packed name.
	RecordSep = "\x1e"
	// UnitSep separates list items and the fields of phones and addresses.
	UnitSep = "\x1f"
)

const (
	nameSegments    = 5
	phoneSegments   = 4
	addressSegments = 7
	countryRadix    = 36
)

var (
	// ErrMalformedRecord is returned when a stored value cannot be unpacked.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidField is returned when a value cannot be packed.
	ErrInvalidField = errors.New("invalid field")
)

// CanonicalName lower-cases every part of n and sorts its lists. Empty list
// items are dropped.
func CanonicalName(n model.PersonName) model.PersonName {
	return model.PersonName{
		First:      strings.ToLower(n.First),
		Surname:    strings.ToLower(n.Surname),
		Others:     canonicalList(n.Others),
		PreTitles:  canonicalList(n.PreTitles),
		PostTitles: canonicalList(n.PostTitles),
	}
}

func canonicalList(in []string) []string {
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	sort.Strings(out)
	return out
}

// PackName returns the canonical packed form of n. Names that differ only in
// case or list order pack identically.
func PackName(n model.PersonName) string {
	c := CanonicalName(n)
	return strings.Join([]string{
		strings.Join(c.PreTitles, UnitSep),
		c.First,
		c.Surname,
		strings.Join(c.Others, UnitSep),
		strings.Join(c.PostTitles, UnitSep),
	}, RecordSep)
}

// UnpackName is the inverse of PackName.
func UnpackName(s string) (model.PersonName, error) {
	parts := strings.Split(s, RecordSep)
	if len(parts) != nameSegments {
		return model.PersonName{}, fmt.Errorf("%w: name has %d segments, want %d", ErrMalformedRecord, len(parts), nameSegments)
	}
	return model.PersonName{
		PreTitles:  splitUnits(parts[0]),
		First:      parts[1],
		Surname:    parts[2],
		Others:     splitUnits(parts[3]),
		PostTitles: splitUnits(parts[4]),
	}, nil
}

func splitUnits(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, UnitSep)
}

// PackPhone packs p as country code (base 36), number, preference and type.
// An empty country code packs as model.DefaultCountryCode.
func PackPhone(p model.Phone) (string, error) {
	cc := p.CountryCode
	if cc == "" {
		cc = model.DefaultCountryCode
	}
	code, err := strconv.ParseUint(cc, 10, 32)
	if err != nil {
		return "", fmt.Errorf("%w: country code %q", ErrInvalidField, p.CountryCode)
	}
	if p.Preference < 0 {
		return "", fmt.Errorf("%w: negative preference %d", ErrInvalidField, p.Preference)
	}
	return strings.Join([]string{
		strconv.FormatUint(code, countryRadix),
		p.Number,
		strconv.Itoa(p.Preference),
		string(p.Type),
	}, UnitSep), nil
}

// UnpackPhone is the inverse of PackPhone.
func UnpackPhone(s string) (model.Phone, error) {
	parts := strings.Split(s, UnitSep)
	if len(parts) != phoneSegments {
		return model.Phone{}, fmt.Errorf("%w: phone has %d segments, want %d", ErrMalformedRecord, len(parts), phoneSegments)
	}
	code, err := strconv.ParseUint(parts[0], countryRadix, 32)
	if err != nil {
		return model.Phone{}, fmt.Errorf("%w: phone country code %q", ErrMalformedRecord, parts[0])
	}
	pref, err := strconv.Atoi(parts[2])
	if err != nil || pref < 0 {
		return model.Phone{}, fmt.Errorf("%w: phone preference %q", ErrMalformedRecord, parts[2])
	}
	return model.Phone{
		CountryCode: strconv.FormatUint(code, 10),
		Number:      parts[1],
		Preference:  pref,
		Type:        model.PhoneType(parts[3]),
	}, nil
}

// PackAddress packs the seven location fields of a. Empty fields are kept as
// empty segments. The comment is not part of the packed form.
func PackAddress(a model.Address) string {
	return strings.Join([]string{
		a.Street,
		a.Landmark,
		a.City,
		a.Zip,
		a.LocalArea,
		a.State,
		a.CountryCode,
	}, UnitSep)
}

// UnpackAddress is the inverse of PackAddress.
func UnpackAddress(s string) (model.Address, error) {
	parts := strings.Split(s, UnitSep)
	if len(parts) != addressSegments {
		return model.Address{}, fmt.Errorf("%w: address has %d segments, want %d", ErrMalformedRecord, len(parts), addressSegments)
	}
	return model.Address{
		Street:      parts[0],
		Landmark:    parts[1],
		City:        parts[2],
		Zip:         parts[3],
		LocalArea:   parts[4],
		State:       parts[5],
		CountryCode: parts[6],
	}, nil
}
