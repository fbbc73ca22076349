package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortressi/onboard/model"
)

func TestPackNameCanonical(t *testing.T) {
	a := model.PersonName{
		First:      "Ada",
		Surname:    "Lovelace",
		Others:     []string{"King", "Augusta"},
		PreTitles:  []string{"Lady"},
		PostTitles: []string{"FRS"},
	}
	b := model.PersonName{
		First:      "ADA",
		Surname:    "lovelace",
		Others:     []string{"augusta", "king"},
		PreTitles:  []string{"lady"},
		PostTitles: []string{"frs"},
	}

	packed := PackName(a)
	assert.Equal(t, "lady\x1eada\x1elovelace\x1eaugusta\x1fking\x1efrs", packed)
	assert.Equal(t, packed, PackName(b))
}

func TestNameRoundTrip(t *testing.T) {
	names := []model.PersonName{
		{First: "Ada", Surname: "Lovelace"},
		{First: "Grace", Surname: "Hopper", PreTitles: []string{"Rear Admiral"}, PostTitles: []string{"PhD"}},
		{First: "Charles", Surname: "Babbage", Others: []string{"", "b"}},
	}
	for _, n := range names {
		packed := PackName(n)
		unpacked, err := UnpackName(packed)
		require.NoError(t, err)
		assert.Equal(t, CanonicalName(n), unpacked)
		assert.Equal(t, packed, PackName(unpacked))
	}
}

func TestUnpackNameMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"ada\x1elovelace",
		"a\x1eb\x1ec\x1ed\x1ee\x1ef",
	} {
		got, err := UnpackName(s)
		require.ErrorIs(t, err, ErrMalformedRecord, "input %q", s)
		assert.Equal(t, model.PersonName{}, got)
	}
}

func TestPhoneRoundTrip(t *testing.T) {
	p := model.Phone{CountryCode: "234", Number: "7012345678", Preference: 2, Type: model.PhoneWork}
	packed, err := PackPhone(p)
	require.NoError(t, err)
	assert.Equal(t, "6i\x1f7012345678\x1f2\x1fwork", packed)

	got, err := UnpackPhone(packed)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	again, err := PackPhone(got)
	require.NoError(t, err)
	assert.Equal(t, packed, again)
}

func TestPackPhoneDefaultsCountryCode(t *testing.T) {
	packed, err := PackPhone(model.Phone{Number: "7012345678"})
	require.NoError(t, err)
	got, err := UnpackPhone(packed)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCountryCode, got.CountryCode)
}

func TestPackPhoneInvalid(t *testing.T) {
	_, err := PackPhone(model.Phone{CountryCode: "+44", Number: "7012345678"})
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = PackPhone(model.Phone{Number: "7012345678", Preference: -1})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestUnpackPhoneMalformed(t *testing.T) {
	for _, s := range []string{
		"6i\x1f7012345678\x1f2",
		"!!\x1f7012345678\x1f2\x1fwork",
		"6i\x1f7012345678\x1ftwo\x1fwork",
	} {
		_, err := UnpackPhone(s)
		assert.ErrorIs(t, err, ErrMalformedRecord, "input %q", s)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	a := model.Address{Street: "12 St James's Square", City: "London", CountryCode: "44"}
	packed := PackAddress(a)
	assert.Equal(t, addressSegments, len(strings.Split(packed, UnitSep)))

	got, err := UnpackAddress(packed)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Equal(t, packed, PackAddress(got))
}

func TestAddressDropsComment(t *testing.T) {
	got, err := UnpackAddress(PackAddress(model.Address{Street: "1 Dorset St", Comment: "ring twice"}))
	require.NoError(t, err)
	assert.Empty(t, got.Comment)
}

func TestUnpackAddressMalformed(t *testing.T) {
	_, err := UnpackAddress("1 Dorset St\x1fLondon")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
