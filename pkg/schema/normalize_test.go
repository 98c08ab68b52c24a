package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ProjectsAndLowercasesEmail(t *testing.T) {
	m := InferMapping([]string{"Email", "First Name", "Last Name", "City"})

	rec, err := Normalize([]string{"  John.Doe@Example.COM ", " John ", "Doe", "Lisbon"}, m)
	require.NoError(t, err)

	assert.Equal(t, "john.doe@example.com", rec.Email())
	assert.Equal(t, "John", rec.Get(FirstName))
	assert.Equal(t, "Doe", rec.Get(LastName))
	assert.Equal(t, "John Doe", rec.Get(FullName), "full name is derived from the parts")
	assert.Equal(t, "Lisbon", rec.Get(City))
}

func TestNormalize_RejectsBadEmails(t *testing.T) {
	m := SingleColumnMapping()

	cases := map[string]error{
		"not-an-email":       ErrInvalidEmail,
		"missing@tld":        ErrInvalidEmail,
		"two words@mail.com": ErrInvalidEmail,
		"a@b.c":              ErrInvalidEmail,
		"":                   ErrMissingEmail,
		"   ":                ErrMissingEmail,
		"#N/A":               ErrMissingEmail,
		"n/a":                ErrMissingEmail,
	}
	for in, want := range cases {
		_, err := Normalize([]string{in}, m)
		assert.ErrorIs(t, err, want, "input %q", in)
	}
}

func TestNormalize_BlanksGarbage(t *testing.T) {
	m := InferMapping([]string{"Email", "Company", "Phone", "City", "Country", "Website"})

	rec, err := Normalize([]string{"a@example.com", "#VALUE!", "#REF!", "#DIV/0!", "none", "-"}, m)
	require.NoError(t, err)

	for _, f := range []Field{CompanyName, LandlineNumber, City, Country, Website} {
		assert.Empty(t, rec.Get(f), f.String())
	}
}

func TestNormalize_SplitsFullName(t *testing.T) {
	m := InferMapping([]string{"Name", "Email"})

	rec, err := Normalize([]string{"Mary Ann   Smith", "mary@example.com"}, m)
	require.NoError(t, err)

	assert.Equal(t, "Mary Ann Smith", rec.Get(FullName))
	assert.Equal(t, "Mary", rec.Get(FirstName))
	assert.Equal(t, "Ann Smith", rec.Get(LastName))
}

func TestNormalize_ShortRowsAreTolerated(t *testing.T) {
	m := InferMapping([]string{"Email", "City"})

	rec, err := Normalize([]string{"a@example.com"}, m)
	require.NoError(t, err)
	assert.Empty(t, rec.Get(City))
}

func TestNormalize_IsPure(t *testing.T) {
	m := InferMapping([]string{"Email", "Name"})
	row := []string{"X@Example.com", "Ada Lovelace"}

	first, err1 := Normalize(row, m)
	second, err2 := Normalize(row, m)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"X@Example.com", "Ada Lovelace"}, row, "input row is not modified")
}

func TestNormalizeEmail(t *testing.T) {
	got, ok := NormalizeEmail("mailto:Someone@Example.org")
	assert.True(t, ok)
	assert.Equal(t, "someone@example.org", got)

	got, ok = NormalizeEmail("<first.last+tag@sub.example.co.uk>")
	assert.True(t, ok)
	assert.Equal(t, "first.last+tag@sub.example.co.uk", got)

	_, ok = NormalizeEmail("someone@localhost")
	assert.False(t, ok)
}

func TestCleanValue(t *testing.T) {
	assert.Equal(t, "a b", CleanValue("  a \t\n b "))
	assert.Equal(t, "", CleanValue("NULL"))
	assert.Equal(t, "", CleanValue("=A1 #REF!"))
	assert.Equal(t, "Nancy", CleanValue("Nancy"))
}

func TestCanonicalHeader(t *testing.T) {
	assert.Equal(t, []string{
		"EMAIL", "FIRSTNAME", "LASTNAME", "FULLNAME", "COMPANYNAME", "SMS",
		"LANDLINE_NUMBER", "WHATSAPP", "INTERESTS", "LINKEDIN", "FACEBOOK",
		"WEBSITE", "ADDRESS1", "ADDRESS2", "CITY", "COUNTRY", "POSTCODE",
	}, Header())

	f, ok := ParseField("landline_number")
	assert.True(t, ok)
	assert.Equal(t, LandlineNumber, f)

	_, ok = ParseField("PHONE")
	assert.False(t, ok)
}
