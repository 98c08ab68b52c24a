package schema

import "strings"

// Field identifies one column of the canonical contact schema.
type Field int

// Canonical fields in output order. EMAIL is the unique identifier; every
// other field is an optional attribute.
const (
	Email Field = iota
	FirstName
	LastName
	FullName
	CompanyName
	SMS
	LandlineNumber
	WhatsApp
	Interests
	LinkedIn
	Facebook
	Website
	Address1
	Address2
	City
	Country
	Postcode

	fieldCount
)

// FieldCount is the number of canonical fields.
const FieldCount = int(fieldCount)

var fieldNames = [FieldCount]string{
	Email:          "EMAIL",
	FirstName:      "FIRSTNAME",
	LastName:       "LASTNAME",
	FullName:       "FULLNAME",
	CompanyName:    "COMPANYNAME",
	SMS:            "SMS",
	LandlineNumber: "LANDLINE_NUMBER",
	WhatsApp:       "WHATSAPP",
	Interests:      "INTERESTS",
	LinkedIn:       "LINKEDIN",
	Facebook:       "FACEBOOK",
	Website:        "WEBSITE",
	Address1:       "ADDRESS1",
	Address2:       "ADDRESS2",
	City:           "CITY",
	Country:        "COUNTRY",
	Postcode:       "POSTCODE",
}

// Fields is the canonical schema in output order.
var Fields = func() []Field {
	out := make([]Field, FieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}()

// String returns the canonical column name, e.g. "LANDLINE_NUMBER".
func (f Field) String() string {
	if f < 0 || int(f) >= FieldCount {
		return "UNKNOWN"
	}
	return fieldNames[f]
}

// Valid reports whether f is one of the canonical fields.
func (f Field) Valid() bool {
	return f >= 0 && int(f) < FieldCount
}

// ParseField resolves a canonical column name (case-insensitive).
func ParseField(name string) (Field, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// Header returns the canonical column names in output order.
func Header() []string {
	out := make([]string, FieldCount)
	copy(out, fieldNames[:])
	return out
}

// Record is one contact in canonical form. An empty string means the field
// is absent. When set, the EMAIL slot holds a validated, normalized address.
type Record [FieldCount]string

// Email returns the record's join key.
func (r Record) Email() string {
	return r[Email]
}

// Get returns the value stored for f.
func (r Record) Get(f Field) string {
	return r[f]
}

// Set stores v for f.
func (r *Record) Set(f Field, v string) {
	r[f] = v
}

// Row returns the values in canonical order, ready for a CSV writer.
func (r Record) Row() []string {
	out := make([]string, FieldCount)
	copy(out, r[:])
	return out
}

// Populated counts the non-empty fields.
func (r Record) Populated() int {
	n := 0
	for _, v := range r {
		if v != "" {
			n++
		}
	}
	return n
}
