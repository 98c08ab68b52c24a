package schema

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoEmailColumn is returned when no source column can be bound to EMAIL.
// Rows from such a file cannot be merged, so the whole file is skipped.
var ErrNoEmailColumn = errors.New("no email column found")

// FieldAliases lists, per canonical field, the header labels known to carry
// that field. Labels are compared after normalizeHeader, so case, spacing
// and punctuation do not matter ("E-Mail" == "email").
var FieldAliases = map[Field][]string{
	Email: {
		"email", "e-mail", "email address", "e_mail", "mail",
		"hq email", "primary contact email", "contact email",
	},
	FullName: {
		"fullname", "full name", "name", "full_name",
		"contact name", "primary contact",
	},
	FirstName: {
		"firstname", "first name", "first_name", "fname",
		"given name", "givenname", "forename",
	},
	LastName: {
		"lastname", "last name", "last_name", "lname",
		"surname", "family name", "familyname",
	},
	CompanyName: {
		"company", "companyname", "company name", "company_name",
		"organization", "organisation", "org", "firm",
		"investors", "investor", "investor name",
	},
	SMS: {
		"sms", "mobile", "mobile number", "mobile phone",
		"cell", "cellphone", "cell phone", "mobile_phone",
	},
	LandlineNumber: {
		"landline", "landline number", "phone", "telephone",
		"phone number", "tel", "hq phone", "primary contact phone",
	},
	WhatsApp: {
		"whatsapp", "whatsapp number", "wa", "whatsapp_number",
	},
	Interests: {
		"interests", "interest", "tags", "categories",
		"preferred industry", "preferred verticals", "verticals",
		"primary industry sector", "description",
	},
	LinkedIn: {
		"linkedin", "linkedin url", "linkedin profile",
		"linkedin_url", "linkedin_profile",
	},
	Facebook: {
		"facebook", "facebook url", "facebook profile",
		"facebook_url", "facebook_profile",
	},
	Website: {
		"website", "web", "url", "site", "homepage",
		"web site", "web_site", "company website",
	},
	Address1: {
		"address1", "address line 1", "address_line_1",
		"address", "street", "street address",
		"hq address line 1", "hq address",
	},
	Address2: {
		"address2", "address line 2", "address_line_2",
		"address line2", "hq address line 2",
	},
	City: {
		"city", "town", "municipality",
		"hq city", "hq location",
	},
	Country: {
		"country", "country/territory", "nation",
		"hq country", "hq country/territory",
	},
	Postcode: {
		"postcode", "post code", "postal code", "zip",
		"zip code", "postal_code", "zipcode",
		"state_province_region", "hq post code",
	},
}

// headerAliases maps a normalized alias to its field.
var headerAliases = buildHeaderAliases()

func buildHeaderAliases() map[string]Field {
	out := make(map[string]Field)
	for _, f := range Fields {
		for _, alias := range FieldAliases[f] {
			key := normalizeHeader(alias)
			if _, exists := out[key]; !exists {
				out[key] = f
			}
		}
	}
	return out
}

// substringMappings drives the second inference pass.
// Order matters: contact channels and addresses come before company and
// person-name rules, and the bare "name" rule is last, so "Company Phone"
// lands on LANDLINE_NUMBER and "First Name" never falls through to FULLNAME.
//
// Distinctive rules match anywhere in the normalized header. Word rules are
// short or generic and only match at the start of a header word, so
// "Cancelled" is not a cell phone and "Ethnicity" is not a city.
var substringMappings = []struct {
	Substring string
	Target    Field
	Word      bool
}{
	{"email", Email, false},
	{"linkedin", LinkedIn, false},
	{"facebook", Facebook, false},
	{"whatsapp", WhatsApp, false},
	{"mobile", SMS, true},
	{"cellphone", SMS, false},
	{"cell", SMS, true},
	{"landline", LandlineNumber, false},
	{"telephone", LandlineNumber, false},
	{"phone", LandlineNumber, true},
	{"website", Website, false},
	{"homepage", Website, false},
	{"addressline2", Address2, false},
	{"address2", Address2, false},
	{"addressline1", Address1, false},
	{"address1", Address1, false},
	{"street", Address1, true},
	{"address", Address1, true},
	{"postcode", Postcode, false},
	{"postalcode", Postcode, false},
	{"zipcode", Postcode, false},
	{"postal", Postcode, true},
	{"city", City, true},
	{"town", City, true},
	{"country", Country, true},
	{"firstname", FirstName, false},
	{"givenname", FirstName, false},
	{"forename", FirstName, false},
	{"lastname", LastName, false},
	{"surname", LastName, false},
	{"familyname", LastName, false},
	{"fullname", FullName, false},
	{"contactname", FullName, false},
	{"companyname", CompanyName, false},
	{"company", CompanyName, true},
	{"organization", CompanyName, false},
	{"organisation", CompanyName, false},
	{"investor", CompanyName, true},
	{"interest", Interests, true},
	{"industry", Interests, true},
	{"vertical", Interests, true},
	{"categor", Interests, true},
	{"name", FullName, true},
}

// qualifierWords mark a header as describing something other than the
// contact attribute its other words name ("IP Address", "Company URL").
// Such headers are only matched by distinctive rules.
var qualifierWords = map[string]bool{
	"id":     true,
	"ip":     true,
	"uri":    true,
	"url":    true,
	"uuid":   true,
	"domain": true,
}

// matchSubstringRule returns the first rule matching a header, given its
// normalized form and its words.
func matchSubstringRule(key string, words []string) (Field, bool) {
	qualified := false
	for _, w := range words {
		if qualifierWords[w] {
			qualified = true
			break
		}
	}

	for _, sm := range substringMappings {
		if !sm.Word {
			if strings.Contains(key, sm.Substring) {
				return sm.Target, true
			}
			continue
		}
		if qualified {
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, sm.Substring) {
				return sm.Target, true
			}
		}
	}
	return 0, false
}

// Typo-tolerant matching thresholds for the third inference pass.
const (
	fuzzyHeaderThreshold = 0.85
	fuzzyMinAliasLength  = 6
)

// FieldMapping binds canonical fields to source column indexes for one file.
// A field is fed by at most one column and a column feeds at most one field.
type FieldMapping struct {
	headers  []string
	bindings map[Field]int
	bound    map[int]Field
}

// NewFieldMapping returns an empty mapping over the given header, which may
// be nil for header-less files.
func NewFieldMapping(header []string) FieldMapping {
	return FieldMapping{
		headers:  header,
		bindings: make(map[Field]int),
		bound:    make(map[int]Field),
	}
}

// SingleColumnMapping binds the only column of a header-less list to EMAIL.
func SingleColumnMapping() FieldMapping {
	m := NewFieldMapping(nil)
	m.Bind(Email, 0)
	return m
}

// Bind associates column col with field f. It reports false, leaving the
// mapping unchanged, when either side is already bound.
func (m *FieldMapping) Bind(f Field, col int) bool {
	if !f.Valid() || col < 0 {
		return false
	}
	if _, taken := m.bindings[f]; taken {
		return false
	}
	if _, taken := m.bound[col]; taken {
		return false
	}
	m.bindings[f] = col
	m.bound[col] = f
	return true
}

// Column returns the source column feeding f.
func (m FieldMapping) Column(f Field) (int, bool) {
	col, ok := m.bindings[f]
	return col, ok
}

// Bound reports whether column col already feeds a field.
func (m FieldMapping) Bound(col int) bool {
	_, ok := m.bound[col]
	return ok
}

// HasEmail reports whether the mapping can produce join keys.
func (m FieldMapping) HasEmail() bool {
	_, ok := m.bindings[Email]
	return ok
}

// Len returns the number of bound fields.
func (m FieldMapping) Len() int {
	return len(m.bindings)
}

// Describe renders the mapping as canonical field -> source label, in
// canonical order, for logs.
func (m FieldMapping) Describe() []string {
	out := make([]string, 0, len(m.bindings))
	for _, f := range Fields {
		col, ok := m.bindings[f]
		if !ok {
			continue
		}
		label := "#" + strconv.Itoa(col)
		if col < len(m.headers) {
			label = m.headers[col]
		}
		out = append(out, f.String()+"="+label)
	}
	return out
}

// InferMapping classifies header labels onto the canonical schema:
//  1. Normalize each label (lower-case, strip diacritics and punctuation)
//  2. Exact alias match, for every column
//  3. Ordered substring rules, most specific first, for columns still unbound;
//     generic rules only match at the start of a word
//  4. Typo-tolerant alias match (similarity >= 0.85) for columns still unbound
//
// Columns matching nothing are ignored. Fields matching nothing stay unmapped.
// Earlier columns win when two columns compete for one field.
func InferMapping(header []string) FieldMapping {
	m := NewFieldMapping(header)
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	for col, key := range normalized {
		if key == "" {
			continue
		}
		if target, ok := headerAliases[key]; ok {
			m.Bind(target, col)
		}
	}

	claimed := make(map[int]bool)
	for col, key := range normalized {
		if key == "" || m.Bound(col) {
			continue
		}
		// The first matching rule decides; a column whose field is taken is
		// dropped rather than demoted to a more generic rule.
		if target, ok := matchSubstringRule(key, headerWords(header[col])); ok {
			m.Bind(target, col)
			claimed[col] = true
		}
	}

	for col, key := range normalized {
		if key == "" || claimed[col] || m.Bound(col) {
			continue
		}
		if target, ok := fuzzyHeaderMatch(key, m); ok {
			m.Bind(target, col)
		}
	}

	return m
}

// fuzzyHeaderMatch returns the free field whose longer aliases are most
// similar to key. Ties go to the field earliest in canonical order.
func fuzzyHeaderMatch(key string, m FieldMapping) (Field, bool) {
	best := -1.0
	var target Field
	for _, f := range Fields {
		if _, taken := m.bindings[f]; taken {
			continue
		}
		for _, alias := range FieldAliases[f] {
			a := normalizeHeader(alias)
			if len(a) < fuzzyMinAliasLength {
				continue
			}
			if score := similarity(key, a); score >= fuzzyHeaderThreshold && score > best {
				best = score
				target = f
			}
		}
	}
	return target, best >= 0
}

// emailSniffRows bounds how many rows DetectEmailColumn inspects.
const emailSniffRows = 50

// DetectEmailColumn finds the unbound column whose sampled non-empty values
// are at least half valid email addresses. The highest ratio wins; ties go
// to the leftmost column.
func DetectEmailColumn(rows [][]string, m FieldMapping) (int, bool) {
	type tally struct{ filled, valid int }
	counts := make(map[int]*tally)

	for i, row := range rows {
		if i >= emailSniffRows {
			break
		}
		for col, cell := range row {
			if m.Bound(col) {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			t := counts[col]
			if t == nil {
				t = &tally{}
				counts[col] = t
			}
			t.filled++
			if _, ok := NormalizeEmail(cell); ok {
				t.valid++
			}
		}
	}

	cols := make([]int, 0, len(counts))
	for col := range counts {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	bestCol, bestRatio := -1, 0.0
	for _, col := range cols {
		t := counts[col]
		if t.valid == 0 {
			continue
		}
		ratio := float64(t.valid) / float64(t.filled)
		if ratio >= 0.5 && ratio > bestRatio {
			bestCol, bestRatio = col, ratio
		}
	}
	return bestCol, bestCol >= 0
}

// ResolveMapping builds the mapping for one file. Header-less single-column
// files use SingleColumnMapping; otherwise the header is inferred and, if no
// label names an email column, the rows are sniffed for one.
func ResolveMapping(header []string, rows [][]string) (FieldMapping, error) {
	var m FieldMapping
	switch {
	case header == nil && maxWidth(rows) <= 1:
		m = SingleColumnMapping()
	case header == nil:
		m = NewFieldMapping(nil)
	default:
		m = InferMapping(header)
	}

	if !m.HasEmail() {
		if col, ok := DetectEmailColumn(rows, m); ok {
			m.Bind(Email, col)
		}
	}
	if !m.HasEmail() {
		return m, ErrNoEmailColumn
	}
	return m, nil
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// normalizeHeader lowercases a header, strips diacritics, and drops every
// rune that is not a letter or digit.
func normalizeHeader(header string) string {
	s := stripDiacritics(strings.ToLower(strings.TrimSpace(header)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerWords splits a header into lower-case words at punctuation, spaces,
// letter/digit changes and camelCase humps: "HQ_PhoneNumber2" gives
// hq, phone, number, 2.
func headerWords(header string) []string {
	s := stripDiacritics(strings.TrimSpace(header))
	var (
		words []string
		cur   []rune
		prev  rune
	)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsDigit(prev) || (unicode.IsUpper(r) && unicode.IsLower(prev)) {
				flush()
			}
			cur = append(cur, unicode.ToLower(r))
		case unicode.IsDigit(r):
			if !unicode.IsDigit(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return words
}
