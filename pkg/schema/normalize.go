package schema

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Row-level rejection reasons returned by Normalize.
var (
	ErrMissingEmail = errors.New("row has no email")
	ErrInvalidEmail = errors.New("row email is not a valid address")
)

// Pre-compiled regular expressions for value normalization.
var (
	emailRe      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// garbagePatterns blank any cell containing them: spreadsheet error values
// and the object replacement character left behind by pasted images.
var garbagePatterns = []string{
	"#VALUE!",
	"#REF!",
	"#DIV/0!",
	"#N/A",
	"#NAME?",
	"#NULL!",
	"#NUM!",
	"\ufffc",
}

// emptyEquivalents blank cells equal to them (case-insensitive).
var emptyEquivalents = map[string]bool{
	"-":    true,
	"--":   true,
	"n/a":  true,
	"none": true,
	"null": true,
	"nan":  true,
}

// IsGarbage reports whether a trimmed cell carries no usable data.
func IsGarbage(value string) bool {
	if value == "" {
		return false
	}
	if emptyEquivalents[strings.ToLower(value)] {
		return true
	}
	for _, p := range garbagePatterns {
		if strings.Contains(value, p) {
			return true
		}
	}
	return false
}

// CleanValue trims a cell, collapses inner whitespace, and blanks garbage.
func CleanValue(value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	if IsGarbage(s) {
		return ""
	}
	return s
}

// NormalizeEmail validates an address and returns its join-key form
// (trimmed, lower-cased, without a "mailto:" prefix or angle brackets).
func NormalizeEmail(value string) (string, bool) {
	s := strings.TrimSpace(value)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = strings.TrimSpace(s[7:])
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	if !emailRe.MatchString(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// SplitFullName splits "First Middle Last" into ("First", "Middle Last").
// A single token is treated as a first name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// Normalize turns one raw row into a canonical record:
//  1. Project cells through the mapping
//  2. Trim and collapse whitespace
//  3. Blank garbage and empty-equivalent values
//  4. Validate EMAIL; reject the row if missing or invalid
//  5. Lower-case EMAIL into its join-key form
//  6. Derive FIRSTNAME/LASTNAME from FULLNAME, or FULLNAME from the parts
//
// Normalize is pure: the same row and mapping always give the same result.
func Normalize(row []string, m FieldMapping) (Record, error) {
	var rec Record
	for f, col := range m.bindings {
		if col < len(row) {
			rec[f] = CleanValue(row[col])
		}
	}

	if rec[Email] == "" {
		return Record{}, ErrMissingEmail
	}
	email, ok := NormalizeEmail(rec[Email])
	if !ok {
		return Record{}, ErrInvalidEmail
	}
	rec[Email] = email

	if rec[FullName] != "" && (rec[FirstName] == "" || rec[LastName] == "") {
		first, last := SplitFullName(rec[FullName])
		if rec[FirstName] == "" {
			rec[FirstName] = first
		}
		if rec[LastName] == "" {
			rec[LastName] = last
		}
	}
	if rec[FullName] == "" && (rec[FirstName] != "" || rec[LastName] != "") {
		rec[FullName] = JoinName(rec[FirstName], rec[LastName])
	}

	return rec, nil
}

// JoinName builds a full name from its parts, skipping an empty part.
func JoinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

// stripDiacritics removes diacritical marks (accents) from a string.
// It decomposes the string into NFD form and removes combining marks (unicode.Mn).
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var result strings.Builder
	result.Grow(len(decomposed))

	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}
