package engine

import (
	"sort"
	"strings"

	"listmerge/pkg/schema"
)

// Resolution records which side won a field conflict.
type Resolution string

const (
	ResolutionKeptExisting Resolution = "kept_existing"
	ResolutionTookIncoming Resolution = "took_incoming"
)

// FieldConflict represents two different non-empty values for one field of
// the same contact. Values differing only in case are not conflicts.
type FieldConflict struct {
	Email      string     `json:"email"`
	Field      string     `json:"field"`
	Existing   string     `json:"existing"`
	Incoming   string     `json:"incoming"`
	Resolution Resolution `json:"resolution"`
}

// mergeField combines one field of an existing and an incoming record.
// It returns the merged value and, when the two sides disagree, the conflict
// together with how the policy resolved it.
func (t *ContactTable) mergeField(email string, f schema.Field, existing, incoming string) (string, *FieldConflict) {
	switch {
	case incoming == "":
		return existing, nil
	case existing == "":
		return incoming, nil
	case strings.EqualFold(existing, incoming):
		return existing, nil
	case t.union[f]:
		return unionValues(existing, incoming), nil
	}

	conflict := &FieldConflict{
		Email:    email,
		Field:    f.String(),
		Existing: existing,
		Incoming: incoming,
	}
	if t.opts.Policy == PolicyLastWrite {
		conflict.Resolution = ResolutionTookIncoming
		return incoming, conflict
	}
	conflict.Resolution = ResolutionKeptExisting
	return existing, conflict
}

// mergeFullName resolves FULLNAME once the name parts are merged. A full
// name that is empty or equals its own record's "first last" is derived and
// carries nothing of its own: when both sides are derived the value is
// rebuilt from the merged parts, and an explicit value beats a derived one.
// Only two explicit values can conflict.
func (t *ContactTable) mergeFullName(email string, existing, incoming, merged schema.Record) (string, *FieldConflict) {
	existingDerived := derivedFullName(existing)
	incomingDerived := derivedFullName(incoming)
	switch {
	case existingDerived && incomingDerived:
		if existing[schema.FullName] == "" && incoming[schema.FullName] == "" {
			return "", nil
		}
		rebuilt := schema.JoinName(merged[schema.FirstName], merged[schema.LastName])
		if strings.EqualFold(rebuilt, existing[schema.FullName]) {
			return existing[schema.FullName], nil
		}
		return rebuilt, nil
	case existingDerived:
		return incoming[schema.FullName], nil
	case incomingDerived:
		return existing[schema.FullName], nil
	}
	return t.mergeField(email, schema.FullName, existing[schema.FullName], incoming[schema.FullName])
}

func derivedFullName(r schema.Record) bool {
	full := r[schema.FullName]
	return full == "" || strings.EqualFold(full, schema.JoinName(r[schema.FirstName], r[schema.LastName]))
}

// unionValues merges two comma- or semicolon-separated lists into a sorted,
// de-duplicated ", "-joined list. The result does not depend on argument
// order.
func unionValues(a, b string) string {
	seen := make(map[string]bool)
	var items []string
	for _, v := range []string{a, b} {
		for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
			item = strings.TrimSpace(item)
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, item)
		}
	}
	sort.Strings(items)
	return strings.Join(items, ", ")
}
