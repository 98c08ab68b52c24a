package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"listmerge/pkg/schema"
)

// ErrNoKey is returned when a record without a valid, normalized email is
// offered to the table. Such records are never stored.
var ErrNoKey = errors.New("record has no valid email key")

// Policy decides which value survives when two records disagree on a field.
type Policy string

const (
	// PolicyFirstSeen keeps the value already in the table. Output then does
	// not depend on the order in which files are ingested.
	PolicyFirstSeen Policy = "first_seen"
	// PolicyLastWrite replaces the stored value with the incoming one.
	PolicyLastWrite Policy = "last_write"
)

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFirstSeen, PolicyLastWrite:
		return p, nil
	case "":
		return PolicyFirstSeen, nil
	default:
		return "", fmt.Errorf("unknown merge policy %q", s)
	}
}

// MergeOptions configures a ContactTable.
type MergeOptions struct {
	Policy Policy
	// UnionFields hold list-like values (e.g. INTERESTS) that are combined
	// instead of conflicting.
	UnionFields []schema.Field
}

// DefaultMergeOptions keeps first-seen values and unions INTERESTS.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{
		Policy:      PolicyFirstSeen,
		UnionFields: []schema.Field{schema.Interests},
	}
}

// Outcome classifies what a merge did to the table.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// MergeResult describes a single Merge call.
type MergeResult struct {
	Outcome   Outcome         `json:"outcome"`
	Conflicts []FieldConflict `json:"conflicts,omitempty"`
}

// TableStats contains aggregate counters since the table was created or the
// stats were last reset.
type TableStats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Conflicts int `json:"conflicts"`
}

// ContactTable is the deduplicated contact set keyed by normalized email.
// It is not safe for concurrent use; one worker owns it.
type ContactTable struct {
	records map[string]schema.Record
	opts    MergeOptions
	union   [schema.FieldCount]bool
	stats   TableStats
}

// NewContactTable returns an empty table.
func NewContactTable(opts MergeOptions) *ContactTable {
	if opts.Policy == "" {
		opts.Policy = PolicyFirstSeen
	}
	t := &ContactTable{
		records: make(map[string]schema.Record),
		opts:    opts,
	}
	for _, f := range opts.UnionFields {
		if f.Valid() && f != schema.Email {
			t.union[f] = true
		}
	}
	return t
}

// Merge folds rec into the table, keyed by its email:
//   - unknown key: the record is inserted as-is
//   - known key: empty fields are filled from rec, equal values are left
//     alone, union fields are combined, and differing values follow the
//     table's Policy
//   - FULLNAME is resolved last, after FIRSTNAME and LASTNAME
//
// Merging the same record twice is a no-op the second time.
func (t *ContactTable) Merge(rec schema.Record) (MergeResult, error) {
	key := rec.Email()
	if normalized, ok := schema.NormalizeEmail(key); !ok || normalized != key {
		return MergeResult{}, ErrNoKey
	}

	existing, ok := t.records[key]
	if !ok {
		t.records[key] = rec
		t.stats.Inserted++
		return MergeResult{Outcome: OutcomeInserted}, nil
	}

	merged := existing
	var conflicts []FieldConflict
	for _, f := range schema.Fields {
		if f == schema.FullName {
			continue
		}
		value, conflict := t.mergeField(key, f, existing[f], rec[f])
		merged[f] = value
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}
	full, conflict := t.mergeFullName(key, existing, rec, merged)
	merged[schema.FullName] = full
	if conflict != nil {
		conflicts = append(conflicts, *conflict)
	}
	t.stats.Conflicts += len(conflicts)

	if merged == existing {
		t.stats.Unchanged++
		return MergeResult{Outcome: OutcomeUnchanged, Conflicts: conflicts}, nil
	}
	t.records[key] = merged
	t.stats.Updated++
	return MergeResult{Outcome: OutcomeUpdated, Conflicts: conflicts}, nil
}

// Len returns the number of contacts.
func (t *ContactTable) Len() int {
	return len(t.records)
}

// Get looks up a contact by normalized email.
func (t *ContactTable) Get(email string) (schema.Record, bool) {
	rec, ok := t.records[email]
	return rec, ok
}

// Records returns every contact sorted by email.
func (t *ContactTable) Records() []schema.Record {
	keys := make([]string, 0, len(t.records))
	for k := range t.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]schema.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.records[k])
	}
	return out
}

// Stats returns the merge counters.
func (t *ContactTable) Stats() TableStats {
	return t.stats
}

// ResetStats zeroes the merge counters, e.g. after reloading prior output.
func (t *ContactTable) ResetStats() {
	t.stats = TableStats{}
}
