package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listmerge/pkg/schema"
)

const canonicalHeader = "EMAIL,FIRSTNAME,LASTNAME,FULLNAME,COMPANYNAME,SMS,LANDLINE_NUMBER,WHATSAPP,INTERESTS,LINKEDIN,FACEBOOK,WEBSITE,ADDRESS1,ADDRESS2,CITY,COUNTRY,POSTCODE\n"

func TestEncodeCSV(t *testing.T) {
	table := NewContactTable(DefaultMergeOptions())
	_, err := table.Merge(record("b@example.com", map[schema.Field]string{schema.City: "Oslo, Norway"}))
	require.NoError(t, err)
	_, err = table.Merge(record("a@example.com", map[schema.Field]string{schema.FirstName: "Ann"}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, table))

	assert.Equal(t, canonicalHeader+
		"a@example.com,Ann,,,,,,,,,,,,,,,\n"+
		"b@example.com,,,,,,,,,,,,,,\"Oslo, Norway\",,\n", buf.String())
}

func TestWriteCSV_AtomicAndRepeatable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "contacts_consolidated.csv")

	table := NewContactTable(DefaultMergeOptions())
	_, err := table.Merge(record("a@example.com", map[schema.Field]string{schema.FullName: "Ann Lee"}))
	require.NoError(t, err)

	require.NoError(t, WriteCSV(table, path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")

	reloaded, dropped, err := LoadCSV(path, DefaultMergeOptions())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	require.NoError(t, WriteCSV(reloaded, path))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadCSV_Missing(t *testing.T) {
	table, dropped, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), DefaultMergeOptions())
	require.NoError(t, err)
	assert.Zero(t, dropped)
	assert.Zero(t, table.Len())
}

func TestLoadCSV_ToleratesRewrittenOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	content := "\ufeffCITY,EMAIL,MX_OK\n" +
		"Rome,A@Example.com,true\n" +
		"Oslo,broken,false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, dropped, err := LoadCSV(path, DefaultMergeOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, table.Len())
	rec, ok := table.Get("a@example.com")
	require.True(t, ok)
	assert.Equal(t, "Rome", rec.Get(schema.City))
	assert.Equal(t, TableStats{}, table.Stats())
}

func TestLoadCSV_RequiresEmailColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte("CITY\nRome\n"), 0o644))

	_, _, err := LoadCSV(path, DefaultMergeOptions())
	assert.Error(t, err)
}

func TestWriteCSV_FailureKeepsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(canonicalHeader), 0o644))

	table := NewContactTable(DefaultMergeOptions())
	_, err := table.Merge(record("a@example.com", nil))
	require.NoError(t, err)

	blocked := filepath.Join(dir, "taken")
	require.NoError(t, os.Mkdir(blocked, 0o755))
	assert.Error(t, WriteCSV(table, blocked), "cannot replace a directory")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, canonicalHeader, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "failed write leaves no temp file")

	require.NoError(t, WriteCSV(table, path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, canonicalHeader+"a@example.com,,,,,,,,,,,,,,,,\n", string(data))
}
