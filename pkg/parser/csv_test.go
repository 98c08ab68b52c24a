package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelimited_Basic(t *testing.T) {
	data := []byte("Email,First Name,Last Name\njohn@example.com,John,Doe\n\n,,\njane@example.com,Jane,Roe\n")

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, table.Format)
	assert.Equal(t, ",", table.Delimiter)
	assert.Equal(t, []string{"Email", "First Name", "Last Name"}, table.Header)
	assert.Equal(t, [][]string{
		{"john@example.com", "John", "Doe"},
		{"jane@example.com", "Jane", "Roe"},
	}, table.Rows)
	assert.Empty(t, table.Warnings)
}

func TestParseDelimited_SniffsSemicolon(t *testing.T) {
	data := []byte("\"Name; Full\";Email;City\nAnn;ann@example.com;Oslo\n")

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Equal(t, ";", table.Delimiter)
	assert.Equal(t, []string{"Name; Full", "Email", "City"}, table.Header)
	assert.Equal(t, [][]string{{"Ann", "ann@example.com", "Oslo"}}, table.Rows)
}

func TestParseDelimited_PadsAndTruncates(t *testing.T) {
	data := []byte("Email,Name\na@example.com\nb@example.com,Bee,extra\n")

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"a@example.com", ""},
		{"b@example.com", "Bee"},
	}, table.Rows)
	require.Len(t, table.Warnings, 2)
	assert.Contains(t, table.Warnings[0].Message, "padding")
	assert.Contains(t, table.Warnings[1].Message, "truncating")
}

func TestParseDelimited_SkipsPreamble(t *testing.T) {
	data := []byte("Investor export\nGenerated 2024-01-01\nInvestor Name,HQ Email\nAcme,info@acme.io\n")

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"Investor Name", "HQ Email"}, table.Header)
	assert.Equal(t, [][]string{{"Acme", "info@acme.io"}}, table.Rows)
	require.NotEmpty(t, table.Warnings)
	assert.Contains(t, table.Warnings[0].Message, "preamble")
}

func TestParseDelimited_HeaderlessData(t *testing.T) {
	data := []byte("ann@example.com,Ann\nbob@example.com,Bob\n")

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Nil(t, table.Header)
	assert.Len(t, table.Rows, 2)
}

func TestParseDelimited_Empty(t *testing.T) {
	_, err := ParseDelimited([]byte("\n\n"), 0)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ParseDelimited([]byte("Email,Name\n"), 0)
	assert.ErrorIs(t, err, ErrEmptyFile, "header without rows")
}

func TestParseDelimited_StripsBOMFromHeader(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Email,Name\nz@example.com,Zed\n")...)

	table, err := ParseDelimited(data, 0)
	require.NoError(t, err)

	assert.Equal(t, "utf-8-bom", table.Encoding)
	assert.Equal(t, "Email", table.Header[0])
}

func TestParseText(t *testing.T) {
	table, err := ParseText([]byte("a@example.com\r\n\r\n  b@example.com  \na@example.com\n"))
	require.NoError(t, err)

	assert.Equal(t, FormatText, table.Format)
	assert.Nil(t, table.Header)
	assert.Equal(t, [][]string{{"a@example.com"}, {"b@example.com"}, {"a@example.com"}}, table.Rows)

	_, err = ParseText([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestReadTable_Dispatch(t *testing.T) {
	dir := t.TempDir()

	tsv := filepath.Join(dir, "list.TSV")
	require.NoError(t, os.WriteFile(tsv, []byte("Email\tCity\nq@example.com\tRome\n"), 0o644))
	table, err := ReadTable(tsv)
	require.NoError(t, err)
	assert.Equal(t, FormatTSV, table.Format)
	assert.Equal(t, []string{"Email", "City"}, table.Header)

	txt := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(txt, []byte("q@example.com\n"), 0o644))
	table, err = ReadTable(txt)
	require.NoError(t, err)
	assert.Equal(t, FormatText, table.Format)

	_, err = ReadTable(filepath.Join(dir, "legacy.xls"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.True(t, Supported("a.CSV"))
	assert.False(t, Supported("a.pdf"))
}
