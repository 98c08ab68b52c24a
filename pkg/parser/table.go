package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for extensions no reader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned when a file holds no data rows.
	ErrEmptyFile = errors.New("file contains no data rows")
)

// Format names the reader that produced a Table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatText Format = "text"
)

// ParseWarning represents a non-fatal issue encountered during parsing.
type ParseWarning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Table is the raw content of one ingest file. Header is nil for
// header-less files (plain address lists, tables starting with data).
type Table struct {
	Format    Format         `json:"format"`
	Encoding  string         `json:"encoding,omitempty"`
	Delimiter string         `json:"delimiter,omitempty"`
	Header    []string       `json:"header"`
	Rows      [][]string     `json:"rows"`
	Warnings  []ParseWarning `json:"warnings"`
}

// extensions maps lower-cased file extensions to their format.
var extensions = map[string]Format{
	".csv":  FormatCSV,
	".tsv":  FormatTSV,
	".txt":  FormatText,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
}

// Supported reports whether ReadTable has a reader for path's extension.
func Supported(path string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ReadTable reads one ingest file into a Table, choosing the reader by
// extension. Legacy .xls workbooks are reported as ErrUnsupportedFormat.
func ReadTable(path string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if format == FormatXLSX {
		return ReadXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatText:
		return ParseText(data)
	case FormatTSV:
		return ParseDelimited(data, '\t')
	default:
		return ParseDelimited(data, 0)
	}
}

// headerScanRows is how many leading records may be searched for the header.
const headerScanRows = 5

// buildTable drops empty records, locates the header, and squares data rows
// to the header width.
func buildTable(format Format, records [][]string) (*Table, error) {
	var nonEmpty [][]string
	for _, r := range records {
		if !blankRow(r) {
			nonEmpty = append(nonEmpty, r)
		}
	}
	if len(nonEmpty) == 0 {
		return nil, ErrEmptyFile
	}

	table := &Table{Format: format}
	header, start := splitHeader(nonEmpty)
	if header == nil {
		table.Rows = nonEmpty
		return table, nil
	}

	for i := range header {
		header[i] = trimCell(header[i])
	}
	table.Header = header
	if start > 1 {
		table.Warnings = append(table.Warnings, ParseWarning{
			Row:     1,
			Message: fmt.Sprintf("skipped %d preamble rows above the header", start-1),
		})
	}

	headerCount := len(header)
	for i, row := range nonEmpty[start:] {
		rowNum := start + i + 1
		if len(row) < headerCount {
			table.Warnings = append(table.Warnings, ParseWarning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d; padding with empty values", len(row), headerCount),
			})
			padded := make([]string, headerCount)
			copy(padded, row)
			row = padded
		} else if len(row) > headerCount {
			table.Warnings = append(table.Warnings, ParseWarning{
				Row:     rowNum,
				Message: fmt.Sprintf("row has %d columns, expected %d; truncating extra columns", len(row), headerCount),
			})
			row = row[:headerCount]
		}
		table.Rows = append(table.Rows, row)
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}

// splitHeader returns the header row and the index of the first data row.
// The header is the first of the leading records with at least two filled
// cells (or the first record when none qualifies). A candidate holding an
// email address is data, which makes the whole file header-less.
func splitHeader(records [][]string) ([]string, int) {
	candidate := 0
	for i := 0; i < len(records) && i < headerScanRows; i++ {
		if filledCells(records[i]) >= 2 {
			candidate = i
			break
		}
	}

	for _, cell := range records[candidate] {
		if looksLikeEmail(cell) {
			return nil, 0
		}
	}
	header := make([]string, len(records[candidate]))
	copy(header, records[candidate])
	return header, candidate + 1
}

func filledCells(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func blankRow(row []string) bool {
	return filledCells(row) == 0
}

// looksLikeEmail is a loose check used only to tell data from header labels.
func looksLikeEmail(cell string) bool {
	s := strings.TrimSpace(cell)
	at := strings.Index(s, "@")
	if at <= 0 || strings.ContainsAny(s, " \t") {
		return false
	}
	return strings.Contains(s[at+1:], ".")
}

// trimCell trims surrounding whitespace and stray byte order marks.
func trimCell(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\ufeff"))
}
