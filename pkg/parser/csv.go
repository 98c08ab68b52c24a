package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// candidateDelimiters are tried, in order, when sniffing a delimited file.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// ParseDelimited parses CSV-like bytes into a Table. When delim is zero the
// delimiter is sniffed from the first non-empty line.
// It handles mismatched column counts (pad/truncate), preamble rows above
// the real header, header-less address lists, and empty rows.
func ParseDelimited(data []byte, delim rune) (*Table, error) {
	decoded, enc, err := DetectAndDecode(data)
	if err != nil {
		return nil, fmt.Errorf("encoding detection failed: %w", err)
	}
	if delim == 0 {
		delim = sniffDelimiter(decoded)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = delim
	// Allow variable number of fields per record; buildTable pads/truncates.
	reader.FieldsPerRecord = -1
	// Support lazy quotes for less strict parsing of real-world CSV files.
	reader.LazyQuotes = true

	var records [][]string
	var warnings []ParseWarning
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			warnings = append(warnings, ParseWarning{
				Row:     line,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}
		records = append(records, row)
	}

	format := FormatCSV
	if delim == '\t' {
		format = FormatTSV
	}
	table, err := buildTable(format, records)
	if err != nil {
		return nil, err
	}
	table.Encoding = enc
	table.Delimiter = string(delim)
	table.Warnings = append(warnings, table.Warnings...)
	return table, nil
}

// sniffDelimiter picks the candidate occurring most often on the first
// non-empty line, outside quotes. Ties go to the earlier candidate; a line
// with none of them is read as comma-separated.
func sniffDelimiter(data []byte) rune {
	var first []byte
	for _, l := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(l)) > 0 {
			first = l
			break
		}
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range string(first) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
