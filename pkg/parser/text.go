package parser

import (
	"fmt"
	"strings"
)

// ParseText reads a plain list with one value per line. Blank lines are
// dropped; the result is always header-less and single-column.
func ParseText(data []byte) (*Table, error) {
	decoded, enc, err := DetectAndDecode(data)
	if err != nil {
		return nil, fmt.Errorf("encoding detection failed: %w", err)
	}

	table := &Table{Format: FormatText, Encoding: enc}
	for _, line := range strings.Split(string(decoded), "\n") {
		line = trimCell(line)
		if line == "" {
			continue
		}
		table.Rows = append(table.Rows, []string{line})
	}
	if len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return table, nil
}
