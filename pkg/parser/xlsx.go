package parser

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the first worksheet of an Office Open XML workbook.
// Cells come back as their formatted display text, so formula errors such
// as #REF! arrive as text and are blanked during normalization.
func ReadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	table, err := buildTable(FormatXLSX, rows)
	if err != nil {
		return nil, err
	}
	table.Encoding = "utf-8"
	return table, nil
}
