package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"listmerge/pkg/parser"
	"listmerge/pkg/schema"
)

// EncodeCSV writes the table as canonical CSV: the schema header, then one
// row per contact sorted by email.
func EncodeCSV(w io.Writer, t *ContactTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Header()); err != nil {
		return err
	}
	for _, rec := range t.Records() {
		if err := cw.Write(rec.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSV replaces path with the table's canonical CSV. Readers see either
// the previous file or the complete new one, never a partial write.
func WriteCSV(t *ContactTable, path string) error {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, t); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := writeFileAtomicDurable(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", path, err)
	}
	return nil
}

// LoadCSV rebuilds a table from a previously written output file. A missing
// file yields an empty table. Columns are matched by canonical name, so a
// downstream tool may reorder or add columns; rows without a valid email are
// dropped and counted. The returned table starts with zeroed stats.
func LoadCSV(path string, opts MergeOptions) (*ContactTable, int, error) {
	t := NewContactTable(opts)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read output %s: %w", path, err)
	}
	decoded, _, err := parser.DetectAndDecode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode output %s: %w", path, err)
	}
	if len(bytes.TrimSpace(decoded)) == 0 {
		return t, 0, nil
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read output header %s: %w", path, err)
	}

	columns := make(map[int]schema.Field, len(header))
	hasEmail := false
	for i, name := range header {
		if f, ok := schema.ParseField(name); ok {
			columns[i] = f
			hasEmail = hasEmail || f == schema.Email
		}
	}
	if !hasEmail {
		return nil, 0, fmt.Errorf("output %s has no EMAIL column", path)
	}

	dropped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read output %s: %w", path, err)
		}

		var rec schema.Record
		for i, cell := range row {
			if f, ok := columns[i]; ok {
				rec[f] = schema.CleanValue(cell)
			}
		}
		email, ok := schema.NormalizeEmail(rec[schema.Email])
		if !ok {
			dropped++
			continue
		}
		rec[schema.Email] = email
		if _, err := t.Merge(rec); err != nil {
			dropped++
		}
	}

	t.ResetStats()
	return t, dropped, nil
}

// writeFileAtomicDurable replaces path with data through a synced temp file
// in the same directory, then syncs the directory so the rename survives a
// crash.
func writeFileAtomicDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, perm, renameio.WithTempDir(dir)); err != nil {
		return err
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
