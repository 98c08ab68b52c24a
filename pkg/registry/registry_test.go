package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "processed_files.db")
	reg, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg, path
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("Email\nx@example.com\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Email\nx@example.com\n"), 0o644))

	ida, err := Fingerprint(a)
	require.NoError(t, err)
	idb, err := Fingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, "a.csv", ida.Name)
	assert.Equal(t, int64(20), ida.Size)
	assert.Len(t, ida.Fingerprint, 64)
	assert.Equal(t, ida.Fingerprint, idb.Fingerprint, "same bytes, same fingerprint")

	_, err = Fingerprint(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	reg, _ := openTemp(t)
	id := FileID{Name: "a.csv", Fingerprint: "abc", Size: 10}

	_, ok, err := reg.Lookup(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runID := uuid.NewString()
	require.NoError(t, reg.Record(ctx, Entry{
		Name: id.Name, Fingerprint: id.Fingerprint, Size: id.Size,
		Status: StatusProcessed, RowsRead: 3, RowsMerged: 2, RowsDropped: 1,
		RunID: runID, ProcessedAt: when,
	}))

	got, ok, err := reg.Lookup(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusProcessed, got.Status)
	assert.Equal(t, 2, got.RowsMerged)
	assert.Equal(t, runID, got.RunID)
	assert.True(t, when.Equal(got.ProcessedAt))

	_, ok, err = reg.Lookup(ctx, FileID{Name: "a.csv", Fingerprint: "changed"})
	require.NoError(t, err)
	assert.False(t, ok, "new content under the same name is a new identity")
}

func TestRecord_Upserts(t *testing.T) {
	ctx := context.Background()
	reg, _ := openTemp(t)

	e := Entry{Name: "a.xlsx", Fingerprint: "f1", Status: StatusSkipped, Reason: "corrupt", RunID: "r1"}
	require.NoError(t, reg.Record(ctx, e))
	e.Status = StatusProcessed
	e.Reason = ""
	e.RunID = "r2"
	require.NoError(t, reg.Record(ctx, e))

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, StatusProcessed, all[0].Status)
	assert.Equal(t, "r2", all[0].RunID)

	assert.Error(t, reg.Record(ctx, Entry{Name: "x"}))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	reg, path := openTemp(t)
	require.NoError(t, reg.Record(ctx, Entry{Name: "a.csv", Fingerprint: "f", Status: StatusProcessed, RunID: "r"}))
	require.NoError(t, reg.Close())

	again, err := Open(ctx, path)
	require.NoError(t, err)
	defer again.Close()

	_, ok, err := again.Lookup(ctx, FileID{Name: "a.csv", Fingerprint: "f"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	reg, _ := openTemp(t)
	require.NoError(t, reg.Record(ctx, Entry{Name: "a.csv", Fingerprint: "f1", Status: StatusProcessed, RunID: "r"}))
	require.NoError(t, reg.Record(ctx, Entry{Name: "a.csv", Fingerprint: "f2", Status: StatusProcessed, RunID: "r"}))
	require.NoError(t, reg.Record(ctx, Entry{Name: "b.csv", Fingerprint: "f3", Status: StatusProcessed, RunID: "r"}))

	n, err := reg.Forget(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b.csv", all[0].Name)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}
