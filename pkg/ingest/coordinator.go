// Package ingest drives contact files from the ingest directory through
// mapping, normalization and merging into the consolidated output.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"listmerge/pkg/engine"
	"listmerge/pkg/parser"
	"listmerge/pkg/registry"
	"listmerge/pkg/report"
	"listmerge/pkg/schema"
)

// DefaultExtensions are the file types picked up from the ingest directory.
// Legacy .xls is accepted so it is reported and skipped rather than ignored.
var DefaultExtensions = []string{".csv", ".tsv", ".txt", ".xlsx", ".xlsm", ".xls"}

// ReadTableFunc loads one ingest file.
type ReadTableFunc func(path string) (*parser.Table, error)

// OutputWriterFunc persists the table to path atomically.
type OutputWriterFunc func(t *engine.ContactTable, path string) error

// Options configures a Coordinator.
type Options struct {
	IngestDir   string
	OutputPath  string
	Extensions  []string
	SettleDelay time.Duration
	QueueSize   int
	Merge       engine.MergeOptions

	// ReadTable and WriteOutput default to parser.ReadTable and
	// engine.WriteCSV.
	ReadTable   ReadTableFunc
	WriteOutput OutputWriterFunc
}

// Coordinator owns the contact table and the registry for one process.
// ProcessFile and everything that calls it must run on a single goroutine;
// State and Summary may be called from anywhere.
type Coordinator struct {
	opts  Options
	exts  map[string]bool
	reg   *registry.Registry
	log   *zap.Logger
	runID string

	state atomic.Int32
	rest  State

	table        *engine.ContactTable
	bootstrapped bool

	mu      sync.Mutex
	summary *report.Summary
}

// New validates opts and returns an idle coordinator.
func New(opts Options, reg *registry.Registry, log *zap.Logger) (*Coordinator, error) {
	if opts.IngestDir == "" {
		return nil, errors.New("ingest dir is required")
	}
	if opts.OutputPath == "" {
		return nil, errors.New("output path is required")
	}
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.ReadTable == nil {
		opts.ReadTable = parser.ReadTable
	}
	if opts.WriteOutput == nil {
		opts.WriteOutput = engine.WriteCSV
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}

	runID := uuid.NewString()
	c := &Coordinator{
		opts:    opts,
		exts:    exts,
		reg:     reg,
		log:     log.With(zap.String("run_id", runID)),
		runID:   runID,
		rest:    StateIdle,
		summary: report.NewSummary(runID),
	}
	c.setState(StateIdle)
	return c, nil
}

// RunID identifies this process in logs and registry entries.
func (c *Coordinator) RunID() string {
	return c.runID
}

// State returns the current activity.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Summary returns a snapshot of the run so far.
func (c *Coordinator) Summary() report.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary.Clone()
}

func (c *Coordinator) record(r report.FileResult) {
	c.mu.Lock()
	c.summary.Add(r)
	c.mu.Unlock()
}

// Bootstrap loads the existing output into the table. Later calls are no-ops.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	if c.bootstrapped {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	table, dropped, err := engine.LoadCSV(c.opts.OutputPath, c.opts.Merge)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	c.table = table
	c.bootstrapped = true

	c.mu.Lock()
	c.summary.Contacts = table.Len()
	c.mu.Unlock()

	c.log.Info("ingest: loaded existing output",
		zap.String("path", c.opts.OutputPath),
		zap.Int("contacts", table.Len()),
		zap.Int("dropped", dropped))
	return nil
}

// Scan lists candidate files in the ingest directory sorted by name.
// Dotfiles, directories, the output file and unknown extensions are left
// out.
func (c *Coordinator) Scan(ctx context.Context) ([]string, error) {
	prev := c.State()
	c.setState(StateScanning)
	defer c.setState(prev)

	entries, err := os.ReadDir(c.opts.IngestDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.opts.IngestDir, err)
	}

	var paths []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(c.opts.IngestDir, e.Name())
		if c.accepts(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Coordinator) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	if !c.exts[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	return !samePath(path, c.opts.OutputPath)
}

func samePath(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

// ProcessFile is the single per-file pipeline used by both the backlog scan
// and watch events:
//  1. Fingerprint the file; an OS error is transient and reported as failed
//  2. Skip content the registry already holds
//  3. Read the table and resolve the field mapping; a parse or mapping
//     error is permanent for this content, so it is registered as skipped
//  4. Normalize and merge every row in order, counting dropped rows
//  5. Flush: write the output, then register the file
//
// The returned error is reserved for persistence failures (output or
// registry); the registry is never advanced when the output write failed.
func (c *Coordinator) ProcessFile(ctx context.Context, path string) (report.FileResult, error) {
	if err := c.Bootstrap(ctx); err != nil {
		return report.FileResult{}, err
	}
	c.setState(StateProcessingFile)
	defer c.setState(c.rest)

	name := filepath.Base(path)
	log := c.log.With(zap.String("file", name))
	result := report.FileResult{Name: name}

	id, err := registry.Fingerprint(path)
	if err != nil {
		result.Status = report.StatusFailed
		result.Reason = err.Error()
		log.Warn("ingest: file unreadable, will retry", zap.Error(err))
		c.record(result)
		return result, nil
	}
	result.Fingerprint = id.Fingerprint

	_, seen, err := c.reg.Lookup(ctx, id)
	if err != nil {
		return result, err
	}
	if seen {
		result.Status = report.StatusAlreadyProcessed
		log.Debug("ingest: already processed")
		c.record(result)
		return result, nil
	}

	table, mapping, err := c.load(path)
	if err != nil {
		if isTransient(err) {
			result.Status = report.StatusFailed
			result.Reason = err.Error()
			log.Warn("ingest: file unreadable, will retry", zap.Error(err))
			c.record(result)
			return result, nil
		}
		result.Status = report.StatusSkipped
		result.Reason = err.Error()
		if table != nil {
			result.Format = string(table.Format)
			result.Encoding = table.Encoding
		}
		log.Warn("ingest: skipping file", zap.Error(err))
		if err := c.register(ctx, id, result); err != nil {
			return result, err
		}
		c.record(result)
		return result, nil
	}

	result.Format = string(table.Format)
	result.Encoding = table.Encoding
	result.Mapping = mapping.Describe()
	result.Warnings = len(table.Warnings)
	log.Info("ingest: mapped columns",
		zap.String("format", result.Format),
		zap.String("encoding", result.Encoding),
		zap.Strings("mapping", result.Mapping),
		zap.Int("warnings", result.Warnings))

	c.setState(StateMerging)
	c.mergeRows(table.Rows, mapping, &result, log)

	c.setState(StateFlushing)
	if err := c.opts.WriteOutput(c.table, c.opts.OutputPath); err != nil {
		return result, fmt.Errorf("flush after %s: %w", name, err)
	}
	result.Status = report.StatusProcessed
	if err := c.register(ctx, id, result); err != nil {
		return result, err
	}

	c.mu.Lock()
	c.summary.Add(result)
	c.summary.Contacts = c.table.Len()
	c.summary.Flushes++
	c.mu.Unlock()

	log.Info("ingest: file merged", result.LogFields()...)
	return result, nil
}

func (c *Coordinator) load(path string) (*parser.Table, schema.FieldMapping, error) {
	table, err := c.opts.ReadTable(path)
	if err != nil {
		return nil, schema.FieldMapping{}, err
	}
	mapping, err := schema.ResolveMapping(table.Header, table.Rows)
	if err != nil {
		return table, schema.FieldMapping{}, err
	}
	return table, mapping, nil
}

func (c *Coordinator) mergeRows(rows [][]string, mapping schema.FieldMapping, result *report.FileResult, log *zap.Logger) {
	before := c.table.Stats()
	for i, row := range rows {
		result.RowsRead++
		rec, err := schema.Normalize(row, mapping)
		switch {
		case errors.Is(err, schema.ErrMissingEmail):
			result.MissingEmail++
			result.RowsDropped++
			continue
		case errors.Is(err, schema.ErrInvalidEmail):
			result.InvalidEmail++
			result.RowsDropped++
			continue
		case err != nil:
			result.RowsDropped++
			continue
		}

		merged, err := c.table.Merge(rec)
		if err != nil {
			result.RowsDropped++
			continue
		}
		result.RowsMerged++
		for _, fc := range merged.Conflicts {
			log.Debug("ingest: field conflict",
				zap.Int("row", i+1),
				zap.String("email", fc.Email),
				zap.String("field", fc.Field),
				zap.String("existing", fc.Existing),
				zap.String("incoming", fc.Incoming),
				zap.String("resolution", string(fc.Resolution)))
		}
	}
	after := c.table.Stats()
	result.Inserted = after.Inserted - before.Inserted
	result.Updated = after.Updated - before.Updated
	result.Unchanged = after.Unchanged - before.Unchanged
	result.Conflicts = after.Conflicts - before.Conflicts
}

func (c *Coordinator) register(ctx context.Context, id registry.FileID, r report.FileResult) error {
	status := registry.StatusProcessed
	if r.Status == report.StatusSkipped {
		status = registry.StatusSkipped
	}
	err := c.reg.Record(ctx, registry.Entry{
		Name:        id.Name,
		Fingerprint: id.Fingerprint,
		Size:        id.Size,
		Status:      status,
		RowsRead:    r.RowsRead,
		RowsMerged:  r.RowsMerged,
		RowsDropped: r.RowsDropped,
		Reason:      r.Reason,
		RunID:       c.runID,
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", id.Name, err)
	}
	return nil
}

// isTransient reports errors that come from the OS rather than the file's
// content, e.g. the file vanished or is locked.
func isTransient(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe)
}

// RunOnce loads the existing output and processes the backlog in name
// order. It stops at the first persistence error.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	if err := c.Bootstrap(ctx); err != nil {
		return err
	}
	paths, err := c.Scan(ctx)
	if err != nil {
		return err
	}
	c.log.Info("ingest: backlog scanned", zap.Int("files", len(paths)))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.ProcessFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}
