package report

import (
	"go.uber.org/zap"
)

// FileStatus is the terminal state of one ingest file in a run.
type FileStatus string

const (
	// StatusProcessed: every row was merged and the flush succeeded.
	StatusProcessed FileStatus = "processed"
	// StatusSkipped: the content cannot be ingested (corrupt, unsupported,
	// no email column); recorded so it is not retried until it changes.
	StatusSkipped FileStatus = "skipped"
	// StatusFailed: a transient error (unreadable, vanished); retried later.
	StatusFailed FileStatus = "failed"
	// StatusAlreadyProcessed: the registry already holds this content.
	StatusAlreadyProcessed FileStatus = "already_processed"
)

// FileResult represents the outcome of one ProcessFile call.
type FileResult struct {
	Name         string     `json:"name"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	Status       FileStatus `json:"status"`
	Format       string     `json:"format,omitempty"`
	Encoding     string     `json:"encoding,omitempty"`
	Mapping      []string   `json:"mapping,omitempty"`
	RowsRead     int        `json:"rowsRead"`
	RowsMerged   int        `json:"rowsMerged"`
	RowsDropped  int        `json:"rowsDropped"`
	InvalidEmail int        `json:"invalidEmail"`
	MissingEmail int        `json:"missingEmail"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Unchanged    int        `json:"unchanged"`
	Conflicts    int        `json:"conflicts"`
	Warnings     int        `json:"warnings"`
	Reason       string     `json:"reason,omitempty"`
}

// Summary aggregates the file results of a run.
type Summary struct {
	RunID          string       `json:"runId"`
	Files          []FileResult `json:"files"`
	FilesProcessed int          `json:"filesProcessed"`
	FilesSkipped   int          `json:"filesSkipped"`
	FilesFailed    int          `json:"filesFailed"`
	FilesUnchanged int          `json:"filesUnchanged"`
	RowsRead       int          `json:"rowsRead"`
	RowsMerged     int          `json:"rowsMerged"`
	RowsDropped    int          `json:"rowsDropped"`
	Inserted       int          `json:"inserted"`
	Updated        int          `json:"updated"`
	Conflicts      int          `json:"conflicts"`
	Contacts       int          `json:"contacts"`
	Flushes        int          `json:"flushes"`
}

// NewSummary starts an empty summary for a run.
func NewSummary(runID string) *Summary {
	return &Summary{
		RunID: runID,
		Files: make([]FileResult, 0),
	}
}

// Add records a file result and folds it into the totals.
func (s *Summary) Add(r FileResult) {
	s.Files = append(s.Files, r)

	switch r.Status {
	case StatusProcessed:
		s.FilesProcessed++
	case StatusSkipped:
		s.FilesSkipped++
	case StatusFailed:
		s.FilesFailed++
	case StatusAlreadyProcessed:
		s.FilesUnchanged++
	}

	s.RowsRead += r.RowsRead
	s.RowsMerged += r.RowsMerged
	s.RowsDropped += r.RowsDropped
	s.Inserted += r.Inserted
	s.Updated += r.Updated
	s.Conflicts += r.Conflicts
}

// Clone returns a copy safe to hand to another goroutine.
func (s *Summary) Clone() Summary {
	out := *s
	out.Files = make([]FileResult, len(s.Files))
	copy(out.Files, s.Files)
	return out
}

// LogFields renders the totals as structured log fields.
func (s Summary) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("files_processed", s.FilesProcessed),
		zap.Int("files_skipped", s.FilesSkipped),
		zap.Int("files_failed", s.FilesFailed),
		zap.Int("files_unchanged", s.FilesUnchanged),
		zap.Int("rows_read", s.RowsRead),
		zap.Int("rows_merged", s.RowsMerged),
		zap.Int("rows_dropped", s.RowsDropped),
		zap.Int("inserted", s.Inserted),
		zap.Int("updated", s.Updated),
		zap.Int("conflicts", s.Conflicts),
		zap.Int("contacts", s.Contacts),
		zap.Int("flushes", s.Flushes),
	}
}

// LogFields renders one file result as structured log fields.
func (r FileResult) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("file", r.Name),
		zap.String("status", string(r.Status)),
		zap.Int("rows_read", r.RowsRead),
		zap.Int("rows_merged", r.RowsMerged),
		zap.Int("rows_dropped", r.RowsDropped),
		zap.Int("inserted", r.Inserted),
		zap.Int("updated", r.Updated),
		zap.Int("conflicts", r.Conflicts),
	}
	if r.Reason != "" {
		fields = append(fields, zap.String("reason", r.Reason))
	}
	return fields
}
