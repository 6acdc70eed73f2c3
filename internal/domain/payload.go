package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JobPayload is the per-kind input to a job, validated at submission time.
// Each kind carries only the fields relevant to it.
type JobPayload interface {
	Kind() string
	Validate() error
}

// IngestionPayload drives one ingestion job over one batch.
type IngestionPayload struct {
	BatchID     uuid.UUID `json:"batch_id"`
	Path        string    `json:"path"`
	IsDirectory bool      `json:"is_directory"`
}

func (IngestionPayload) Kind() string { return JobTypeIngestion }

func (p IngestionPayload) Validate() error {
	if p.BatchID == uuid.Nil {
		return fmt.Errorf("missing batch_id")
	}
	if strings.TrimSpace(p.Path) == "" {
		return fmt.Errorf("missing path")
	}
	return nil
}

// ExportPayload drives one export job over a thread.
type ExportPayload struct {
	ThreadID uuid.UUID `json:"thread_id"`
	Format   string    `json:"format"`
}

func (ExportPayload) Kind() string { return JobTypeExport }

// BackupPayload drives one database backup job. Backups carry no inputs; the
// service derives the target file from the current date.
type BackupPayload struct{}

func (BackupPayload) Kind() string { return JobTypeBackup }

func (BackupPayload) Validate() error { return nil }

func (p ExportPayload) Validate() error {
	if p.ThreadID == uuid.Nil {
		return fmt.Errorf("missing thread_id")
	}
	switch strings.ToLower(strings.TrimSpace(p.Format)) {
	case "json", "markdown":
		return nil
	default:
		return fmt.Errorf("unsupported export format %q", p.Format)
	}
}
