package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	BatchStatusPending    = "pending"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

const (
	SourceTypeGenericZip     = "generic_zip"
	SourceTypeLocalDirectory = "local_directory"
	SourceTypeLocalFile      = "local_file"
)

// ImportBatch is one import operation over one source archive or directory.
// Its status is persisted independently from the paired Job and finalized
// exactly once, on completion or failure.
type ImportBatch struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceType  string         `gorm:"column:source_type;not null" json:"source_type"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	FileName    string         `gorm:"column:file_name" json:"file_name"`
	Report      datatypes.JSON `gorm:"column:report" json:"report,omitempty"`
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (ImportBatch) TableName() string { return "import_batches" }

// IngestionJob is the lightweight progress row kept alongside ImportBatch,
// keyed by the batch id. Pollers that predate the unified jobs table read it.
type IngestionJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Status      string     `gorm:"column:status;not null" json:"status"`
	Progress    float64    `gorm:"column:progress;not null;default:0" json:"progress"`
	ErrorMsg    string     `gorm:"column:error_msg" json:"error_msg,omitempty"`
	StartedAt   time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (IngestionJob) TableName() string { return "ingestion_jobs" }
