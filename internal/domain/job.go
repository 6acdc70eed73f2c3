package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const (
	JobTypeIngestion = "ingestion"
	JobTypeExport    = "export"
	JobTypeBackup    = "backup"
)

// Job is one unit of asynchronous work. The durable row is the source of truth
// for status; in-memory bookkeeping in the runner exists only for cancellation.
type Job struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"type"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Progress    float64        `gorm:"column:progress;not null;default:0" json:"progress"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata"`
	ResultRef   string         `gorm:"column:result_ref" json:"result_ref,omitempty"`
	ErrorMsg    string         `gorm:"column:error_msg" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// IsTerminal reports whether status permits no further transitions. Terminal
// jobs can only be deleted.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
