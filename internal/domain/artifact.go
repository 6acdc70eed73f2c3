package domain

import (
	"github.com/google/uuid"
)

const (
	ArtifactStatusParsed  = "parsed"
	ArtifactStatusSkipped = "skipped"
	ArtifactStatusError   = "error"
)

// SourceArtifact records one physical file seen during a batch. RawHash is
// unique across all batches ever run; it is the global whole-file dedup ledger.
type SourceArtifact struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID  uuid.UUID `gorm:"type:uuid;not null;index" json:"batch_id"`
	FilePath string    `gorm:"column:file_path" json:"file_path"`
	RawHash  string    `gorm:"column:raw_hash;not null;uniqueIndex" json:"raw_hash"`
	Status   string    `gorm:"column:status;not null" json:"status"`
}

func (SourceArtifact) TableName() string { return "source_artifacts" }
