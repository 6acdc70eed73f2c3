package domain

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Thread is a canonical conversation, resolved or created by exact title.
type Thread struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title string    `gorm:"column:title;not null;uniqueIndex" json:"title"`
}

func (Thread) TableName() string { return "threads" }

// Message is the canonical unit of evidence. ContentHash covers sender,
// timestamp and text and is globally unique; rows are created only through the
// batched insert path and never mutated afterwards.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ThreadID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_thread_ts" json:"thread_id"`
	SenderName     string         `gorm:"column:sender_name" json:"sender_name"`
	TimestampUTC   float64        `gorm:"column:timestamp_utc;index;index:idx_messages_thread_ts" json:"timestamp_utc"`
	ContentText    string         `gorm:"column:content_text" json:"content_text"`
	ContentHash    string         `gorm:"column:content_hash;not null;uniqueIndex" json:"content_hash"`
	SourceBatchID  uuid.UUID      `gorm:"type:uuid;column:source_batch_id;index" json:"source_batch_id"`
	SourceFilePath string         `gorm:"column:source_file_path" json:"source_file_path"`
	Tags           datatypes.JSON `gorm:"column:tags" json:"tags"`
}

func (Message) TableName() string { return "messages" }

// MessageSearch is the write-time full-text mirror of messages. Every insert,
// update and delete on messages is reflected here in the same transaction.
type MessageSearch struct {
	MessageID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	ContentText string    `gorm:"column:content_text;index" json:"content_text"`
	SenderName  string    `gorm:"column:sender_name;index" json:"sender_name"`
	Tags        string    `gorm:"column:tags" json:"tags"`
}

func (MessageSearch) TableName() string { return "message_search" }
