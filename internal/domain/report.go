package domain

import "time"

// ReportErrorLogCap bounds the per-batch error log. The error counter keeps
// incrementing past the cap; only the log itself is truncated.
const ReportErrorLogCap = 100

// IngestionReport accumulates per-batch accounting. It is persisted on both the
// success and the failure path; a partial report is never discarded.
type IngestionReport struct {
	BatchID   string `json:"batch_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time,omitempty"`
	Status    string `json:"status"`

	FilesFound        int `json:"files_found"`
	FilesParsed       int `json:"files_parsed"`
	MessagesFound     int `json:"messages_found"`
	MessagesCreated   int `json:"messages_created"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	Errors            int `json:"errors"`

	ErrorLog []string `json:"error_log"`
}

func NewIngestionReport(batchID string) *IngestionReport {
	return &IngestionReport{
		BatchID:   batchID,
		StartTime: time.Now().UTC().Format(time.RFC3339),
		Status:    BatchStatusPending,
		ErrorLog:  []string{},
	}
}

func (r *IngestionReport) LogError(msg string) {
	r.Errors++
	if len(r.ErrorLog) < ReportErrorLogCap {
		r.ErrorLog = append(r.ErrorLog, msg)
	}
}

func (r *IngestionReport) Finish(status string) {
	r.Status = status
	r.EndTime = time.Now().UTC().Format(time.RFC3339)
}
