package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/repos"
)

// ExportService renders a thread to a flat file. It runs as a job handler so
// large threads never block a request.
type ExportService interface {
	HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error)
}

type exportService struct {
	db       *gorm.DB
	log      *logger.Logger
	threads  repos.ThreadRepo
	messages repos.MessageRepo
	dir      string
}

func NewExportService(db *gorm.DB, baseLog *logger.Logger, threads repos.ThreadRepo, messages repos.MessageRepo, exportDir string) (ExportService, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", exportDir, err)
	}
	return &exportService{
		db:       db,
		log:      baseLog.With("service", "ExportService"),
		threads:  threads,
		messages: messages,
		dir:      exportDir,
	}, nil
}

type exportedMessage struct {
	Sender    string  `json:"sender"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
}

func (s *exportService) HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error) {
	var payload domain.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode export payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return "", fmt.Errorf("invalid export payload: %w", err)
	}

	thread, err := s.threads.GetByID(ctx, nil, payload.ThreadID)
	if err != nil {
		return "", fmt.Errorf("load thread: %w", err)
	}
	if thread == nil {
		return "", fmt.Errorf("thread %s not found", payload.ThreadID)
	}

	msgs, err := s.loadAllMessages(ctx, thread.ID)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}
	if update != nil {
		update(50, fmt.Sprintf("rendering %d messages", len(msgs)))
	}

	format := strings.ToLower(strings.TrimSpace(payload.Format))
	name := fmt.Sprintf("%s_%d.%s", thread.ID, time.Now().Unix(), exportExt(format))
	dest := filepath.Join(s.dir, name)

	var data []byte
	switch format {
	case "json":
		data, err = renderJSON(thread, msgs)
	case "markdown":
		data = renderMarkdown(thread, msgs)
	default:
		return "", fmt.Errorf("unsupported export format %q", payload.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	s.log.Info("thread exported", "thread_id", thread.ID, "format", format, "path", dest, "messages", len(msgs))
	return dest, nil
}

// exportPageSize bounds each page while draining a thread; list calls clamp
// non-positive limits, so exports must page explicitly to see every row.
const exportPageSize = 500

func (s *exportService) loadAllMessages(ctx context.Context, threadID uuid.UUID) ([]*domain.Message, error) {
	var all []*domain.Message
	for offset := 0; ; offset += exportPageSize {
		page, err := s.messages.ListByThread(ctx, nil, threadID, exportPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
	}
}

func exportExt(format string) string {
	if format == "markdown" {
		return "md"
	}
	return "json"
}

func renderJSON(thread *domain.Thread, msgs []*domain.Message) ([]byte, error) {
	out := struct {
		ThreadID string            `json:"thread_id"`
		Title    string            `json:"title"`
		Messages []exportedMessage `json:"messages"`
	}{
		ThreadID: thread.ID.String(),
		Title:    thread.Title,
		Messages: make([]exportedMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, exportedMessage{
			Sender:    m.SenderName,
			Timestamp: m.TimestampUTC,
			Text:      m.ContentText,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

func renderMarkdown(thread *domain.Thread, msgs []*domain.Message) []byte {
	var b strings.Builder
	b.WriteString("# " + thread.Title + "\n\n")
	for _, m := range msgs {
		ts := time.Unix(int64(m.TimestampUTC), 0).UTC().Format("2006-01-02 15:04:05")
		b.WriteString(fmt.Sprintf("**%s** (%s):\n\n%s\n\n", m.SenderName, ts, m.ContentText))
	}
	return []byte(b.String())
}
