package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

func newExportEnv(t *testing.T) (services.ExportService, uuid.UUID) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	threads := repos.NewThreadRepo(db, log)
	messages := repos.NewMessageRepo(db, log)

	thread, err := threads.GetOrCreateByTitle(context.Background(), nil, "Alice Smith")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if err := messages.CreateBatch(context.Background(), nil, []*domain.Message{
		{
			ID:            uuid.New(),
			ThreadID:      thread.ID,
			SenderName:    "Alice Smith",
			TimestampUTC:  1577977445,
			ContentText:   "hello there",
			ContentHash:   "export-hash-1",
			SourceBatchID: uuid.New(),
		},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc, err := services.NewExportService(db, log, threads, messages, t.TempDir())
	if err != nil {
		t.Fatalf("export service: %v", err)
	}
	return svc, thread.ID
}

func exportJob(t *testing.T, threadID uuid.UUID, format string) *domain.Job {
	t.Helper()
	payload, _ := json.Marshal(domain.ExportPayload{ThreadID: threadID, Format: format})
	return &domain.Job{
		ID:      uuid.New(),
		JobType: domain.JobTypeExport,
		Payload: datatypes.JSON(payload),
	}
}

func TestExportThreadJSON(t *testing.T) {
	svc, threadID := newExportEnv(t)

	path, err := svc.HandleJob(context.Background(), exportJob(t, threadID, "json"), nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var out struct {
		Title    string `json:"title"`
		Messages []struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if out.Title != "Alice Smith" || len(out.Messages) != 1 || out.Messages[0].Text != "hello there" {
		t.Fatalf("unexpected export: %+v", out)
	}
}

func TestExportThreadMarkdown(t *testing.T) {
	svc, threadID := newExportEnv(t)

	path, err := svc.HandleJob(context.Background(), exportJob(t, threadID, "markdown"), nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "# Alice Smith") || !strings.Contains(text, "hello there") {
		t.Fatalf("unexpected markdown:\n%s", text)
	}
}

func TestExportLargeThreadIsComplete(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	threads := repos.NewThreadRepo(db, log)
	messages := repos.NewMessageRepo(db, log)

	thread, err := threads.GetOrCreateByTitle(context.Background(), nil, "Long Running Chat")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	const total = 620
	batchID := uuid.New()
	rows := make([]*domain.Message, 0, total)
	for i := 0; i < total; i++ {
		rows = append(rows, &domain.Message{
			ID:            uuid.New(),
			ThreadID:      thread.ID,
			SenderName:    "Alice Smith",
			TimestampUTC:  float64(1577977445 + i),
			ContentText:   fmt.Sprintf("message %d", i),
			ContentHash:   fmt.Sprintf("export-large-%d", i),
			SourceBatchID: batchID,
		})
	}
	if err := messages.CreateBatch(context.Background(), nil, rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc, err := services.NewExportService(db, log, threads, messages, t.TempDir())
	if err != nil {
		t.Fatalf("export service: %v", err)
	}
	path, err := svc.HandleJob(context.Background(), exportJob(t, thread.ID, "json"), nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var out struct {
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(out.Messages) != total {
		t.Fatalf("exported %d messages, want %d", len(out.Messages), total)
	}
	if out.Messages[0].Text != "message 0" || out.Messages[total-1].Text != fmt.Sprintf("message %d", total-1) {
		t.Fatalf("export lost ordering: first=%q last=%q", out.Messages[0].Text, out.Messages[total-1].Text)
	}
}

func TestExportUnknownThread(t *testing.T) {
	svc, _ := newExportEnv(t)
	if _, err := svc.HandleJob(context.Background(), exportJob(t, uuid.New(), "json"), nil); err == nil {
		t.Fatal("expected error for unknown thread")
	}
}
