package services_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

func TestDeadLetterPushAndReadRecent(t *testing.T) {
	svc, err := services.NewDeadLetterService(testutil.Logger(t), t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	batchID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := svc.Push(ctx, services.DeadLetterRecord{
			BatchID:    batchID,
			SourceFile: "messages/inbox/alice/message_1.html",
			Reason:     "timestamp cannot be 0",
			RawContent: fmt.Sprintf("message %d", i),
		}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	got, err := svc.ReadRecent(ctx, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("read %d records, want 2", len(got))
	}
	if got[0].RawContent != "message 2" || got[1].RawContent != "message 1" {
		t.Fatalf("records not newest-first: %+v", got)
	}
	if got[0].FailedAt.IsZero() {
		t.Fatal("failed_at must be stamped on push")
	}
}

func TestDeadLetterReadEmpty(t *testing.T) {
	svc, err := services.NewDeadLetterService(testutil.Logger(t), t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := svc.ReadRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}

func TestDeadLetterSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	svc, err := services.NewDeadLetterService(testutil.Logger(t), dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := svc.Push(ctx, services.DeadLetterRecord{BatchID: uuid.New(), RawContent: "good"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "dead_letters.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{truncated\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := svc.ReadRecent(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].RawContent != "good" {
		t.Fatalf("unexpected records: %+v", got)
	}
}
