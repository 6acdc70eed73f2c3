package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
)

func newTestBatch() *domain.ImportBatch {
	return &domain.ImportBatch{
		ID:         uuid.New(),
		SourceType: domain.SourceTypeGenericZip,
		Status:     domain.BatchStatusPending,
		FileName:   "export.zip",
		StartedAt:  time.Now().UTC(),
	}
}

func TestBatchRepoCreateAlsoCreatesIngestionJob(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batch := newTestBatch()
	if err := repo.Create(ctx, nil, batch); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if got == nil || got.FileName != "export.zip" {
		t.Fatalf("unexpected batch: %+v", got)
	}

	job, err := repo.GetIngestionJob(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("get ingestion job: %v", err)
	}
	if job == nil || job.ID != batch.ID {
		t.Fatalf("ingestion job row must share the batch id, got %+v", job)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("ingestion job status = %s, want pending", job.Status)
	}
}

func TestBatchRepoListRecentOrder(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	older := newTestBatch()
	older.StartedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTestBatch()
	for _, b := range []*domain.ImportBatch{older, newer} {
		if err := repo.Create(ctx, nil, b); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListRecent(ctx, nil, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("list = %d batches, want 2", len(got))
	}
	if got[0].ID != newer.ID {
		t.Fatal("newest batch must come first")
	}
}

func TestBatchRepoUpdateIngestionJobTerminal(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batch := newTestBatch()
	if err := repo.Create(ctx, nil, batch); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateIngestionJob(ctx, nil, batch.ID, map[string]interface{}{
		"status":   domain.JobStatusCompleted,
		"progress": 100.0,
	}); err != nil {
		t.Fatalf("update ingestion job: %v", err)
	}

	job, err := repo.GetIngestionJob(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("get ingestion job: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("unexpected ingestion job: %+v", job)
	}
	if job.CompletedAt == nil {
		t.Fatal("terminal status must set completed_at")
	}
}
