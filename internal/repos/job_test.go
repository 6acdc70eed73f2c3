package repos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/repos"
	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
)

func newTestJob(jobType, status string) *domain.Job {
	return &domain.Job{
		ID:        uuid.New(),
		JobType:   jobType,
		Status:    status,
		Payload:   datatypes.JSON([]byte(`{}`)),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestJobRepoCreateAndGet(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))
	ctx := context.Background()

	job := newTestJob(domain.JobTypeIngestion, domain.JobStatusPending)
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
}

func TestJobRepoCancelIfPending(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))
	ctx := context.Background()

	pending := newTestJob(domain.JobTypeIngestion, domain.JobStatusPending)
	if err := repo.Create(ctx, nil, pending); err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err := repo.CancelIfPending(ctx, nil, pending.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("pending job should cancel")
	}
	got, err := repo.GetByID(ctx, nil, pending.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusCancelled || got.CompletedAt == nil {
		t.Fatalf("status = %s completed_at = %v, want cancelled with timestamp", got.Status, got.CompletedAt)
	}

	// A job that already started is never overwritten.
	running := newTestJob(domain.JobTypeIngestion, domain.JobStatusRunning)
	if err := repo.Create(ctx, nil, running); err != nil {
		t.Fatalf("create: %v", err)
	}
	cancelled, err = repo.CancelIfPending(ctx, nil, running.ID)
	if err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	if cancelled {
		t.Fatal("running job must not be cancellable")
	}
	got, err = repo.GetByID(ctx, nil, running.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s, want running untouched", got.Status)
	}
}

func TestJobRepoGetMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))

	got, err := repo.GetByID(context.Background(), nil, uuid.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing job, got %+v", got)
	}
}

func TestJobRepoListFilters(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))
	ctx := context.Background()

	for _, j := range []*domain.Job{
		newTestJob(domain.JobTypeIngestion, domain.JobStatusCompleted),
		newTestJob(domain.JobTypeIngestion, domain.JobStatusPending),
		newTestJob(domain.JobTypeExport, domain.JobStatusPending),
	} {
		if err := repo.Create(ctx, nil, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := repo.List(ctx, nil, "", "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("list all = %d, want 3", len(all))
	}

	ingestion, err := repo.List(ctx, nil, domain.JobTypeIngestion, "", 0, 0)
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(ingestion) != 2 {
		t.Fatalf("list ingestion = %d, want 2", len(ingestion))
	}

	pending, err := repo.List(ctx, nil, domain.JobTypeIngestion, domain.JobStatusPending, 0, 0)
	if err != nil {
		t.Fatalf("list by type+status: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("list pending ingestion = %d, want 1", len(pending))
	}
}

func TestJobRepoUpdateFields(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))
	ctx := context.Background()

	job := newTestJob(domain.JobTypeIngestion, domain.JobStatusPending)
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":   domain.JobStatusRunning,
		"progress": 42.0,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetByID(ctx, nil, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobStatusRunning || got.Progress != 42 {
		t.Fatalf("unexpected job after update: %+v", got)
	}
}

func TestJobRepoDeleteOnlyTerminal(t *testing.T) {
	db := testutil.DB(t)
	repo := repos.NewJobRepo(db, testutil.Logger(t))
	ctx := context.Background()

	running := newTestJob(domain.JobTypeIngestion, domain.JobStatusRunning)
	done := newTestJob(domain.JobTypeIngestion, domain.JobStatusCompleted)
	for _, j := range []*domain.Job{running, done} {
		if err := repo.Create(ctx, nil, j); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	deleted, err := repo.Delete(ctx, nil, running.ID)
	if err != nil {
		t.Fatalf("delete running: %v", err)
	}
	if deleted {
		t.Fatal("running job must not be deletable")
	}

	deleted, err = repo.Delete(ctx, nil, done.ID)
	if err != nil {
		t.Fatalf("delete completed: %v", err)
	}
	if !deleted {
		t.Fatal("completed job must be deletable")
	}
	if got, _ := repo.GetByID(ctx, nil, done.ID); got != nil {
		t.Fatal("deleted job still present")
	}
}
