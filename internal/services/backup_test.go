package services_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/repos/testutil"
	"github.com/yungbote/memoirvault-backend/internal/services"
)

func backupJob() *domain.Job {
	return &domain.Job{ID: uuid.New(), JobType: domain.JobTypeBackup}
}

func TestBackupCreatesDailySnapshot(t *testing.T) {
	db := testutil.DB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc, err := services.NewBackupService(db, testutil.Logger(t), dir)
	if err != nil {
		t.Fatalf("backup service: %v", err)
	}

	path, err := svc.HandleJob(context.Background(), backupJob(), nil)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	wantName := "db_backup_" + time.Now().Format("2006-01-02") + ".sqlite"
	if filepath.Base(path) != wantName {
		t.Fatalf("backup path = %s, want %s", filepath.Base(path), wantName)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat backup: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("backup file is empty")
	}

	// A second run the same day reuses the existing snapshot.
	again, err := svc.HandleJob(context.Background(), backupJob(), nil)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if again != path {
		t.Fatalf("second run wrote %s, want %s", again, path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("backup dir has %d files, want 1", len(entries))
	}
}

func TestBackupRotationKeepsNewestSeven(t *testing.T) {
	db := testutil.DB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc, err := services.NewBackupService(db, testutil.Logger(t), dir)
	if err != nil {
		t.Fatalf("backup service: %v", err)
	}

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("db_backup_2020-01-%02d.sqlite", i+1)
		if err := os.WriteFile(filepath.Join(dir, name), []byte("stale"), 0o644); err != nil {
			t.Fatalf("seed backup: %v", err)
		}
	}

	if _, err := svc.HandleJob(context.Background(), backupJob(), nil); err != nil {
		t.Fatalf("backup: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read backup dir: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("backup dir has %d files after rotation, want 7", len(entries))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	joined := strings.Join(names, " ")
	if strings.Contains(joined, "2020-01-01") || strings.Contains(joined, "2020-01-04") {
		t.Fatalf("oldest backups survived rotation: %v", names)
	}
	today := "db_backup_" + time.Now().Format("2006-01-02") + ".sqlite"
	if !strings.Contains(joined, today) {
		t.Fatalf("today's backup missing after rotation: %v", names)
	}
}
