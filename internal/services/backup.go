package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

const (
	backupFilePrefix = "db_backup_"
	backupFileSuffix = ".sqlite"
	// backupKeepCount is how many daily backups survive rotation.
	backupKeepCount = 7
)

// BackupService snapshots the sqlite store once per day and rotates old
// snapshots. VACUUM INTO is safe against a live database, so it runs as a
// normal job without pausing ingestion.
type BackupService interface {
	HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error)
}

type backupService struct {
	db  *gorm.DB
	log *logger.Logger
	dir string
}

func NewBackupService(db *gorm.DB, baseLog *logger.Logger, backupDir string) (BackupService, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %s: %w", backupDir, err)
	}
	return &backupService{
		db:  db,
		log: baseLog.With("service", "BackupService"),
		dir: backupDir,
	}, nil
}

func (s *backupService) HandleJob(ctx context.Context, job *domain.Job, update ProgressFunc) (string, error) {
	if name := s.db.Dialector.Name(); name != "sqlite" {
		return "", fmt.Errorf("database backups require the sqlite store, not %s", name)
	}

	today := time.Now().Format("2006-01-02")
	dest := filepath.Join(s.dir, backupFilePrefix+today+backupFileSuffix)
	if _, err := os.Stat(dest); err == nil {
		s.log.Info("backup already exists for today", "path", dest)
		return dest, nil
	}

	if update != nil {
		update(25, "snapshotting database")
	}
	// VACUUM INTO does not accept bound parameters.
	quoted := strings.ReplaceAll(dest, "'", "''")
	if err := s.db.WithContext(ctx).Exec(fmt.Sprintf("VACUUM INTO '%s'", quoted)).Error; err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	s.log.Info("backup written", "path", dest)

	if update != nil {
		update(75, "rotating old backups")
	}
	if err := s.rotate(); err != nil {
		s.log.Warn("backup rotation failed", "error", err)
	}
	return dest, nil
}

// rotate removes all but the newest backupKeepCount files. Names embed
// YYYY-MM-DD, so a lexical sort is a date sort.
func (s *backupService) rotate() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, backupFilePrefix) && strings.HasSuffix(name, backupFileSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) <= backupKeepCount {
		return nil
	}
	for _, name := range names[:len(names)-backupKeepCount] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn("failed to prune backup", "file", name, "error", err)
			continue
		}
		s.log.Info("pruned old backup", "file", name)
	}
	return nil
}
