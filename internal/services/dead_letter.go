package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

const DefaultDeadLetterLimit = 50

// DeadLetterRecord is one rejected message with enough context to reprocess
// it by hand. The raw content is preserved verbatim.
type DeadLetterRecord struct {
	BatchID    uuid.UUID `json:"batch_id"`
	SourceFile string    `json:"source_file"`
	Reason     string    `json:"reason"`
	Sender     string    `json:"sender,omitempty"`
	RawContent string    `json:"raw_content"`
	FailedAt   time.Time `json:"failed_at"`
}

// DeadLetterService appends rejected messages to a JSONL file and reads them
// back newest-first. Push failures never fail the batch that produced them.
type DeadLetterService interface {
	Push(ctx context.Context, rec DeadLetterRecord) error
	ReadRecent(ctx context.Context, limit int) ([]DeadLetterRecord, error)
}

type deadLetterService struct {
	log  *logger.Logger
	path string
	mu   sync.Mutex
}

func NewDeadLetterService(baseLog *logger.Logger, dataDir string) (DeadLetterService, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &deadLetterService{
		log:  baseLog.With("service", "DeadLetterService"),
		path: filepath.Join(dataDir, "dead_letters.jsonl"),
	}, nil
}

func (s *deadLetterService) Push(ctx context.Context, rec DeadLetterRecord) error {
	if rec.FailedAt.IsZero() {
		rec.FailedAt = time.Now().UTC()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

func (s *deadLetterService) ReadRecent(ctx context.Context, limit int) ([]DeadLetterRecord, error) {
	if limit <= 0 {
		limit = DefaultDeadLetterLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []DeadLetterRecord{}, nil
		}
		return nil, fmt.Errorf("open dead letter file: %w", err)
	}
	defer f.Close()

	var all []DeadLetterRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec DeadLetterRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("skipping malformed dead letter line", "error", err)
			continue
		}
		all = append(all, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dead letter file: %w", err)
	}

	// Newest first.
	out := make([]DeadLetterRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
