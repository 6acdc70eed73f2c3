package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

// UploadService lands archive files on local disk before ingestion. Large
// archives arrive in chunks: each part is staged as
// uploads/<upload_id>.part<idx> and Complete stitches parts back together in
// ascending index order.
type UploadService interface {
	SaveWhole(ctx context.Context, filename string, r io.Reader) (string, error)
	SaveChunk(ctx context.Context, uploadID string, index int, r io.Reader) error
	Complete(ctx context.Context, uploadID, filename string) (string, error)
}

type uploadService struct {
	log *logger.Logger
	dir string
}

func NewUploadService(baseLog *logger.Logger, uploadDir string) (UploadService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", uploadDir, err)
	}
	return &uploadService{
		log: baseLog.With("service", "UploadService"),
		dir: uploadDir,
	}, nil
}

// sanitizeFilename keeps only the base name so an upload can never escape the
// upload directory.
func sanitizeFilename(name string) string {
	base := filepath.Base(filepath.ToSlash(name))
	if base == "." || base == "/" || base == "" {
		return "upload.bin"
	}
	return base
}

func (s *uploadService) SaveWhole(ctx context.Context, filename string, r io.Reader) (string, error) {
	dest := filepath.Join(s.dir, uuid.New().String()+"_"+sanitizeFilename(filename))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	s.log.Info("upload saved", "path", dest)
	return dest, nil
}

func (s *uploadService) SaveChunk(ctx context.Context, uploadID string, index int, r io.Reader) error {
	if strings.TrimSpace(uploadID) == "" {
		return fmt.Errorf("missing upload_id")
	}
	if index < 0 {
		return fmt.Errorf("chunk index must be non-negative")
	}
	part := filepath.Join(s.dir, sanitizeFilename(uploadID)+".part"+strconv.Itoa(index))
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("write chunk file: %w", err)
	}
	return nil
}

func (s *uploadService) Complete(ctx context.Context, uploadID, filename string) (string, error) {
	if strings.TrimSpace(uploadID) == "" {
		return "", fmt.Errorf("missing upload_id")
	}
	prefix := sanitizeFilename(uploadID) + ".part"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("list upload dir: %w", err)
	}

	type part struct {
		index int
		path  string
	}
	var parts []part
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			continue
		}
		parts = append(parts, part{index: idx, path: filepath.Join(s.dir, e.Name())})
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no chunks found for upload %s", uploadID)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].index < parts[j].index })

	dest := filepath.Join(s.dir, sanitizeFilename(uploadID)+"_"+sanitizeFilename(filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create assembled file: %w", err)
	}
	defer out.Close()

	for _, p := range parts {
		in, err := os.Open(p.path)
		if err != nil {
			return "", fmt.Errorf("open chunk %d: %w", p.index, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return "", fmt.Errorf("assemble chunk %d: %w", p.index, err)
		}
	}
	for _, p := range parts {
		if err := os.Remove(p.path); err != nil {
			s.log.Warn("failed to remove chunk", "path", p.path, "error", err)
		}
	}
	s.log.Info("chunked upload assembled", "upload_id", uploadID, "chunks", len(parts), "path", dest)
	return dest, nil
}
