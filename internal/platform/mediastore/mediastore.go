package mediastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/utils"
)

// Store persists extracted media under a content-addressed key. The key is
// hash+extension, so the same bytes land at the same path no matter how many
// batches carry them. SaveIfAbsent reports created=false when the object was
// already there.
type Store interface {
	SaveIfAbsent(ctx context.Context, hash, ext string, data []byte) (ref string, created bool, err error)
	Exists(ctx context.Context, hash, ext string) (bool, error)
	Close() error
}

// Mode selects the backing storage.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCS   Mode = "gcs"
)

// NewFromEnv builds the store configured by MEDIA_STORAGE_MODE.
func NewFromEnv(ctx context.Context, log *logger.Logger) (Store, error) {
	mode := Mode(strings.ToLower(utils.GetEnv("MEDIA_STORAGE_MODE", string(ModeLocal), log)))
	switch mode {
	case ModeLocal:
		root := utils.GetEnv("MEDIA_DIR", "./data/media", log)
		return NewLocal(root, log)
	case ModeGCS:
		return NewGCS(ctx, log)
	default:
		return nil, fmt.Errorf("unknown MEDIA_STORAGE_MODE %q", mode)
	}
}

func objectKey(hash, ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return hash + ext
}
