package mediastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

type localStore struct {
	root string
	log  *logger.Logger
}

// NewLocal stores media as flat files under root.
func NewLocal(root string, log *logger.Logger) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %s: %w", root, err)
	}
	return &localStore{root: root, log: log.With("store", "LocalMediaStore")}, nil
}

func (s *localStore) SaveIfAbsent(ctx context.Context, hash, ext string, data []byte) (string, bool, error) {
	key := objectKey(hash, ext)
	path := filepath.Join(s.root, key)
	if _, err := os.Stat(path); err == nil {
		return key, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("stat media %s: %w", key, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", false, fmt.Errorf("write media %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", false, fmt.Errorf("finalize media %s: %w", key, err)
	}
	return key, true, nil
}

func (s *localStore) Exists(ctx context.Context, hash, ext string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.root, objectKey(hash, ext)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *localStore) Close() error { return nil }
