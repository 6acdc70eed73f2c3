package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
	"github.com/yungbote/memoirvault-backend/internal/utils"
)

type gcsStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *logger.Logger
}

// NewGCS stores media as objects in a GCS bucket. MEDIA_GCS_BUCKET_NAME is
// required; STORAGE_EMULATOR_HOST switches to unauthenticated emulator access
// for local development.
func NewGCS(ctx context.Context, log *logger.Logger) (Store, error) {
	bucket := os.Getenv("MEDIA_GCS_BUCKET_NAME")
	if bucket == "" {
		return nil, fmt.Errorf("MEDIA_GCS_BUCKET_NAME is required for gcs media storage")
	}
	var opts []option.ClientOption
	if os.Getenv("STORAGE_EMULATOR_HOST") != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &gcsStore{
		client: client,
		bucket: bucket,
		prefix: utils.GetEnv("MEDIA_GCS_PREFIX", "media/", log),
		log:    log.With("store", "GCSMediaStore"),
	}, nil
}

func (s *gcsStore) object(hash, ext string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + objectKey(hash, ext))
}

func (s *gcsStore) SaveIfAbsent(ctx context.Context, hash, ext string, data []byte) (string, bool, error) {
	key := objectKey(hash, ext)
	obj := s.object(hash, ext)
	if _, err := obj.Attrs(ctx); err == nil {
		return key, false, nil
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", false, fmt.Errorf("check media %s: %w", key, err)
	}
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", false, fmt.Errorf("write media %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", false, fmt.Errorf("finalize media %s: %w", key, err)
	}
	return key, true, nil
}

func (s *gcsStore) Exists(ctx context.Context, hash, ext string) (bool, error) {
	_, err := s.object(hash, ext).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (s *gcsStore) Close() error { return s.client.Close() }
