package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

type ArtifactRepo interface {
	ExistsByHash(ctx context.Context, tx *gorm.DB, rawHash string) (bool, error)
	Create(ctx context.Context, tx *gorm.DB, artifact *domain.SourceArtifact) error
	CountByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error)
}

type artifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: db, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) ExistsByHash(ctx context.Context, tx *gorm.DB, rawHash string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if rawHash == "" {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.SourceArtifact{}).
		Where("raw_hash = ?", rawHash).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *artifactRepo) Create(ctx context.Context, tx *gorm.DB, artifact *domain.SourceArtifact) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(artifact).Error
}

func (r *artifactRepo) CountByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.SourceArtifact{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error
	return count, err
}
