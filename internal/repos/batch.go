package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

type BatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, batch *domain.ImportBatch) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ImportBatch, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.ImportBatch, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	GetIngestionJob(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.IngestionJob, error)
	UpdateIngestionJob(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

// Create persists the batch together with its legacy progress row, keyed by
// the same id.
func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, batch *domain.ImportBatch) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(batch).Error; err != nil {
			return err
		}
		return txx.Create(&domain.IngestionJob{
			ID:        batch.ID,
			Status:    domain.BatchStatusPending,
			Progress:  0,
			StartedAt: batch.StartedAt,
		}).Error
	})
}

func (r *batchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.ImportBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var batch domain.ImportBatch
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *batchRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*domain.ImportBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []*domain.ImportBatch
	if err := transaction.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *batchRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&domain.ImportBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *batchRepo) GetIngestionJob(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.IngestionJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var row domain.IngestionJob
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *batchRepo) UpdateIngestionJob(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if status, ok := updates["status"].(string); ok {
		if status == domain.BatchStatusCompleted || status == domain.BatchStatusFailed {
			if _, set := updates["completed_at"]; !set {
				updates["completed_at"] = time.Now().UTC()
			}
		}
	}
	return transaction.WithContext(ctx).
		Model(&domain.IngestionJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}
