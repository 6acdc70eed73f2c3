package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

type ThreadRepo interface {
	GetOrCreateByTitle(ctx context.Context, tx *gorm.DB, title string) (*domain.Thread, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Thread, error)
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, baseLog *logger.Logger) ThreadRepo {
	return &threadRepo{db: db, log: baseLog.With("repo", "ThreadRepo")}
}

// GetOrCreateByTitle resolves a thread by exact title, creating it on first
// sight. A title maps to exactly one thread across all batches.
func (r *threadRepo) GetOrCreateByTitle(ctx context.Context, tx *gorm.DB, title string) (*domain.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var thread domain.Thread
	err := transaction.WithContext(ctx).Where("title = ?", title).First(&thread).Error
	if err == nil {
		return &thread, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	thread = domain.Thread{ID: uuid.New(), Title: title}
	if err := transaction.WithContext(ctx).Create(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Thread, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var thread domain.Thread
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}
