package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memoirvault-backend/internal/domain"
	"github.com/yungbote/memoirvault-backend/internal/platform/logger"
)

type MessageRepo interface {
	// FilterExistingHashes returns the subset of hashes already present in the
	// messages table, as a set.
	FilterExistingHashes(ctx context.Context, tx *gorm.DB, hashes []string) (map[string]bool, error)
	// CreateBatch performs a single multi-row insert and mirrors every inserted
	// row into the full-text table in the same transaction.
	CreateBatch(ctx context.Context, tx *gorm.DB, messages []*domain.Message) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	SearchText(ctx context.Context, tx *gorm.DB, query string, limit int) ([]*domain.Message, error)
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) FilterExistingHashes(ctx context.Context, tx *gorm.DB, hashes []string) (map[string]bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	existing := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return existing, nil
	}
	var found []string
	if err := transaction.WithContext(ctx).
		Model(&domain.Message{}).
		Where("content_hash IN ?", hashes).
		Pluck("content_hash", &found).Error; err != nil {
		return nil, err
	}
	for _, h := range found {
		existing[h] = true
	}
	return existing, nil
}

func (r *messageRepo) CreateBatch(ctx context.Context, tx *gorm.DB, messages []*domain.Message) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(messages) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(&messages).Error; err != nil {
			return err
		}
		mirror := make([]*domain.MessageSearch, 0, len(messages))
		for _, m := range messages {
			mirror = append(mirror, &domain.MessageSearch{
				MessageID:   m.ID,
				ContentText: m.ContentText,
				SenderName:  m.SenderName,
				Tags:        string(m.Tags),
			})
		}
		return txx.Create(&mirror).Error
	})
}

func (r *messageRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		return txx.Where("message_id = ?", id).Delete(&domain.MessageSearch{}).Error
	})
}

func (r *messageRepo) ListByThread(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*domain.Message
	if err := transaction.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("timestamp_utc ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) SearchText(ctx context.Context, tx *gorm.DB, query string, limit int) ([]*domain.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&domain.MessageSearch{}).
		Where("content_text LIKE ? OR sender_name LIKE ? OR tags LIKE ?",
			"%"+query+"%", "%"+query+"%", "%"+query+"%").
		Limit(limit).
		Pluck("message_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*domain.Message
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Order("timestamp_utc ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).Model(&domain.Message{}).Count(&count).Error
	return count, err
}
