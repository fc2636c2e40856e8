package repository

import (
	"context"
	"errors"
	"fmt"

	promptdomain "prompt-share/backend/internal/domain/prompt"

	"gorm.io/gorm"
)

// ReviewRepository 负责审核记录的持久化。记录只追加，不提供更新与单条删除。
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository 创建 ReviewRepository。
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create 追加一条审核记录。
func (r *ReviewRepository) Create(ctx context.Context, entity *promptdomain.Review) error {
	if entity == nil {
		return errors.New("review entity is nil")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// ListByPrompt 按时间倒序返回指定 Prompt 的全部审核记录。
func (r *ReviewRepository) ListByPrompt(ctx context.Context, promptID uint) ([]promptdomain.Review, error) {
	var reviews []promptdomain.Review
	if err := r.db.WithContext(ctx).
		Where("prompt_id = ?", promptID).
		Order("created_at DESC, id DESC").
		Find(&reviews).Error; err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}
