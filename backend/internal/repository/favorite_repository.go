package repository

import (
	"context"
	"fmt"

	promptdomain "prompt-share/backend/internal/domain/prompt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FavoriteRepository 负责收藏关系行的增删查。
type FavoriteRepository struct {
	db *gorm.DB
}

// NewFavoriteRepository 创建 FavoriteRepository。
func NewFavoriteRepository(db *gorm.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

// Add 写入收藏关系，返回是否新建。重复收藏依赖主键冲突忽略，保证幂等。
func (r *FavoriteRepository) Add(ctx context.Context, userID, promptID uint) (bool, error) {
	entity := promptdomain.Favorite{UserID: userID, PromptID: promptID}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "prompt_id"}},
			DoNothing: true,
		}).
		Create(&entity)
	if res.Error != nil {
		return false, fmt.Errorf("add favorite: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Remove 删除收藏关系，返回是否确实删除。
func (r *FavoriteRepository) Remove(ctx context.Context, userID, promptID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Delete(&promptdomain.Favorite{})
	if res.Error != nil {
		return false, fmt.Errorf("remove favorite: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Exists 判断用户是否已收藏指定 Prompt。
func (r *FavoriteRepository) Exists(ctx context.Context, userID, promptID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Favorite{}).
		Where("user_id = ? AND prompt_id = ?", userID, promptID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check favorite: %w", err)
	}
	return count > 0, nil
}

// CountByPrompt 统计收藏行数量，用于与冗余计数对账。
func (r *FavoriteRepository) CountByPrompt(ctx context.Context, promptID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Favorite{}).
		Where("prompt_id = ?", promptID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return count, nil
}
