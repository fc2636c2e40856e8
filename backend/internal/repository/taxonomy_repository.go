package repository

import (
	"context"
	"fmt"

	promptdomain "prompt-share/backend/internal/domain/prompt"

	"gorm.io/gorm"
)

// TaxonomyRepository 负责分类与标签的读取以及聚合计数的增量写入。
type TaxonomyRepository struct {
	db *gorm.DB
}

// NewTaxonomyRepository 创建 TaxonomyRepository。
func NewTaxonomyRepository(db *gorm.DB) *TaxonomyRepository {
	return &TaxonomyRepository{db: db}
}

// FindCategory 根据 ID 查询分类。
func (r *TaxonomyRepository) FindCategory(ctx context.Context, id uint) (*promptdomain.Category, error) {
	var entity promptdomain.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// ListCategories 返回全部分类，按名称排序。
func (r *TaxonomyRepository) ListCategories(ctx context.Context) ([]promptdomain.Category, error) {
	var categories []promptdomain.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListTagsByIDs 返回指定 ID 集合中确实存在的标签。
func (r *TaxonomyRepository) ListTagsByIDs(ctx context.Context, ids []uint) ([]promptdomain.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []promptdomain.Tag
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags by ids: %w", err)
	}
	return tags, nil
}

// ListTags 返回全部标签，按名称排序。
func (r *TaxonomyRepository) ListTags(ctx context.Context) ([]promptdomain.Tag, error) {
	var tags []promptdomain.Tag
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// ApplyCategoryDelta 以单条原子 UPDATE 调整分类计数，负向增量在 0 处截断。
// 分类不存在时不报错：Prompt 对分类是弱引用，计数缺口由对账流程处理。
func (r *TaxonomyRepository) ApplyCategoryDelta(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Category{}).
		Where("id = ?", id).
		UpdateColumn("count", gorm.Expr(
			"CASE WHEN count + ? < 0 THEN 0 ELSE count + ? END", delta, delta,
		)).Error; err != nil {
		return fmt.Errorf("apply category delta: %w", err)
	}
	return nil
}

// ApplyTagDelta 以单条原子 UPDATE 调整标签计数，负向增量在 0 处截断。
func (r *TaxonomyRepository) ApplyTagDelta(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Tag{}).
		Where("id = ?", id).
		UpdateColumn("count", gorm.Expr(
			"CASE WHEN count + ? < 0 THEN 0 ELSE count + ? END", delta, delta,
		)).Error; err != nil {
		return fmt.Errorf("apply tag delta: %w", err)
	}
	return nil
}
