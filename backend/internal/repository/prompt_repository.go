package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	promptdomain "prompt-share/backend/internal/domain/prompt"

	"gorm.io/gorm"
)

// 排序方式常量，供列表查询使用。
const (
	SortByLatest    = "latest"
	SortByPopular   = "popular"
	SortByRelevance = "relevance"
	SortByOldest    = "oldest"
)

// PromptRepository 负责 Prompt 行及其标签关联的持久化操作，不包含业务规则。
type PromptRepository struct {
	db *gorm.DB
}

// PromptListFilter 定义列表查询使用的过滤条件，由上层查询组装器填充。
type PromptListFilter struct {
	Query       string
	UseFullText bool
	AuthorID    uint
	CategoryIDs []uint
	TagIDs      []uint
	Language    string
	MatchNoLang bool
	Status      string
	PublicOnly  bool
	ExcludeID   uint
	SortBy      string
	Limit       int
	Offset      int
}

// NewPromptRepository 创建 PromptRepository。
func NewPromptRepository(db *gorm.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// WithDB 基于传入的 gorm.DB 派生新的仓储，用于事务场景。
func (r *PromptRepository) WithDB(db *gorm.DB) *PromptRepository {
	return NewPromptRepository(db)
}

// Create 新增 Prompt 记录。
func (r *PromptRepository) Create(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create prompt: %w", err)
	}
	return nil
}

// Update 更新 Prompt 记录。
func (r *PromptRepository) Update(ctx context.Context, entity *promptdomain.Prompt) error {
	if entity == nil {
		return errors.New("prompt entity is nil")
	}
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	return nil
}

// FindByID 根据 ID 查询 Prompt，不限定作者，权限判断由服务层负责。
func (r *PromptRepository) FindByID(ctx context.Context, id uint) (*promptdomain.Prompt, error) {
	var entity promptdomain.Prompt
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// ReplaceTags 先清理 Prompt 现有标签关联，再批量插入新的关联关系。
func (r *PromptRepository) ReplaceTags(ctx context.Context, promptID uint, tagIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prompt_id = ?", promptID).Delete(&promptdomain.PromptTag{}).Error; err != nil {
			return fmt.Errorf("delete prompt tags: %w", err)
		}
		if len(tagIDs) == 0 {
			return nil
		}
		entries := make([]promptdomain.PromptTag, 0, len(tagIDs))
		for _, tagID := range tagIDs {
			entries = append(entries, promptdomain.PromptTag{PromptID: promptID, TagID: tagID})
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("insert prompt tags: %w", err)
		}
		return nil
	})
}

// ListTagIDs 返回 Prompt 当前关联的标签 ID 列表。
func (r *PromptRepository) ListTagIDs(ctx context.Context, promptID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.PromptTag{}).
		Where("prompt_id = ?", promptID).
		Order("tag_id ASC").
		Pluck("tag_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list prompt tag ids: %w", err)
	}
	return ids, nil
}

// ListTags 返回 Prompt 关联的标签实体，用于填充详情与列表。
func (r *PromptRepository) ListTags(ctx context.Context, promptID uint) ([]promptdomain.Tag, error) {
	var tags []promptdomain.Tag
	if err := r.db.WithContext(ctx).
		Model(&promptdomain.Tag{}).
		Joins("JOIN prompt_tags ON prompt_tags.tag_id = tags.id").
		Where("prompt_tags.prompt_id = ?", promptID).
		Order("tags.name ASC").
		Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list prompt tags: %w", err)
	}
	return tags, nil
}

// List 返回符合过滤条件的 Prompt 列表与总数。
func (r *PromptRepository) List(ctx context.Context, filter PromptListFilter) ([]promptdomain.Prompt, int64, error) {
	query := r.db.WithContext(ctx).Model(&promptdomain.Prompt{})

	if filter.AuthorID != 0 {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(filter.Status))
	}
	if filter.PublicOnly {
		query = query.Where("is_public = ?", true)
	}
	if len(filter.CategoryIDs) == 1 {
		query = query.Where("category_id = ?", filter.CategoryIDs[0])
	} else if len(filter.CategoryIDs) > 1 {
		query = query.Where("category_id IN ?", filter.CategoryIDs)
	}
	if len(filter.TagIDs) > 0 {
		// 任一标签命中即匹配（OR 语义），子查询避免 JOIN 去重。
		query = query.Where(
			"id IN (?)",
			r.db.Model(&promptdomain.PromptTag{}).Select("prompt_id").Where("tag_id IN ?", filter.TagIDs),
		)
	}
	if lang := strings.TrimSpace(filter.Language); lang != "" {
		if filter.MatchNoLang {
			// 查询默认语言时，历史数据中未填写语言的记录也应命中。
			query = query.Where("(language = ? OR language = '')", lang)
		} else {
			query = query.Where("language = ?", lang)
		}
	}
	if filter.ExcludeID != 0 {
		query = query.Where("id <> ?", filter.ExcludeID)
	}

	fullTextHit := false
	if q := strings.TrimSpace(filter.Query); q != "" {
		if filter.UseFullText {
			if booleanQuery, ok := buildBooleanQuery(q); ok {
				query = query.Where("MATCH(title, description) AGAINST (? IN BOOLEAN MODE)", booleanQuery)
				fullTextHit = true
			} else {
				keyword := "%" + q + "%"
				query = query.Where("(title LIKE ? OR description LIKE ?)", keyword, keyword)
			}
		} else {
			keyword := "%" + q + "%"
			query = query.Where("(title LIKE ? OR description LIKE ?)", keyword, keyword)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count prompts: %w", err)
	}

	switch filter.SortBy {
	case SortByPopular:
		query = query.Order("view_count DESC, id DESC")
	case SortByOldest:
		query = query.Order("created_at ASC, id ASC")
	case SortByRelevance:
		// 相关度排序仅在全文检索命中时有意义，否则退化为按热度。
		if fullTextHit {
			query = query.Order("view_count DESC, created_at DESC")
		} else {
			query = query.Order("view_count DESC, id DESC")
		}
	default:
		query = query.Order("created_at DESC, id DESC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []promptdomain.Prompt
	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("list prompts: %w", err)
	}
	return records, total, nil
}

func buildBooleanQuery(raw string) (string, bool) {
	// buildBooleanQuery 将用户输入拆分为布尔模式查询，并追加通配符以实现前缀匹配。
	// 若命中中文或非 ASCII 字符，则返回 false 交由 LIKE 兜底处理。
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return "", false
	}
	clauses := make([]string, 0, len(tokens))
	for _, token := range tokens {
		cleaned := strings.Trim(token, "+-><()~*\"")
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == "" {
			continue
		}
		if !isASCIIAlphaNumeric(cleaned) {
			return "", false
		}
		clause := "+" + cleaned
		if len(cleaned) >= 3 {
			clause += "*"
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 0 {
		return "", false
	}
	return strings.Join(clauses, " "), true
}

func isASCIIAlphaNumeric(s string) bool {
	// isASCIIAlphaNumeric 判断字符串是否仅包含 ASCII 字母或数字，防止布尔查询遇到中文时报错。
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// IncrementViewCount 按增量累加浏览次数，记录不存在时返回 gorm.ErrRecordNotFound。
func (r *PromptRepository) IncrementViewCount(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("increment view count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementFavoriteCount 按增量调整收藏数量，负向增量会在 0 处截断。
func (r *PromptRepository) IncrementFavoriteCount(ctx context.Context, id uint, delta int) error {
	if delta == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&promptdomain.Prompt{}).
		Where("id = ?", id).
		UpdateColumn("favorite_count", gorm.Expr(
			"CASE WHEN favorite_count + ? < 0 THEN 0 ELSE favorite_count + ? END", delta, delta,
		))
	if res.Error != nil {
		return fmt.Errorf("increment favorite count: %w", res.Error)
	}
	return nil
}

// Delete 移除 Prompt，并在同一事务内级联删除标签关联、收藏与审核记录。
func (r *PromptRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Where("prompt_id = ?", id).Delete(&promptdomain.PromptTag{}); res.Error != nil {
			return fmt.Errorf("delete prompt tags: %w", res.Error)
		}
		if res := tx.Where("prompt_id = ?", id).Delete(&promptdomain.Favorite{}); res.Error != nil {
			return fmt.Errorf("delete prompt favorites: %w", res.Error)
		}
		if res := tx.Where("prompt_id = ?", id).Delete(&promptdomain.Review{}); res.Error != nil {
			return fmt.Errorf("delete prompt reviews: %w", res.Error)
		}
		res := tx.Where("id = ?", id).Delete(&promptdomain.Prompt{})
		if res.Error != nil {
			return fmt.Errorf("delete prompt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
