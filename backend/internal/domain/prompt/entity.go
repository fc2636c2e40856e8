package prompt

import (
	"time"

	"gorm.io/datatypes"
)

// PromptStatus 表示 Prompt 的当前状态。
const (
	PromptStatusReviewing = "reviewing"
	PromptStatusPublished = "published"
	PromptStatusRejected  = "rejected"
)

// ReviewStatus 表示一次审核动作的结论。
const (
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

// Prompt 表示用户提交的完整 Prompt 记录。
// 只有 status=published 的记录会计入分类与标签的聚合计数。
type Prompt struct {
	ID            uint           `gorm:"primaryKey"`                                 // 自增主键。
	AuthorID      uint           `gorm:"index;not null"`                             // 作者用户 ID。
	Title         string         `gorm:"size:255;not null"`                          // 标题。
	Description   string         `gorm:"type:text;not null"`                         // 摘要描述，用于列表与搜索。
	Content       string         `gorm:"type:text;not null"`                         // Prompt 正文。
	UsageGuide    string         `gorm:"type:text"`                                  // 使用说明，可选。
	CategoryID    uint           `gorm:"index;not null"`                             // 所属分类 ID（弱引用）。
	Language      string         `gorm:"size:16;index"`                              // 语言标识，空值视为默认语言。
	IsPublic      bool           `gorm:"not null;default:false"`                     // 是否公开投稿，公开必须经过审核。
	Status        string         `gorm:"size:16;not null;default:'reviewing';index"` // 当前状态：reviewing/published/rejected。
	ViewCount     uint64         `gorm:"not null;default:0"`                         // 浏览次数。
	FavoriteCount uint           `gorm:"not null;default:0"`                         // 收藏数量，与 favorites 表保持一致。
	Images        datatypes.JSON `gorm:"type:json"`                                  // 配图 URL 列表（JSON，有序）。
	CreatedAt     time.Time      // 创建时间。
	UpdatedAt     time.Time      // 最近更新时间。
	Tags          []Tag          `gorm:"-"` // 关联标签，按需填充。
	IsFavorited   bool           `gorm:"-"` // 当前用户是否已收藏。
}

// Category 表示 Prompt 分类，Count 为已发布 Prompt 数量的冗余统计。
type Category struct {
	ID          uint      `gorm:"primaryKey"`
	Name        string    `gorm:"size:64;not null;uniqueIndex"` // 机器名，如 writing。
	DisplayName string    `gorm:"size:128;not null"`            // 展示名。
	Color       string    `gorm:"size:16"`                      // 前端主题色。
	Icon        string    `gorm:"size:64"`                      // 图标标识。
	Count       uint      `gorm:"not null;default:0"`           // 已发布 Prompt 数量。
	CreatedAt   time.Time // 创建时间。
	UpdatedAt   time.Time // 更新时间。
}

// Tag 表示 Prompt 标签，Count 为引用该标签的已发布 Prompt 数量。
type Tag struct {
	ID          uint      `gorm:"primaryKey"`
	Name        string    `gorm:"size:64;not null;uniqueIndex"` // 机器名。
	DisplayName string    `gorm:"size:128;not null"`            // 展示名。
	Count       uint      `gorm:"not null;default:0"`           // 已发布 Prompt 数量。
	CreatedAt   time.Time // 创建时间。
	UpdatedAt   time.Time // 更新时间。
}

// PromptTag 建立 Prompt 与 Tag 之间的多对多关系，生命周期随 Prompt。
type PromptTag struct {
	PromptID  uint      `gorm:"primaryKey;index:idx_prompt_tags_prompt"` // Prompt 主键。
	TagID     uint      `gorm:"primaryKey;index:idx_prompt_tags_tag"`    // Tag 主键。
	CreatedAt time.Time // 关系创建时间。
}

// TableName 返回关联表名称。
func (PromptTag) TableName() string {
	return "prompt_tags"
}

// Review 记录一次管理员审核动作，只追加、不修改、不删除。
type Review struct {
	ID         uint      `gorm:"primaryKey"`                          // 审核记录主键。
	PromptID   uint      `gorm:"not null;index:idx_reviews_prompt"`   // 被审核的 Prompt 编号。
	ReviewerID uint      `gorm:"not null;index:idx_reviews_reviewer"` // 审核人编号。
	Status     string    `gorm:"size:16;not null"`                    // 审核结论：approved/rejected。
	Notes      string    `gorm:"type:text"`                           // 审核备注，可选。
	CreatedAt  time.Time `gorm:"autoCreateTime"`                      // 审核时间。
}

// TableName 返回审核表名称。
func (Review) TableName() string {
	return "reviews"
}

// Favorite 记录用户对 Prompt 的收藏关系，(user_id, prompt_id) 唯一。
type Favorite struct {
	UserID    uint      `gorm:"primaryKey;column:user_id"`
	PromptID  uint      `gorm:"primaryKey;column:prompt_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName 返回收藏表名称。
func (Favorite) TableName() string {
	return "favorites"
}
