package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	response "prompt-share/backend/internal/infra/common"
	"prompt-share/backend/internal/service/counter"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"github.com/gin-gonic/gin"
)

// extractUserID 从上下文读取鉴权中间件注入的用户 ID。
func extractUserID(c *gin.Context) (uint, bool) {
	val, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	switch id := val.(type) {
	case uint:
		return id, true
	case uint64:
		return uint(id), true
	case int:
		if id < 0 {
			return 0, false
		}
		return uint(id), true
	case int64:
		if id < 0 {
			return 0, false
		}
		return uint(id), true
	case float64:
		if id < 0 {
			return 0, false
		}
		return uint(id), true
	default:
		return 0, false
	}
}

// isAdmin 读取鉴权中间件注入的管理员标记。
func isAdmin(c *gin.Context) bool {
	val, ok := c.Get("isAdmin")
	if !ok {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

// parseIDParam 解析路径参数中的资源 ID。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || parsed == 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "无效的资源编号", gin.H{"param": name})
		return 0, false
	}
	return uint(parsed), true
}

// respondServiceError 将业务错误映射为统一响应。
// 计数同步失败单独成码：此时行写入已提交，客户端不应重放整个请求。
func respondServiceError(c *gin.Context, err error) {
	var syncErr *counter.SyncError
	switch {
	case errors.As(err, &syncErr):
		response.Fail(c, http.StatusInternalServerError, response.ErrCounterSyncFailed, "内容已保存，但统计计数暂未更新", nil)
	case errors.Is(err, promptsvc.ErrPromptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound, err.Error(), nil)
	case errors.Is(err, promptsvc.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, err.Error(), nil)
	case errors.Is(err, promptsvc.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition, err.Error(), nil)
	case errors.Is(err, promptsvc.ErrInvalidInput):
		response.Fail(c, http.StatusBadRequest, response.ErrValidationFailed, err.Error(), nil)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "服务器内部错误", nil)
	}
}

// tagView 是标签的对外表示。
type tagView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Count       uint   `json:"count"`
}

// categoryView 是分类的对外表示。
type categoryView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	Count       uint   `json:"count"`
}

// promptView 是 Prompt 的对外表示，列表与详情共用。
type promptView struct {
	ID            uint      `json:"id"`
	AuthorID      uint      `json:"author_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Content       string    `json:"content"`
	UsageGuide    string    `json:"usage_guide,omitempty"`
	CategoryID    uint      `json:"category_id"`
	Language      string    `json:"language,omitempty"`
	IsPublic      bool      `json:"is_public"`
	Status        string    `json:"status"`
	ViewCount     uint64    `json:"view_count"`
	FavoriteCount uint      `json:"favorite_count"`
	IsFavorited   bool      `json:"is_favorited"`
	Images        []string  `json:"images,omitempty"`
	Tags          []tagView `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// reviewView 是审核记录的对外表示。
type reviewView struct {
	ID         uint      `json:"id"`
	PromptID   uint      `json:"prompt_id"`
	ReviewerID uint      `json:"reviewer_id"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toTagView(tag promptdomain.Tag) tagView {
	return tagView{
		ID:          tag.ID,
		Name:        tag.Name,
		DisplayName: tag.DisplayName,
		Count:       tag.Count,
	}
}

func toCategoryView(cat promptdomain.Category) categoryView {
	return categoryView{
		ID:          cat.ID,
		Name:        cat.Name,
		DisplayName: cat.DisplayName,
		Color:       cat.Color,
		Icon:        cat.Icon,
		Count:       cat.Count,
	}
}

func toPromptView(entity *promptdomain.Prompt) promptView {
	view := promptView{
		ID:            entity.ID,
		AuthorID:      entity.AuthorID,
		Title:         entity.Title,
		Description:   entity.Description,
		Content:       entity.Content,
		UsageGuide:    entity.UsageGuide,
		CategoryID:    entity.CategoryID,
		Language:      entity.Language,
		IsPublic:      entity.IsPublic,
		Status:        entity.Status,
		ViewCount:     entity.ViewCount,
		FavoriteCount: entity.FavoriteCount,
		IsFavorited:   entity.IsFavorited,
		Tags:          make([]tagView, 0, len(entity.Tags)),
		CreatedAt:     entity.CreatedAt,
		UpdatedAt:     entity.UpdatedAt,
	}
	for _, tag := range entity.Tags {
		view.Tags = append(view.Tags, toTagView(tag))
	}
	if len(entity.Images) > 0 {
		var images []string
		if err := json.Unmarshal(entity.Images, &images); err == nil {
			view.Images = images
		}
	}
	return view
}

func toPromptViews(items []promptdomain.Prompt) []promptView {
	views := make([]promptView, 0, len(items))
	for i := range items {
		views = append(views, toPromptView(&items[i]))
	}
	return views
}

func toReviewViews(items []promptdomain.Review) []reviewView {
	views := make([]reviewView, 0, len(items))
	for _, item := range items {
		views = append(views, reviewView{
			ID:         item.ID,
			PromptID:   item.PromptID,
			ReviewerID: item.ReviewerID,
			Status:     item.Status,
			Notes:      item.Notes,
			CreatedAt:  item.CreatedAt,
		})
	}
	return views
}

// paginationMeta 组装统一的分页 Meta。
func paginationMeta(page, pageSize int, total int64, totalPages, currentCount int) response.MetaPagination {
	return response.MetaPagination{
		Page:         page,
		PageSize:     pageSize,
		TotalItems:   int(total),
		TotalPages:   totalPages,
		CurrentCount: currentCount,
	}
}
