package handler

import (
	"net/http"
	"strconv"
	"strings"

	response "prompt-share/backend/internal/infra/common"
	appLogger "prompt-share/backend/internal/infra/logger"
	searchsvc "prompt-share/backend/internal/service/search"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BrowseHandler 承接公开库的浏览请求：检索列表、详情与相关推荐。
// 这些路由可匿名访问，携带合法 Token 时返回收藏标记并参与浏览去重。
type BrowseHandler struct {
	search *searchsvc.Service
	logger *zap.SugaredLogger
}

// NewBrowseHandler 创建 BrowseHandler。
func NewBrowseHandler(search *searchsvc.Service) *BrowseHandler {
	return &BrowseHandler{
		search: search,
		logger: appLogger.S().With("component", "browse.handler"),
	}
}

// List 处理 GET /api/public/prompts，组装检索条件并返回分页结果。
// 支持 query、category_ids、tag_ids、language、sort_by、exclude_id 参数。
func (h *BrowseHandler) List(c *gin.Context) {
	viewerID, _ := extractUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	var excludeID uint
	if raw := strings.TrimSpace(c.Query("exclude_id")); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil {
			excludeID = uint(parsed)
		}
	}

	result, err := h.search.List(c.Request.Context(), searchsvc.ListInput{
		Query:       c.Query("query"),
		CategoryIDs: parseIDList(c.Query("category_ids")),
		TagIDs:      parseIDList(c.Query("tag_ids")),
		Language:    c.Query("language"),
		SortBy:      c.Query("sort_by"),
		ExcludeID:   excludeID,
		Page:        page,
		PageSize:    pageSize,
		ViewerID:    viewerID,
	})
	if err != nil {
		h.logger.Warnw("list public prompts failed", "error", err)
		respondServiceError(c, err)
		return
	}

	views := toPromptViews(result.Items)
	response.Success(c, http.StatusOK, views, paginationMeta(result.Page, result.PageSize, result.Total, result.TotalPages, len(views)))
}

// Get 处理 GET /api/public/prompts/:id，返回详情并累加浏览量。
func (h *BrowseHandler) Get(c *gin.Context) {
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	viewerID, _ := extractUserID(c)

	entity, err := h.search.Get(c.Request.Context(), promptID, viewerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toPromptView(entity), nil)
}

// Related 处理 GET /api/public/prompts/:id/related，返回同分类热门条目。
func (h *BrowseHandler) Related(c *gin.Context) {
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	items, err := h.search.Related(c.Request.Context(), promptID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toPromptViews(items), nil)
}

// parseIDList 解析逗号分隔的 ID 列表参数，忽略非法片段。
func parseIDList(raw string) []uint {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		parsed, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil || parsed == 0 {
			continue
		}
		ids = append(ids, uint(parsed))
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}
