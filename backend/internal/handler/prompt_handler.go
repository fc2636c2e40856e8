package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	response "prompt-share/backend/internal/infra/common"
	appLogger "prompt-share/backend/internal/infra/logger"
	"prompt-share/backend/internal/infra/ratelimit"
	favoritesvc "prompt-share/backend/internal/service/favorite"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PromptHandler 承接投稿相关的 HTTP 请求：创建、编辑、删除、我的列表与收藏。
type PromptHandler struct {
	lifecycle      *promptsvc.Service
	favorites      *favoritesvc.Service
	limiter        ratelimit.Limiter
	logger         *zap.SugaredLogger
	submitLimit    int
	submitWindow   time.Duration
	favoriteLimit  int
	favoriteWindow time.Duration
}

// PromptRateLimit 配置投稿与收藏接口的限流阈值。
type PromptRateLimit struct {
	SubmitLimit    int
	SubmitWindow   time.Duration
	FavoriteLimit  int
	FavoriteWindow time.Duration
}

const (
	// DefaultSubmitLimit 控制创建与编辑接口默认限额（次/窗口）。
	DefaultSubmitLimit = 20
	// DefaultSubmitWindow 控制创建与编辑接口限流窗口长度。
	DefaultSubmitWindow = time.Minute
	// DefaultFavoriteLimit 控制收藏接口默认限额。
	DefaultFavoriteLimit = 60
	// DefaultFavoriteWindow 控制收藏接口限流窗口长度。
	DefaultFavoriteWindow = time.Minute
)

// NewPromptHandler 创建 PromptHandler，若未传入限流配置则使用默认阈值。
func NewPromptHandler(lifecycle *promptsvc.Service, favorites *favoritesvc.Service, limiter ratelimit.Limiter, cfg PromptRateLimit) *PromptHandler {
	base := appLogger.S().With("component", "prompt.handler")
	if cfg.SubmitLimit <= 0 {
		cfg.SubmitLimit = DefaultSubmitLimit
	}
	if cfg.SubmitWindow <= 0 {
		cfg.SubmitWindow = DefaultSubmitWindow
	}
	if cfg.FavoriteLimit <= 0 {
		cfg.FavoriteLimit = DefaultFavoriteLimit
	}
	if cfg.FavoriteWindow <= 0 {
		cfg.FavoriteWindow = DefaultFavoriteWindow
	}
	return &PromptHandler{
		lifecycle:      lifecycle,
		favorites:      favorites,
		limiter:        limiter,
		logger:         base,
		submitLimit:    cfg.SubmitLimit,
		submitWindow:   cfg.SubmitWindow,
		favoriteLimit:  cfg.FavoriteLimit,
		favoriteWindow: cfg.FavoriteWindow,
	}
}

// promptRequest 描述创建与编辑接口共用的请求体。
type promptRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Content     string   `json:"content" binding:"required"`
	UsageGuide  string   `json:"usage_guide"`
	CategoryID  uint     `json:"category_id" binding:"required"`
	Language    string   `json:"language"`
	IsPublic    bool     `json:"is_public"`
	TagIDs      []uint   `json:"tag_ids"`
	Images      []string `json:"images"`
}

// Create 处理 POST /api/prompts，创建投稿并返回推导出的状态。
func (h *PromptHandler) Create(c *gin.Context) {
	log := h.scope("create")
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}
	if !h.allow(c, "prompt:submit:"+strconv.FormatUint(uint64(userID), 10), h.submitLimit, h.submitWindow) {
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "请求参数不完整", nil)
		return
	}

	entity, err := h.lifecycle.Create(c.Request.Context(), promptsvc.CreateInput{
		AuthorID:    userID,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		UsageGuide:  req.UsageGuide,
		CategoryID:  req.CategoryID,
		Language:    req.Language,
		IsPublic:    req.IsPublic,
		TagIDs:      req.TagIDs,
		Images:      req.Images,
	})
	if err != nil {
		log.Warnw("create prompt failed", "error", err, "user_id", userID)
		respondServiceError(c, err)
		return
	}

	response.Created(c, toPromptView(entity), nil)
}

// Update 处理 PUT /api/prompts/:id，整体覆盖内容并重新推导状态。
func (h *PromptHandler) Update(c *gin.Context) {
	log := h.scope("update")
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !h.allow(c, "prompt:submit:"+strconv.FormatUint(uint64(userID), 10), h.submitLimit, h.submitWindow) {
		return
	}

	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "请求参数不完整", nil)
		return
	}

	entity, err := h.lifecycle.Update(c.Request.Context(), promptsvc.UpdateInput{
		ActorID:     userID,
		PromptID:    promptID,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		UsageGuide:  req.UsageGuide,
		CategoryID:  req.CategoryID,
		Language:    req.Language,
		IsPublic:    req.IsPublic,
		TagIDs:      req.TagIDs,
		Images:      req.Images,
	})
	if err != nil {
		log.Warnw("update prompt failed", "error", err, "user_id", userID, "prompt_id", promptID)
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toPromptView(entity), nil)
}

// Delete 处理 DELETE /api/prompts/:id。
func (h *PromptHandler) Delete(c *gin.Context) {
	log := h.scope("delete")
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.lifecycle.Delete(c.Request.Context(), userID, isAdmin(c), promptID); err != nil {
		log.Warnw("delete prompt failed", "error", err, "user_id", userID, "prompt_id", promptID)
		respondServiceError(c, err)
		return
	}

	response.NoContent(c)
}

// GetMine 处理 GET /api/prompts/:id，返回作者视角的详情。
func (h *PromptHandler) GetMine(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	entity, err := h.lifecycle.GetMine(c.Request.Context(), userID, promptID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toPromptView(entity), nil)
}

// ListMine 处理 GET /api/prompts，分页返回作者自己的投稿。
func (h *PromptHandler) ListMine(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.lifecycle.ListMine(c.Request.Context(), promptsvc.ListMineInput{
		AuthorID: userID,
		Query:    strings.TrimSpace(c.Query("query")),
		Status:   strings.TrimSpace(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	views := toPromptViews(result.Items)
	response.Success(c, http.StatusOK, views, paginationMeta(result.Page, result.PageSize, result.Total, result.TotalPages, len(views)))
}

// Favorite 处理 POST /api/prompts/:id/favorite。
func (h *PromptHandler) Favorite(c *gin.Context) {
	h.toggleFavorite(c, true)
}

// Unfavorite 处理 DELETE /api/prompts/:id/favorite。
func (h *PromptHandler) Unfavorite(c *gin.Context) {
	h.toggleFavorite(c, false)
}

func (h *PromptHandler) toggleFavorite(c *gin.Context, favorite bool) {
	log := h.scope("favorite")
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !h.allow(c, "prompt:favorite:"+strconv.FormatUint(uint64(userID), 10), h.favoriteLimit, h.favoriteWindow) {
		return
	}

	var result favoritesvc.Result
	var err error
	if favorite {
		result, err = h.favorites.Favorite(c.Request.Context(), userID, promptID)
	} else {
		result, err = h.favorites.Unfavorite(c.Request.Context(), userID, promptID)
	}
	if err != nil {
		log.Warnw("toggle favorite failed", "error", err, "user_id", userID, "prompt_id", promptID, "favorite", favorite)
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"favorited":      result.Favorited,
		"favorite_count": result.FavoriteCount,
	}, nil)
}

// allow 根据限流配置判断当前请求是否放行。
func (h *PromptHandler) allow(c *gin.Context, key string, limit int, window time.Duration) bool {
	if h.limiter == nil || limit <= 0 {
		return true
	}
	res, err := h.limiter.Allow(c.Request.Context(), key, limit, window)
	if err != nil {
		h.logger.Warnw("ratelimit error", "key", key, "error", err)
		return true
	}
	if res.Allowed {
		return true
	}
	retry := int(res.RetryAfter.Seconds())
	response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "请求过于频繁，请稍后再试", gin.H{"retry_after_seconds": retry})
	return false
}

// scope 派生带行动标签的日志实例，便于排查具体操作。
func (h *PromptHandler) scope(action string) *zap.SugaredLogger {
	return h.logger.With("action", action)
}
