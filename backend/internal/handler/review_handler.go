package handler

import (
	"net/http"
	"strconv"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	response "prompt-share/backend/internal/infra/common"
	appLogger "prompt-share/backend/internal/infra/logger"
	reviewsvc "prompt-share/backend/internal/service/review"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReviewHandler 承接管理员的审核请求：待审队列、通过、驳回与审核历史。
type ReviewHandler struct {
	reviews *reviewsvc.Service
	logger  *zap.SugaredLogger
}

// NewReviewHandler 创建 ReviewHandler。
func NewReviewHandler(reviews *reviewsvc.Service) *ReviewHandler {
	return &ReviewHandler{
		reviews: reviews,
		logger:  appLogger.S().With("component", "review.handler"),
	}
}

// decisionRequest 描述审核决定的请求体。
type decisionRequest struct {
	Notes string `json:"notes"`
}

// Queue 处理 GET /api/admin/reviews，按提交时间正序返回待审队列。
func (h *ReviewHandler) Queue(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.reviews.Queue(c.Request.Context(), reviewsvc.QueueInput{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.logger.Warnw("list review queue failed", "error", err)
		respondServiceError(c, err)
		return
	}

	views := toPromptViews(result.Items)
	response.Success(c, http.StatusOK, views, paginationMeta(result.Page, result.PageSize, result.Total, result.TotalPages, len(views)))
}

// Approve 处理 POST /api/admin/prompts/:id/approve。
func (h *ReviewHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject 处理 POST /api/admin/prompts/:id/reject。
func (h *ReviewHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ReviewHandler) decide(c *gin.Context, approve bool) {
	reviewerID, ok := h.requireAdmin(c)
	if !ok {
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req decisionRequest
	// 审核备注可选，空请求体同样合法。
	_ = c.ShouldBindJSON(&req)

	input := reviewsvc.DecisionInput{
		ReviewerID: reviewerID,
		PromptID:   promptID,
		Notes:      req.Notes,
	}

	var err error
	var entity *promptdomain.Prompt
	if approve {
		entity, err = h.reviews.Approve(c.Request.Context(), input)
	} else {
		entity, err = h.reviews.Reject(c.Request.Context(), input)
	}
	if err != nil {
		h.logger.Warnw("review decision failed", "error", err, "prompt_id", promptID, "approve", approve)
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toPromptView(entity), nil)
}

// History 处理 GET /api/admin/prompts/:id/reviews，返回审核记录。
func (h *ReviewHandler) History(c *gin.Context) {
	if _, ok := h.requireAdmin(c); !ok {
		return
	}
	promptID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	records, err := h.reviews.History(c.Request.Context(), promptID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, toReviewViews(records), nil)
}

// requireAdmin 校验当前请求来自管理员，否则返回 403。
func (h *ReviewHandler) requireAdmin(c *gin.Context) (uint, bool) {
	userID, ok := extractUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "未登录", nil)
		return 0, false
	}
	if !isAdmin(c) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "仅管理员可执行该操作", nil)
		return 0, false
	}
	return userID, true
}
