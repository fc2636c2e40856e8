package handler

import (
	"net/http"

	response "prompt-share/backend/internal/infra/common"
	appLogger "prompt-share/backend/internal/infra/logger"
	"prompt-share/backend/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TaxonomyHandler 返回分类与标签列表，计数来自冗余统计列。
type TaxonomyHandler struct {
	taxonomy *repository.TaxonomyRepository
	logger   *zap.SugaredLogger
}

// NewTaxonomyHandler 创建 TaxonomyHandler。
func NewTaxonomyHandler(taxonomy *repository.TaxonomyRepository) *TaxonomyHandler {
	return &TaxonomyHandler{
		taxonomy: taxonomy,
		logger:   appLogger.S().With("component", "taxonomy.handler"),
	}
}

// ListCategories 处理 GET /api/categories。
func (h *TaxonomyHandler) ListCategories(c *gin.Context) {
	categories, err := h.taxonomy.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.Warnw("list categories failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "服务器内部错误", nil)
		return
	}

	views := make([]categoryView, 0, len(categories))
	for _, category := range categories {
		views = append(views, toCategoryView(category))
	}
	response.Success(c, http.StatusOK, views, nil)
}

// ListTags 处理 GET /api/tags。
func (h *TaxonomyHandler) ListTags(c *gin.Context) {
	tags, err := h.taxonomy.ListTags(c.Request.Context())
	if err != nil {
		h.logger.Warnw("list tags failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "服务器内部错误", nil)
		return
	}

	views := make([]tagView, 0, len(tags))
	for _, tag := range tags {
		views = append(views, toTagView(tag))
	}
	response.Success(c, http.StatusOK, views, nil)
}
