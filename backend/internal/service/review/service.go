package review

import (
	"context"
	"fmt"
	"strings"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/infra/metrics"
	"prompt-share/backend/internal/repository"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"go.uber.org/zap"
)

// Service 处理管理员对公开投稿的审核：通过、驳回与待审队列。
// 审核记录先落库再迁移状态，保证每次状态变化都有审计凭据。
type Service struct {
	reviews   *repository.ReviewRepository
	prompts   *repository.PromptRepository
	lifecycle *promptsvc.Service
	logger    *zap.SugaredLogger
}

// NewService 构建审核服务。
func NewService(reviews *repository.ReviewRepository, prompts *repository.PromptRepository, lifecycle *promptsvc.Service, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		reviews:   reviews,
		prompts:   prompts,
		lifecycle: lifecycle,
		logger:    logger,
	}
}

// DecisionInput 描述一次审核决定。
type DecisionInput struct {
	ReviewerID uint
	PromptID   uint
	Notes      string
}

// QueueInput 描述待审队列的分页参数。
type QueueInput struct {
	Page     int
	PageSize int
}

// Approve 审核通过：记录审核结论，随后将 Prompt 迁移至 published 并同步计数。
func (s *Service) Approve(ctx context.Context, input DecisionInput) (*promptdomain.Prompt, error) {
	return s.decide(ctx, input, promptdomain.ReviewStatusApproved, promptdomain.PromptStatusPublished)
}

// Reject 审核驳回：记录审核结论，随后将 Prompt 迁移至 rejected。
func (s *Service) Reject(ctx context.Context, input DecisionInput) (*promptdomain.Prompt, error) {
	return s.decide(ctx, input, promptdomain.ReviewStatusRejected, promptdomain.PromptStatusRejected)
}

func (s *Service) decide(ctx context.Context, input DecisionInput, decision, toStatus string) (*promptdomain.Prompt, error) {
	if input.ReviewerID == 0 {
		return nil, fmt.Errorf("%w: 缺少审核人", promptsvc.ErrInvalidInput)
	}
	current, err := s.lifecycle.GetForReview(ctx, input.PromptID)
	if err != nil {
		return nil, err
	}
	if current.Status != promptdomain.PromptStatusReviewing {
		return nil, promptsvc.ErrInvalidTransition
	}

	record := &promptdomain.Review{
		PromptID:   input.PromptID,
		ReviewerID: input.ReviewerID,
		Status:     decision,
		Notes:      strings.TrimSpace(input.Notes),
	}
	if err := s.reviews.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record review: %w", err)
	}

	entity, err := s.lifecycle.Transition(ctx, input.PromptID, toStatus)
	if err != nil {
		// 审核记录已落库而状态迁移失败时保留记录，由重试或对账收敛。
		s.logger.Errorw("transition after review failed", "prompt_id", input.PromptID, "to_status", toStatus, "error", err)
		return entity, err
	}
	metrics.RecordReviewDecision(decision)
	return entity, nil
}

// Queue 按提交时间正序返回待审核的公开投稿。
func (s *Service) Queue(ctx context.Context, input QueueInput) (promptsvc.ListOutput, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	items, total, err := s.prompts.List(ctx, repository.PromptListFilter{
		Status: promptdomain.PromptStatusReviewing,
		SortBy: repository.SortByOldest,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return promptsvc.ListOutput{}, fmt.Errorf("list review queue: %w", err)
	}
	for i := range items {
		tags, err := s.prompts.ListTags(ctx, items[i].ID)
		if err != nil {
			return promptsvc.ListOutput{}, fmt.Errorf("fill tags: %w", err)
		}
		items[i].Tags = tags
	}
	return promptsvc.ListOutput{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// History 返回指定 Prompt 的审核记录，按时间倒序。
func (s *Service) History(ctx context.Context, promptID uint) ([]promptdomain.Review, error) {
	return s.reviews.ListByPrompt(ctx, promptID)
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	pages := total / int64(pageSize)
	if total%int64(pageSize) != 0 {
		pages++
	}
	return int(pages)
}
