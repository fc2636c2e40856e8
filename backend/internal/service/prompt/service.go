package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/infra/metrics"
	"prompt-share/backend/internal/repository"
	"prompt-share/backend/internal/service/counter"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 生命周期服务的哨兵错误，供处理器映射为响应码。
var (
	ErrPromptNotFound    = errors.New("Prompt 不存在")
	ErrForbidden         = errors.New("无权操作该 Prompt")
	ErrInvalidInput      = errors.New("参数不合法")
	ErrInvalidTransition = errors.New("当前状态不允许该操作")
)

const (
	defaultMaxTags          = 10
	defaultMaxImages        = 6
	defaultMaxTitleLen      = 120
	defaultMaxDescription   = 2000
	defaultMaxContentLen    = 20000
	defaultMaxUsageGuideLen = 5000
)

// Config 控制投稿内容的规模上限。
type Config struct {
	MaxTags           int
	MaxImages         int
	MaxTitleLen       int
	MaxDescriptionLen int
	MaxContentLen     int
	MaxUsageGuideLen  int
}

func (c Config) normalise() Config {
	if c.MaxTags <= 0 {
		c.MaxTags = defaultMaxTags
	}
	if c.MaxImages <= 0 {
		c.MaxImages = defaultMaxImages
	}
	if c.MaxTitleLen <= 0 {
		c.MaxTitleLen = defaultMaxTitleLen
	}
	if c.MaxDescriptionLen <= 0 {
		c.MaxDescriptionLen = defaultMaxDescription
	}
	if c.MaxContentLen <= 0 {
		c.MaxContentLen = defaultMaxContentLen
	}
	if c.MaxUsageGuideLen <= 0 {
		c.MaxUsageGuideLen = defaultMaxUsageGuideLen
	}
	return c
}

// Service 管理 Prompt 的完整生命周期：创建、编辑、删除以及状态迁移。
// 状态由可见性推导：私有投稿直接 published，公开投稿必须进入 reviewing，
// 且每次编辑都会重新推导，公开 Prompt 改动后需重新过审。
// 每次跨越 published 边界的迁移都会同步分类与标签的冗余计数。
type Service struct {
	db       *gorm.DB
	prompts  *repository.PromptRepository
	taxonomy *repository.TaxonomyRepository
	counters *counter.Service
	cfg      Config
	logger   *zap.SugaredLogger
}

// NewService 构建生命周期服务。
func NewService(db *gorm.DB, prompts *repository.PromptRepository, taxonomy *repository.TaxonomyRepository, counters *counter.Service, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		db:       db,
		prompts:  prompts,
		taxonomy: taxonomy,
		counters: counters,
		cfg:      cfg.normalise(),
		logger:   logger,
	}
}

// CreateInput 描述创建 Prompt 所需的全部字段。
type CreateInput struct {
	AuthorID    uint
	Title       string
	Description string
	Content     string
	UsageGuide  string
	CategoryID  uint
	Language    string
	IsPublic    bool
	TagIDs      []uint
	Images      []string
}

// UpdateInput 描述编辑 Prompt 的参数，所有内容字段整体覆盖。
type UpdateInput struct {
	ActorID     uint
	PromptID    uint
	Title       string
	Description string
	Content     string
	UsageGuide  string
	CategoryID  uint
	Language    string
	IsPublic    bool
	TagIDs      []uint
	Images      []string
}

// ListMineInput 描述作者查询自己投稿的条件。
type ListMineInput struct {
	AuthorID uint
	Query    string
	Status   string
	Page     int
	PageSize int
}

// ListOutput 返回分页列表与总量信息。
type ListOutput struct {
	Items      []promptdomain.Prompt
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// StatusFor 由可见性推导目标状态：公开投稿必须审核，私有投稿直接发布。
func StatusFor(isPublic bool) string {
	if isPublic {
		return promptdomain.PromptStatusReviewing
	}
	return promptdomain.PromptStatusPublished
}

// Create 校验并写入新 Prompt，随后同步聚合计数。
// 行写入成功但计数同步失败时仍返回实体，错误为 *counter.SyncError。
func (s *Service) Create(ctx context.Context, input CreateInput) (*promptdomain.Prompt, error) {
	if input.AuthorID == 0 {
		return nil, fmt.Errorf("%w: 缺少作者", ErrInvalidInput)
	}
	if err := s.validateContent(input.Title, input.Description, input.Content, input.UsageGuide, input.Images); err != nil {
		return nil, err
	}
	tagIDs := dedupeIDs(input.TagIDs)
	if err := s.validateReferences(ctx, input.CategoryID, tagIDs); err != nil {
		return nil, err
	}
	images, err := marshalImages(input.Images)
	if err != nil {
		return nil, err
	}

	entity := &promptdomain.Prompt{
		AuthorID:    input.AuthorID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Content:     input.Content,
		UsageGuide:  strings.TrimSpace(input.UsageGuide),
		CategoryID:  input.CategoryID,
		Language:    strings.TrimSpace(input.Language),
		IsPublic:    input.IsPublic,
		Status:      StatusFor(input.IsPublic),
		Images:      images,
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.prompts.WithDB(tx)
		if err := repo.Create(ctx, entity); err != nil {
			return err
		}
		return repo.ReplaceTags(ctx, entity.ID, tagIDs)
	}); err != nil {
		return nil, fmt.Errorf("persist prompt: %w", err)
	}
	metrics.RecordPromptTransition(entity.Status)

	if err := s.fillTags(ctx, entity); err != nil {
		s.logger.Warnw("fill tags after create failed", "prompt_id", entity.ID, "error", err)
	}

	plan := counter.BuildPlan(nil, s.snapshot(entity, tagIDs))
	if err := s.counters.Apply(ctx, plan); err != nil {
		return entity, err
	}
	return entity, nil
}

// Update 整体覆盖 Prompt 内容并重新推导状态。
// 已发布的公开 Prompt 被编辑后会退回 reviewing，其计数贡献随之撤销。
func (s *Service) Update(ctx context.Context, input UpdateInput) (*promptdomain.Prompt, error) {
	entity, err := s.loadOwned(ctx, input.ActorID, input.PromptID)
	if err != nil {
		return nil, err
	}
	if err := s.validateContent(input.Title, input.Description, input.Content, input.UsageGuide, input.Images); err != nil {
		return nil, err
	}
	tagIDs := dedupeIDs(input.TagIDs)
	if err := s.validateReferences(ctx, input.CategoryID, tagIDs); err != nil {
		return nil, err
	}
	images, err := marshalImages(input.Images)
	if err != nil {
		return nil, err
	}

	beforeTagIDs, err := s.prompts.ListTagIDs(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("load current tags: %w", err)
	}
	before := s.snapshot(entity, beforeTagIDs)

	previousStatus := entity.Status
	entity.Title = strings.TrimSpace(input.Title)
	entity.Description = strings.TrimSpace(input.Description)
	entity.Content = input.Content
	entity.UsageGuide = strings.TrimSpace(input.UsageGuide)
	entity.CategoryID = input.CategoryID
	entity.Language = strings.TrimSpace(input.Language)
	entity.IsPublic = input.IsPublic
	entity.Status = StatusFor(input.IsPublic)
	entity.Images = images

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.prompts.WithDB(tx)
		if err := repo.Update(ctx, entity); err != nil {
			return err
		}
		return repo.ReplaceTags(ctx, entity.ID, tagIDs)
	}); err != nil {
		return nil, fmt.Errorf("persist prompt: %w", err)
	}
	if entity.Status != previousStatus {
		metrics.RecordPromptTransition(entity.Status)
	}

	if err := s.fillTags(ctx, entity); err != nil {
		s.logger.Warnw("fill tags after update failed", "prompt_id", entity.ID, "error", err)
	}

	plan := counter.BuildPlan(before, s.snapshot(entity, tagIDs))
	if err := s.counters.Apply(ctx, plan); err != nil {
		return entity, err
	}
	return entity, nil
}

// Delete 移除 Prompt 及其关联数据，作者与管理员均可执行。
// 已发布记录被删除时撤销其计数贡献。
func (s *Service) Delete(ctx context.Context, actorID uint, isAdmin bool, promptID uint) error {
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		return fmt.Errorf("load prompt: %w", err)
	}
	if entity.AuthorID != actorID && !isAdmin {
		return ErrForbidden
	}

	tagIDs, err := s.prompts.ListTagIDs(ctx, promptID)
	if err != nil {
		return fmt.Errorf("load current tags: %w", err)
	}
	before := s.snapshot(entity, tagIDs)

	if err := s.prompts.Delete(ctx, promptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPromptNotFound
		}
		return fmt.Errorf("delete prompt: %w", err)
	}

	return s.counters.Apply(ctx, counter.BuildPlan(before, nil))
}

// Transition 将 Prompt 迁移到目标状态并同步计数，由审核服务调用。
// 仅允许从 reviewing 出发，重复审核返回 ErrInvalidTransition。
func (s *Service) Transition(ctx context.Context, promptID uint, toStatus string) (*promptdomain.Prompt, error) {
	if toStatus != promptdomain.PromptStatusPublished && toStatus != promptdomain.PromptStatusRejected {
		return nil, fmt.Errorf("%w: 未知目标状态 %q", ErrInvalidInput, toStatus)
	}
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	if entity.Status != promptdomain.PromptStatusReviewing {
		return nil, ErrInvalidTransition
	}

	tagIDs, err := s.prompts.ListTagIDs(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("load current tags: %w", err)
	}
	before := s.snapshot(entity, tagIDs)

	entity.Status = toStatus
	if err := s.prompts.Update(ctx, entity); err != nil {
		return nil, fmt.Errorf("persist prompt: %w", err)
	}
	metrics.RecordPromptTransition(toStatus)

	plan := counter.BuildPlan(before, s.snapshot(entity, tagIDs))
	if err := s.counters.Apply(ctx, plan); err != nil {
		return entity, err
	}
	return entity, nil
}

// GetForReview 不做作者校验地加载 Prompt，供审核服务在管理员上下文中使用。
func (s *Service) GetForReview(ctx context.Context, promptID uint) (*promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	return entity, nil
}

// GetMine 返回作者自己的 Prompt 详情，任意状态均可见。
func (s *Service) GetMine(ctx context.Context, actorID, promptID uint) (*promptdomain.Prompt, error) {
	entity, err := s.loadOwned(ctx, actorID, promptID)
	if err != nil {
		return nil, err
	}
	if err := s.fillTags(ctx, entity); err != nil {
		return nil, fmt.Errorf("fill tags: %w", err)
	}
	return entity, nil
}

// ListMine 分页返回作者自己的投稿，可按状态过滤，默认按更新时间倒序。
func (s *Service) ListMine(ctx context.Context, input ListMineInput) (ListOutput, error) {
	if input.AuthorID == 0 {
		return ListOutput{}, fmt.Errorf("%w: 缺少作者", ErrInvalidInput)
	}
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
	status := strings.TrimSpace(input.Status)
	if status != "" && !isKnownStatus(status) {
		return ListOutput{}, fmt.Errorf("%w: 未知状态 %q", ErrInvalidInput, status)
	}

	items, total, err := s.prompts.List(ctx, repository.PromptListFilter{
		AuthorID: input.AuthorID,
		Query:    strings.TrimSpace(input.Query),
		Status:   status,
		SortBy:   repository.SortByLatest,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return ListOutput{}, fmt.Errorf("list prompts: %w", err)
	}
	for i := range items {
		if err := s.fillTags(ctx, &items[i]); err != nil {
			return ListOutput{}, fmt.Errorf("fill tags: %w", err)
		}
	}
	return ListOutput{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *Service) loadOwned(ctx context.Context, actorID, promptID uint) (*promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	if entity.AuthorID != actorID {
		return nil, ErrForbidden
	}
	return entity, nil
}

func (s *Service) fillTags(ctx context.Context, entity *promptdomain.Prompt) error {
	tags, err := s.prompts.ListTags(ctx, entity.ID)
	if err != nil {
		return err
	}
	entity.Tags = tags
	return nil
}

func (s *Service) snapshot(entity *promptdomain.Prompt, tagIDs []uint) *counter.Snapshot {
	return &counter.Snapshot{
		Published:  entity.Status == promptdomain.PromptStatusPublished,
		CategoryID: entity.CategoryID,
		TagIDs:     tagIDs,
	}
}

func (s *Service) validateContent(title, description, content, usageGuide string, images []string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: 标题不能为空", ErrInvalidInput)
	}
	if len([]rune(title)) > s.cfg.MaxTitleLen {
		return fmt.Errorf("%w: 标题超过 %d 字", ErrInvalidInput, s.cfg.MaxTitleLen)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: 正文不能为空", ErrInvalidInput)
	}
	if len([]rune(content)) > s.cfg.MaxContentLen {
		return fmt.Errorf("%w: 正文超过 %d 字", ErrInvalidInput, s.cfg.MaxContentLen)
	}
	if len([]rune(description)) > s.cfg.MaxDescriptionLen {
		return fmt.Errorf("%w: 描述超过 %d 字", ErrInvalidInput, s.cfg.MaxDescriptionLen)
	}
	if len([]rune(usageGuide)) > s.cfg.MaxUsageGuideLen {
		return fmt.Errorf("%w: 使用说明超过 %d 字", ErrInvalidInput, s.cfg.MaxUsageGuideLen)
	}
	if len(images) > s.cfg.MaxImages {
		return fmt.Errorf("%w: 配图数量超过 %d 张", ErrInvalidInput, s.cfg.MaxImages)
	}
	for _, image := range images {
		if strings.TrimSpace(image) == "" {
			return fmt.Errorf("%w: 配图地址不能为空", ErrInvalidInput)
		}
	}
	return nil
}

func (s *Service) validateReferences(ctx context.Context, categoryID uint, tagIDs []uint) error {
	if categoryID == 0 {
		return fmt.Errorf("%w: 缺少分类", ErrInvalidInput)
	}
	if _, err := s.taxonomy.FindCategory(ctx, categoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: 分类 %d 不存在", ErrInvalidInput, categoryID)
		}
		return fmt.Errorf("load category: %w", err)
	}
	if len(tagIDs) > s.cfg.MaxTags {
		return fmt.Errorf("%w: 标签数量超过 %d 个", ErrInvalidInput, s.cfg.MaxTags)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	tags, err := s.taxonomy.ListTagsByIDs(ctx, tagIDs)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	if len(tags) != len(tagIDs) {
		known := make(map[uint]struct{}, len(tags))
		for _, tag := range tags {
			known[tag.ID] = struct{}{}
		}
		for _, id := range tagIDs {
			if _, ok := known[id]; !ok {
				return fmt.Errorf("%w: 标签 %d 不存在", ErrInvalidInput, id)
			}
		}
	}
	return nil
}

func isKnownStatus(status string) bool {
	switch status {
	case promptdomain.PromptStatusReviewing, promptdomain.PromptStatusPublished, promptdomain.PromptStatusRejected:
		return true
	}
	return false
}

func dedupeIDs(ids []uint) []uint {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func marshalImages(images []string) (datatypes.JSON, error) {
	if len(images) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("marshal images: %w", err)
	}
	return datatypes.JSON(raw), nil
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
