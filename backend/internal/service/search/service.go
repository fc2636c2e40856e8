package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/infra/metrics"
	"prompt-share/backend/internal/repository"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultListPageSize 定义公开列表默认每页条目数。
const DefaultListPageSize = 12

// DefaultListMaxPageSize 定义公开列表允许的最大单页条目数。
const DefaultListMaxPageSize = 60

// defaultRelatedLimit 定义相关推荐的默认条数。
const defaultRelatedLimit = 6

// viewIncrement 定义每次浏览累加的基准值。
const viewIncrement = 1

// ViewConfig 描述浏览量统计所需的配置项。
type ViewConfig struct {
	Enabled       bool
	BufferKey     string
	GuardPrefix   string
	GuardTTL      time.Duration
	FlushInterval time.Duration
	FlushBatch    int
	FlushLockKey  string
	FlushLockTTL  time.Duration
}

// normaliseViewConfig 负责填充浏览量配置的默认值。
func normaliseViewConfig(cfg ViewConfig) ViewConfig {
	if cfg.BufferKey == "" {
		cfg.BufferKey = "prompt:view:buffer"
	}
	if cfg.GuardPrefix == "" {
		cfg.GuardPrefix = "prompt:view:guard"
	}
	if cfg.FlushLockKey == "" {
		cfg.FlushLockKey = "prompt:view:flush:lock"
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = time.Minute
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = 128
	}
	if cfg.FlushLockTTL <= 0 {
		cfg.FlushLockTTL = 10 * time.Second
	}
	return cfg
}

// Config 描述公开浏览服务的可配置参数。
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	DefaultLanguage string
	FullTextSearch  bool
	View            ViewConfig
}

// Service 组装公开库的查询条件并执行检索，同时负责浏览量的去重缓冲与落库。
// 检索条件覆盖关键词、分类（OR）、标签（OR）、语言与排除项，结果度量以条目
// 总数与总页数返回。浏览量优先写入 Redis 缓冲，由后台任务批量刷回数据库。
type Service struct {
	prompts       *repository.PromptRepository
	favorites     *repository.FavoriteRepository
	redis         *redis.Client
	cfg           Config
	viewCfg       ViewConfig
	viewLockValue string
	logger        *zap.SugaredLogger
}

// NewService 构建公开浏览服务，redisClient 为空时浏览量直接写库。
func NewService(prompts *repository.PromptRepository, favorites *repository.FavoriteRepository, redisClient *redis.Client, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultListPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultListMaxPageSize
	}
	return &Service{
		prompts:       prompts,
		favorites:     favorites,
		redis:         redisClient,
		cfg:           cfg,
		viewCfg:       normaliseViewConfig(cfg.View),
		viewLockValue: uuid.NewString(),
		logger:        logger,
	}
}

// ListInput 描述一次公开检索的全部条件。
type ListInput struct {
	Query       string
	CategoryIDs []uint
	TagIDs      []uint
	Language    string
	Status      string
	SortBy      string
	ExcludeID   uint
	Page        int
	PageSize    int
	ViewerID    uint
}

// ListResult 返回检索结果与分页度量。
type ListResult struct {
	Items      []promptdomain.Prompt
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// List 组装过滤条件并执行检索。状态默认 published；请求默认语言时，
// 未填写语言的历史记录也会命中；带关键词时默认按相关度排序。
func (s *Service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = promptdomain.PromptStatusPublished
	}
	switch status {
	case promptdomain.PromptStatusReviewing, promptdomain.PromptStatusPublished, promptdomain.PromptStatusRejected:
	default:
		return nil, fmt.Errorf("%w: 未知状态 %q", promptsvc.ErrInvalidInput, status)
	}

	sortBy, err := s.resolveSort(input.SortBy, input.Query)
	if err != nil {
		return nil, err
	}

	filter := repository.PromptListFilter{
		Query:       strings.TrimSpace(input.Query),
		UseFullText: s.cfg.FullTextSearch,
		CategoryIDs: input.CategoryIDs,
		TagIDs:      input.TagIDs,
		Status:      status,
		PublicOnly:  true,
		ExcludeID:   input.ExcludeID,
		SortBy:      sortBy,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	}
	s.applyLanguageFilter(&filter, input.Language)

	items, total, err := s.prompts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search prompts: %w", err)
	}
	if err := s.decorate(ctx, input.ViewerID, items); err != nil {
		return nil, err
	}
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Get 返回公开详情。未发布或私有的记录仅作者可见，其余访问者得到不存在错误。
// 成功读取会触发一次带去重保护的浏览计数。
func (s *Service) Get(ctx context.Context, id, viewerID uint) (*promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, promptsvc.ErrPromptNotFound
		}
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	// 私有记录即使已发布也只对作者可见。
	if (entity.Status != promptdomain.PromptStatusPublished || !entity.IsPublic) && entity.AuthorID != viewerID {
		return nil, promptsvc.ErrPromptNotFound
	}

	tags, err := s.prompts.ListTags(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("fill tags: %w", err)
	}
	entity.Tags = tags

	favorited, err := s.favorites.Exists(ctx, viewerID, entity.ID)
	if err != nil {
		s.logger.Warnw("check favorite failed", "prompt_id", entity.ID, "viewer_id", viewerID, "error", err)
	}
	entity.IsFavorited = favorited
	entity.ViewCount += s.pendingViewDelta(ctx, entity.ID)

	if entity.Status == promptdomain.PromptStatusPublished {
		s.trackView(ctx, entity, viewerID)
	}
	return entity, nil
}

// Related 返回与指定 Prompt 同分类的热门已发布条目，排除其自身。
func (s *Service) Related(ctx context.Context, id uint, limit int) ([]promptdomain.Prompt, error) {
	entity, err := s.prompts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, promptsvc.ErrPromptNotFound
		}
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	if limit <= 0 {
		limit = defaultRelatedLimit
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	items, _, err := s.prompts.List(ctx, repository.PromptListFilter{
		CategoryIDs: []uint{entity.CategoryID},
		Status:      promptdomain.PromptStatusPublished,
		PublicOnly:  true,
		ExcludeID:   id,
		SortBy:      repository.SortByPopular,
		Limit:       limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list related prompts: %w", err)
	}
	if err := s.decorate(ctx, 0, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListPageSizeBounds 返回当前生效的分页默认值与上限。
func (s *Service) ListPageSizeBounds() (int, int) {
	return s.cfg.DefaultPageSize, s.cfg.MaxPageSize
}

func (s *Service) resolveSort(sortBy, query string) (string, error) {
	switch strings.TrimSpace(sortBy) {
	case "":
		if strings.TrimSpace(query) != "" {
			return repository.SortByRelevance, nil
		}
		return repository.SortByLatest, nil
	case repository.SortByLatest:
		return repository.SortByLatest, nil
	case repository.SortByPopular:
		return repository.SortByPopular, nil
	case repository.SortByRelevance:
		return repository.SortByRelevance, nil
	default:
		return "", fmt.Errorf("%w: 未知排序 %q", promptsvc.ErrInvalidInput, sortBy)
	}
}

// applyLanguageFilter 设置语言条件。查询默认语言时同时匹配未填写语言的记录。
func (s *Service) applyLanguageFilter(filter *repository.PromptListFilter, language string) {
	lang := strings.TrimSpace(language)
	if lang == "" {
		return
	}
	filter.Language = lang
	if lang == s.cfg.DefaultLanguage {
		filter.MatchNoLang = true
	}
}

// decorate 批量填充标签、待落库浏览增量与收藏标记。
func (s *Service) decorate(ctx context.Context, viewerID uint, items []promptdomain.Prompt) error {
	for i := range items {
		tags, err := s.prompts.ListTags(ctx, items[i].ID)
		if err != nil {
			return fmt.Errorf("fill tags: %w", err)
		}
		items[i].Tags = tags
		items[i].ViewCount += s.pendingViewDelta(ctx, items[i].ID)
		if viewerID != 0 {
			favorited, err := s.favorites.Exists(ctx, viewerID, items[i].ID)
			if err != nil {
				return fmt.Errorf("check favorite: %w", err)
			}
			items[i].IsFavorited = favorited
		}
	}
	return nil
}

// pendingViewDelta 读取 Redis 缓冲中尚未落库的浏览增量，用于展示时叠加。
func (s *Service) pendingViewDelta(ctx context.Context, promptID uint) uint64 {
	if !s.viewCfg.Enabled || s.redis == nil || promptID == 0 {
		return 0
	}
	pending, err := s.redis.HGet(ctx, s.viewCfg.BufferKey, s.viewFieldKey(promptID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warnw("load pending view count failed", "error", err, "prompt_id", promptID)
		}
		return 0
	}
	delta, convErr := strconv.ParseInt(pending, 10, 64)
	if convErr != nil {
		s.logger.Warnw("parse pending view count failed", "error", convErr, "prompt_id", promptID, "raw", pending)
		return 0
	}
	if delta <= 0 {
		return 0
	}
	return uint64(delta)
}

// trackView 在详情被访问时累加浏览量，结合 Redis 做用户维度去重缓冲。
func (s *Service) trackView(ctx context.Context, entity *promptdomain.Prompt, viewerID uint) {
	if !s.viewCfg.Enabled {
		return
	}
	if viewerID != 0 && !s.acquireViewGuard(ctx, entity.ID, viewerID) {
		return
	}
	if s.enqueueView(ctx, entity.ID, viewIncrement) {
		entity.ViewCount += uint64(viewIncrement)
	}
}

func (s *Service) viewFieldKey(promptID uint) string {
	return strconv.FormatUint(uint64(promptID), 10)
}

// acquireViewGuard 基于用户维度实现短期去重，防止刷新请求刷爆浏览量。
func (s *Service) acquireViewGuard(ctx context.Context, promptID, viewerID uint) bool {
	if s.redis == nil {
		return true
	}
	guardKey := fmt.Sprintf("%s:%d:%d", s.viewCfg.GuardPrefix, promptID, viewerID)
	ok, err := s.redis.SetNX(ctx, guardKey, "1", s.viewCfg.GuardTTL).Result()
	if err != nil {
		s.logger.Warnw("acquire view guard failed", "error", err, "prompt_id", promptID, "viewer_id", viewerID)
		return true
	}
	return ok
}

// enqueueView 将浏览量写入 Redis 缓冲区，写入失败时回退到同步更新数据库。
func (s *Service) enqueueView(ctx context.Context, promptID uint, delta int) bool {
	if delta == 0 {
		return true
	}
	if s.redis == nil {
		if err := s.prompts.IncrementViewCount(ctx, promptID, delta); err != nil {
			s.logger.Warnw("increment prompt view failed", "error", err, "prompt_id", promptID)
			return false
		}
		return true
	}
	if err := s.redis.HIncrBy(ctx, s.viewCfg.BufferKey, s.viewFieldKey(promptID), int64(delta)).Err(); err != nil {
		s.logger.Warnw("buffer prompt view failed", "error", err, "prompt_id", promptID)
		if err := s.prompts.IncrementViewCount(ctx, promptID, delta); err != nil {
			s.logger.Errorw("fallback increment prompt view failed", "error", err, "prompt_id", promptID)
			return false
		}
	}
	return true
}

// StartViewFlushWorker 启动浏览量落库任务，将 Redis 缓冲数据批量刷回数据库。
func (s *Service) StartViewFlushWorker(ctx context.Context) {
	if !s.viewCfg.Enabled || s.redis == nil {
		s.logger.Infow("view flush worker disabled")
		return
	}
	ticker := time.NewTicker(s.viewCfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.FlushViewBuffer(ctx)
			}
		}
	}()
}

// FlushViewBuffer 把 Redis 缓冲的浏览增量批量刷回数据库。
// 先以 SetNX 获取分布式锁避免多实例并发刷写，再按批 HSCAN 缓冲区，
// 逐条累加到 prompts.view_count，成功的字段以 HDEL 清理防止重复。
func (s *Service) FlushViewBuffer(ctx context.Context) {
	if !s.viewCfg.Enabled || s.redis == nil {
		return
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.viewCfg.FlushLockTTL)
	defer cancel()
	if !s.acquireFlushLock(lockCtx) {
		return
	}
	defer s.releaseFlushLock(context.Background())

	cursor := uint64(0)
	processed := 0
	limit := s.viewCfg.FlushBatch
	for {
		if processed >= limit {
			metrics.RecordViewFlush("truncated", processed)
			return
		}
		scanCount := int64(limit - processed)
		results, nextCursor, err := s.redis.HScan(ctx, s.viewCfg.BufferKey, cursor, "*", scanCount).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.Warnw("scan view buffer failed", "error", err)
				metrics.RecordViewFlush("error", processed)
			}
			return
		}
		if len(results) == 0 {
			if nextCursor == 0 {
				metrics.RecordViewFlush("ok", processed)
				return
			}
			cursor = nextCursor
			continue
		}

		type viewEntry struct {
			promptID uint
			delta    int
			field    string
		}
		entries := make([]viewEntry, 0, len(results)/2)
		for i := 0; i+1 < len(results) && processed < limit; i += 2 {
			field := results[i]
			rawDelta := results[i+1]
			promptIDVal, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				s.logger.Warnw("parse view buffer key failed", "error", err, "field", field)
				continue
			}
			deltaVal, err := strconv.ParseInt(rawDelta, 10, 64)
			if err != nil {
				s.logger.Warnw("parse view buffer value failed", "error", err, "field", field, "value", rawDelta)
				continue
			}
			if deltaVal <= 0 {
				continue
			}
			if deltaVal > int64(^uint(0)>>1) {
				deltaVal = int64(^uint(0) >> 1)
			}
			entries = append(entries, viewEntry{promptID: uint(promptIDVal), delta: int(deltaVal), field: field})
			processed++
		}
		if len(entries) == 0 {
			if nextCursor == 0 {
				metrics.RecordViewFlush("ok", processed)
				return
			}
			cursor = nextCursor
			continue
		}

		removedFields := make([]string, 0, len(entries))
		for _, item := range entries {
			if err := s.prompts.IncrementViewCount(ctx, item.promptID, item.delta); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Prompt 已删除，丢弃缓冲中的残余增量。
					removedFields = append(removedFields, item.field)
					continue
				}
				s.logger.Warnw("flush view count failed", "error", err, "prompt_id", item.promptID, "delta", item.delta)
				continue
			}
			removedFields = append(removedFields, item.field)
		}
		if len(removedFields) > 0 {
			if err := s.redis.HDel(ctx, s.viewCfg.BufferKey, removedFields...).Err(); err != nil {
				s.logger.Warnw("cleanup view buffer failed", "error", err, "fields", removedFields)
			}
		}
		if nextCursor == 0 {
			metrics.RecordViewFlush("ok", processed)
			return
		}
		cursor = nextCursor
	}
}

// acquireFlushLock 获取浏览量刷库的分布式锁，避免多实例重复刷写。
func (s *Service) acquireFlushLock(ctx context.Context) bool {
	if s.redis == nil {
		return false
	}
	ok, err := s.redis.SetNX(ctx, s.viewCfg.FlushLockKey, s.viewLockValue, s.viewCfg.FlushLockTTL).Result()
	if err != nil {
		s.logger.Warnw("acquire view flush lock failed", "error", err)
		return false
	}
	return ok
}

// releaseFlushLock 释放浏览量刷库锁，确保只删除自己持有的锁。
func (s *Service) releaseFlushLock(ctx context.Context) {
	if s.redis == nil {
		return
	}
	const script = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
	`
	if _, err := s.redis.Eval(ctx, script, []string{s.viewCfg.FlushLockKey}, s.viewLockValue).Result(); err != nil && err != redis.Nil {
		s.logger.Warnw("release view flush lock failed", "error", err)
	}
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
