package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/repository"
	promptsvc "prompt-share/backend/internal/service/prompt"
)

func setupSearchDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&promptdomain.Prompt{},
		&promptdomain.Category{},
		&promptdomain.Tag{},
		&promptdomain.PromptTag{},
		&promptdomain.Review{},
		&promptdomain.Favorite{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newSearchService(db *gorm.DB, redisClient *redis.Client, cfg Config) *Service {
	prompts := repository.NewPromptRepository(db)
	favorites := repository.NewFavoriteRepository(db)
	return NewService(prompts, favorites, redisClient, cfg, nil)
}

type seedPrompt struct {
	title     string
	status    string
	authorID  uint
	category  uint
	language  string
	private   bool
	viewCount uint64
	tagIDs    []uint
	createdAt time.Time
}

func insertPrompt(t *testing.T, db *gorm.DB, seed seedPrompt) uint {
	t.Helper()
	entity := promptdomain.Prompt{
		AuthorID:   seed.authorID,
		Title:      seed.title,
		Content:    "正文：" + seed.title,
		CategoryID: seed.category,
		Language:   seed.language,
		IsPublic:   !seed.private,
		Status:     seed.status,
		ViewCount:  seed.viewCount,
	}
	if err := db.Create(&entity).Error; err != nil {
		t.Fatalf("seed prompt %q: %v", seed.title, err)
	}
	if !seed.createdAt.IsZero() {
		if err := db.Model(&promptdomain.Prompt{}).Where("id = ?", entity.ID).
			Update("created_at", seed.createdAt).Error; err != nil {
			t.Fatalf("backdate prompt %q: %v", seed.title, err)
		}
	}
	for _, tagID := range seed.tagIDs {
		if err := db.Create(&promptdomain.PromptTag{PromptID: entity.ID, TagID: tagID}).Error; err != nil {
			t.Fatalf("seed prompt tag: %v", err)
		}
	}
	return entity.ID
}

// TestListDefaultsToPublished 验证默认只返回已发布内容，非法状态报错。
func TestListDefaultsToPublished(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{})
	ctx := context.Background()

	insertPrompt(t, db, seedPrompt{title: "已发布", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1})
	insertPrompt(t, db, seedPrompt{title: "待审核", status: promptdomain.PromptStatusReviewing, authorID: 1, category: 1})
	insertPrompt(t, db, seedPrompt{title: "已驳回", status: promptdomain.PromptStatusRejected, authorID: 1, category: 1})

	result, err := service.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 || len(result.Items) != 1 || result.Items[0].Title != "已发布" {
		t.Fatalf("expected only published prompt, got total=%d", result.Total)
	}

	if _, err := service.List(ctx, ListInput{Status: "draft"}); !errors.Is(err, promptsvc.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
	if _, err := service.List(ctx, ListInput{SortBy: "random"}); !errors.Is(err, promptsvc.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown sort, got %v", err)
	}
}

// TestListFilters 验证分类、标签、语言与排除条件的组合。
func TestListFilters(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{DefaultLanguage: "zh"})
	ctx := context.Background()

	zhID := insertPrompt(t, db, seedPrompt{title: "中文写作", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, language: "zh", tagIDs: []uint{1}})
	noLangID := insertPrompt(t, db, seedPrompt{title: "历史数据", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, tagIDs: []uint{2}})
	enID := insertPrompt(t, db, seedPrompt{title: "English Coding", status: promptdomain.PromptStatusPublished, authorID: 1, category: 2, language: "en", tagIDs: []uint{1, 2}})

	t.Run("category or", func(t *testing.T) {
		result, err := service.List(ctx, ListInput{CategoryIDs: []uint{2}})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 1 || result.Items[0].ID != enID {
			t.Fatalf("expected only category 2 prompt, got total=%d", result.Total)
		}
	})

	t.Run("tag or", func(t *testing.T) {
		result, err := service.List(ctx, ListInput{TagIDs: []uint{1, 2}})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 3 {
			t.Fatalf("expected 3 prompts matching any tag, got %d", result.Total)
		}
	})

	t.Run("default language includes no-lang rows", func(t *testing.T) {
		result, err := service.List(ctx, ListInput{Language: "zh"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 2 {
			t.Fatalf("expected zh plus no-lang rows, got %d", result.Total)
		}
		seen := map[uint]bool{}
		for _, item := range result.Items {
			seen[item.ID] = true
		}
		if !seen[zhID] || !seen[noLangID] {
			t.Fatalf("expected ids %d and %d, got %v", zhID, noLangID, seen)
		}
	})

	t.Run("non-default language exact match", func(t *testing.T) {
		result, err := service.List(ctx, ListInput{Language: "en"})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 1 || result.Items[0].ID != enID {
			t.Fatalf("expected only en prompt, got total=%d", result.Total)
		}
	})

	t.Run("exclude id", func(t *testing.T) {
		result, err := service.List(ctx, ListInput{ExcludeID: zhID})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if result.Total != 2 {
			t.Fatalf("expected 2 prompts after exclusion, got %d", result.Total)
		}
		for _, item := range result.Items {
			if item.ID == zhID {
				t.Fatalf("excluded prompt %d still present", zhID)
			}
		}
	})
}

// TestListSortAndPagination 验证排序规则与分页度量。
func TestListSortAndPagination(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{DefaultPageSize: 2})
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Hour)
	oldID := insertPrompt(t, db, seedPrompt{title: "旧但热门", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, viewCount: 100, createdAt: base})
	midID := insertPrompt(t, db, seedPrompt{title: "中间", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, viewCount: 10, createdAt: base.Add(time.Hour)})
	newID := insertPrompt(t, db, seedPrompt{title: "最新但冷门", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, viewCount: 1, createdAt: base.Add(2 * time.Hour)})

	latest, err := service.List(ctx, ListInput{SortBy: repository.SortByLatest, PageSize: 10})
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if latest.Items[0].ID != newID || latest.Items[1].ID != midID || latest.Items[2].ID != oldID {
		t.Fatalf("unexpected latest order: %d %d %d", latest.Items[0].ID, latest.Items[1].ID, latest.Items[2].ID)
	}

	popular, err := service.List(ctx, ListInput{SortBy: repository.SortByPopular, PageSize: 10})
	if err != nil {
		t.Fatalf("list popular: %v", err)
	}
	if popular.Items[0].ID != oldID || popular.Items[1].ID != midID || popular.Items[2].ID != newID {
		t.Fatalf("unexpected popular order: %d %d %d", popular.Items[0].ID, popular.Items[1].ID, popular.Items[2].ID)
	}

	paged, err := service.List(ctx, ListInput{SortBy: repository.SortByLatest, Page: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if paged.Total != 3 || paged.TotalPages != 2 || len(paged.Items) != 1 {
		t.Fatalf("unexpected pagination: total=%d pages=%d items=%d", paged.Total, paged.TotalPages, len(paged.Items))
	}
	// latest 排序为 newID, midID, oldID，第二页只剩最旧的一条。
	if paged.Items[0].ID != oldID {
		t.Fatalf("expected prompt %d on page 2, got %d", oldID, paged.Items[0].ID)
	}
}

// TestGetVisibility 验证未发布详情仅作者可见。
func TestGetVisibility(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{})
	ctx := context.Background()

	id := insertPrompt(t, db, seedPrompt{title: "待审详情", status: promptdomain.PromptStatusReviewing, authorID: 42, category: 1})

	if _, err := service.Get(ctx, id, 0); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for anonymous viewer, got %v", err)
	}
	if _, err := service.Get(ctx, id, 7); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for stranger, got %v", err)
	}
	entity, err := service.Get(ctx, id, 42)
	if err != nil {
		t.Fatalf("author get: %v", err)
	}
	if entity.Title != "待审详情" {
		t.Fatalf("unexpected entity: %+v", entity)
	}
	if _, err := service.Get(ctx, 999, 42); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for missing id, got %v", err)
	}
}

// TestPrivatePromptsHiddenFromPublicSurface 验证私有记录即使已发布也不出现在公开面。
func TestPrivatePromptsHiddenFromPublicSurface(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{})
	ctx := context.Background()

	publicID := insertPrompt(t, db, seedPrompt{title: "公开发布", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1})
	privateID := insertPrompt(t, db, seedPrompt{title: "私有发布", status: promptdomain.PromptStatusPublished, authorID: 42, category: 1, private: true})

	result, err := service.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 1 || result.Items[0].ID != publicID {
		t.Fatalf("expected only public prompt in listing, got total=%d", result.Total)
	}

	if _, err := service.Get(ctx, privateID, 7); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for stranger on private prompt, got %v", err)
	}
	entity, err := service.Get(ctx, privateID, 42)
	if err != nil {
		t.Fatalf("author get private prompt: %v", err)
	}
	if entity.Title != "私有发布" {
		t.Fatalf("unexpected entity: %+v", entity)
	}

	related, err := service.Related(ctx, publicID, 0)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("private peer should not appear in related, got %d items", len(related))
	}
}

// TestRelatedSameCategory 验证相关推荐同分类、排除自身且仅含已发布内容。
func TestRelatedSameCategory(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{})
	ctx := context.Background()

	selfID := insertPrompt(t, db, seedPrompt{title: "自己", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1})
	peerID := insertPrompt(t, db, seedPrompt{title: "同类热门", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1, viewCount: 50})
	insertPrompt(t, db, seedPrompt{title: "同类待审", status: promptdomain.PromptStatusReviewing, authorID: 1, category: 1})
	insertPrompt(t, db, seedPrompt{title: "异类", status: promptdomain.PromptStatusPublished, authorID: 1, category: 2})

	items, err := service.Related(ctx, selfID, 0)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(items) != 1 || items[0].ID != peerID {
		t.Fatalf("expected only peer %d, got %d items", peerID, len(items))
	}
}

// TestViewBufferPipeline 验证浏览量的去重缓冲、展示叠加与批量落库。
func TestViewBufferPipeline(t *testing.T) {
	db := setupSearchDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	service := newSearchService(db, client, Config{View: ViewConfig{Enabled: true}})
	ctx := context.Background()

	id := insertPrompt(t, db, seedPrompt{title: "浏览统计", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1})

	first, err := service.Get(ctx, id, 5)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.ViewCount != 1 {
		t.Fatalf("expected displayed view count 1 after first visit, got %d", first.ViewCount)
	}

	// 同一用户短期内重复访问被守卫拦截，缓冲不再累加。
	second, err := service.Get(ctx, id, 5)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.ViewCount != 1 {
		t.Fatalf("expected view count still 1 for repeated visit, got %d", second.ViewCount)
	}

	// 另一位用户的访问正常累加。
	third, err := service.Get(ctx, id, 6)
	if err != nil {
		t.Fatalf("third get: %v", err)
	}
	if third.ViewCount != 2 {
		t.Fatalf("expected view count 2 after second viewer, got %d", third.ViewCount)
	}

	// 落库前数据库不变，缓冲承载全部增量。
	var before promptdomain.Prompt
	if err := db.First(&before, id).Error; err != nil {
		t.Fatalf("reload prompt: %v", err)
	}
	if before.ViewCount != 0 {
		t.Fatalf("expected db view count 0 before flush, got %d", before.ViewCount)
	}

	service.FlushViewBuffer(ctx)

	var after promptdomain.Prompt
	if err := db.First(&after, id).Error; err != nil {
		t.Fatalf("reload prompt: %v", err)
	}
	if after.ViewCount != 2 {
		t.Fatalf("expected db view count 2 after flush, got %d", after.ViewCount)
	}
	if keys := client.HKeys(ctx, "prompt:view:buffer").Val(); len(keys) != 0 {
		t.Fatalf("expected empty buffer after flush, got %v", keys)
	}

	// 缓冲清空后展示值来自数据库本身。
	fourth, err := service.Get(ctx, id, 5)
	if err != nil {
		t.Fatalf("fourth get: %v", err)
	}
	if fourth.ViewCount != 2 {
		t.Fatalf("expected view count 2 after flush, got %d", fourth.ViewCount)
	}
}

// TestViewFallbackWithoutRedis 验证无 Redis 时浏览量直接写库。
func TestViewFallbackWithoutRedis(t *testing.T) {
	db := setupSearchDB(t)
	service := newSearchService(db, nil, Config{View: ViewConfig{Enabled: true}})
	ctx := context.Background()

	id := insertPrompt(t, db, seedPrompt{title: "直写浏览量", status: promptdomain.PromptStatusPublished, authorID: 1, category: 1})

	if _, err := service.Get(ctx, id, 5); err != nil {
		t.Fatalf("get: %v", err)
	}
	var reloaded promptdomain.Prompt
	if err := db.First(&reloaded, id).Error; err != nil {
		t.Fatalf("reload prompt: %v", err)
	}
	if reloaded.ViewCount != 1 {
		t.Fatalf("expected db view count 1, got %d", reloaded.ViewCount)
	}
}
