package review

import (
	"context"
	"errors"
	"testing"
	"time"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/repository"
	"prompt-share/backend/internal/service/counter"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupReviewService(t *testing.T) (*Service, *promptsvc.Service, *gorm.DB) {
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

	promptRepo := repository.NewPromptRepository(db)
	taxonomyRepo := repository.NewTaxonomyRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	counters := counter.NewService(taxonomyRepo, nil)
	lifecycle := promptsvc.NewService(db, promptRepo, taxonomyRepo, counters, promptsvc.Config{}, nil)
	service := NewService(reviewRepo, promptRepo, lifecycle, nil)
	return service, lifecycle, db
}

func seedPendingPrompt(t *testing.T, db *gorm.DB, lifecycle *promptsvc.Service) (*promptdomain.Prompt, promptdomain.Category) {
	t.Helper()
	category := promptdomain.Category{Name: "writing", DisplayName: "写作"}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	entity, err := lifecycle.Create(context.Background(), promptsvc.CreateInput{
		AuthorID:   1,
		Title:      "演讲稿助手",
		Content:    "你是一名演讲教练……",
		CategoryID: category.ID,
		Language:   "zh",
		IsPublic:   true,
	})
	if err != nil {
		t.Fatalf("create pending prompt: %v", err)
	}
	return entity, category
}

// TestApprovePublishesAndRecords 验证审核通过会发布内容、累加计数并留下审核记录。
func TestApprovePublishesAndRecords(t *testing.T) {
	service, lifecycle, db := setupReviewService(t)
	entity, category := seedPendingPrompt(t, db, lifecycle)
	ctx := context.Background()

	approved, err := service.Approve(ctx, DecisionInput{ReviewerID: 7, PromptID: entity.ID, Notes: "内容合规"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != promptdomain.PromptStatusPublished {
		t.Fatalf("expected published, got %s", approved.Status)
	}

	var reloaded promptdomain.Category
	if err := db.First(&reloaded, category.ID).Error; err != nil {
		t.Fatalf("reload category: %v", err)
	}
	if reloaded.Count != 1 {
		t.Fatalf("expected category count 1, got %d", reloaded.Count)
	}

	history, err := service.History(ctx, entity.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 review record, got %d", len(history))
	}
	if history[0].ReviewerID != 7 || history[0].Status != promptdomain.ReviewStatusApproved || history[0].Notes != "内容合规" {
		t.Fatalf("unexpected review record: %+v", history[0])
	}
}

// TestRejectKeepsCountersUntouched 验证驳回只改状态不动计数。
func TestRejectKeepsCountersUntouched(t *testing.T) {
	service, lifecycle, db := setupReviewService(t)
	entity, category := seedPendingPrompt(t, db, lifecycle)
	ctx := context.Background()

	rejected, err := service.Reject(ctx, DecisionInput{ReviewerID: 7, PromptID: entity.ID, Notes: "含有联系方式"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != promptdomain.PromptStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}

	var reloaded promptdomain.Category
	if err := db.First(&reloaded, category.ID).Error; err != nil {
		t.Fatalf("reload category: %v", err)
	}
	if reloaded.Count != 0 {
		t.Fatalf("expected category count 0, got %d", reloaded.Count)
	}
}

// TestDecideGuards 验证重复裁决与非法输入被拒绝。
func TestDecideGuards(t *testing.T) {
	service, lifecycle, db := setupReviewService(t)
	entity, _ := seedPendingPrompt(t, db, lifecycle)
	ctx := context.Background()

	if _, err := service.Approve(ctx, DecisionInput{ReviewerID: 7, PromptID: entity.ID}); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := service.Approve(ctx, DecisionInput{ReviewerID: 7, PromptID: entity.ID}); !errors.Is(err, promptsvc.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second approve, got %v", err)
	}
	if _, err := service.Reject(ctx, DecisionInput{ReviewerID: 7, PromptID: entity.ID}); !errors.Is(err, promptsvc.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reject after approve, got %v", err)
	}
	if _, err := service.Approve(ctx, DecisionInput{PromptID: entity.ID}); !errors.Is(err, promptsvc.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without reviewer, got %v", err)
	}
	if _, err := service.Approve(ctx, DecisionInput{ReviewerID: 7, PromptID: 999}); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound, got %v", err)
	}
}

// TestQueueOldestFirst 验证待审队列按提交时间正序。
func TestQueueOldestFirst(t *testing.T) {
	service, lifecycle, db := setupReviewService(t)
	first, _ := seedPendingPrompt(t, db, lifecycle)
	ctx := context.Background()

	// sqlite 时间精度有限，拉开提交时间确保排序稳定。
	if err := db.Model(&promptdomain.Prompt{}).Where("id = ?", first.ID).
		Update("created_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate first prompt: %v", err)
	}

	var category promptdomain.Category
	if err := db.First(&category).Error; err != nil {
		t.Fatalf("load category: %v", err)
	}
	second, err := lifecycle.Create(ctx, promptsvc.CreateInput{
		AuthorID:   2,
		Title:      "简历润色",
		Content:    "你是一名资深 HR……",
		CategoryID: category.ID,
		IsPublic:   true,
	})
	if err != nil {
		t.Fatalf("create second pending prompt: %v", err)
	}

	queue, err := service.Queue(ctx, QueueInput{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if queue.Total != 2 || len(queue.Items) != 2 {
		t.Fatalf("expected 2 pending prompts, got total=%d items=%d", queue.Total, len(queue.Items))
	}
	if queue.Items[0].ID != first.ID || queue.Items[1].ID != second.ID {
		t.Fatalf("expected oldest first, got [%d %d]", queue.Items[0].ID, queue.Items[1].ID)
	}
}
