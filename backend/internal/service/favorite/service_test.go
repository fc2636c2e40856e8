package favorite

import (
	"context"
	"errors"
	"testing"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/repository"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupFavoriteService(t *testing.T) (*Service, *gorm.DB) {
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

	service := NewService(repository.NewFavoriteRepository(db), repository.NewPromptRepository(db), nil)
	return service, db
}

func insertPrompt(t *testing.T, db *gorm.DB, authorID uint, status string) uint {
	t.Helper()
	entity := promptdomain.Prompt{
		AuthorID:   authorID,
		Title:      "收藏对象",
		Content:    "正文",
		CategoryID: 1,
		Status:     status,
	}
	if err := db.Create(&entity).Error; err != nil {
		t.Fatalf("seed prompt: %v", err)
	}
	return entity.ID
}

// TestFavoriteToggleIdempotent 验证收藏与取消收藏的幂等计数。
func TestFavoriteToggleIdempotent(t *testing.T) {
	service, db := setupFavoriteService(t)
	ctx := context.Background()
	promptID := insertPrompt(t, db, 1, promptdomain.PromptStatusPublished)

	first, err := service.Favorite(ctx, 5, promptID)
	if err != nil {
		t.Fatalf("favorite: %v", err)
	}
	if !first.Favorited || first.FavoriteCount != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	// 重复收藏不再累加。
	again, err := service.Favorite(ctx, 5, promptID)
	if err != nil {
		t.Fatalf("repeat favorite: %v", err)
	}
	if again.FavoriteCount != 1 {
		t.Fatalf("expected count 1 after repeat, got %d", again.FavoriteCount)
	}

	second, err := service.Favorite(ctx, 6, promptID)
	if err != nil {
		t.Fatalf("second user favorite: %v", err)
	}
	if second.FavoriteCount != 2 {
		t.Fatalf("expected count 2, got %d", second.FavoriteCount)
	}

	removed, err := service.Unfavorite(ctx, 5, promptID)
	if err != nil {
		t.Fatalf("unfavorite: %v", err)
	}
	if removed.Favorited || removed.FavoriteCount != 1 {
		t.Fatalf("unexpected unfavorite result: %+v", removed)
	}

	// 关系已不存在，计数不再下调。
	again2, err := service.Unfavorite(ctx, 5, promptID)
	if err != nil {
		t.Fatalf("repeat unfavorite: %v", err)
	}
	if again2.FavoriteCount != 1 {
		t.Fatalf("expected count 1 after repeat unfavorite, got %d", again2.FavoriteCount)
	}

	favorited, err := service.IsFavorited(ctx, 6, promptID)
	if err != nil {
		t.Fatalf("is favorited: %v", err)
	}
	if !favorited {
		t.Fatalf("expected user 6 favorited")
	}
}

// TestFavoriteVisibility 验证未发布内容的收藏权限与参数校验。
func TestFavoriteVisibility(t *testing.T) {
	service, db := setupFavoriteService(t)
	ctx := context.Background()
	promptID := insertPrompt(t, db, 42, promptdomain.PromptStatusReviewing)

	if _, err := service.Favorite(ctx, 5, promptID); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for stranger, got %v", err)
	}
	if _, err := service.Favorite(ctx, 42, promptID); err != nil {
		t.Fatalf("author favorite own reviewing prompt: %v", err)
	}
	if _, err := service.Favorite(ctx, 5, 999); !errors.Is(err, promptsvc.ErrPromptNotFound) {
		t.Fatalf("expected ErrPromptNotFound for missing prompt, got %v", err)
	}
	if _, err := service.Favorite(ctx, 0, promptID); !errors.Is(err, promptsvc.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing user, got %v", err)
	}
}
