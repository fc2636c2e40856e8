package favorite

import (
	"context"
	"errors"
	"fmt"

	promptdomain "prompt-share/backend/internal/domain/prompt"
	"prompt-share/backend/internal/repository"
	promptsvc "prompt-share/backend/internal/service/prompt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 维护用户与 Prompt 的收藏关系，并保持 favorite_count 冗余计数一致。
// 收藏关系以 (user_id, prompt_id) 唯一，重复操作幂等且不会重复计数。
type Service struct {
	favorites *repository.FavoriteRepository
	prompts   *repository.PromptRepository
	logger    *zap.SugaredLogger
}

// NewService 构建收藏服务。
func NewService(favorites *repository.FavoriteRepository, prompts *repository.PromptRepository, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		favorites: favorites,
		prompts:   prompts,
		logger:    logger,
	}
}

// Result 返回收藏操作后的快照。
type Result struct {
	Favorited     bool
	FavoriteCount uint
}

// Favorite 收藏指定 Prompt。仅首次收藏会累加计数，重复调用幂等。
func (s *Service) Favorite(ctx context.Context, userID, promptID uint) (Result, error) {
	return s.toggle(ctx, userID, promptID, true)
}

// Unfavorite 取消收藏。关系不存在时不调整计数。
func (s *Service) Unfavorite(ctx context.Context, userID, promptID uint) (Result, error) {
	return s.toggle(ctx, userID, promptID, false)
}

func (s *Service) toggle(ctx context.Context, userID, promptID uint, favorite bool) (Result, error) {
	if userID == 0 || promptID == 0 {
		return Result{}, fmt.Errorf("%w: 缺少用户或 Prompt", promptsvc.ErrInvalidInput)
	}
	entity, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, promptsvc.ErrPromptNotFound
		}
		return Result{}, fmt.Errorf("load prompt: %w", err)
	}
	// 未发布的 Prompt 只有作者本人可以收藏。
	if entity.Status != promptdomain.PromptStatusPublished && entity.AuthorID != userID {
		return Result{}, promptsvc.ErrPromptNotFound
	}

	var changed bool
	if favorite {
		changed, err = s.favorites.Add(ctx, userID, promptID)
	} else {
		changed, err = s.favorites.Remove(ctx, userID, promptID)
	}
	if err != nil {
		return Result{}, err
	}
	if changed {
		delta := 1
		if !favorite {
			delta = -1
		}
		if err := s.prompts.IncrementFavoriteCount(ctx, promptID, delta); err != nil {
			s.logger.Errorw("adjust favorite count failed", "prompt_id", promptID, "delta", delta, "error", err)
			return Result{}, err
		}
	}

	refreshed, err := s.prompts.FindByID(ctx, promptID)
	if err != nil {
		return Result{}, fmt.Errorf("reload prompt: %w", err)
	}
	return Result{Favorited: favorite, FavoriteCount: refreshed.FavoriteCount}, nil
}

// IsFavorited 判断用户是否已收藏指定 Prompt。
func (s *Service) IsFavorited(ctx context.Context, userID, promptID uint) (bool, error) {
	return s.favorites.Exists(ctx, userID, promptID)
}
