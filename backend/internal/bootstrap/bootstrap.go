package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"prompt-share/backend/internal/app"
	"prompt-share/backend/internal/config"
	"prompt-share/backend/internal/handler"
	"prompt-share/backend/internal/infra/ratelimit"
	"prompt-share/backend/internal/middleware"
	"prompt-share/backend/internal/repository"
	"prompt-share/backend/internal/server"
	countersvc "prompt-share/backend/internal/service/counter"
	favoritesvc "prompt-share/backend/internal/service/favorite"
	promptsvc "prompt-share/backend/internal/service/prompt"
	reviewsvc "prompt-share/backend/internal/service/review"
	searchsvc "prompt-share/backend/internal/service/search"

	"go.uber.org/zap"
)

// Application 聚合装配完成的服务与路由，供入口启动。
type Application struct {
	Resources *app.Resources
	Lifecycle *promptsvc.Service
	Reviews   *reviewsvc.Service
	Search    *searchsvc.Service
	Favorites *favoritesvc.Service
	Router    http.Handler
}

// BuildApplication 装配仓储、服务、Handler 与路由。
func BuildApplication(ctx context.Context, logger *zap.SugaredLogger, resources *app.Resources) (*Application, error) {
	if resources == nil || resources.DB == nil {
		return nil, fmt.Errorf("database resources not initialised")
	}
	flags := resources.Flags

	promptRepo := repository.NewPromptRepository(resources.DB)
	taxonomyRepo := repository.NewTaxonomyRepository(resources.DB)
	reviewRepo := repository.NewReviewRepository(resources.DB)
	favoriteRepo := repository.NewFavoriteRepository(resources.DB)

	counterService := countersvc.NewService(taxonomyRepo, logger)

	lifecycleService := promptsvc.NewService(resources.DB, promptRepo, taxonomyRepo, counterService, promptsvc.Config{
		MaxTags:   flags.MaxTags,
		MaxImages: flags.MaxImages,
	}, logger)

	reviewService := reviewsvc.NewService(reviewRepo, promptRepo, lifecycleService, logger)

	searchService := searchsvc.NewService(promptRepo, favoriteRepo, resources.Redis, searchsvc.Config{
		DefaultPageSize: flags.DefaultPageSize,
		MaxPageSize:     flags.MaxPageSize,
		DefaultLanguage: flags.DefaultLanguage,
		FullTextSearch:  flags.Mode == config.ModeOnline,
		View: searchsvc.ViewConfig{
			Enabled:       flags.ViewTracking.Enabled,
			GuardTTL:      flags.ViewTracking.GuardTTL,
			FlushInterval: flags.ViewTracking.FlushInterval,
			FlushBatch:    flags.ViewTracking.FlushBatch,
		},
	}, logger)

	favoriteService := favoritesvc.NewService(favoriteRepo, promptRepo, logger)

	var limiter ratelimit.Limiter
	if resources.Redis != nil {
		limiter = ratelimit.NewRedisLimiter(resources.Redis, "prompt-share")
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		logger.Infow("using in-memory rate limiter")
	}

	promptHandler := handler.NewPromptHandler(lifecycleService, favoriteService, limiter, handler.PromptRateLimit{})
	browseHandler := handler.NewBrowseHandler(searchService)
	reviewHandler := handler.NewReviewHandler(reviewService)
	taxonomyHandler := handler.NewTaxonomyHandler(taxonomyRepo)

	routerOpts := server.RouterOptions{
		PromptHandler:   promptHandler,
		BrowseHandler:   browseHandler,
		ReviewHandler:   reviewHandler,
		TaxonomyHandler: taxonomyHandler,
	}

	if flags.Mode == config.ModeLocal {
		// 单机模式注入固定管理员，免去登录流程。
		localMW := middleware.NewLocalAuthMiddleware(1, true)
		routerOpts.AuthMW = localMW
		routerOpts.OptionalAuthMW = localMW.Handle()
	} else {
		if flags.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required in online mode")
		}
		jwtMW := middleware.NewAuthMiddleware(flags.JWTSecret)
		routerOpts.AuthMW = jwtMW
		routerOpts.OptionalAuthMW = jwtMW.Optional()
	}

	router := server.NewRouter(routerOpts)

	application := &Application{
		Resources: resources,
		Lifecycle: lifecycleService,
		Reviews:   reviewService,
		Search:    searchService,
		Favorites: favoriteService,
		Router:    router,
	}
	application.startWorkers(ctx)
	return application, nil
}

// startWorkers 启动后台任务，目前只有浏览量落库。
func (a *Application) startWorkers(ctx context.Context) {
	a.Search.StartViewFlushWorker(ctx)
}
