package server

import (
	"fmt"
	"strings"
	"time"

	"prompt-share/backend/internal/handler"
	"prompt-share/backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions 汇总构建路由所需的 Handler 与中间件。
type RouterOptions struct {
	PromptHandler   *handler.PromptHandler
	BrowseHandler   *handler.BrowseHandler
	ReviewHandler   *handler.ReviewHandler
	TaxonomyHandler *handler.TaxonomyHandler
	AuthMW          middleware.Authenticator
	OptionalAuthMW  gin.HandlerFunc
}

// NewRouter 构建应用的 Gin Engine，汇总所有 REST 接口与公共中间件配置。
func NewRouter(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// gin 中间件配置
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return false
			}
			if origin == "null" {
				return true
			}
			if strings.HasPrefix(origin, "http://localhost:") {
				return true
			}
			if strings.HasPrefix(origin, "http://127.0.0.1:") {
				return true
			}
			return false
		},
	}))
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: gin.LogFormatter(func(params gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s\" %d %s\n",
				params.ClientIP,
				params.TimeStamp.Format(time.RFC3339),
				params.Method,
				params.Path,
				params.StatusCode,
				params.Latency,
			)
		}),
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// 公开浏览接口：匿名可访问，携带 Token 时返回收藏标记。
		public := api.Group("/public")
		if opts.OptionalAuthMW != nil {
			public.Use(opts.OptionalAuthMW)
		}
		if opts.BrowseHandler != nil {
			public.GET("/prompts", opts.BrowseHandler.List)
			public.GET("/prompts/:id", opts.BrowseHandler.Get)
			public.GET("/prompts/:id/related", opts.BrowseHandler.Related)
		}

		if opts.TaxonomyHandler != nil {
			api.GET("/categories", opts.TaxonomyHandler.ListCategories)
			api.GET("/tags", opts.TaxonomyHandler.ListTags)
		}

		// 投稿接口：需要登录。
		prompts := api.Group("/prompts")
		if opts.AuthMW != nil {
			prompts.Use(opts.AuthMW.Handle())
		}
		if opts.PromptHandler != nil {
			prompts.POST("", opts.PromptHandler.Create)
			prompts.GET("", opts.PromptHandler.ListMine)
			prompts.GET("/:id", opts.PromptHandler.GetMine)
			prompts.PUT("/:id", opts.PromptHandler.Update)
			prompts.DELETE("/:id", opts.PromptHandler.Delete)
			prompts.POST("/:id/favorite", opts.PromptHandler.Favorite)
			prompts.DELETE("/:id/favorite", opts.PromptHandler.Unfavorite)
		}

		// 审核接口：需要登录且为管理员，管理员校验在 Handler 内完成。
		admin := api.Group("/admin")
		if opts.AuthMW != nil {
			admin.Use(opts.AuthMW.Handle())
		}
		if opts.ReviewHandler != nil {
			admin.GET("/reviews", opts.ReviewHandler.Queue)
			admin.POST("/prompts/:id/approve", opts.ReviewHandler.Approve)
			admin.POST("/prompts/:id/reject", opts.ReviewHandler.Reject)
			admin.GET("/prompts/:id/reviews", opts.ReviewHandler.History)
		}
	}

	return r
}
