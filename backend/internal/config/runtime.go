package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// ModeLocal 表示单机模式，使用 SQLite 并跳过 Redis。
	ModeLocal = "local"
	// ModeOnline 表示默认的在线模式，使用 MySQL 与 Redis。
	ModeOnline = "online"

	defaultHTTPPort        = 8080
	defaultDefaultLanguage = "zh"
	defaultPageSize        = 12
	defaultMaxPageSize     = 60
	defaultLocalDBRelPath  = "data/prompt-share-local.db"
	defaultViewGuardTTL    = time.Minute
	defaultViewFlushEvery  = time.Minute
)

// RuntimeFlags 汇总运行期所需的模式、监听与业务参数。
type RuntimeFlags struct {
	Mode            string
	HTTPPort        int
	JWTSecret       string
	DefaultLanguage string
	DefaultPageSize int
	MaxPageSize     int
	MaxTags         int
	MaxImages       int
	ViewTracking    ViewTracking
	Local           LocalRuntime
}

// ViewTracking 描述浏览量统计的运行参数。
type ViewTracking struct {
	Enabled       bool
	GuardTTL      time.Duration
	FlushInterval time.Duration
	FlushBatch    int
}

// LocalRuntime 描述本地模式下需要的额外配置。
type LocalRuntime struct {
	DBPath string
}

// LoadRuntimeFlags 读取环境变量，推导当前运行模式与业务参数。
func LoadRuntimeFlags() RuntimeFlags {
	LoadEnvFiles()

	mode := strings.ToLower(strings.TrimSpace(os.Getenv("APP_MODE")))
	if mode == "" {
		mode = ModeOnline
	}

	flags := RuntimeFlags{
		Mode:            mode,
		HTTPPort:        defaultHTTPPort,
		JWTSecret:       strings.TrimSpace(os.Getenv("JWT_SECRET")),
		DefaultLanguage: defaultDefaultLanguage,
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     defaultMaxPageSize,
		ViewTracking: ViewTracking{
			Enabled:       mode == ModeOnline,
			GuardTTL:      defaultViewGuardTTL,
			FlushInterval: defaultViewFlushEvery,
			FlushBatch:    128,
		},
		Local: LocalRuntime{DBPath: normalisePath(defaultLocalDBRelPath)},
	}

	if raw := strings.TrimSpace(os.Getenv("HTTP_PORT")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.HTTPPort = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("DEFAULT_LANGUAGE")); raw != "" {
		flags.DefaultLanguage = raw
	}
	if raw := strings.TrimSpace(os.Getenv("LIST_PAGE_SIZE")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.DefaultPageSize = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("LIST_MAX_PAGE_SIZE")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.MaxPageSize = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PROMPT_MAX_TAGS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.MaxTags = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("PROMPT_MAX_IMAGES")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.MaxImages = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIEW_TRACKING_ENABLED")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			flags.ViewTracking.Enabled = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIEW_GUARD_TTL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			flags.ViewTracking.GuardTTL = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIEW_FLUSH_INTERVAL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			flags.ViewTracking.FlushInterval = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("VIEW_FLUSH_BATCH")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			flags.ViewTracking.FlushBatch = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("LOCAL_SQLITE_PATH")); raw != "" {
		flags.Local.DBPath = normalisePath(raw)
	}

	return flags
}

// normalisePath 将路径展开为绝对路径，兼容 ~ 前缀与相对路径。
func normalisePath(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			raw = filepath.Join(home, strings.TrimPrefix(raw, "~"))
		}
	}
	if filepath.IsAbs(raw) {
		return raw
	}
	if abs, err := filepath.Abs(raw); err == nil {
		return abs
	}
	return raw
}
