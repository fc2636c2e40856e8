package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"prompt-share/backend/internal/config"
	promptdomain "prompt-share/backend/internal/domain/prompt"
	infra "prompt-share/backend/internal/infra/client"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Resources 聚合应用运行所需的外部资源连接。
type Resources struct {
	Flags config.RuntimeFlags
	DB    *gorm.DB
	SQLDB *sql.DB
	Redis *redis.Client
}

// Bootstrap 按运行模式装配数据库与 Redis 连接。
// 本地模式使用 SQLite 并自动建表；在线模式连接 MySQL，Redis 缺失时降级运行。
func Bootstrap(ctx context.Context) (*Resources, error) {
	config.LoadEnvFiles()
	flags := config.LoadRuntimeFlags()

	resources := &Resources{Flags: flags}

	if flags.Mode == config.ModeLocal {
		db, sqlDB, err := infra.NewGORMSQLite(flags.Local.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open local database: %w", err)
		}
		if err := AutoMigrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("migrate local database: %w", err)
		}
		resources.DB = db
		resources.SQLDB = sqlDB
		return resources, nil
	}

	mysqlCfg, err := infra.LoadMySQLConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load mysql config: %w", err)
	}
	db, sqlDB, err := infra.NewGORMMySQL(mysqlCfg)
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	resources.DB = db
	resources.SQLDB = sqlDB

	redisOpts, err := infra.NewDefaultRedisOptions()
	if err != nil {
		log.Printf("[app] redis disabled: %v", err)
		return resources, nil
	}
	client, err := infra.NewRedisClient(redisOpts)
	if err != nil {
		log.Printf("[app] redis unavailable, running degraded: %v", err)
		return resources, nil
	}
	resources.Redis = client

	return resources, nil
}

// AutoMigrate 创建或更新业务表结构，供本地模式与测试使用。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&promptdomain.Prompt{},
		&promptdomain.Category{},
		&promptdomain.Tag{},
		&promptdomain.PromptTag{},
		&promptdomain.Review{},
		&promptdomain.Favorite{},
	)
}

// Close 释放全部资源连接。
func (r *Resources) Close() error {
	if r == nil {
		return nil
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			return err
		}
	}
	if r.SQLDB != nil {
		if err := r.SQLDB.Close(); err != nil {
			return err
		}
	}
	return nil
}
