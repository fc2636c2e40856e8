package infra

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"prompt-share/backend/internal/config"

	_ "github.com/go-sql-driver/mysql"
	mysqlDriver "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	envMySQLHost     = "MYSQL_HOST"
	envMySQLPort     = "MYSQL_PORT"
	envMySQLUsername = "MYSQL_USERNAME"
	envMySQLPassword = "MYSQL_PASSWORD"
	envMySQLDatabase = "MYSQL_DATABASE"
	envMySQLParams   = "MYSQL_PARAMS"
)

const (
	defaultMySQLPort     = 3306
	defaultMySQLDatabase = "prompt_share"
	defaultMySQLParams   = "charset=utf8mb4&parseTime=true&loc=Local"
)

// MySQLConfig 描述数据库连接配置项，从环境变量装配。
type MySQLConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	Params   string
}

// LoadMySQLConfigFromEnv 从环境变量读取 MySQL 连接信息并填充默认值。
func LoadMySQLConfigFromEnv() (MySQLConfig, error) {
	config.LoadEnvFiles()

	cfg := MySQLConfig{
		Host:     strings.TrimSpace(os.Getenv(envMySQLHost)),
		Port:     defaultMySQLPort,
		Username: strings.TrimSpace(os.Getenv(envMySQLUsername)),
		Password: os.Getenv(envMySQLPassword),
		Database: strings.TrimSpace(os.Getenv(envMySQLDatabase)),
		Params:   strings.TrimSpace(os.Getenv(envMySQLParams)),
	}
	if raw := strings.TrimSpace(os.Getenv(envMySQLPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return MySQLConfig{}, fmt.Errorf("invalid mysql port: %w", err)
		}
		cfg.Port = port
	}
	if cfg.Database == "" {
		cfg.Database = defaultMySQLDatabase
	}
	if cfg.Params == "" {
		cfg.Params = defaultMySQLParams
	}
	if err := validateMySQLConfig(cfg); err != nil {
		return MySQLConfig{}, err
	}
	return cfg, nil
}

// NewGORMMySQL 创建 GORM 连接并返回 ORM 与底层 *sql.DB，便于控制生命周期。
func NewGORMMySQL(cfg MySQLConfig) (*gorm.DB, *sql.DB, error) {
	dsn, err := BuildMySQLDSN(cfg)
	if err != nil {
		return nil, nil, err
	}

	gormDB, err := gorm.Open(mysqlDriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm mysql: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}

	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}

	return gormDB, sqlDB, nil
}

// NewGORMSQLite 打开本地 SQLite 数据库，供单机模式与测试使用。
func NewGORMSQLite(path string) (*gorm.DB, *sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		path = "prompt_share.db"
	}
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open gorm sqlite: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql db: %w", err)
	}
	return gormDB, sqlDB, nil
}

func validateMySQLConfig(cfg MySQLConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("mysql host is required")
	}
	if cfg.Username == "" {
		return fmt.Errorf("mysql username is required")
	}
	if cfg.Password == "" {
		return fmt.Errorf("mysql password is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("mysql database is required")
	}
	return nil
}

// BuildMySQLDSN 在通过校验后拼接 MySQL DSN 字符串。
func BuildMySQLDSN(cfg MySQLConfig) (string, error) {
	if err := validateMySQLConfig(cfg); err != nil {
		return "", err
	}
	port := cfg.Port
	if port == 0 {
		port = defaultMySQLPort
	}
	params := cfg.Params
	if params == "" {
		params = defaultMySQLParams
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database, params), nil
}
