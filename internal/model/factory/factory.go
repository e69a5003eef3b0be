// Package factory opens the configured database and returns a model.Repository.
package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"pumptrack/internal/config"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"pumptrack/internal/model/memory"
	"pumptrack/internal/model/sql"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
	DBTypeMemory   = "memory"
)

// 应用的全部表，AutoMigrate 按此顺序建表
var schemaModels = []any{
	&entity.DbUser{},
	&entity.DbPortal{},
	&entity.DbSurvey{},
	&entity.DbDispatchMaterial{},
	&entity.DbInstallation{},
	&entity.DbSystemInfo{},
	&entity.DbPortalUpdate{},
	&entity.DbIPPayment{},
}

// InitRepository 按 DBType 打开数据库并完成表结构迁移。memory 类型不落盘，用于演示与测试。
func InitRepository(cfg *config.Config) (model.Repository, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if kind == DBTypeMemory {
		return memory.New(), nil
	}

	dialector, err := dialectorFor(kind, cfg)
	if err != nil {
		return nil, err
	}
	db, err := open(dialector)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialector.Name(), err)
	}
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	logrus.WithField("db_type", dialector.Name()).Info("record store ready")
	return sql.NewGormRepository(db), nil
}

func dialectorFor(kind string, cfg *config.Config) (gorm.Dialector, error) {
	switch kind {
	case "", DBTypeSQLite:
		file := cfg.DBPath
		if file == "" {
			file = "datas/pumptrack.db"
		}
		// sqlite 只会创建文件，目录需要提前建好
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir %q: %w", dir, err)
			}
		}
		return sqlite.Open(file), nil
	case DBTypeMySQL:
		return mysql.Open(mysqlDSN(cfg)), nil
	case DBTypePostgres:
		return postgres.Open(postgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}

func mysqlDSN(cfg *config.Config) string {
	if cfg.DSNURL != "" {
		return cfg.DSNURL
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser, cfg.DBPassword, cfg.DBAddr, cfg.DBPort, cfg.DBName)
}

func postgresDSN(cfg *config.Config) string {
	if cfg.DSNURL != "" {
		return cfg.DSNURL
	}
	// DBPort 默认值是 MySQL 的 3306
	port := cfg.DBPort
	if port == "" || port == "3306" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		cfg.DBAddr, port, cfg.DBUser, cfg.DBPassword, cfg.DBName)
}

func open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             5 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NamingStrategy:                           schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, err
	}

	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxIdleConns(10)
	pool.SetMaxOpenConns(50)
	pool.SetConnMaxLifetime(time.Hour)
	return db, nil
}
