package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置,未设置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime == 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// openDialector 根据驱动选择方言
func openDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(BuildDSN(cfg)), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	// SQLite 单写者，避免 database is locked
	if cfg.Driver == "sqlite" {
		pool.MaxOpenConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// indexStatements 巡检与查询使用的组合索引
var indexStatements = []struct {
	name string
	sql  string
}{
	// 巡检: 按来源查询活跃任务
	{"idx_tasks_source_status", "CREATE INDEX IF NOT EXISTS idx_tasks_source_status ON tasks(source, status)"},
	// 巡检: 超时检测
	{"idx_tasks_status_created_at", "CREATE INDEX IF NOT EXISTS idx_tasks_status_created_at ON tasks(status, created_at)"},
	// 同一订单的活跃任务判重
	{"idx_tasks_order_status", "CREATE INDEX IF NOT EXISTS idx_tasks_order_status ON tasks(order_id, status)"},
	// 巡检: 卡单检测
	{"idx_orders_status_payment", "CREATE INDEX IF NOT EXISTS idx_orders_status_payment ON orders(status, payment_status, paid_at)"},
	{"idx_orders_user_created", "CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at)"},
	{"idx_review_items_creator_status", "CREATE INDEX IF NOT EXISTS idx_review_items_creator_status ON review_items(creator_id, review_status)"},
	{"idx_review_logs_video_created", "CREATE INDEX IF NOT EXISTS idx_review_logs_video_created ON review_logs(video_id, created_at)"},
	{"idx_order_logs_order_created", "CREATE INDEX IF NOT EXISTS idx_order_logs_order_created ON order_logs(order_id, created_at)"},
	{"idx_review_messages_video_created", "CREATE INDEX IF NOT EXISTS idx_review_messages_video_created ON review_messages(video_id, created_at)"},
	{"idx_events_status_created", "CREATE INDEX IF NOT EXISTS idx_events_status_created ON events(status, created_at)"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, idx := range indexStatements {
		if err := db.Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}
	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx) == nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
