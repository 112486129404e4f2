package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/videoflow-gin/internal/utils"
	"gorm.io/gorm"
)

// GormStore 基于 GORM 的文档存储 (PostgreSQL / SQLite)
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建 GORM 存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB 返回底层连接
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// applyFilter 将过滤条件转换为 WHERE 子句
func applyFilter(db *gorm.DB, filter Filter) (*gorm.DB, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	for _, c := range filter {
		switch c.Op {
		case OpEq:
			db = db.Where(c.Field+" = ?", c.Value)
		case OpNe:
			db = db.Where(c.Field+" <> ?", c.Value)
		case OpIn:
			db = db.Where(c.Field+" IN ?", c.Value)
		case OpLt:
			db = db.Where(c.Field+" < ?", c.Value)
		case OpLte:
			db = db.Where(c.Field+" <= ?", c.Value)
		case OpGt:
			db = db.Where(c.Field+" > ?", c.Value)
		case OpGte:
			db = db.Where(c.Field+" >= ?", c.Value)
		case OpNull:
			db = db.Where(c.Field + " IS NULL")
		case OpNotNull:
			db = db.Where(c.Field + " IS NOT NULL")
		default:
			return nil, fmt.Errorf("unsupported filter op %q", c.Op)
		}
	}
	return db, nil
}

// FindOne 按条件读取单个文档
func (s *GormStore) FindOne(ctx context.Context, coll string, filter Filter, out interface{}) error {
	db, err := applyFilter(s.db.WithContext(ctx).Table(coll), filter)
	if err != nil {
		return err
	}
	if err := db.Take(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find %s: %w", coll, err)
	}
	return nil
}

// Find 按条件读取文档列表
func (s *GormStore) Find(ctx context.Context, coll string, q Query, out interface{}) error {
	db, err := applyFilter(s.db.WithContext(ctx).Table(coll), q.Filter)
	if err != nil {
		return err
	}
	for _, srt := range q.Sort {
		if err := utils.ValidateFieldName(srt.Field); err != nil {
			return fmt.Errorf("invalid sort field %q: %w", srt.Field, err)
		}
		if srt.Desc {
			db = db.Order(srt.Field + " DESC")
		} else {
			db = db.Order(srt.Field + " ASC")
		}
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if err := db.Find(out).Error; err != nil {
		return fmt.Errorf("failed to query %s: %w", coll, err)
	}
	return nil
}

// Count 按条件计数
func (s *GormStore) Count(ctx context.Context, coll string, filter Filter) (int64, error) {
	db, err := applyFilter(s.db.WithContext(ctx).Table(coll), filter)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", coll, err)
	}
	return total, nil
}

// Insert 插入文档
func (s *GormStore) Insert(ctx context.Context, coll string, doc interface{}) error {
	if err := s.db.WithContext(ctx).Table(coll).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", coll, err)
	}
	return nil
}

// UpdateWhere 条件更新
func (s *GormStore) UpdateWhere(ctx context.Context, coll string, filter Filter, set Set) (int64, error) {
	if err := set.Validate(); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, errors.New("refusing unconditional update")
	}
	db, err := applyFilter(s.db.WithContext(ctx).Table(coll), filter)
	if err != nil {
		return 0, err
	}
	result := db.Updates(map[string]interface{}(set))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", coll, result.Error)
	}
	return result.RowsAffected, nil
}

// RunInTx 在数据库事务内执行
func (s *GormStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

// Ping 检查连接
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
