package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/videoflow-gin/internal/docstore"
)

// ErrPreconditionFailed 条件更新未命中，记录已被其他操作修改
var ErrPreconditionFailed = errors.New("update precondition failed")

// ErrAuditRequired 变更缺少审计记录
var ErrAuditRequired = errors.New("audit record is required")

// Update 一次条件更新，必须命中至少一个文档
type Update struct {
	Coll   string
	Filter docstore.Filter
	Set    docstore.Set
}

// Doc 待插入文档
type Doc struct {
	Coll  string
	Value interface{}
}

// Change 一次业务变更: 条件更新 + 新增文档 + 一条审计记录
type Change struct {
	Updates []Update
	Inserts []Doc
	Audit   Doc
}

type validatable interface {
	Validate() error
}

// Repositories 仓储集合
type Repositories struct {
	store   docstore.Store
	Orders  OrderRepository
	Tasks   TaskRepository
	Reviews ReviewRepository
	Events  EventRepository
}

// New 创建仓储集合
func New(store docstore.Store) *Repositories {
	return &Repositories{
		store:   store,
		Orders:  NewOrderRepository(store),
		Tasks:   NewTaskRepository(store),
		Reviews: NewReviewRepository(store),
		Events:  NewEventRepository(store),
	}
}

// Store 返回底层存储
func (r *Repositories) Store() docstore.Store {
	return r.store
}

// Apply 在同一事务内执行变更
// 任一条件更新未命中返回 ErrPreconditionFailed，整个变更回滚
func (r *Repositories) Apply(ctx context.Context, change Change) error {
	if change.Audit.Value == nil {
		return ErrAuditRequired
	}
	docs := append(append([]Doc{}, change.Inserts...), change.Audit)
	for _, d := range docs {
		if v, ok := d.Value.(validatable); ok {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("invalid %s document: %w", d.Coll, err)
			}
		}
	}

	return r.store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		for _, u := range change.Updates {
			n, err := tx.UpdateWhere(ctx, u.Coll, u.Filter, u.Set)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%s: %w", u.Coll, ErrPreconditionFailed)
			}
		}
		for _, d := range docs {
			if err := tx.Insert(ctx, d.Coll, d.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendAudit 只写审计记录(例如被拒绝的操作尝试)
func (r *Repositories) AppendAudit(ctx context.Context, audit Doc) error {
	if v, ok := audit.Value.(validatable); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid %s document: %w", audit.Coll, err)
		}
	}
	return r.store.Insert(ctx, audit.Coll, audit.Value)
}

// IsNotFound 判断是否为文档不存在
func IsNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
