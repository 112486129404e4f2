package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/videoflow-gin/internal/utils"
)

// ErrNotFound 文档不存在
var ErrNotFound = errors.New("document not found")

// Op 过滤操作符
type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpIn      Op = "in"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpNull    Op = "null"
	OpNotNull Op = "not_null"
)

// Cond 单个过滤条件
type Cond struct {
	Field string
	Op    Op
	Value interface{}
}

// Filter 条件之间为 AND 关系
type Filter []Cond

// Where 组合过滤条件
func Where(conds ...Cond) Filter {
	return Filter(conds)
}

// And 追加条件并返回新的过滤器
func (f Filter) And(conds ...Cond) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

// Validate 校验字段名
func (f Filter) Validate() error {
	for _, c := range f {
		if err := utils.ValidateFieldName(c.Field); err != nil {
			return fmt.Errorf("invalid filter field %q: %w", c.Field, err)
		}
	}
	return nil
}

func Eq(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpNe, Value: v} }
func Lt(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v interface{}) Cond  { return Cond{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v interface{}) Cond { return Cond{Field: field, Op: OpGte, Value: v} }
func IsNull(field string) Cond             { return Cond{Field: field, Op: OpNull} }
func NotNull(field string) Cond            { return Cond{Field: field, Op: OpNotNull} }

// In 字段值属于集合
// values 需为切片，例如 []model.TaskStatus
func In(field string, values interface{}) Cond {
	return Cond{Field: field, Op: OpIn, Value: values}
}

// NotDeleted 未软删除
func NotDeleted() Cond {
	return IsNull("deleted_at")
}

// Sort 排序
type Sort struct {
	Field string
	Desc  bool
}

// Query 查询参数
type Query struct {
	Filter Filter
	Sort   []Sort
	Limit  int
	Offset int
}

// Set 更新字段集合
type Set map[string]interface{}

// Validate 校验字段名
func (s Set) Validate() error {
	if len(s) == 0 {
		return errors.New("empty update set")
	}
	for k := range s {
		if err := utils.ValidateFieldName(k); err != nil {
			return fmt.Errorf("invalid update field %q: %w", k, err)
		}
	}
	return nil
}

// Store 文档存储能力
// 所有状态机写入都通过 UpdateWhere 的条件更新实现比较并交换
type Store interface {
	// FindOne 按条件读取单个文档，不存在返回 ErrNotFound
	FindOne(ctx context.Context, coll string, filter Filter, out interface{}) error
	// Find 按条件读取文档列表，out 为切片指针
	Find(ctx context.Context, coll string, q Query, out interface{}) error
	// Count 按条件计数
	Count(ctx context.Context, coll string, filter Filter) (int64, error)
	// Insert 插入文档
	Insert(ctx context.Context, coll string, doc interface{}) error
	// UpdateWhere 条件更新，返回命中条件的文档数
	UpdateWhere(ctx context.Context, coll string, filter Filter, set Set) (int64, error)
	// RunInTx 在事务内执行，fn 内只能使用传入的 tx
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	// Ping 检查连接
	Ping(ctx context.Context) error
}

// FindByID 按 ID 读取文档
func FindByID(ctx context.Context, s Store, coll string, id string, out interface{}) error {
	return s.FindOne(ctx, coll, Where(Eq("id", id)), out)
}

// PageInfo 分页信息
type PageInfo struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int   `json:"total_page"`
}

// Paginate 分页查询
func Paginate(ctx context.Context, s Store, coll string, q Query, page, pageSize int, out interface{}) (PageInfo, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	total, err := s.Count(ctx, coll, q.Filter)
	if err != nil {
		return PageInfo{}, err
	}

	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize
	if err := s.Find(ctx, coll, q, out); err != nil {
		return PageInfo{}, err
	}

	totalPage := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPage++
	}

	return PageInfo{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}, nil
}
