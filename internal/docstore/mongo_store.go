package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore 基于 MongoDB 的文档存储
// 事务依赖副本集，会话通过 ctx 传递
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore 创建 MongoDB 存储
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		client: client,
		db:     client.Database(dbName),
	}
}

// Database 返回底层数据库
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

// mongoField id 字段映射为 _id
func mongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

// toBSON 将过滤条件转换为 bson 文档
func toBSON(filter Filter) (bson.M, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return bson.M{}, nil
	}

	clauses := make(bson.A, 0, len(filter))
	for _, c := range filter {
		field := mongoField(c.Field)
		var clause bson.M
		switch c.Op {
		case OpEq:
			clause = bson.M{field: c.Value}
		case OpNe:
			clause = bson.M{field: bson.M{"$ne": c.Value}}
		case OpIn:
			clause = bson.M{field: bson.M{"$in": c.Value}}
		case OpLt:
			clause = bson.M{field: bson.M{"$lt": c.Value}}
		case OpLte:
			clause = bson.M{field: bson.M{"$lte": c.Value}}
		case OpGt:
			clause = bson.M{field: bson.M{"$gt": c.Value}}
		case OpGte:
			clause = bson.M{field: bson.M{"$gte": c.Value}}
		case OpNull:
			// 匹配 null 或字段不存在
			clause = bson.M{field: nil}
		case OpNotNull:
			clause = bson.M{field: bson.M{"$ne": nil}}
		default:
			return nil, fmt.Errorf("unsupported filter op %q", c.Op)
		}
		clauses = append(clauses, clause)
	}

	if len(clauses) == 1 {
		return clauses[0].(bson.M), nil
	}
	return bson.M{"$and": clauses}, nil
}

// FindOne 按条件读取单个文档
func (s *MongoStore) FindOne(ctx context.Context, coll string, filter Filter, out interface{}) error {
	f, err := toBSON(filter)
	if err != nil {
		return err
	}
	if err := s.db.Collection(coll).FindOne(ctx, f).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find %s: %w", coll, err)
	}
	return nil
}

// Find 按条件读取文档列表
func (s *MongoStore) Find(ctx context.Context, coll string, q Query, out interface{}) error {
	f, err := toBSON(q.Filter)
	if err != nil {
		return err
	}

	opts := options.Find()
	if len(q.Sort) > 0 {
		sortDoc := bson.D{}
		for _, srt := range q.Sort {
			dir := 1
			if srt.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: mongoField(srt.Field), Value: dir})
		}
		opts.SetSort(sortDoc)
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(coll).Find(ctx, f, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", coll, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", coll, err)
	}
	return nil
}

// Count 按条件计数
func (s *MongoStore) Count(ctx context.Context, coll string, filter Filter) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	total, err := s.db.Collection(coll).CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", coll, err)
	}
	return total, nil
}

// Insert 插入文档
func (s *MongoStore) Insert(ctx context.Context, coll string, doc interface{}) error {
	if _, err := s.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", coll, err)
	}
	return nil
}

// UpdateWhere 条件更新，返回匹配条件的文档数
func (s *MongoStore) UpdateWhere(ctx context.Context, coll string, filter Filter, set Set) (int64, error) {
	if err := set.Validate(); err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, errors.New("refusing unconditional update")
	}
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}

	update := bson.M{}
	for k, v := range set {
		update[mongoField(k)] = v
	}

	result, err := s.db.Collection(coll).UpdateMany(ctx, f, bson.M{"$set": update})
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", coll, err)
	}
	return result.MatchedCount, nil
}

// RunInTx 在会话事务内执行
func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx, s)
	})
	return err
}

// Ping 检查连接
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
