package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo 连接 MongoDB 并验证连通性
func ConnectMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, nil
}

// mongoIndex 集合索引定义
type mongoIndex struct {
	coll   string
	name   string
	keys   bson.D
	unique bool
}

var mongoIndexes = []mongoIndex{
	{model.CollOrders, "idx_orders_order_no", bson.D{{Key: "order_no", Value: 1}}, true},
	{model.CollOrders, "idx_orders_status_payment", bson.D{{Key: "status", Value: 1}, {Key: "payment_status", Value: 1}, {Key: "paid_at", Value: 1}}, false},
	{model.CollOrders, "idx_orders_user_created", bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}, false},
	{model.CollTasks, "idx_tasks_source_status", bson.D{{Key: "source", Value: 1}, {Key: "status", Value: 1}}, false},
	{model.CollTasks, "idx_tasks_status_created_at", bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}, false},
	{model.CollTasks, "idx_tasks_order_status", bson.D{{Key: "order_id", Value: 1}, {Key: "status", Value: 1}}, false},
	{model.CollReviewItems, "idx_review_items_creator_status", bson.D{{Key: "creator_id", Value: 1}, {Key: "review_status", Value: 1}}, false},
	{model.CollReviewLogs, "idx_review_logs_video_created", bson.D{{Key: "video_id", Value: 1}, {Key: "created_at", Value: 1}}, false},
	{model.CollOrderLogs, "idx_order_logs_order_created", bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: 1}}, false},
	{model.CollReviewMessages, "idx_review_messages_video_created", bson.D{{Key: "video_id", Value: 1}, {Key: "created_at", Value: 1}}, false},
	{model.CollEvents, "idx_events_status_created", bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}, false},
}

// EnsureMongoIndexes 创建 MongoDB 索引,已存在的索引跳过
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range mongoIndexes {
		opts := options.Index().SetName(idx.name)
		if idx.unique {
			opts.SetUnique(true)
		}
		_, err := db.Collection(idx.coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    idx.keys,
			Options: opts,
		})
		if err != nil && !isIndexExistsError(err) {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}
	return nil
}

// isIndexExistsError 同名索引已存在(定义不同)的错误
func isIndexExistsError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 85: IndexOptionsConflict, 86: IndexKeySpecsConflict
		return cmdErr.Code == 85 || cmdErr.Code == 86
	}
	return strings.Contains(err.Error(), "already exists")
}
