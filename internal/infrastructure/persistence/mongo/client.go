// Package mongo 文档型库存存储
//
// 商品文档归商品目录所有，这里只读写库存相关字段：
// manageStock、stockQuantity、reservedQuantity、version 以及 variants[] 中的库存字段，
// 其它字段（名称、价格、图片等）原样保留。
package mongo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
)

// NewClient 创建MongoDB客户端
// 设计说明：
// 1. 连接池大小、连接超时来自配置
// 2. 启动时Ping一次，连接失败直接返回错误（快速失败）
func NewClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetConnectTimeout(cfg.Mongo.ConnectTimeout)
	if cfg.Mongo.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.Mongo.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("连接MongoDB失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB连接测试失败: %w", err)
	}

	log.Info().Str("database", cfg.Mongo.Database).Str("collection", cfg.Mongo.Collection).Msg("MongoDB连接成功")
	return client, nil
}

// Collection 返回商品集合
func Collection(client *mongo.Client, cfg *config.Config) *mongo.Collection {
	return client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection)
}
