package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	appinventory "github.com/xiebiao/stockkeeper/internal/application/inventory"
	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/memory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/mongo"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/stockkeeper/internal/interface/http/router"
)

// App 启动所需的组件
type App struct {
	Engine *appinventory.Engine
	Router *gin.Engine
}

// ========================================
// Custom Providers (自定义Provider)
// ========================================
// 教学说明：
// 这些Provider需要根据配置做选择（存储后端、是否启用Redis），
// Wire无法从类型推导出来，所以手动编写。
// 返回的cleanup函数由Wire串联，InitializeApp的调用方在退出时统一执行。

// provideStore 根据inventory.store选择存储后端
func provideStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (inventory.Store, func(), error) {
	switch cfg.Inventory.Store {
	case "mongo":
		client, err := mongo.NewClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("关闭MongoDB连接失败")
			}
		}
		return mongo.NewStore(mongo.Collection(client, cfg)), cleanup, nil

	case "mysql":
		db, err := mysql.NewDB(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return mysql.NewStore(db), cleanup, nil

	case "memory":
		log.Warn().Msg("使用内存库存存储，数据不会持久化")
		return memory.NewStore(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("未知的库存存储: %q", cfg.Inventory.Store)
	}
}

// provideGuard 启用Redis时创建幂等守卫，否则返回nil（引擎不做去重）
func provideGuard(ctx context.Context, cfg *config.Config, log zerolog.Logger) (appinventory.Guard, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}

	client, err := redis.NewClient(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
	return redis.NewOperationGuard(client, cfg.Redis.OpTTL), cleanup, nil
}

func provideEngineOptions(cfg *config.Config) appinventory.Options {
	return appinventory.Options{
		Policy:          appinventory.ReservePolicy(cfg.Inventory.ReservePolicy),
		FallbackRetries: cfg.Inventory.FallbackRetries,
	}
}

// provideRouterOptions 非release模式开放Swagger
func provideRouterOptions(cfg *config.Config) router.Options {
	return router.Options{
		Mode:          cfg.Server.Mode,
		EnableSwagger: cfg.Server.Mode != "release",
	}
}
