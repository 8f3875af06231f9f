//go:build wireinject
// +build wireinject

// Wire依赖注入配置文件
//
// 教学说明：
// 1. Wire是Google开发的编译期依赖注入工具
// 2. 与运行时反射注入不同，Wire在编译期生成代码（wire_gen.go）
// 3. 修改Provider后运行 `wire gen ./cmd/api` 重新生成
//
// 依赖链：
// *gin.Engine 需要 → *handler.InventoryHandler
// *handler.InventoryHandler 需要 → *appinventory.Engine + *appinventory.QueryService
// *appinventory.Engine 需要 → inventory.Store + appinventory.Guard + appinventory.Options
// inventory.Store 需要 → *config.Config（按inventory.store选择后端）

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"

	appinventory "github.com/xiebiao/stockkeeper/internal/application/inventory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
	"github.com/xiebiao/stockkeeper/internal/interface/http/handler"
	"github.com/xiebiao/stockkeeper/internal/interface/http/router"
)

// infrastructureSet 基础设施层依赖：存储后端与幂等守卫
var infrastructureSet = wire.NewSet(
	provideStore,
	provideGuard,
)

// applicationSet 应用层依赖
var applicationSet = wire.NewSet(
	provideEngineOptions,
	appinventory.NewEngine,
	appinventory.NewQueryService,
)

// interfaceSet 接口层依赖：Handler与路由
var interfaceSet = wire.NewSet(
	handler.NewInventoryHandler,
	provideRouterOptions,
	router.New,
)

// InitializeApp 初始化整个应用
//
// 教学说明：
// 配置和Logger在main中先创建（日志要覆盖初始化过程），作为参数传入；
// 第二个返回值cleanup按创建的逆序关闭数据库和Redis连接。
func InitializeApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, func(), error) {
	wire.Build(
		infrastructureSet,
		applicationSet,
		interfaceSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
