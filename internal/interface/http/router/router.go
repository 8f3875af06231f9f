// Package router 组装Gin引擎：中间件、路由、运维端点
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/xiebiao/stockkeeper/docs" // 注册Swagger文档
	"github.com/xiebiao/stockkeeper/internal/interface/http/handler"
	"github.com/xiebiao/stockkeeper/internal/interface/http/middleware"
	"github.com/xiebiao/stockkeeper/pkg/response"
)

// Options 路由选项
type Options struct {
	Mode          string // debug | release | test
	EnableSwagger bool   // 生产环境建议关闭
}

// New 创建Gin引擎并注册全部路由
func New(opts Options, log zerolog.Logger, inventoryHandler *handler.InventoryHandler) *gin.Engine {
	switch opts.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	// 不用gin.Default()：访问日志和panic恢复都走zerolog
	r := gin.New()
	r.Use(
		middleware.RequestContext(log),
		middleware.Recovery(),
		middleware.Metrics(),
	)

	// 健康检查
	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// Prometheus指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger文档路由
	// 访问 http://localhost:8080/swagger/index.html 查看API文档
	if opts.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// API路由组
	v1 := r.Group("/api/v1")
	{
		inv := v1.Group("/inventory")
		{
			// 查询
			inv.GET("/products", inventoryHandler.GetStockInfo)
			inv.GET("/products/:id/availability", inventoryHandler.CheckAvailability)

			// 订单生命周期对应的四个写操作
			inv.POST("/reservations", inventoryHandler.Reserve)
			inv.POST("/deductions", inventoryHandler.Deduct)
			inv.POST("/releases", inventoryHandler.Release)
			inv.POST("/restocks", inventoryHandler.Restock)
		}
	}

	return r
}
