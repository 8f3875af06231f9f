package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
	ordermq "github.com/xiebiao/stockkeeper/internal/interface/mq"
	"github.com/xiebiao/stockkeeper/pkg/logger"
	"github.com/xiebiao/stockkeeper/pkg/metrics"
	"github.com/xiebiao/stockkeeper/pkg/mq"
	"github.com/xiebiao/stockkeeper/pkg/tracing"
)

// @title           Stockkeeper 库存服务 API
// @version         1.0
// @description     订单生命周期驱动的库存预占、扣减、释放与回补
// @host            localhost:8080
// @BasePath        /

// main 主程序入口
//
// 启动顺序：配置 → 日志 → 指标 → 追踪 → Wire组装（存储/守卫/引擎/路由）→ MQ消费者 → HTTP服务
// 关闭顺序相反：先停止接收请求和消息，再关闭连接，最后刷新追踪数据
func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 日志
	log, err := logger.New(cfg.Log.Logger(), "stockkeeper")
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Str("mode", cfg.Server.Mode).
		Str("store", cfg.Inventory.Store).
		Str("reserve_policy", cfg.Inventory.ReservePolicy).
		Bool("redis", cfg.Redis.Enabled).
		Bool("rabbitmq", cfg.RabbitMQ.Enabled).
		Msg("配置加载成功")

	// 3. 指标与追踪
	metrics.InitMetrics()
	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 依赖注入（Wire生成）
	app, cleanup, err := InitializeApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化应用失败")
	}

	// 5. 订单事件消费者
	closeConsumer := func() {}
	if cfg.RabbitMQ.Enabled {
		closeConsumer, err = startConsumer(ctx, cfg.RabbitMQ, app.Engine, log)
		if err != nil {
			cleanup()
			log.Fatal().Err(err).Msg("启动订单事件消费者失败")
		}
	}

	// 6. HTTP服务
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🚀 库存服务启动成功")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP服务异常退出")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("📴 收到关闭信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP服务关闭失败")
	}
	closeConsumer()
	cleanup()
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("刷新追踪数据失败")
	}

	log.Info().Msg("✅ 库存服务已安全关闭")
}

// startConsumer 订阅订单状态消息，预占结果发布到库存事件Exchange
func startConsumer(ctx context.Context, cfg config.RabbitMQConfig, engine ordermq.InventoryEngine, log zerolog.Logger) (func(), error) {
	publisher, err := mq.NewPublisher(cfg.URL, cfg.EventExchange, "topic", log)
	if err != nil {
		return nil, err
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		URL:          cfg.URL,
		Exchange:     cfg.OrderExchange,
		ExchangeType: "topic",
		Queue:        cfg.OrderQueue,
		RoutingKeys:  []string{cfg.OrderRoutingKey},
		Prefetch:     cfg.Prefetch,
	}, log)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	handler := ordermq.NewOrderEventHandler(engine, publisher, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Consume(ctx, handler.Handle); err != nil {
			log.Error().Err(err).Msg("订单事件消费中断")
		}
	}()

	return func() {
		_ = consumer.Close()
		<-done
		_ = publisher.Close()
	}, nil
}
