package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
)

// NewClient 创建幂等守卫使用的Redis客户端
//
// 守卫只做SETNX/DEL，连接池不需要很大；启动时Ping一次，
// Redis不可用时直接返回错误，由调用方决定是否关闭redis.enabled后重启。
func NewClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	rc := cfg.Redis
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr(),
		Password:     rc.Password,
		DB:           rc.DB,
		ClientName:   "stockkeeper-guard",
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})

	if timeout := rc.DialTimeout + rc.ReadTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败(%s): %w", rc.Addr(), err)
	}

	log.Info().Str("addr", rc.Addr()).Int("db", rc.DB).Dur("op_ttl", rc.OpTTL).Msg("幂等守卫Redis连接成功")
	return client, nil
}
