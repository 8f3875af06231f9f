package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/stockkeeper/pkg/circuitbreaker"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
)

// OperationGuard 库存操作幂等守卫
// 设计说明：
// 1. Key设计：inventory:op:{op}:{key}，key为订单ID（预占）或 订单ID#明细序号（扣减/释放/回补），
//    同一个键的同一操作只执行一次
// 2. SETNX + TTL：第一次写入成功即获得执行权，过期后自动清理
// 3. Redis调用经过熔断器：Redis故障时快速失败，由引擎放行（不阻塞库存操作）
type OperationGuard struct {
	client  redis.UniversalClient
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewOperationGuard 创建幂等守卫
func NewOperationGuard(client redis.UniversalClient, ttl time.Duration) *OperationGuard {
	return &OperationGuard{
		client:  client,
		ttl:     ttl,
		breaker: circuitbreaker.New("redis-guard", circuitbreaker.DefaultConfig()),
	}
}

// Key 幂等键
func Key(op, key string) string {
	return fmt.Sprintf("inventory:op:%s:%s", op, key)
}

// Acquire 尝试获得执行权，返回false表示这个键已经执行过该操作
func (g *OperationGuard) Acquire(ctx context.Context, op, key string) (bool, error) {
	var acquired bool
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		ok, err := g.client.SetNX(ctx, Key(op, key), time.Now().Unix(), g.ttl).Result()
		if err != nil {
			return apperrors.WithCode(err, apperrors.ErrCodeRedisError, "写入幂等键失败")
		}
		acquired = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Release 删除幂等键，允许重试
func (g *OperationGuard) Release(ctx context.Context, op, key string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := g.client.Del(ctx, Key(op, key)).Err(); err != nil {
			return apperrors.WithCode(err, apperrors.ErrCodeRedisError, "删除幂等键失败")
		}
		return nil
	})
}

// Breaker 暴露熔断器（状态查询、测试）
func (g *OperationGuard) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}
