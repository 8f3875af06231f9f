// Package inventory 库存预占/扣减引擎与库存查询
//
// 四个写操作对应订单生命周期中的四次库存变化：
//
//	Reserve         下单      占用数 +q
//	Deduct          支付      总库存 -q，占用数 -q（最低为0）
//	Release         取消      占用数 -q（最低为0）
//	IncrementStock  退款      总库存 +q
//
// 并发安全只依赖存储的单文档原子更新，引擎内部不加锁。
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
	"github.com/xiebiao/stockkeeper/pkg/logger"
	"github.com/xiebiao/stockkeeper/pkg/metrics"
)

const tracerName = "stockkeeper/inventory"

// 操作名（日志字段、指标标签、幂等键共用）
const (
	OpReserve   = "reserve"
	OpDeduct    = "deduct"
	OpRelease   = "release"
	OpIncrement = "increment"
)

// ReservePolicy 预占策略
type ReservePolicy string

const (
	// PolicyConditional 存储端条件更新：仅当 total - reserved >= q 时加占用
	PolicyConditional ReservePolicy = "conditional"

	// PolicyOptimistic 无条件加占用，依靠事后校验发现超卖并回滚
	PolicyOptimistic ReservePolicy = "optimistic"
)

// Options 引擎配置
type Options struct {
	Policy ReservePolicy

	// FallbackRetries 降级整组重写遇到版本冲突时的重试次数
	FallbackRetries int
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		Policy:          PolicyConditional,
		FallbackRetries: 3,
	}
}

// Guard 按(操作, 订单)去重的幂等守卫
//
// Acquire返回true表示第一次执行；返回error时引擎放行（守卫不可用不阻塞业务）。
// Reserve整单一个键（失败时saga已全部补偿）；Deduct/Release/IncrementStock逐明细一个键。
type Guard interface {
	Acquire(ctx context.Context, op, key string) (bool, error)
	Release(ctx context.Context, op, key string) error
}

// Engine 库存引擎
type Engine struct {
	store  inventory.Store
	guard  Guard
	opts   Options
	logger zerolog.Logger
}

// NewEngine 创建库存引擎，guard可以为nil
func NewEngine(store inventory.Store, guard Guard, opts Options, log zerolog.Logger) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyConditional
	}
	if opts.FallbackRetries < 0 {
		opts.FallbackRetries = 0
	}
	return &Engine{
		store:  store,
		guard:  guard,
		opts:   opts,
		logger: log,
	}
}

// validate 校验订单ID和全部明细（在任何写操作之前）
func validate(orderID string, items []inventory.LineItem) error {
	if orderID == "" {
		return &inventory.ValidationError{Reason: inventory.ErrInvalidOrderID}
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// acquire 幂等检查：重复操作返回false；守卫故障时放行
func (e *Engine) acquire(ctx context.Context, op, key string, log *zerolog.Logger) bool {
	if e.guard == nil {
		return true
	}
	first, err := e.guard.Acquire(ctx, op, key)
	if err != nil {
		log.Warn().Err(err).Msg("幂等守卫不可用，继续执行")
		return true
	}
	if !first {
		log.Info().Str("guard_key", key).Msg("已执行过该操作，忽略")
	}
	return first
}

// itemKey 批量调整的逐明细幂等键（同一订单消息重投时明细顺序不变）
func itemKey(orderID string, index int) string {
	return fmt.Sprintf("%s#%d", orderID, index)
}

// forget 释放幂等键，使调用方可以重试
func (e *Engine) forget(ctx context.Context, op, key string, log *zerolog.Logger) {
	if e.guard == nil {
		return
	}
	if err := e.guard.Release(context.WithoutCancel(ctx), op, key); err != nil {
		log.Warn().Err(err).Msg("释放幂等键失败")
	}
}

// opLogger 带订单与操作字段的Logger
func (e *Engine) opLogger(ctx context.Context, op, orderID string) zerolog.Logger {
	return logger.FromContext(ctx, e.logger).With().
		Str("op", op).
		Str("order_id", orderID).
		Logger()
}

// storeErr 包装存储层错误（领域错误和context错误原样返回）
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperrors.WithCode(err, apperrors.ErrCodeDatabaseError, "库存存储访问失败")
	}
}

// resultOf 指标里的结果分类
func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, inventory.ErrNotFound):
		return "not_found"
	case errors.Is(err, inventory.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func observe(op string, start time.Time, result string) {
	metrics.IncCounterVec(metrics.InventoryOperationsTotal, map[string]string{"op": op, "result": result})
	metrics.ObserveHistogramVec(metrics.InventoryOperationDuration, map[string]string{"op": op}, time.Since(start).Seconds())
}

func itemAttributes(span trace.Span, item inventory.LineItem) {
	span.SetAttributes(
		attribute.String("product_id", item.ProductID),
		attribute.String("variant_id", item.VariantID),
		attribute.Int("quantity", item.Quantity),
	)
}

func stepName(op string, item inventory.LineItem) string {
	if item.VariantID == "" {
		return fmt.Sprintf("%s:%s", op, item.ProductID)
	}
	return fmt.Sprintf("%s:%s/%s", op, item.ProductID, item.VariantID)
}
