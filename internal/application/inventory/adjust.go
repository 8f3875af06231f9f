package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/pkg/metrics"
	"github.com/xiebiao/stockkeeper/pkg/tracing"
)

// Deduct 支付成功：预占转为实际扣减（总库存 -q，占用数 -q，占用最低为0）
func (e *Engine) Deduct(ctx context.Context, orderID string, items []inventory.LineItem) error {
	return e.adjust(ctx, OpDeduct, orderID, items, inventory.DeductDelta)
}

// Release 未支付取消：释放预占（占用数 -q，最低为0）
func (e *Engine) Release(ctx context.Context, orderID string, items []inventory.LineItem) error {
	return e.adjust(ctx, OpRelease, orderID, items, inventory.ReleaseDelta)
}

// IncrementStock 扣减后退款：回补总库存，不动占用数
func (e *Engine) IncrementStock(ctx context.Context, orderID string, items []inventory.LineItem) error {
	return e.adjust(ctx, OpIncrement, orderID, items, inventory.IncrementDelta)
}

// adjust 尽力而为的批量调整
//
// 这三个操作对应已经发生的生命周期变化，不能因为商品目录数据不一致而阻塞：
// 商品/规格不存在时记录告警并跳过该明细，只有存储不可用等基础设施错误才返回。
func (e *Engine) adjust(ctx context.Context, op, orderID string, items []inventory.LineItem, delta func(int) inventory.Delta) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory."+op)
	span.SetAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items)))
	result := ""
	defer func() {
		tracing.EndSpan(span, err)
		if result == "" {
			result = resultOf(err)
		}
		observe(op, start, result)
	}()

	if err = validate(orderID, items); err != nil {
		return err
	}

	log := e.opLogger(ctx, op, orderID)

	// 幂等键按明细记录进度：中途失败时只释放失败明细的键，
	// 消息重投后已生效的明细被跳过，未完成的明细继续执行
	done := 0
	for i, item := range items {
		key := itemKey(orderID, i)
		if !e.acquire(ctx, op, key, &log) {
			done++
			continue
		}
		if err = e.adjustItem(ctx, op, item, delta(item.Quantity), &log); err != nil {
			e.forget(ctx, op, key, &log)
			log.Error().Err(err).Int("index", i).Msg("库存调整中断")
			return err
		}
	}

	if len(items) > 0 && done == len(items) {
		result = "duplicate"
		return nil
	}
	log.Info().Int("items", len(items)).Int("already_done", done).Msg("库存调整完成")
	return nil
}

// adjustItem 先走单文档原子更新，未命中时降级为带版本校验的整体重写
func (e *Engine) adjustItem(ctx context.Context, op string, item inventory.LineItem, d inventory.Delta, log *zerolog.Logger) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory."+op+".item")
	itemAttributes(span, item)
	defer func() { tracing.EndSpan(span, err) }()

	res, err := e.store.ApplyDelta(ctx, item.Target(), d)
	if err != nil {
		return storeErr(err)
	}
	if res.Matched > 0 {
		return nil
	}
	return e.fallback(ctx, op, item, d, log)
}

// fallback 读取整个商品，在内存中计算后按版本号写回
//
// 原子更新未命中的常见原因：商品不管理库存、规格缺少可定位的ID（历史数据）、
// 商品/规格不存在。版本冲突时重新读取重试，重试耗尽记录错误并跳过。
func (e *Engine) fallback(ctx context.Context, op string, item inventory.LineItem, d inventory.Delta, log *zerolog.Logger) error {
	itemLog := log.With().Str("product_id", item.ProductID).Str("variant_id", item.VariantID).
		Int("quantity", item.Quantity).Logger()

	for attempt := 0; attempt <= e.opts.FallbackRetries; attempt++ {
		p, err := e.store.FindProduct(ctx, item.ProductID)
		if errors.Is(err, inventory.ErrNotFound) {
			e.skip(op, "not_found", &itemLog)
			return nil
		}
		if err != nil {
			return storeErr(err)
		}
		if !p.ManageStock {
			itemLog.Debug().Msg("商品不管理库存，跳过")
			return nil
		}

		next := p.Clone()
		if err := next.Apply(item.VariantID, d); err != nil {
			e.skip(op, "no_variant", &itemLog)
			return nil
		}

		ok, err := e.store.Replace(ctx, next, p.Version)
		if err != nil {
			return storeErr(err)
		}
		if ok {
			metrics.IncCounterVec(metrics.FallbackRewritesTotal, map[string]string{"op": op, "result": "success"})
			itemLog.Info().Int("attempt", attempt).Msg("原子更新未命中，已通过整体重写完成")
			return nil
		}

		metrics.IncCounterVec(metrics.FallbackRewritesTotal, map[string]string{"op": op, "result": "conflict"})
		itemLog.Debug().Int("attempt", attempt).Int64("version", p.Version).Msg("整体重写版本冲突，重试")
	}

	metrics.IncCounterVec(metrics.FallbackRewritesTotal, map[string]string{"op": op, "result": "exhausted"})
	metrics.IncCounterVec(metrics.SkippedItemsTotal, map[string]string{"op": op, "reason": "conflict"})
	itemLog.Error().Int("retries", e.opts.FallbackRetries).Msg("整体重写重试耗尽，跳过该明细")
	return nil
}

func (e *Engine) skip(op, reason string, log *zerolog.Logger) {
	metrics.IncCounterVec(metrics.SkippedItemsTotal, map[string]string{"op": op, "reason": reason})
	log.Warn().Str("reason", reason).Msg("商品或规格不存在，跳过该明细")
}
