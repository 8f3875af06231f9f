package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/pkg/metrics"
	"github.com/xiebiao/stockkeeper/pkg/saga"
	"github.com/xiebiao/stockkeeper/pkg/tracing"
)

// Reserve 为订单预占库存
//
// 执行流程（逐个明细、按顺序）：
// 1. 读取商品，不管理库存的直接跳过
// 2. 用刚读到的快照判断可用库存，不足立即失败
// 3. 原子地把占用数加q（conditional策略下由存储端再判断一次可用库存）
// 4. 再读一次校验可用库存，出现负数说明并发超卖，回滚本明细并失败
//
// 任何一个明细失败，前面已预占的明细按逆序释放（saga补偿），
// 返回的是失败明细本身的错误（库存不足、并发冲突、商品不存在等）。
func (e *Engine) Reserve(ctx context.Context, orderID string, items []inventory.LineItem) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory.reserve")
	span.SetAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items)))
	result := ""
	defer func() {
		tracing.EndSpan(span, err)
		if result == "" {
			result = resultOf(err)
		}
		observe(OpReserve, start, result)
	}()

	if err = validate(orderID, items); err != nil {
		return err
	}

	log := e.opLogger(ctx, OpReserve, orderID)
	if !e.acquire(ctx, OpReserve, orderID, &log) {
		result = "duplicate"
		return nil
	}

	var failure error
	s := saga.NewSaga(0).WithLogger(log)
	for _, item := range items {
		item := item
		reserved := false
		s.AddStep(stepName(OpReserve, item),
			func(ctx context.Context) error {
				ok, err := e.reserveItem(ctx, item, &log)
				if err != nil {
					failure = err
					return err
				}
				reserved = ok
				return nil
			},
			func(ctx context.Context) error {
				if !reserved {
					return nil
				}
				log.Info().Str("product_id", item.ProductID).Str("variant_id", item.VariantID).
					Int("quantity", item.Quantity).Msg("补偿释放已预占的明细")
				return e.adjustItem(ctx, OpRelease, item, inventory.ReleaseDelta(item.Quantity), &log)
			},
		)
	}

	if err = s.Execute(ctx); err != nil {
		e.forget(ctx, OpReserve, orderID, &log)
		if failure != nil {
			err = failure
		}
		log.Warn().Err(err).Msg("库存预占失败")
		return err
	}

	log.Info().Int("items", len(items)).Msg("库存预占成功")
	return nil
}

// reserveItem 预占单个明细，返回是否真的加了占用（不管理库存时为false）
func (e *Engine) reserveItem(ctx context.Context, item inventory.LineItem, log *zerolog.Logger) (reserved bool, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory.reserve.item")
	itemAttributes(span, item)
	defer func() { tracing.EndSpan(span, err) }()

	// 1. 读取快照
	p, err := e.store.FindProduct(ctx, item.ProductID)
	if err != nil {
		return false, storeErr(err)
	}
	if !p.ManageStock {
		return false, nil
	}

	// 2. 快照校验
	level, err := p.LevelOf(item.VariantID)
	if err != nil {
		return false, err
	}
	if level.Available() < item.Quantity {
		return false, &inventory.InsufficientStockError{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Available: level.Available(),
			Required:  item.Quantity,
		}
	}

	// 3. 原子加占用
	res, err := e.store.IncrementReserved(ctx, item.Target(), item.Quantity, e.opts.Policy == PolicyConditional)
	if err != nil {
		return false, storeErr(err)
	}
	if res.Matched == 0 {
		return false, e.diagnoseMiss(ctx, item)
	}
	if res.Modified == 0 {
		return false, fmt.Errorf("%w: product=%s variant=%s", inventory.ErrReservationFailed, item.ProductID, item.VariantID)
	}

	// 4. 事后校验，发现超卖则回滚
	fresh, err := e.store.FindProduct(ctx, item.ProductID)
	if err == nil {
		level, err = fresh.LevelOf(item.VariantID)
	}
	if err != nil {
		e.rollback(ctx, item, log)
		return false, storeErr(err)
	}
	if level.Available() < 0 {
		metrics.IncCounter(metrics.ReservationRollbacksTotal)
		log.Warn().Str("product_id", item.ProductID).Str("variant_id", item.VariantID).
			Int("available", level.Available()).Msg("预占后可用库存为负，回滚")
		e.rollback(ctx, item, log)
		return false, &inventory.InsufficientStockError{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Available: level.Available() + item.Quantity,
			Required:  item.Quantity,
		}
	}

	return true, nil
}

// diagnoseMiss 原子更新未命中时重新读取，判断具体原因
func (e *Engine) diagnoseMiss(ctx context.Context, item inventory.LineItem) error {
	p, err := e.store.FindProduct(ctx, item.ProductID)
	if err != nil {
		return storeErr(err)
	}
	level, err := p.LevelOf(item.VariantID)
	if err != nil {
		return err
	}
	if level.Available() < item.Quantity {
		return &inventory.InsufficientStockError{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Available: level.Available(),
			Required:  item.Quantity,
		}
	}
	return &inventory.ConcurrencyConflictError{
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Available: level.Available(),
		Reserved:  level.Reserved,
		Total:     level.Total,
	}
}

// rollback 撤销本明细刚加的占用（调用方取消也要执行完）
func (e *Engine) rollback(ctx context.Context, item inventory.LineItem, log *zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := e.adjustItem(ctx, OpRelease, item, inventory.ReleaseDelta(item.Quantity), log); err != nil {
		log.Error().Err(err).Str("product_id", item.ProductID).Str("variant_id", item.VariantID).
			Msg("预占回滚失败，需要人工核对占用数")
	}
}
