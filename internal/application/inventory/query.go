package inventory

import (
	"context"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/pkg/tracing"
)

// QueryService 只读的库存查询（列表页"有货"标记、下单前预检）
type QueryService struct {
	store inventory.Store
}

// NewQueryService 创建查询服务
func NewQueryService(store inventory.Store) *QueryService {
	return &QueryService{store: store}
}

// CheckStockAvailability 查询单个商品（或规格）能否满足quantity
// 商品不存在返回*NotFoundError；规格不可用返回*ValidationError；
// 不管理库存时返回无限库存。
func (q *QueryService) CheckStockAvailability(ctx context.Context, productID, variantID string, quantity int) (inventory.Availability, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory.check_availability")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	item := inventory.LineItem{ProductID: productID, VariantID: variantID, Quantity: quantity}
	if err = item.Validate(); err != nil {
		return inventory.Availability{}, err
	}

	p, err := q.store.FindProduct(ctx, productID)
	if err != nil {
		err = storeErr(err)
		return inventory.Availability{}, err
	}
	if !p.ManageStock {
		return inventory.Calculate(false, inventory.Level{}, quantity), nil
	}

	level, err := p.LevelOf(variantID)
	if err != nil {
		return inventory.Availability{}, err
	}
	return inventory.Calculate(true, level, quantity), nil
}

// GetStockInfo 批量查询商品级库存
//
// 一次读取全部商品；不存在的ID不出现在结果里。
// 多规格商品的商品级数字为各规格之和，能否满足按请求1件计算。
func (q *QueryService) GetStockInfo(ctx context.Context, productIDs []string) (map[string]inventory.Availability, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "inventory.stock_info")
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	info := make(map[string]inventory.Availability, len(productIDs))

	ids := dedupe(productIDs)
	if len(ids) == 0 {
		return info, nil
	}

	products, err := q.store.FindProducts(ctx, ids)
	if err != nil {
		err = storeErr(err)
		return nil, err
	}
	for _, p := range products {
		info[p.ID] = inventory.Calculate(p.ManageStock, p.RollUp(), 1)
	}
	return info, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
