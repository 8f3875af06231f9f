package dto

import (
	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
)

// LineItemRequest 订单明细
// 字段名variation_id与订单服务保持一致（空表示简单商品）
type LineItemRequest struct {
	ProductID   string `json:"product_id" binding:"required,max=64" example:"sku-1001"`
	VariationID string `json:"variation_id" binding:"max=64" example:"red-xl"`
	Quantity    int    `json:"quantity" binding:"required,min=1" example:"2"`
}

// OrderItemsRequest 预占/扣减/释放/回补共用的请求体
type OrderItemsRequest struct {
	OrderID string            `json:"order_id" binding:"required,max=64" example:"ORD-20240115-0001"`
	Items   []LineItemRequest `json:"items" binding:"required,min=1,dive"`
}

// LineItems 转换为领域明细
func (r *OrderItemsRequest) LineItems() []inventory.LineItem {
	items := make([]inventory.LineItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, inventory.LineItem{
			ProductID: it.ProductID,
			VariantID: it.VariationID,
			Quantity:  it.Quantity,
		})
	}
	return items
}

// AvailabilityQuery 单个商品可用性查询参数
type AvailabilityQuery struct {
	VariantID string `form:"variant_id" binding:"max=64"`
	Quantity  int    `form:"quantity,default=1" binding:"min=1"`
}

// OperationResponse 写操作的响应
type OperationResponse struct {
	OrderID string `json:"order_id" example:"ORD-20240115-0001"`
	Op      string `json:"op" example:"reserve"`
	Items   int    `json:"items" example:"2"`
}

// StockInfoResponse 批量库存查询响应（不存在的商品不出现在products里）
type StockInfoResponse struct {
	Products map[string]inventory.Availability `json:"products"`
}
