package order

import (
	"fmt"
	"strings"
)

// OrderStatus 订单状态（由订单服务维护，这里只用来推导库存动作）
// 教学要点:
// 1. 状态机本身不在库存服务实现，库存服务只关心"哪次状态变化需要动库存"
// 2. 使用字符串而非整数，和订单事件中的字段保持一致
type OrderStatus string

const (
	OrderStatusNone      OrderStatus = ""          // 订单刚创建，尚无前一状态
	OrderStatusPending   OrderStatus = "pending"   // 待支付
	OrderStatusPaid      OrderStatus = "paid"      // 已支付
	OrderStatusShipped   OrderStatus = "shipped"   // 已发货
	OrderStatusCompleted OrderStatus = "completed" // 已完成
	OrderStatusCancelled OrderStatus = "cancelled" // 已取消
	OrderStatusRefunded  OrderStatus = "refunded"  // 已退款
)

// ParseStatus 解析状态字符串（大小写不敏感，"created"视为无前一状态）
func ParseStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "created":
		return OrderStatusNone, nil
	case OrderStatusNone, OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return st, nil
	default:
		return OrderStatusNone, fmt.Errorf("未知订单状态: %q", s)
	}
}

// Action 状态变化触发的库存动作
type Action int

const (
	ActionNone           Action = iota
	ActionReserve               // 下单：预占
	ActionDeduct                // 支付/发货：预占转扣减
	ActionRelease               // 未支付取消：释放预占
	ActionIncrementStock        // 扣减后退款：回补库存
)

func (a Action) String() string {
	switch a {
	case ActionReserve:
		return "reserve"
	case ActionDeduct:
		return "deduct"
	case ActionRelease:
		return "release"
	case ActionIncrementStock:
		return "increment"
	default:
		return "none"
	}
}

// InventoryActionFor 根据状态变化推导库存动作
//
//	创建 → pending                   预占
//	pending → paid / shipped         扣减
//	pending → cancelled              释放
//	paid / shipped / completed → refunded  回补
//
// 其余变化不动库存。注意paid → cancelled不会释放：预占已经在支付时转为扣减。
func InventoryActionFor(from, to OrderStatus) Action {
	switch {
	case from == OrderStatusNone && to == OrderStatusPending:
		return ActionReserve
	case from == OrderStatusPending && (to == OrderStatusPaid || to == OrderStatusShipped):
		return ActionDeduct
	case from == OrderStatusPending && to == OrderStatusCancelled:
		return ActionRelease
	case to == OrderStatusRefunded &&
		(from == OrderStatusPaid || from == OrderStatusShipped || from == OrderStatusCompleted):
		return ActionIncrementStock
	default:
		return ActionNone
	}
}
