// Package mq 订单事件消费：订单状态变化 → 库存动作
//
// 订单服务在状态变化时发布 order.status.{to} 消息，这里推导出对应的库存动作交给引擎执行；
// 预占的结果以 inventory.reserved / inventory.rejected 事件回传给订单服务。
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/domain/order"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
	"github.com/xiebiao/stockkeeper/pkg/logger"
	rabbit "github.com/xiebiao/stockkeeper/pkg/mq"
)

// 库存事件的routing key
const (
	RoutingKeyReserved = "inventory.reserved"
	RoutingKeyRejected = "inventory.rejected"
)

// OrderStatusEvent 订单状态变化消息
type OrderStatusEvent struct {
	OrderID    string      `json:"order_id"`
	FromStatus string      `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	Items      []EventItem `json:"items"`
}

// EventItem 消息中的订单明细
type EventItem struct {
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id"`
	Quantity    int    `json:"quantity"`
}

// ReservationResult 预占结果事件
type ReservationResult struct {
	OrderID string `json:"order_id"`
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// InventoryEngine 库存引擎的四个写操作
type InventoryEngine interface {
	Reserve(ctx context.Context, orderID string, items []inventory.LineItem) error
	Deduct(ctx context.Context, orderID string, items []inventory.LineItem) error
	Release(ctx context.Context, orderID string, items []inventory.LineItem) error
	IncrementStock(ctx context.Context, orderID string, items []inventory.LineItem) error
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// OrderEventHandler 订单状态消息处理器
type OrderEventHandler struct {
	engine    InventoryEngine
	publisher Publisher
	logger    zerolog.Logger
}

// NewOrderEventHandler 创建处理器
func NewOrderEventHandler(engine InventoryEngine, publisher Publisher, log zerolog.Logger) *OrderEventHandler {
	return &OrderEventHandler{
		engine:    engine,
		publisher: publisher,
		logger:    log,
	}
}

// Handle 处理一条订单状态消息
//
// 返回值决定消息确认方式（见pkg/mq.Dispatch）:
//   - nil：处理完成（包括业务上的拒绝，如库存不足），确认消息
//   - 包装了ErrDiscard：消息格式错误，丢弃
//   - 其它错误：存储或消息服务故障，重新入队
func (h *OrderEventHandler) Handle(ctx context.Context, msg rabbit.Message) error {
	var evt OrderStatusEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return fmt.Errorf("%w: 解析订单消息失败: %v", rabbit.ErrDiscard, err)
	}
	if evt.OrderID == "" {
		return fmt.Errorf("%w: 缺少order_id", rabbit.ErrDiscard)
	}

	from, err := order.ParseStatus(evt.FromStatus)
	if err != nil {
		return fmt.Errorf("%w: %v", rabbit.ErrDiscard, err)
	}
	to, err := order.ParseStatus(evt.ToStatus)
	if err != nil {
		return fmt.Errorf("%w: %v", rabbit.ErrDiscard, err)
	}

	action := order.InventoryActionFor(from, to)
	log := logger.FromContext(ctx, h.logger).With().
		Str("order_id", evt.OrderID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("action", action.String()).
		Logger()
	ctx = log.WithContext(ctx)

	items := evt.lineItems()
	switch action {
	case order.ActionReserve:
		return h.reserve(ctx, evt.OrderID, items, &log)
	case order.ActionDeduct:
		err = h.engine.Deduct(ctx, evt.OrderID, items)
	case order.ActionRelease:
		err = h.engine.Release(ctx, evt.OrderID, items)
	case order.ActionIncrementStock:
		err = h.engine.IncrementStock(ctx, evt.OrderID, items)
	default:
		log.Debug().Msg("状态变化不涉及库存")
		return nil
	}

	if err != nil && isRejection(err) {
		// 由数据状态决定的结果，重新投递没有意义，记录后确认
		log.Warn().Err(err).Msg("库存调整被拒绝")
		return nil
	}
	return err
}

// reserve 预占并回传结果
//
// 预占已经生效后结果事件发布失败，只记录错误并确认消息：
// 重新入队会让预占再执行一次，幂等守卫不可用时占用数会被重复累加。
// 拒绝事件发布失败时库存没有变化，可以放心重新入队。
func (h *OrderEventHandler) reserve(ctx context.Context, orderID string, items []inventory.LineItem, log *zerolog.Logger) error {
	err := h.engine.Reserve(ctx, orderID, items)
	switch {
	case err == nil:
		if err := h.publish(ctx, RoutingKeyReserved, ReservationResult{OrderID: orderID}); err != nil {
			log.Error().Err(err).Msg("预占成功但结果事件发布失败")
		}
		return nil
	case isRejection(err):
		appErr := apperrors.GetAppError(err)
		log.Info().Err(err).Msg("预占被拒绝")
		return h.publish(ctx, RoutingKeyRejected, ReservationResult{
			OrderID: orderID,
			Code:    appErr.Code,
			Reason:  appErr.Message,
		})
	default:
		return err
	}
}

func (h *OrderEventHandler) publish(ctx context.Context, routingKey string, result ReservationResult) error {
	if h.publisher == nil {
		return nil
	}
	if err := h.publisher.Publish(ctx, routingKey, result); err != nil {
		return apperrors.WithCode(err, apperrors.ErrCodeMessageQueueError, "发布库存事件失败")
	}
	return nil
}

// isRejection 业务上的拒绝（输入或库存状态导致），不重新投递，由订单服务决定后续处理
func isRejection(err error) bool {
	return errors.Is(err, inventory.ErrValidation) ||
		errors.Is(err, inventory.ErrInsufficientStock) ||
		errors.Is(err, inventory.ErrConcurrencyConflict) ||
		errors.Is(err, inventory.ErrNotFound) ||
		errors.Is(err, inventory.ErrReservationFailed)
}

func (e *OrderStatusEvent) lineItems() []inventory.LineItem {
	items := make([]inventory.LineItem, 0, len(e.Items))
	for _, it := range e.Items {
		items = append(items, inventory.LineItem{
			ProductID: it.ProductID,
			VariantID: it.VariationID,
			Quantity:  it.Quantity,
		})
	}
	return items
}
