package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinventory "github.com/xiebiao/stockkeeper/internal/application/inventory"
	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/memory"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
	rabbit "github.com/xiebiao/stockkeeper/pkg/mq"
)

// fakeEngine 记录调用，按操作返回预设错误
type fakeEngine struct {
	calls []string
	items []inventory.LineItem
	errs  map[string]error
}

func (f *fakeEngine) record(op string, items []inventory.LineItem) error {
	f.calls = append(f.calls, op)
	f.items = items
	return f.errs[op]
}

func (f *fakeEngine) Reserve(_ context.Context, _ string, items []inventory.LineItem) error {
	return f.record("reserve", items)
}

func (f *fakeEngine) Deduct(_ context.Context, _ string, items []inventory.LineItem) error {
	return f.record("deduct", items)
}

func (f *fakeEngine) Release(_ context.Context, _ string, items []inventory.LineItem) error {
	return f.record("release", items)
}

func (f *fakeEngine) IncrementStock(_ context.Context, _ string, items []inventory.LineItem) error {
	return f.record("increment", items)
}

type published struct {
	routingKey string
	result     ReservationResult
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, message any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{routingKey: routingKey, result: message.(ReservationResult)})
	return nil
}

func message(t *testing.T, from, to string) rabbit.Message {
	t.Helper()
	body, err := json.Marshal(OrderStatusEvent{
		OrderID:    "o-1",
		FromStatus: from,
		ToStatus:   to,
		Items: []EventItem{
			{ProductID: "sku-1", Quantity: 2},
			{ProductID: "sku-2", VariationID: "red", Quantity: 1},
		},
	})
	require.NoError(t, err)
	return rabbit.Message{RoutingKey: "order.status." + to, Body: body}
}

func newHandler(errs map[string]error) (*OrderEventHandler, *fakeEngine, *fakePublisher) {
	engine := &fakeEngine{errs: errs}
	pub := &fakePublisher{}
	return NewOrderEventHandler(engine, pub, zerolog.Nop()), engine, pub
}

func TestHandleDispatchesByTransition(t *testing.T) {
	tests := []struct {
		from, to string
		wantOp   string
	}{
		{"created", "pending", "reserve"},
		{"pending", "paid", "deduct"},
		{"pending", "shipped", "deduct"},
		{"pending", "cancelled", "release"},
		{"paid", "refunded", "increment"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			h, engine, _ := newHandler(nil)
			require.NoError(t, h.Handle(context.Background(), message(t, tt.from, tt.to)))
			assert.Equal(t, []string{tt.wantOp}, engine.calls)
			require.Len(t, engine.items, 2)
			assert.Equal(t, inventory.LineItem{ProductID: "sku-2", VariantID: "red", Quantity: 1}, engine.items[1])
		})
	}
}

func TestHandleNoInventoryAction(t *testing.T) {
	h, engine, pub := newHandler(nil)
	// 已支付后取消不涉及库存
	require.NoError(t, h.Handle(context.Background(), message(t, "paid", "cancelled")))
	assert.Empty(t, engine.calls)
	assert.Empty(t, pub.sent)
}

func TestHandleReservePublishesResult(t *testing.T) {
	t.Run("预占成功", func(t *testing.T) {
		h, _, pub := newHandler(nil)
		require.NoError(t, h.Handle(context.Background(), message(t, "", "pending")))
		require.Len(t, pub.sent, 1)
		assert.Equal(t, RoutingKeyReserved, pub.sent[0].routingKey)
		assert.Equal(t, "o-1", pub.sent[0].result.OrderID)
	})

	t.Run("库存不足回传拒绝并确认消息", func(t *testing.T) {
		h, _, pub := newHandler(map[string]error{
			"reserve": &inventory.InsufficientStockError{ProductID: "sku-1", Available: 1, Required: 2},
		})
		require.NoError(t, h.Handle(context.Background(), message(t, "", "pending")))
		require.Len(t, pub.sent, 1)
		assert.Equal(t, RoutingKeyRejected, pub.sent[0].routingKey)
		assert.Equal(t, apperrors.ErrCodeInsufficientStock, pub.sent[0].result.Code)
		assert.Contains(t, pub.sent[0].result.Reason, "Available: 1, Required: 2")
	})

	t.Run("存储故障重新入队", func(t *testing.T) {
		storeErr := errors.New("connection reset")
		h, _, pub := newHandler(map[string]error{"reserve": storeErr})
		err := h.Handle(context.Background(), message(t, "", "pending"))
		assert.ErrorIs(t, err, storeErr)
		assert.NotErrorIs(t, err, rabbit.ErrDiscard)
		assert.Empty(t, pub.sent)
	})

	t.Run("预占成功后发布失败仍确认消息", func(t *testing.T) {
		h, engine, pub := newHandler(nil)
		pub.err = errors.New("channel closed")
		require.NoError(t, h.Handle(context.Background(), message(t, "", "pending")))
		assert.Equal(t, []string{"reserve"}, engine.calls)
	})

	t.Run("拒绝事件发布失败重新入队", func(t *testing.T) {
		h, _, pub := newHandler(map[string]error{"reserve": inventory.ErrInsufficientStock})
		pub.err = errors.New("channel closed")
		err := h.Handle(context.Background(), message(t, "", "pending"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, rabbit.ErrDiscard)
		assert.Equal(t, apperrors.ErrCodeMessageQueueError, apperrors.GetAppError(err).Code)
	})
}

// flakyPublisher 第一次发布失败，之后正常
type flakyPublisher struct {
	fakePublisher
	failures int
}

func (f *flakyPublisher) Publish(ctx context.Context, routingKey string, message any) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("channel closed")
	}
	return f.fakePublisher.Publish(ctx, routingKey, message)
}

func TestHandleReserveWithRealEngine(t *testing.T) {
	ctx := context.Background()
	reserved := func(t *testing.T, store inventory.Store, id string) int {
		t.Helper()
		p, err := store.FindProduct(ctx, id)
		require.NoError(t, err)
		l, err := p.LevelOf("")
		require.NoError(t, err)
		return l.Reserved
	}
	newStore := func() inventory.Store {
		return memory.NewStore(inventory.NewSimple("sku-1", 10, 0), inventory.NewSimple("sku-2", 10, 0))
	}
	msg := func(t *testing.T) rabbit.Message {
		t.Helper()
		body, err := json.Marshal(OrderStatusEvent{
			OrderID: "o-1", FromStatus: "created", ToStatus: "pending",
			Items: []EventItem{{ProductID: "sku-1", Quantity: 2}, {ProductID: "sku-2", Quantity: 1}},
		})
		require.NoError(t, err)
		return rabbit.Message{RoutingKey: "order.status.pending", Body: body}
	}

	t.Run("发布失败不触发重复预占", func(t *testing.T) {
		store := newStore()
		engine := appinventory.NewEngine(store, nil, appinventory.DefaultOptions(), zerolog.Nop())
		pub := &flakyPublisher{failures: 1}
		h := NewOrderEventHandler(engine, pub, zerolog.Nop())

		// 返回nil即确认消息，不会重新入队
		require.NoError(t, h.Handle(ctx, msg(t)))
		assert.Equal(t, 2, reserved(t, store, "sku-1"))
		assert.Equal(t, 1, reserved(t, store, "sku-2"))
		assert.Empty(t, pub.sent)
	})

	t.Run("重复投递由幂等守卫拦截", func(t *testing.T) {
		store := newStore()
		engine := appinventory.NewEngine(store, newMemoryGuard(), appinventory.DefaultOptions(), zerolog.Nop())
		pub := &fakePublisher{}
		h := NewOrderEventHandler(engine, pub, zerolog.Nop())

		require.NoError(t, h.Handle(ctx, msg(t)))
		require.NoError(t, h.Handle(ctx, msg(t)))
		assert.Equal(t, 2, reserved(t, store, "sku-1"))
		assert.Equal(t, 1, reserved(t, store, "sku-2"))
		assert.Len(t, pub.sent, 2, "重复投递照常回传预占成功")
	})
}

// memoryGuard 进程内幂等守卫
type memoryGuard struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryGuard() *memoryGuard { return &memoryGuard{keys: make(map[string]bool)} }

func (g *memoryGuard) Acquire(_ context.Context, op, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys[op+":"+key] {
		return false, nil
	}
	g.keys[op+":"+key] = true
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, op, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, op+":"+key)
	return nil
}

func TestHandleRejectionAcked(t *testing.T) {
	h, engine, _ := newHandler(map[string]error{
		"deduct": &inventory.ValidationError{Reason: inventory.ErrNoUsableVariant, ProductID: "sku-2"},
	})
	assert.NoError(t, h.Handle(context.Background(), message(t, "pending", "paid")))
	assert.Equal(t, []string{"deduct"}, engine.calls)
}

func TestHandleMalformedMessage(t *testing.T) {
	h, engine, _ := newHandler(nil)
	ctx := context.Background()

	err := h.Handle(ctx, rabbit.Message{Body: []byte("{not json")})
	assert.ErrorIs(t, err, rabbit.ErrDiscard)

	err = h.Handle(ctx, rabbit.Message{Body: []byte(`{"from_status":"","to_status":"pending"}`)})
	assert.ErrorIs(t, err, rabbit.ErrDiscard, "缺少order_id")

	err = h.Handle(ctx, message(t, "pending", "lost"))
	assert.ErrorIs(t, err, rabbit.ErrDiscard, "未知状态")

	assert.Empty(t, engine.calls)
}

func TestHandleWithoutPublisher(t *testing.T) {
	engine := &fakeEngine{}
	h := NewOrderEventHandler(engine, nil, zerolog.Nop())
	require.NoError(t, h.Handle(context.Background(), message(t, "", "pending")))
	assert.Equal(t, []string{"reserve"}, engine.calls)
}
