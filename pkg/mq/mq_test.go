package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAck 记录确认动作的Acknowledger
type fakeAck struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func delivery(ack *fakeAck, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   "order.status.paid",
		Body:         []byte(body),
	}
}

func TestDispatch_AckOnSuccess(t *testing.T) {
	ack := &fakeAck{}
	var got Message

	Dispatch(context.Background(), "q", delivery(ack, `{"order_id":"o1"}`), func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	}, zerolog.Nop())

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, "order.status.paid", got.RoutingKey)
	assert.JSONEq(t, `{"order_id":"o1"}`, string(got.Body))
}

func TestDispatch_RequeueOnError(t *testing.T) {
	ack := &fakeAck{}

	Dispatch(context.Background(), "q", delivery(ack, `{}`), func(ctx context.Context, msg Message) error {
		return fmt.Errorf("store unavailable")
	}, zerolog.Nop())

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued, "基础设施错误应重新入队")
}

func TestDispatch_DiscardPoisonMessage(t *testing.T) {
	ack := &fakeAck{}

	Dispatch(context.Background(), "q", delivery(ack, `not json`), func(ctx context.Context, msg Message) error {
		return fmt.Errorf("解析失败: %w", ErrDiscard)
	}, zerolog.Nop())

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued, "无法解析的消息不应重新入队")
}

func TestDispatch_LoggerInContext(t *testing.T) {
	ack := &fakeAck{}

	Dispatch(context.Background(), "q", delivery(ack, `{}`), func(ctx context.Context, msg Message) error {
		l := zerolog.Ctx(ctx)
		assert.NotNil(t, l)
		return nil
	}, zerolog.Nop())

	assert.True(t, ack.acked)
}

// TestPubSub_Integration 需要本地RabbitMQ，通过STOCKKEEPER_TEST_AMQP_URL启用
func TestPubSub_Integration(t *testing.T) {
	url := os.Getenv("STOCKKEEPER_TEST_AMQP_URL")
	if url == "" {
		t.Skip("未设置STOCKKEEPER_TEST_AMQP_URL，跳过RabbitMQ集成测试")
	}

	logger := zerolog.Nop()
	exchange := "stockkeeper.test.events"

	consumer, err := NewConsumer(ConsumerConfig{
		URL:          url,
		Exchange:     exchange,
		ExchangeType: "topic",
		Queue:        "stockkeeper.test.queue",
		RoutingKeys:  []string{"order.status.*"},
	}, logger)
	require.NoError(t, err)
	defer consumer.Close()

	publisher, err := NewPublisher(url, exchange, "topic", logger)
	require.NoError(t, err)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		received []string
	)
	go func() {
		_ = consumer.Consume(ctx, func(ctx context.Context, msg Message) error {
			var event struct {
				OrderID string `json:"order_id"`
			}
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				return ErrDiscard
			}
			mu.Lock()
			received = append(received, event.OrderID)
			if len(received) >= 2 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	for _, id := range []string{"o-1", "o-2"} {
		require.NoError(t, publisher.Publish(ctx, "order.status.paid", map[string]string{"order_id": id}))
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"o-1", "o-2"}, received)
}
