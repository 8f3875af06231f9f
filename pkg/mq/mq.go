// Package mq 封装RabbitMQ的发布与消费
//
// 库存服务的用法：
//   - 消费 order.events（topic）上的 order.status.* 事件，驱动预占/扣减/释放/回补
//   - 向 inventory.events 发布预占结果（inventory.reserved / inventory.rejected）
//
// 消费采用手动确认：处理成功Ack；基础设施错误Nack并重新入队；
// 无法解析等永久性错误返回ErrDiscard，Nack且不重新入队，避免毒消息反复投递。
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xiebiao/stockkeeper/pkg/metrics"
)

// ErrDiscard 处理函数返回（或包装）该错误时，消息被丢弃而不是重新入队
var ErrDiscard = errors.New("mq: discard message")

// Message 交给处理函数的消息
type Message struct {
	RoutingKey string
	Body       []byte
	MessageID  string
	Timestamp  time.Time
}

// Handler 消息处理函数
type Handler func(ctx context.Context, msg Message) error

// Publisher 消息发布者
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// NewPublisher 连接RabbitMQ并声明持久化的Exchange
//
//	pub, err := mq.NewPublisher(url, "inventory.events", "topic", logger)
func NewPublisher(url, exchange, exchangeType string, logger zerolog.Logger) (*Publisher, error) {
	conn, channel, err := dial(url)
	if err != nil {
		return nil, err
	}

	if err := declareExchange(channel, exchange, exchangeType); err != nil {
		closeAll(channel, conn)
		return nil, err
	}

	logger.Info().Str("exchange", exchange).Str("type", exchangeType).Msg("消息发布者已创建")

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Publish 将message序列化为JSON后发布（持久化投递）
func (p *Publisher) Publish(ctx context.Context, routingKey string, message any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("消息序列化失败: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}

	metrics.IncCounterVec(metrics.MessagesPublishedTotal, map[string]string{
		"exchange":    p.exchange,
		"routing_key": routingKey,
	})
	p.logger.Debug().Str("routing_key", routingKey).RawJSON("body", body).Msg("消息已发布")
	return nil
}

// Close 关闭发布者
func (p *Publisher) Close() error {
	closeAll(p.channel, p.conn)
	return nil
}

// Consumer 消息消费者
type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
	logger   zerolog.Logger
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
	Queue        string
	RoutingKeys  []string // topic通配符，如 order.status.*
	Prefetch     int      // 0按1处理
}

// NewConsumer 声明Exchange与持久化Queue并完成绑定
func NewConsumer(cfg ConsumerConfig, logger zerolog.Logger) (*Consumer, error) {
	conn, channel, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if err := declareExchange(channel, cfg.Exchange, cfg.ExchangeType); err != nil {
		closeAll(channel, conn)
		return nil, err
	}

	q, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		closeAll(channel, conn)
		return nil, fmt.Errorf("声明Queue失败: %w", err)
	}

	for _, key := range cfg.RoutingKeys {
		if err := channel.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			closeAll(channel, conn)
			return nil, fmt.Errorf("绑定Queue失败(%s): %w", key, err)
		}
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	logger.Info().Str("queue", q.Name).Strs("routing_keys", cfg.RoutingKeys).Msg("消息消费者已创建")

	return &Consumer{
		conn:     conn,
		channel:  channel,
		queue:    q.Name,
		prefetch: prefetch,
		logger:   logger,
	}, nil
}

// Consume 阻塞消费直到ctx取消或通道关闭
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("设置Qos失败: %w", err)
	}

	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("开始消费失败: %w", err)
	}

	c.logger.Info().Str("queue", c.queue).Msg("开始消费消息")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Str("queue", c.queue).Msg("消费者退出")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("消息通道已关闭")
			}
			Dispatch(ctx, c.queue, d, handler, c.logger)
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	closeAll(c.channel, c.conn)
	return nil
}

// Dispatch 处理单条投递并完成确认
//
// 独立出来是为了不依赖Broker即可测试确认语义
// （amqp.Delivery的Acknowledger可以替换为测试实现）。
func Dispatch(ctx context.Context, queue string, d amqp.Delivery, handler Handler, logger zerolog.Logger) {
	start := time.Now()
	msg := Message{
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		MessageID:  d.MessageId,
		Timestamp:  d.Timestamp,
	}

	log := logger.With().Str("queue", queue).Str("routing_key", d.RoutingKey).Logger()

	err := handler(log.WithContext(ctx), msg)
	metrics.ObserveHistogram(metrics.MessageProcessingDuration, time.Since(start).Seconds())

	var result string
	switch {
	case err == nil:
		result = "ack"
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("消息确认失败")
		}
	case errors.Is(err, ErrDiscard):
		result = "discard"
		log.Warn().Err(err).Bytes("body", d.Body).Msg("消息无法处理，已丢弃")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("消息拒绝失败")
		}
	default:
		result = "requeue"
		log.Error().Err(err).Msg("消息处理失败，重新入队")
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error().Err(nackErr).Msg("消息拒绝失败")
		}
	}

	metrics.IncCounterVec(metrics.MessagesConsumedTotal, map[string]string{"queue": queue, "result": result})
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("创建Channel失败: %w", err)
	}
	return conn, channel, nil
}

func declareExchange(channel *amqp.Channel, exchange, exchangeType string) error {
	if err := channel.ExchangeDeclare(exchange, exchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明Exchange失败: %w", err)
	}
	return nil
}

func closeAll(channel *amqp.Channel, conn *amqp.Connection) {
	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		conn.Close()
	}
}
