// Package saga 实现按步骤执行、失败时逆序补偿的Saga流程
//
// 核心思想：
// 1. 将一次多步操作拆分为多个本地短操作（如逐个商品预占库存）
// 2. 每个操作有对应的补偿操作（如释放已预占的库存）
// 3. 如果某步失败，按逆序执行已完成步骤的补偿操作
//
// 存储只提供单文档原子操作，没有跨文档事务，
// 所以同一订单多个商品的预占依靠本包实现"要么全部预占，要么全部释放"。
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiebiao/stockkeeper/pkg/metrics"
)

// Step 表示Saga中的一个步骤
//
// 设计要点：
// 1. Action是正向操作（如预占库存）
// 2. Compensate是补偿操作（如释放库存），可以为nil
// 3. 补偿只依赖本步骤自己的输入（通过闭包捕获），不依赖后续步骤
type Step struct {
	Name       string                          // 步骤名称（用于日志和调试）
	Action     func(ctx context.Context) error // 正向操作
	Compensate func(ctx context.Context) error // 补偿操作
}

// Saga 表示一次Saga执行
type Saga struct {
	steps    []Step        // 所有步骤
	executed []Step        // 已执行的步骤（用于补偿）
	timeout  time.Duration // 整体超时时间，0表示不设超时
	logger   zerolog.Logger
}

// NewSaga 创建一个新的Saga
//
// 示例：
//
//	s := NewSaga(0)
//	s.AddStep("reserve:p1", reserveP1, releaseP1)
//	s.AddStep("reserve:p2", reserveP2, releaseP2)
//	err := s.Execute(ctx)
func NewSaga(timeout time.Duration) *Saga {
	return &Saga{
		steps:   make([]Step, 0),
		timeout: timeout,
		logger:  zerolog.Nop(),
	}
}

// WithLogger 设置补偿失败时使用的Logger
func (s *Saga) WithLogger(logger zerolog.Logger) *Saga {
	s.logger = logger
	return s
}

// AddStep 添加一个步骤（按添加顺序执行，按逆序补偿）
func (s *Saga) AddStep(name string, action, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, Step{
		Name:       name,
		Action:     action,
		Compensate: compensate,
	})
}

// Len 返回步骤数量
func (s *Saga) Len() int {
	return len(s.steps)
}

// Execute 执行Saga
//
// 执行流程：
// 1. 按顺序执行每个步骤的Action
// 2. 如果某步失败（或超时/取消），逆序执行已完成步骤的Compensate
// 3. 返回的错误包装了失败步骤的原始错误（errors.Is/As可穿透）
//
// 注意：失败的那一步本身不会被补偿，Action需要自己保证失败时不留下副作用。
func (s *Saga) Execute(ctx context.Context) error {
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			// 补偿使用独立的Context，避免补偿也被取消
			s.compensate(context.WithoutCancel(ctx))
			s.observe("failure", start)
			return fmt.Errorf("saga已取消: %w", err)
		}

		if step.Action != nil {
			if err := step.Action(ctx); err != nil {
				s.compensate(context.WithoutCancel(ctx))
				s.observe("failure", start)
				return fmt.Errorf("步骤[%d:%s]执行失败: %w", i, step.Name, err)
			}
		}

		s.executed = append(s.executed, step)
	}

	s.observe("success", start)
	return nil
}

// compensate 逆序执行补偿
// 某个补偿失败时继续执行后续补偿（尽最大努力），失败记录到日志等待人工介入。
func (s *Saga) compensate(ctx context.Context) {
	if len(s.executed) > 0 {
		metrics.IncCounter(metrics.SagaCompensationsTotal)
	}

	for i := len(s.executed) - 1; i >= 0; i-- {
		step := s.executed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error().Err(err).Str("step", step.Name).Msg("saga补偿失败，需要人工介入")
		}
	}

	s.executed = nil
}

func (s *Saga) observe(result string, start time.Time) {
	metrics.IncCounterVec(metrics.SagaExecutionsTotal, map[string]string{"result": result})
	metrics.ObserveHistogram(metrics.SagaExecutionDuration, time.Since(start).Seconds())
}
