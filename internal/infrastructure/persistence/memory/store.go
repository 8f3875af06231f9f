// Package memory 进程内库存存储
//
// 用于本地开发（inventory.store=memory）和单元测试。
// 每个商品一把锁，模拟文档数据库"单文档原子更新"的语义：
// 同一商品上的更新串行，不同商品之间互不影响。
package memory

import (
	"context"
	"sync"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
)

type entry struct {
	mu      sync.Mutex
	product *inventory.Product
}

// Store 内存库存存储
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore 创建内存存储，可选地写入初始商品
func NewStore(products ...*inventory.Product) *Store {
	s := &Store{entries: make(map[string]*entry)}
	for _, p := range products {
		s.entries[p.ID] = &entry{product: p.Clone()}
	}
	return s
}

var _ inventory.Store = (*Store)(nil)

func (s *Store) get(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// FindProduct 读取商品（返回副本）
func (s *Store) FindProduct(ctx context.Context, id string) (*inventory.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.get(id)
	if !ok {
		return nil, &inventory.NotFoundError{ProductID: id}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product.Clone(), nil
}

// FindProducts 批量读取，不存在的ID忽略
func (s *Store) FindProducts(ctx context.Context, ids []string) ([]*inventory.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	products := make([]*inventory.Product, 0, len(ids))
	for _, id := range ids {
		e, ok := s.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		products = append(products, e.product.Clone())
		e.mu.Unlock()
	}
	return products, nil
}

// IncrementReserved 占用数加quantity
func (s *Store) IncrementReserved(ctx context.Context, t inventory.Target, quantity int, requireAvailable bool) (inventory.UpdateResult, error) {
	return s.update(ctx, t, func(l inventory.Level) bool {
		return !requireAvailable || l.Available() >= quantity
	}, inventory.Delta{Reserved: quantity})
}

// ApplyDelta 应用增量
func (s *Store) ApplyDelta(ctx context.Context, t inventory.Target, d inventory.Delta) (inventory.UpdateResult, error) {
	return s.update(ctx, t, nil, d)
}

// update 在商品锁内完成"过滤 + 修改"，相当于一次单文档原子更新
func (s *Store) update(ctx context.Context, t inventory.Target, cond func(inventory.Level) bool, d inventory.Delta) (inventory.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return inventory.UpdateResult{}, err
	}

	e, ok := s.get(t.ProductID)
	if !ok {
		return inventory.UpdateResult{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.product
	if !p.ManageStock {
		return inventory.UpdateResult{}, nil
	}
	level, err := p.LevelOf(t.VariantID)
	if err != nil {
		return inventory.UpdateResult{}, nil
	}
	if cond != nil && !cond(level) {
		return inventory.UpdateResult{}, nil
	}

	next := p.Clone()
	if err := next.Apply(t.VariantID, d); err != nil {
		return inventory.UpdateResult{}, nil
	}

	result := inventory.UpdateResult{Matched: 1}
	after, _ := next.LevelOf(t.VariantID)
	if after != level {
		next.Version++
		e.product = next
		result.Modified = 1
	}
	return result, nil
}

// Replace 版本一致时整体替换
func (s *Store) Replace(ctx context.Context, p *inventory.Product, expectedVersion int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, ok := s.get(p.ID)
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.product.Version != expectedVersion {
		return false, nil
	}
	next := p.Clone()
	next.Version = expectedVersion + 1
	e.product = next
	p.Version = next.Version
	return true, nil
}

// Upsert 写入商品
func (s *Store) Upsert(ctx context.Context, p *inventory.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[p.ID]; ok {
		e.mu.Lock()
		e.product = p.Clone()
		e.mu.Unlock()
		return nil
	}
	s.entries[p.ID] = &entry{product: p.Clone()}
	return nil
}
