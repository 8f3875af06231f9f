package inventory

import "context"

// Target 单文档原子更新的定位条件（商品ID，多规格时加规格ID）
type Target struct {
	ProductID string
	VariantID string
}

// UpdateResult 原子更新的结果
// Matched=0 表示过滤条件没有命中（商品/规格不存在、条件不满足或规格缺少可定位的ID）。
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Delta 库存增量
// Total加到总库存上；Reserved加到占用数上，结果最低为0。
type Delta struct {
	Total    int
	Reserved int
}

// Apply 在内存中应用增量
func (d Delta) Apply(l Level) Level {
	l.Total += d.Total
	l.Reserved += d.Reserved
	if l.Reserved < 0 {
		l.Reserved = 0
	}
	return l
}

// 各操作对应的增量
func DeductDelta(q int) Delta    { return Delta{Total: -q, Reserved: -q} }
func ReleaseDelta(q int) Delta   { return Delta{Reserved: -q} }
func IncrementDelta(q int) Delta { return Delta{Total: q} }

// Store 库存记录存储（领域层定义，基础设施层实现）
//
// 设计说明:
// 1. 所有写操作都是单文档原子操作，不依赖跨文档事务
// 2. 每次写操作都会递增Product.Version
// 3. 只有ManageStock=true的商品会被更新命中
type Store interface {
	// FindProduct 读取单个商品，不存在时返回*NotFoundError
	FindProduct(ctx context.Context, id string) (*Product, error)

	// FindProducts 一次读取多个商品，不存在的ID直接忽略
	FindProducts(ctx context.Context, ids []string) ([]*Product, error)

	// IncrementReserved 占用数原子加quantity
	// requireAvailable=true时过滤条件同时要求 total - reserved >= quantity（在存储端判断）
	IncrementReserved(ctx context.Context, t Target, quantity int, requireAvailable bool) (UpdateResult, error)

	// ApplyDelta 原子应用增量（扣减、释放、回补以及预占回滚）
	ApplyDelta(ctx context.Context, t Target, d Delta) (UpdateResult, error)

	// Replace 带版本校验的整体重写
	// 仅当存储中的版本等于expectedVersion时写入并把版本加1；版本不符返回false。
	Replace(ctx context.Context, p *Product, expectedVersion int64) (bool, error)

	// Upsert 写入商品库存文档（商品目录导入与测试数据使用）
	Upsert(ctx context.Context, p *Product) error
}
