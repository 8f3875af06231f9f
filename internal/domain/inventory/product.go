package inventory

// Level 一组库存数字（简单商品或单个规格各有一组）
// 教学要点:
// 1. Total对应存储里的stockQuantity（规格上还有历史字段stock，由存储层兼容）
// 2. Reserved是未支付订单占用的数量，尚未从Total中扣除
// 3. 可用库存 = Total - Reserved，业务代码只通过Available()读取
type Level struct {
	Total    int
	Reserved int
}

// Available 可用库存
func (l Level) Available() int {
	return l.Total - l.Reserved
}

// Shape 商品的库存形态（封闭的和类型：Simple 或 Variable）
//
// 用类型分支代替"某个字段是否存在"的判断：
//
//	switch s := p.Shape.(type) {
//	case Simple:
//	case Variable:
//	}
type Shape interface {
	isShape()
}

// Simple 简单商品：库存记在商品本身
type Simple struct {
	Level Level
}

// Variable 多规格商品：库存记在每个规格上，商品本身的库存字段无意义
type Variable struct {
	Variants []Variant
}

func (Simple) isShape()   {}
func (Variable) isShape() {}

// Variant 规格（内嵌在商品文档中，不是独立聚合）
type Variant struct {
	ID    string
	Level Level
}

// Product 商品的库存视图（聚合根）
// 教学要点:
// 1. 商品的创建和删除归商品目录负责，库存引擎只修改库存字段
// 2. ManageStock=false表示不做库存管理（视为无限库存），引擎对其不做任何修改
// 3. Version每次库存变更递增，用于降级整组重写时的乐观锁
type Product struct {
	ID          string
	ManageStock bool
	Version     int64
	Shape       Shape
}

// NewSimple 创建简单商品
func NewSimple(id string, total, reserved int) *Product {
	return &Product{
		ID:          id,
		ManageStock: true,
		Shape:       Simple{Level: Level{Total: total, Reserved: reserved}},
	}
}

// NewVariable 创建多规格商品
func NewVariable(id string, variants ...Variant) *Product {
	return &Product{
		ID:          id,
		ManageStock: true,
		Shape:       Variable{Variants: variants},
	}
}

// IsVariable 是否多规格商品
func (p *Product) IsVariable() bool {
	_, ok := p.Shape.(Variable)
	return ok
}

// LevelOf 按明细选择对应的库存数字
//
// 规则:
// 1. 简单商品不接受规格ID
// 2. 多规格商品必须指定存在的规格ID
// 不满足时返回ValidationError（商品存在但没有可用规格）。
func (p *Product) LevelOf(variantID string) (Level, error) {
	switch s := p.Shape.(type) {
	case Simple:
		if variantID != "" {
			return Level{}, &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
		}
		return s.Level, nil
	case Variable:
		if variantID == "" {
			return Level{}, &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID}
		}
		for _, v := range s.Variants {
			if v.ID == variantID {
				return v.Level, nil
			}
		}
		return Level{}, &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
	default:
		return Level{}, &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
	}
}

// RollUp 商品级汇总：简单商品取自身，多规格商品为各规格之和
func (p *Product) RollUp() Level {
	switch s := p.Shape.(type) {
	case Simple:
		return s.Level
	case Variable:
		var sum Level
		for _, v := range s.Variants {
			sum.Total += v.Level.Total
			sum.Reserved += v.Level.Reserved
		}
		return sum
	default:
		return Level{}
	}
}

// Apply 在内存中对指定目标应用增量（降级整组重写使用）
// 返回ValidationError表示商品形态与目标不匹配。
func (p *Product) Apply(variantID string, d Delta) error {
	switch s := p.Shape.(type) {
	case Simple:
		if variantID != "" {
			return &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
		}
		p.Shape = Simple{Level: d.Apply(s.Level)}
		return nil
	case Variable:
		variants := make([]Variant, len(s.Variants))
		copy(variants, s.Variants)
		for i := range variants {
			if variantID != "" && variants[i].ID == variantID {
				variants[i].Level = d.Apply(variants[i].Level)
				p.Shape = Variable{Variants: variants}
				return nil
			}
		}
		return &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
	default:
		return &ValidationError{Reason: ErrNoUsableVariant, ProductID: p.ID, VariantID: variantID}
	}
}

// Clone 深拷贝（规格切片不共享）
func (p *Product) Clone() *Product {
	c := *p
	if v, ok := p.Shape.(Variable); ok {
		variants := make([]Variant, len(v.Variants))
		copy(variants, v.Variants)
		c.Shape = Variable{Variants: variants}
	}
	return &c
}

// LineItem 订单明细（瞬时输入，不持久化）
type LineItem struct {
	ProductID string
	VariantID string // 为空表示简单商品
	Quantity  int
}

// Target 原子更新的定位条件
func (li LineItem) Target() Target {
	return Target{ProductID: li.ProductID, VariantID: li.VariantID}
}

// Validate 校验明细
func (li LineItem) Validate() error {
	if li.ProductID == "" {
		return &ValidationError{Reason: ErrInvalidProductID}
	}
	if li.Quantity <= 0 {
		return &ValidationError{Reason: ErrInvalidQuantity, ProductID: li.ProductID, VariantID: li.VariantID}
	}
	return nil
}
