package inventory

import "math"

// UnlimitedQuantity 不做库存管理时返回的"无限"数量
const UnlimitedQuantity = math.MaxInt32

// Availability 可用性计算结果
type Availability struct {
	Available  int  `json:"available"`
	Reserved   int  `json:"reserved"`
	Total      int  `json:"total"`
	CanFulfill bool `json:"can_fulfill"`
	Unlimited  bool `json:"unlimited"`
}

// Calculate 计算可用库存以及能否满足requested
//
// 简单商品和规格使用同一套规则，调用方负责先选出正确的Level：
//
//	level, err := p.LevelOf(item.VariantID)
//	a := inventory.Calculate(p.ManageStock, level, item.Quantity)
func Calculate(manageStock bool, level Level, requested int) Availability {
	if !manageStock {
		return Availability{
			Available:  UnlimitedQuantity,
			Reserved:   0,
			Total:      UnlimitedQuantity,
			CanFulfill: true,
			Unlimited:  true,
		}
	}

	available := level.Available()
	return Availability{
		Available:  available,
		Reserved:   level.Reserved,
		Total:      level.Total,
		CanFulfill: available >= requested,
	}
}
