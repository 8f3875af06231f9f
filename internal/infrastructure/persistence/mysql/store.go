package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
)

// errNoMatch 规格行未命中，用来让事务回滚商品版本号
var errNoMatch = errors.New("no row matched")

// stockStore 关系型库存存储
// 教学要点:
// 1. 简单商品一条UPDATE完成"过滤 + 修改"，天然原子
// 2. 规格行的更新和商品版本号递增放在同一个事务里，
//    先更新商品行（拿到行锁）再更新规格行，同一商品上的写入因此串行
type stockStore struct {
	tx *TxManager
}

// NewStore 创建关系型库存存储
func NewStore(db *gorm.DB) inventory.Store {
	return &stockStore{tx: NewTxManager(db)}
}

// FindProduct 读取单个商品
func (s *stockStore) FindProduct(ctx context.Context, id string) (*inventory.Product, error) {
	var p *inventory.Product
	// 商品行和规格行在同一事务里读取，拿到一致的快照
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		var model ProductModel
		if err := db.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &inventory.NotFoundError{ProductID: id}
			}
			return apperrors.Wrap(err, "查询商品失败")
		}

		var variants []VariantModel
		if model.IsVariable {
			if err := db.Where("product_id = ?", id).Order("sort, variant_id").Find(&variants).Error; err != nil {
				return apperrors.Wrap(err, "查询商品规格失败")
			}
		}
		p = toProduct(&model, variants)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindProducts 批量读取（两条查询），不存在的ID忽略
func (s *stockStore) FindProducts(ctx context.Context, ids []string) ([]*inventory.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var products []*inventory.Product
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		var models []ProductModel
		if err := db.Where("id IN ?", ids).Find(&models).Error; err != nil {
			return apperrors.Wrap(err, "批量查询商品失败")
		}

		var variants []VariantModel
		if err := db.Where("product_id IN ?", ids).Order("product_id, sort, variant_id").Find(&variants).Error; err != nil {
			return apperrors.Wrap(err, "批量查询商品规格失败")
		}
		byProduct := make(map[string][]VariantModel, len(models))
		for _, v := range variants {
			byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
		}

		products = make([]*inventory.Product, 0, len(models))
		for i := range models {
			products = append(products, toProduct(&models[i], byProduct[models[i].ID]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// IncrementReserved 占用数加quantity
// UPDATE ... SET reserved_quantity = reserved_quantity + ? WHERE ... [AND stock_quantity - reserved_quantity >= ?]
func (s *stockStore) IncrementReserved(ctx context.Context, t inventory.Target, quantity int, requireAvailable bool) (inventory.UpdateResult, error) {
	cond := func(q *gorm.DB) *gorm.DB {
		if requireAvailable {
			return q.Where("stock_quantity - reserved_quantity >= ?", quantity)
		}
		return q
	}
	return s.update(ctx, t, cond, inventory.Delta{Reserved: quantity})
}

// ApplyDelta 应用增量（占用数最低为0）
func (s *stockStore) ApplyDelta(ctx context.Context, t inventory.Target, d inventory.Delta) (inventory.UpdateResult, error) {
	return s.update(ctx, t, nil, d)
}

func (s *stockStore) update(ctx context.Context, t inventory.Target, cond func(*gorm.DB) *gorm.DB, d inventory.Delta) (inventory.UpdateResult, error) {
	if cond == nil {
		cond = func(q *gorm.DB) *gorm.DB { return q }
	}
	levels := map[string]interface{}{
		"stock_quantity":    gorm.Expr("stock_quantity + ?", d.Total),
		"reserved_quantity": reservedExpr(d.Reserved),
	}

	if t.VariantID == "" {
		levels["version"] = gorm.Expr("version + 1")
		result := cond(s.tx.DB(ctx).Model(&ProductModel{}).
			Where("id = ? AND manage_stock = ? AND is_variable = ?", t.ProductID, true, false)).
			Updates(levels)
		if result.Error != nil {
			return inventory.UpdateResult{}, apperrors.Wrap(result.Error, "更新商品库存失败")
		}
		// 版本号总会变化，影响行数即命中行数
		return inventory.UpdateResult{Matched: result.RowsAffected, Modified: result.RowsAffected}, nil
	}

	var res inventory.UpdateResult
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		bump := db.Model(&ProductModel{}).
			Where("id = ? AND manage_stock = ? AND is_variable = ?", t.ProductID, true, true).
			Update("version", gorm.Expr("version + 1"))
		if bump.Error != nil {
			return apperrors.Wrap(bump.Error, "更新商品版本失败")
		}
		if bump.RowsAffected == 0 {
			return nil
		}

		// 注意：MySQL默认返回"实际改变的行数"，增量为0时这里也是0，
		// 引擎会走整体重写，结果一致
		upd := cond(db.Model(&VariantModel{}).
			Where("product_id = ? AND variant_id = ?", t.ProductID, t.VariantID)).
			Updates(levels)
		if upd.Error != nil {
			return apperrors.Wrap(upd.Error, "更新规格库存失败")
		}
		if upd.RowsAffected == 0 {
			return errNoMatch
		}
		res = inventory.UpdateResult{Matched: 1, Modified: 1}
		return nil
	})
	if errors.Is(err, errNoMatch) {
		return inventory.UpdateResult{}, nil
	}
	if err != nil {
		return inventory.UpdateResult{}, err
	}
	return res, nil
}

// Replace 版本一致时整体重写
func (s *stockStore) Replace(ctx context.Context, p *inventory.Product, expectedVersion int64) (bool, error) {
	model, variants := toModels(p)
	model.Version = expectedVersion + 1

	replaced := false
	err := s.tx.Transaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		result := db.Model(&ProductModel{}).
			Where("id = ? AND version = ?", p.ID, expectedVersion).
			Updates(map[string]interface{}{
				"manage_stock":      model.ManageStock,
				"is_variable":       model.IsVariable,
				"stock_quantity":    model.StockQuantity,
				"reserved_quantity": model.ReservedQuantity,
				"version":           model.Version,
			})
		if result.Error != nil {
			return apperrors.Wrap(result.Error, "重写商品库存失败")
		}
		if result.RowsAffected == 0 {
			return nil // 版本不符
		}

		if err := s.replaceVariants(ctx, p.ID, variants); err != nil {
			return err
		}
		replaced = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if replaced {
		p.Version = model.Version
	}
	return replaced, nil
}

// Upsert 写入商品（已存在则覆盖库存字段）
func (s *stockStore) Upsert(ctx context.Context, p *inventory.Product) error {
	model, variants := toModels(p)

	return s.tx.Transaction(ctx, func(ctx context.Context) error {
		db := s.tx.DB(ctx)

		if err := db.Create(model).Error; err != nil {
			if !isDuplicateError(err) {
				return apperrors.Wrap(err, "写入商品失败")
			}
			err = db.Model(&ProductModel{}).Where("id = ?", p.ID).
				Updates(map[string]interface{}{
					"manage_stock":      model.ManageStock,
					"is_variable":       model.IsVariable,
					"stock_quantity":    model.StockQuantity,
					"reserved_quantity": model.ReservedQuantity,
					"version":           model.Version,
				}).Error
			if err != nil {
				return apperrors.Wrap(err, "更新商品失败")
			}
		}
		return s.replaceVariants(ctx, p.ID, variants)
	})
}

// replaceVariants 删除后重建商品的规格行（必须在事务中调用）
func (s *stockStore) replaceVariants(ctx context.Context, productID string, variants []VariantModel) error {
	db := s.tx.DB(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&VariantModel{}).Error; err != nil {
		return apperrors.Wrap(err, "删除规格失败")
	}
	if len(variants) == 0 {
		return nil
	}
	if err := db.Create(&variants).Error; err != nil {
		return apperrors.Wrap(err, "写入规格失败")
	}
	return nil
}

// =========================================
// 辅助函数:模型转换
// =========================================

// toProduct GORM模型 → 领域实体
func toProduct(m *ProductModel, variants []VariantModel) *inventory.Product {
	p := &inventory.Product{
		ID:          m.ID,
		ManageStock: m.ManageStock,
		Version:     m.Version,
	}
	if !m.IsVariable {
		p.Shape = inventory.Simple{Level: inventory.Level{Total: m.StockQuantity, Reserved: m.ReservedQuantity}}
		return p
	}

	vs := make([]inventory.Variant, 0, len(variants))
	for _, v := range variants {
		vs = append(vs, inventory.Variant{
			ID:    v.VariantID,
			Level: inventory.Level{Total: v.StockQuantity, Reserved: v.ReservedQuantity},
		})
	}
	p.Shape = inventory.Variable{Variants: vs}
	return p
}

// toModels 领域实体 → GORM模型
func toModels(p *inventory.Product) (*ProductModel, []VariantModel) {
	m := &ProductModel{
		ID:          p.ID,
		ManageStock: p.ManageStock,
		Version:     p.Version,
	}

	var variants []VariantModel
	switch s := p.Shape.(type) {
	case inventory.Simple:
		m.StockQuantity = s.Level.Total
		m.ReservedQuantity = s.Level.Reserved
	case inventory.Variable:
		m.IsVariable = true
		variants = make([]VariantModel, 0, len(s.Variants))
		for i, v := range s.Variants {
			variants = append(variants, VariantModel{
				ProductID:        p.ID,
				VariantID:        v.ID,
				StockQuantity:    v.Level.Total,
				ReservedQuantity: v.Level.Reserved,
				Sort:             i,
			})
		}
	}
	return m, variants
}
