package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
)

// productDoc 商品文档中与库存有关的字段
// 教学要点:
// 1. _id可能是字符串也可能是ObjectID，统一转成字符串交给领域层
// 2. manageStock缺失视为不管理库存（与原子更新的过滤条件manageStock: true一致）
// 3. variants非空即为多规格商品
type productDoc struct {
	ID               interface{}  `bson:"_id"`
	ManageStock      bool         `bson:"manageStock"`
	StockQuantity    int          `bson:"stockQuantity"`
	ReservedQuantity int          `bson:"reservedQuantity"`
	Version          int64        `bson:"version"`
	Variants         []variantDoc `bson:"variants,omitempty"`
}

// variantDoc 规格子文档
// 历史数据兼容:
// 1. 总库存早期字段名是stock，后来改为stockQuantity；读取优先stockQuantity，写入两个字段同时写
// 2. 早期规格只有_id没有id；读取时用_id作为规格ID，原子更新在没有id时按_id定位，
//    命中后顺便写入id
type variantDoc struct {
	ID               string      `bson:"id,omitempty"`
	LegacyID         interface{} `bson:"_id,omitempty"`
	Stock            *int        `bson:"stock,omitempty"`
	StockQuantity    *int        `bson:"stockQuantity,omitempty"`
	ReservedQuantity int         `bson:"reservedQuantity"`
}

func (v variantDoc) id() string {
	if v.ID != "" {
		return v.ID
	}
	if v.LegacyID != nil {
		return idString(v.LegacyID)
	}
	return ""
}

func (v variantDoc) total() int {
	switch {
	case v.StockQuantity != nil:
		return *v.StockQuantity
	case v.Stock != nil:
		return *v.Stock
	default:
		return 0
	}
}

// idString _id转字符串
func idString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

// idValues 字符串ID可能对应的_id取值（字符串本身，以及合法时的ObjectID）
func idValues(id string) []interface{} {
	values := []interface{}{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		values = append(values, oid)
	}
	return values
}

// idFilter 按商品ID定位文档
func idFilter(id string) bson.E {
	return bson.E{Key: "_id", Value: bson.M{"$in": idValues(id)}}
}

// toProduct 文档 → 领域实体
func toProduct(doc *productDoc) *inventory.Product {
	p := &inventory.Product{
		ID:          idString(doc.ID),
		ManageStock: doc.ManageStock,
		Version:     doc.Version,
	}
	if len(doc.Variants) == 0 {
		p.Shape = inventory.Simple{Level: inventory.Level{Total: doc.StockQuantity, Reserved: doc.ReservedQuantity}}
		return p
	}

	variants := make([]inventory.Variant, 0, len(doc.Variants))
	for _, v := range doc.Variants {
		variants = append(variants, inventory.Variant{
			ID:    v.id(),
			Level: inventory.Level{Total: v.total(), Reserved: v.ReservedQuantity},
		})
	}
	p.Shape = inventory.Variable{Variants: variants}
	return p
}

// variantFields 写回一个规格的库存字段（stock与stockQuantity同时写）
func variantFields(v inventory.Variant) bson.M {
	return bson.M{
		"id":               v.ID,
		"stock":            v.Level.Total,
		"stockQuantity":    v.Level.Total,
		"reservedQuantity": v.Level.Reserved,
	}
}
