package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	apperrors "github.com/xiebiao/stockkeeper/pkg/errors"
)

// stockStore 文档型库存存储
// 教学要点:
// 1. 每个写操作都是一次UpdateOne，过滤条件和修改在服务端一起执行（单文档原子）
// 2. 规格用 $elemMatch 定位（id，或历史数据的_id），配合位置操作符 "variants.$" 修改命中的那一个
// 3. 需要"结果最低为0"的修改用聚合管道更新（$max），$inc做不到
type stockStore struct {
	coll *mongo.Collection
}

// NewStore 创建文档型库存存储
func NewStore(coll *mongo.Collection) inventory.Store {
	return &stockStore{coll: coll}
}

// FindProduct 读取单个商品
func (s *stockStore) FindProduct(ctx context.Context, id string) (*inventory.Product, error) {
	var doc productDoc
	err := s.coll.FindOne(ctx, bson.D{idFilter(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &inventory.NotFoundError{ProductID: id}
		}
		return nil, apperrors.Wrap(err, "查询商品失败")
	}
	return toProduct(&doc), nil
}

// FindProducts 一次查询读取多个商品，不存在的ID忽略
func (s *stockStore) FindProducts(ctx context.Context, ids []string) ([]*inventory.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	values := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		values = append(values, idValues(id)...)
	}

	cursor, err := s.coll.Find(ctx, bson.D{{Key: "_id", Value: bson.M{"$in": values}}})
	if err != nil {
		return nil, apperrors.Wrap(err, "批量查询商品失败")
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(err, "解析商品文档失败")
	}

	products := make([]*inventory.Product, 0, len(docs))
	for i := range docs {
		products = append(products, toProduct(&docs[i]))
	}
	return products, nil
}

// IncrementReserved 占用数原子加quantity
func (s *stockStore) IncrementReserved(ctx context.Context, t inventory.Target, quantity int, requireAvailable bool) (inventory.UpdateResult, error) {
	filter := targetFilter(t)
	if requireAvailable {
		filter = append(filter, availableExpr(t, quantity))
	}
	return s.updateOne(ctx, filter, reserveUpdate(t, quantity))
}

// ApplyDelta 原子应用增量（占用数最低为0）
func (s *stockStore) ApplyDelta(ctx context.Context, t inventory.Target, d inventory.Delta) (inventory.UpdateResult, error) {
	return s.updateOne(ctx, targetFilter(t), deltaPipeline(t, d))
}

func (s *stockStore) updateOne(ctx context.Context, filter bson.D, update interface{}) (inventory.UpdateResult, error) {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return inventory.UpdateResult{}, apperrors.Wrap(err, "更新库存失败")
	}
	return inventory.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// Replace 版本一致时写回全部库存字段
// 只$set库存字段（按数组下标写规格），商品目录的其它字段保持不变。
func (s *stockStore) Replace(ctx context.Context, p *inventory.Product, expectedVersion int64) (bool, error) {
	filter, update := rewrite(p, expectedVersion)
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, apperrors.Wrap(err, "重写商品库存失败")
	}
	if res.MatchedCount == 0 {
		return false, nil
	}
	p.Version = expectedVersion + 1
	return true, nil
}

// Upsert 写入商品库存字段（不存在时创建文档）
func (s *stockStore) Upsert(ctx context.Context, p *inventory.Product) error {
	variants := bson.A{}
	fields := bson.M{
		"manageStock": p.ManageStock,
		"version":     p.Version,
	}
	switch shape := p.Shape.(type) {
	case inventory.Simple:
		fields["stockQuantity"] = shape.Level.Total
		fields["reservedQuantity"] = shape.Level.Reserved
	case inventory.Variable:
		for _, v := range shape.Variants {
			variants = append(variants, variantFields(v))
		}
	}
	fields["variants"] = variants

	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: p.ID}},
		bson.D{{Key: "$set", Value: fields}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return apperrors.Wrap(err, "写入商品失败")
	}
	return nil
}

// =========================================
// 过滤条件与更新语句
// =========================================

// targetFilter 定位商品（多规格时定位规格）
// 简单商品要求variants为空，避免对多规格商品的商品级字段做无意义的修改。
func targetFilter(t inventory.Target) bson.D {
	filter := bson.D{
		idFilter(t.ProductID),
		{Key: "manageStock", Value: true},
	}
	if t.VariantID == "" {
		return append(filter, bson.E{Key: "variants.0", Value: bson.M{"$exists": false}})
	}
	return append(filter, bson.E{Key: "variants", Value: bson.M{"$elemMatch": variantMatch(t.VariantID)}})
}

// variantMatch 规格定位条件：id相等，或没有id字段时_id相等（历史规格）
func variantMatch(variantID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"id": variantID},
		bson.M{"id": bson.M{"$exists": false}, "_id": bson.M{"$in": idValues(variantID)}},
	}}
}

// variantIs 聚合表达式版本的variantMatch，v为"$$v"这样的变量
func variantIs(v, variantID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{v + ".id", bson.M{"$literal": variantID}}},
		bson.M{"$and": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$type": v + ".id"}, "missing"}},
			bson.M{"$in": bson.A{v + "._id", bson.M{"$literal": idValues(variantID)}}},
		}},
	}}
}

// availableExpr 服务端可用库存判断：total - reserved >= quantity
func availableExpr(t inventory.Target, quantity int) bson.E {
	if t.VariantID == "" {
		return bson.E{Key: "$expr", Value: bson.M{
			"$gte": bson.A{
				bson.M{"$subtract": bson.A{ifNull("$stockQuantity", 0), ifNull("$reservedQuantity", 0)}},
				quantity,
			},
		}}
	}

	// 规格在数组里，用$filter找出"ID匹配且可用库存足够"的规格，至少一个才算命中
	return bson.E{Key: "$expr", Value: bson.M{
		"$gt": bson.A{
			bson.M{"$size": bson.M{"$filter": bson.M{
				"input": ifNull("$variants", bson.A{}),
				"as":    "v",
				"cond": bson.M{"$and": bson.A{
					variantIs("$$v", t.VariantID),
					bson.M{"$gte": bson.A{
						bson.M{"$subtract": bson.A{variantTotal("$$v"), ifNull("$$v.reservedQuantity", 0)}},
						quantity,
					}},
				}},
			}}},
			0,
		},
	}}
}

// reserveUpdate 占用数加quantity，版本号加1
// 规格同时写入id，历史规格（只有_id）第一次被预占时就补齐
func reserveUpdate(t inventory.Target, quantity int) bson.D {
	if t.VariantID == "" {
		return bson.D{{Key: "$inc", Value: bson.D{
			{Key: "reservedQuantity", Value: quantity},
			{Key: "version", Value: 1},
		}}}
	}
	return bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "variants.$.reservedQuantity", Value: quantity},
			{Key: "version", Value: 1},
		}},
		{Key: "$set", Value: bson.D{{Key: "variants.$.id", Value: t.VariantID}}},
	}
}

// deltaPipeline 用聚合管道应用增量
//
//	total    += d.Total
//	reserved  = max(reserved + d.Reserved, 0)
//	version  += 1
func deltaPipeline(t inventory.Target, d inventory.Delta) mongo.Pipeline {
	set := bson.M{
		"version": bson.M{"$add": bson.A{ifNull("$version", 0), 1}},
	}

	if t.VariantID == "" {
		set["stockQuantity"] = bson.M{"$add": bson.A{ifNull("$stockQuantity", 0), d.Total}}
		set["reservedQuantity"] = clampedAdd("$reservedQuantity", d.Reserved)
	} else {
		total := bson.M{"$add": bson.A{variantTotal("$$v"), d.Total}}
		set["variants"] = bson.M{"$map": bson.M{
			"input": "$variants",
			"as":    "v",
			"in": bson.M{"$cond": bson.A{
				variantIs("$$v", t.VariantID),
				bson.M{"$mergeObjects": bson.A{"$$v", bson.M{
					"id":               bson.M{"$literal": t.VariantID},
					"stock":            total,
					"stockQuantity":    total,
					"reservedQuantity": clampedAdd("$$v.reservedQuantity", d.Reserved),
				}}},
				"$$v",
			}},
		}}
	}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// rewrite 整体重写的过滤条件与更新语句
func rewrite(p *inventory.Product, expectedVersion int64) (bson.D, bson.D) {
	filter := bson.D{idFilter(p.ID)}
	if expectedVersion == 0 {
		// 历史文档可能没有version字段
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.M{"version": 0},
			bson.M{"version": bson.M{"$exists": false}},
		}})
	} else {
		filter = append(filter, bson.E{Key: "version", Value: expectedVersion})
	}

	set := bson.M{
		"manageStock": p.ManageStock,
		"version":     expectedVersion + 1,
	}
	switch shape := p.Shape.(type) {
	case inventory.Simple:
		set["stockQuantity"] = shape.Level.Total
		set["reservedQuantity"] = shape.Level.Reserved
	case inventory.Variable:
		// 版本号保证读取之后数组没有变化，按下标写是安全的；数组长度也一并校验
		filter = append(filter, bson.E{Key: "variants", Value: bson.M{"$size": len(shape.Variants)}})
		for i, v := range shape.Variants {
			for k, val := range variantFields(v) {
				set[fmt.Sprintf("variants.%d.%s", i, k)] = val
			}
		}
	}
	return filter, bson.D{{Key: "$set", Value: set}}
}

func ifNull(expr interface{}, fallback interface{}) bson.M {
	return bson.M{"$ifNull": bson.A{expr, fallback}}
}

// variantTotal 规格总库存表达式（优先stockQuantity，其次stock）
func variantTotal(v string) bson.M {
	return ifNull(v+".stockQuantity", ifNull(v+".stock", 0))
}

func clampedAdd(field string, delta int) bson.M {
	return bson.M{"$max": bson.A{0, bson.M{"$add": bson.A{ifNull(field, 0), delta}}}}
}
