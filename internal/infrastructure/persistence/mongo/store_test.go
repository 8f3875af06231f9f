package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	appinventory "github.com/xiebiao/stockkeeper/internal/application/inventory"
	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/config"
)

func TestTargetFilter(t *testing.T) {
	simple := targetFilter(inventory.Target{ProductID: "p"})
	require.Len(t, simple, 3)
	assert.Equal(t, "manageStock", simple[1].Key)
	assert.Equal(t, "variants.0", simple[2].Key, "简单商品要求没有规格")

	variant := targetFilter(inventory.Target{ProductID: "p", VariantID: "v1"})
	require.Len(t, variant, 3)
	assert.Equal(t, bson.E{Key: "variants", Value: bson.M{"$elemMatch": variantMatch("v1")}}, variant[2])
}

func TestVariantMatch_LegacyID(t *testing.T) {
	oid := primitive.NewObjectID()

	match := variantMatch(oid.Hex())
	or := match["$or"].(bson.A)
	require.Len(t, or, 2)
	assert.Equal(t, bson.M{"id": oid.Hex()}, or[0])

	// 没有id字段的历史规格按_id定位，字符串与ObjectID两种取值都要覆盖
	legacy := or[1].(bson.M)
	assert.Equal(t, bson.M{"$exists": false}, legacy["id"])
	assert.Equal(t, bson.M{"$in": []interface{}{oid.Hex(), oid}}, legacy["_id"])

	// 聚合表达式版本用于条件预占和增量管道
	expr := variantIs("$$v", "old-1")["$or"].(bson.A)
	require.Len(t, expr, 2)
	assert.Equal(t, bson.M{"$eq": bson.A{"$$v.id", bson.M{"$literal": "old-1"}}}, expr[0])
	assert.Contains(t, expr[1].(bson.M)["$and"], bson.M{"$eq": bson.A{bson.M{"$type": "$$v.id"}, "missing"}})
}

func TestAvailableExpr_Variant(t *testing.T) {
	e := availableExpr(inventory.Target{ProductID: "p", VariantID: "old-1"}, 2)
	assert.Equal(t, "$expr", e.Key)

	gt := e.Value.(bson.M)["$gt"].(bson.A)
	filter := gt[0].(bson.M)["$size"].(bson.M)["$filter"].(bson.M)
	cond := filter["cond"].(bson.M)["$and"].(bson.A)
	assert.Equal(t, variantIs("$$v", "old-1"), cond[0], "条件预占也要能定位历史规格")
}

func TestDeltaPipeline_WritesVariantID(t *testing.T) {
	pipeline := deltaPipeline(inventory.Target{ProductID: "p", VariantID: "old-1"}, inventory.DeductDelta(2))
	require.Len(t, pipeline, 1)

	set := pipeline[0][0].Value.(bson.M)
	cond := set["variants"].(bson.M)["$map"].(bson.M)["in"].(bson.M)["$cond"].(bson.A)
	assert.Equal(t, variantIs("$$v", "old-1"), cond[0])

	merged := cond[1].(bson.M)["$mergeObjects"].(bson.A)[1].(bson.M)
	assert.Equal(t, bson.M{"$literal": "old-1"}, merged["id"])
}

func TestReserveUpdate(t *testing.T) {
	assert.Equal(t,
		bson.D{{Key: "$inc", Value: bson.D{{Key: "reservedQuantity", Value: 2}, {Key: "version", Value: 1}}}},
		reserveUpdate(inventory.Target{ProductID: "p"}, 2))

	assert.Equal(t,
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "variants.$.reservedQuantity", Value: 2}, {Key: "version", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "variants.$.id", Value: "v"}}},
		},
		reserveUpdate(inventory.Target{ProductID: "p", VariantID: "v"}, 2))
}

func TestRewrite(t *testing.T) {
	t.Run("历史文档没有版本号", func(t *testing.T) {
		filter, _ := rewrite(inventory.NewSimple("p", 1, 0), 0)
		require.Len(t, filter, 2)
		assert.Equal(t, "$or", filter[1].Key)
	})

	t.Run("按下标写规格并补上id", func(t *testing.T) {
		p := inventory.NewVariable("pv",
			inventory.Variant{ID: "a", Level: inventory.Level{Total: 1}},
			inventory.Variant{ID: "b", Level: inventory.Level{Total: 2, Reserved: 1}},
		)
		filter, update := rewrite(p, 4)
		assert.Contains(t, filter, bson.E{Key: "version", Value: int64(4)})
		assert.Contains(t, filter, bson.E{Key: "variants", Value: bson.M{"$size": 2}})

		set := update[0].Value.(bson.M)
		assert.Equal(t, int64(5), set["version"])
		assert.Equal(t, "b", set["variants.1.id"])
		assert.Equal(t, 2, set["variants.1.stock"])
		assert.Equal(t, 2, set["variants.1.stockQuantity"])
		assert.Equal(t, 1, set["variants.1.reservedQuantity"])
		assert.NotContains(t, set, "variants", "不能覆盖整个规格数组")
	})
}

// =========================================
// 集成测试（需要MongoDB）
// STOCKKEEPER_TEST_MONGO_URI=mongodb://127.0.0.1:27017 go test ./...
// =========================================

func newIntegrationStore(t *testing.T) (inventory.Store, *config.Config) {
	t.Helper()
	uri := os.Getenv("STOCKKEEPER_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("未设置STOCKKEEPER_TEST_MONGO_URI，跳过MongoDB集成测试")
	}

	cfg := &config.Config{Mongo: config.MongoConfig{
		URI:            uri,
		Database:       "stockkeeper_test",
		Collection:     "products_" + uuid.NewString()[:8],
		ConnectTimeout: 5 * time.Second,
	}}

	ctx := context.Background()
	client, err := NewClient(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	coll := Collection(client, cfg)
	t.Cleanup(func() {
		_ = coll.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewStore(coll), cfg
}

func TestStore_Integration(t *testing.T) {
	store, _ := newIntegrationStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, inventory.NewSimple("p", 10, 8)))
	require.NoError(t, store.Upsert(ctx, inventory.NewVariable("pv",
		inventory.Variant{ID: "a", Level: inventory.Level{Total: 5, Reserved: 4}},
	)))

	t.Run("条件预占", func(t *testing.T) {
		res, err := store.IncrementReserved(ctx, inventory.Target{ProductID: "p"}, 3, true)
		require.NoError(t, err)
		assert.Zero(t, res.Matched)

		res, err = store.IncrementReserved(ctx, inventory.Target{ProductID: "pv", VariantID: "a"}, 1, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Matched)

		res, err = store.IncrementReserved(ctx, inventory.Target{ProductID: "pv", VariantID: "a"}, 1, true)
		require.NoError(t, err)
		assert.Zero(t, res.Matched, "规格可用库存为0")
	})

	t.Run("释放下限为0", func(t *testing.T) {
		_, err := store.ApplyDelta(ctx, inventory.Target{ProductID: "pv", VariantID: "a"}, inventory.ReleaseDelta(100))
		require.NoError(t, err)

		p, err := store.FindProduct(ctx, "pv")
		require.NoError(t, err)
		l, err := p.LevelOf("a")
		require.NoError(t, err)
		assert.Equal(t, inventory.Level{Total: 5, Reserved: 0}, l)
	})
}

func TestStore_IntegrationLegacyVariant(t *testing.T) {
	store, _ := newIntegrationStore(t)
	ctx := context.Background()
	ms := store.(*stockStore)

	// 历史规格只有_id和stock
	_, err := ms.coll.InsertOne(ctx, bson.M{
		"_id":         "legacy",
		"manageStock": true,
		"variants":    bson.A{bson.M{"_id": "old-1", "stock": 5, "reservedQuantity": 2}},
	})
	require.NoError(t, err)

	engine := appinventory.NewEngine(store, nil, appinventory.DefaultOptions(), zerolog.Nop())
	items := []inventory.LineItem{{ProductID: "legacy", VariantID: "old-1", Quantity: 2}}

	// 条件预占按_id定位历史规格，并补上id
	require.NoError(t, engine.Reserve(ctx, "order-legacy", items))

	var raw bson.M
	require.NoError(t, ms.coll.FindOne(ctx, bson.M{"_id": "legacy"}).Decode(&raw))
	variant := raw["variants"].(bson.A)[0].(bson.M)
	assert.Equal(t, "old-1", variant["id"])
	assert.EqualValues(t, 4, variant["reservedQuantity"])

	// 可用库存只剩1，再预占2件应被存储端条件拒绝
	err = engine.Reserve(ctx, "order-legacy-2", items)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// 扣减同时写入stock与stockQuantity
	require.NoError(t, engine.Deduct(ctx, "order-legacy", items))

	raw = bson.M{}
	require.NoError(t, ms.coll.FindOne(ctx, bson.M{"_id": "legacy"}).Decode(&raw))
	variant = raw["variants"].(bson.A)[0].(bson.M)
	assert.EqualValues(t, 3, variant["stockQuantity"])
	assert.EqualValues(t, 3, variant["stock"])
	assert.EqualValues(t, 2, variant["reservedQuantity"])
	assert.EqualValues(t, 2, raw["version"])
}
