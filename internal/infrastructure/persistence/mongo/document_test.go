package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
)

// decode 模拟从集合里读出一个文档
func decode(t *testing.T, raw bson.M) *inventory.Product {
	t.Helper()
	data, err := bson.Marshal(raw)
	require.NoError(t, err)
	var doc productDoc
	require.NoError(t, bson.Unmarshal(data, &doc))
	return toProduct(&doc)
}

func TestToProduct_Simple(t *testing.T) {
	p := decode(t, bson.M{
		"_id":              "p1",
		"name":             "目录字段会被忽略",
		"manageStock":      true,
		"stockQuantity":    10,
		"reservedQuantity": 3,
		"version":          int64(7),
	})

	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.ManageStock)
	assert.Equal(t, int64(7), p.Version)
	assert.Equal(t, inventory.Simple{Level: inventory.Level{Total: 10, Reserved: 3}}, p.Shape)
}

func TestToProduct_ObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	p := decode(t, bson.M{"_id": oid, "manageStock": true})
	assert.Equal(t, oid.Hex(), p.ID)
}

func TestToProduct_MissingFields(t *testing.T) {
	p := decode(t, bson.M{"_id": "p"})
	assert.False(t, p.ManageStock, "缺少manageStock视为不管理库存")
	assert.Zero(t, p.Version)
	assert.False(t, p.IsVariable())
}

func TestToProduct_VariantShim(t *testing.T) {
	legacy := primitive.NewObjectID()
	p := decode(t, bson.M{
		"_id":         "pv",
		"manageStock": true,
		"variants": bson.A{
			// 新字段优先
			bson.M{"id": "a", "stock": 1, "stockQuantity": 5, "reservedQuantity": 2},
			// 只有旧字段stock
			bson.M{"id": "b", "stock": 4},
			// 只有_id的历史规格
			bson.M{"_id": legacy, "stockQuantity": 6, "reservedQuantity": 1},
		},
	})

	require.True(t, p.IsVariable())
	v := p.Shape.(inventory.Variable).Variants
	require.Len(t, v, 3)

	assert.Equal(t, inventory.Variant{ID: "a", Level: inventory.Level{Total: 5, Reserved: 2}}, v[0])
	assert.Equal(t, inventory.Variant{ID: "b", Level: inventory.Level{Total: 4}}, v[1])
	assert.Equal(t, inventory.Variant{ID: legacy.Hex(), Level: inventory.Level{Total: 6, Reserved: 1}}, v[2])

	// 规格读取后可以正常选择库存数字
	l, err := p.LevelOf(legacy.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5, l.Available())
}

func TestIdValues(t *testing.T) {
	assert.Equal(t, []interface{}{"sku-1"}, idValues("sku-1"))

	oid := primitive.NewObjectID()
	values := idValues(oid.Hex())
	require.Len(t, values, 2)
	assert.Equal(t, oid.Hex(), values[0])
	assert.Equal(t, oid, values[1])
}

func TestVariantFields(t *testing.T) {
	fields := variantFields(inventory.Variant{ID: "a", Level: inventory.Level{Total: 8, Reserved: 2}})
	assert.Equal(t, 8, fields["stock"], "新旧字段同时写")
	assert.Equal(t, 8, fields["stockQuantity"])
	assert.Equal(t, 2, fields["reservedQuantity"])
	assert.Equal(t, "a", fields["id"])
}
