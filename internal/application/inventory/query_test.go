package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/stockkeeper/internal/domain/inventory"
	"github.com/xiebiao/stockkeeper/internal/infrastructure/persistence/memory"
)

func newQueryFixture() *QueryService {
	unmanaged := inventory.NewSimple("free", 0, 0)
	unmanaged.ManageStock = false

	return NewQueryService(memory.NewStore(
		inventory.NewSimple("p", 10, 4),
		inventory.NewVariable("pv",
			inventory.Variant{ID: "v1", Level: inventory.Level{Total: 5, Reserved: 5}},
			inventory.Variant{ID: "v2", Level: inventory.Level{Total: 3, Reserved: 1}},
		),
		inventory.NewVariable("sold-out", inventory.Variant{ID: "v1", Level: inventory.Level{Total: 2, Reserved: 2}}),
		unmanaged,
	))
}

func TestCheckStockAvailability(t *testing.T) {
	ctx := context.Background()
	q := newQueryFixture()

	t.Run("简单商品", func(t *testing.T) {
		a, err := q.CheckStockAvailability(ctx, "p", "", 6)
		require.NoError(t, err)
		assert.Equal(t, inventory.Availability{Available: 6, Reserved: 4, Total: 10, CanFulfill: true}, a)

		a, err = q.CheckStockAvailability(ctx, "p", "", 7)
		require.NoError(t, err)
		assert.False(t, a.CanFulfill)
	})

	t.Run("规格", func(t *testing.T) {
		a, err := q.CheckStockAvailability(ctx, "pv", "v2", 2)
		require.NoError(t, err)
		assert.Equal(t, 2, a.Available)
		assert.True(t, a.CanFulfill)

		a, err = q.CheckStockAvailability(ctx, "pv", "v1", 1)
		require.NoError(t, err)
		assert.False(t, a.CanFulfill)
	})

	t.Run("不管理库存", func(t *testing.T) {
		a, err := q.CheckStockAvailability(ctx, "free", "", 1_000_000)
		require.NoError(t, err)
		assert.True(t, a.Unlimited)
		assert.True(t, a.CanFulfill)
		assert.Equal(t, inventory.UnlimitedQuantity, a.Available)
	})

	t.Run("商品不存在", func(t *testing.T) {
		_, err := q.CheckStockAvailability(ctx, "missing", "", 1)
		var nf *inventory.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "missing", nf.ProductID)
	})

	t.Run("规格不可用", func(t *testing.T) {
		_, err := q.CheckStockAvailability(ctx, "pv", "v9", 1)
		assert.ErrorIs(t, err, inventory.ErrNoUsableVariant)

		_, err = q.CheckStockAvailability(ctx, "pv", "", 1)
		assert.ErrorIs(t, err, inventory.ErrNoUsableVariant)
	})

	t.Run("数量不合法", func(t *testing.T) {
		_, err := q.CheckStockAvailability(ctx, "p", "", 0)
		assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	})
}

func TestGetStockInfo(t *testing.T) {
	ctx := context.Background()
	q := newQueryFixture()

	info, err := q.GetStockInfo(ctx, []string{"p", "pv", "sold-out", "free", "missing", "p", ""})
	require.NoError(t, err)

	require.Len(t, info, 4, "不存在的商品不出现在结果里")
	assert.NotContains(t, info, "missing")

	assert.Equal(t, inventory.Availability{Available: 6, Reserved: 4, Total: 10, CanFulfill: true}, info["p"])

	// 多规格商品汇总各规格
	assert.Equal(t, inventory.Availability{Available: 2, Reserved: 6, Total: 8, CanFulfill: true}, info["pv"])
	assert.False(t, info["sold-out"].CanFulfill)
	assert.True(t, info["free"].Unlimited)

	empty, err := q.GetStockInfo(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
