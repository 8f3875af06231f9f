package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryActionFor(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     Action
	}{
		{OrderStatusNone, OrderStatusPending, ActionReserve},
		{OrderStatusPending, OrderStatusPaid, ActionDeduct},
		{OrderStatusPending, OrderStatusShipped, ActionDeduct},
		{OrderStatusPending, OrderStatusCancelled, ActionRelease},
		{OrderStatusPaid, OrderStatusRefunded, ActionIncrementStock},
		{OrderStatusShipped, OrderStatusRefunded, ActionIncrementStock},
		{OrderStatusCompleted, OrderStatusRefunded, ActionIncrementStock},

		// 不动库存的变化
		{OrderStatusPaid, OrderStatusShipped, ActionNone},
		{OrderStatusShipped, OrderStatusCompleted, ActionNone},
		{OrderStatusPaid, OrderStatusCancelled, ActionNone},
		{OrderStatusPending, OrderStatusRefunded, ActionNone},
		{OrderStatusCancelled, OrderStatusRefunded, ActionNone},
		{OrderStatusPending, OrderStatusPending, ActionNone},
	}

	for _, c := range cases {
		t.Run(string(c.from)+"->"+string(c.to), func(t *testing.T) {
			assert.Equal(t, c.want, InventoryActionFor(c.from, c.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Paid ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, st)

	st, err = ParseStatus("created")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusNone, st)

	_, err = ParseStatus("lost")
	assert.Error(t, err)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "reserve", ActionReserve.String())
	assert.Equal(t, "increment", ActionIncrementStock.String())
	assert.Equal(t, "none", ActionNone.String())
}
